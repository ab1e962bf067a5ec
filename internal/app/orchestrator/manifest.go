package orchestrator

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/ghalamif/CaptureFlow/internal/domain"
)

// ManifestFile is written at the root of every session directory.
const ManifestFile = "session.json"

// WriteManifest atomically replaces dir/session.json.
func WriteManifest(dir string, s domain.RunSession) error {
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(filepath.Join(dir, ManifestFile), append(raw, '\n'), 0o644)
}

func ReadManifest(dir string) (domain.RunSession, error) {
	var s domain.RunSession
	raw, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return s, err
	}
	err = json.Unmarshal(raw, &s)
	return s, err
}
