package thermal

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// CalibrationFile is written next to the frame spool at initialize.
const CalibrationFile = "flir_variables.json"

// Calibration holds the Planck constants and atmospheric parameters needed
// to convert raw radiometric counts to temperatures offline.
type Calibration struct {
	R   float64 `json:"R"`
	B   float64 `json:"B"`
	F   float64 `json:"F"`
	X   float64 `json:"X"`
	J0  float64 `json:"J0"`
	J1  float64 `json:"J1"`
	H2O float64 `json:"H2O"`
	Tau float64 `json:"Tau"`
	K2  float64 `json:"K2"`
	R1  float64 `json:"r1"`
	R2  float64 `json:"r2"`
	R3  float64 `json:"r3"`

	Emiss     float64 `json:"Emiss"`
	DistanceM float64 `json:"DistanceM"`
	Model     string  `json:"Model,omitempty"`
	Serial    string  `json:"Serial,omitempty"`
}

// WriteCalibration stores c atomically, so a crash never leaves a partial file.
func WriteCalibration(dir string, c Calibration) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(filepath.Join(dir, CalibrationFile), raw, 0o644)
}

// ReadCalibration loads a calibration file written by WriteCalibration.
func ReadCalibration(dir string) (Calibration, error) {
	var c Calibration
	raw, err := os.ReadFile(filepath.Join(dir, CalibrationFile))
	if err != nil {
		return c, err
	}
	err = json.Unmarshal(raw, &c)
	return c, err
}
