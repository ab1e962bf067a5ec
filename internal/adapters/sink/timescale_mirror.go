package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/ghalamif/CaptureFlow/internal/domain"
	"github.com/ghalamif/CaptureFlow/internal/ports"
)

// TimescaleMirror copies scalar samples into a Timescale hypertable so runs
// can be queried next to plant data. Frames are never mirrored.
type TimescaleMirror struct {
	db        *sql.DB
	tableName string
	sessionID string
	timeout   time.Duration
}

// DefaultWriteTimeout bounds one batch insert.
const DefaultWriteTimeout = 5 * time.Second

// OpenTimescale opens a lib/pq connection and verifies it.
func OpenTimescale(connString string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("timescale ping: %w", err)
	}
	return db, nil
}

func NewTimescaleMirror(db *sql.DB, table, sessionID string) *TimescaleMirror {
	return &TimescaleMirror{db: db, tableName: table, sessionID: sessionID, timeout: DefaultWriteTimeout}
}

func (t *TimescaleMirror) Name() string { return "timescaledb" }

func (t *TimescaleMirror) WriteBatch(samples []*domain.CaptureSample) error {
	if len(samples) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(t.tableName)
	b.WriteString(" (session_id, sensor, kind, ts, seq, relative_s, values) VALUES ")

	args := make([]any, 0, len(samples)*7)
	for i, s := range samples {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			len(args)+1, len(args)+2, len(args)+3, len(args)+4, len(args)+5, len(args)+6, len(args)+7))
		vals, err := json.Marshal(s.Values)
		if err != nil {
			return fmt.Errorf("marshal values: %w", err)
		}

		args = append(args,
			t.sessionID,
			s.Sensor,
			string(s.Kind),
			s.Wall,
			int64(s.Seq),
			s.Relative.Seconds(),
			vals,
		)
	}

	b.WriteString(" ON CONFLICT (session_id, sensor, seq) DO NOTHING")

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	_, err := t.db.ExecContext(ctx, b.String(), args...)
	return err
}

var _ ports.BatchSink = (*TimescaleMirror)(nil)
