package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ghalamif/CaptureFlow/internal/domain"
	"github.com/ghalamif/CaptureFlow/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	output_root TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	finished_at INTEGER,
	state       TEXT NOT NULL,
	active      TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS session_sensors (
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	kind       TEXT NOT NULL,
	available  INTEGER NOT NULL,
	ready      INTEGER NOT NULL,
	samples    INTEGER NOT NULL,
	dropped    INTEGER NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (session_id, name)
);`

// SQLite is a ports.Catalog backed by a single local database file.
type SQLite struct {
	db *sql.DB
}

// Open creates the database (and its directory) if needed and applies the
// schema. WAL mode and a busy timeout apply to every pooled connection.
func Open(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		path, (5 * time.Second).Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open failed: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog: ping failed: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog: schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (c *SQLite) BeginSession(ctx context.Context, s *domain.RunSession) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO sessions (id, output_root, created_at, state, active) VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.OutputRoot, s.CreatedAt.UnixNano(), string(s.State), strings.Join(s.ActiveSensors, ","))
	return err
}

// FinishSession records the final state and every sensor outcome in one transaction.
func (c *SQLite) FinishSession(ctx context.Context, s *domain.RunSession) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET finished_at = ?, state = ?, active = ? WHERE id = ?`,
		s.FinishedAt.UnixNano(), string(s.State), strings.Join(s.ActiveSensors, ","), s.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("catalog: unknown session %q", s.ID)
	}

	for _, info := range s.Sensors {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO session_sensors (session_id, name, kind, available, ready, samples, dropped, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			s.ID, info.Name, string(info.Kind), info.Available, info.Ready,
			int64(info.Samples), int64(info.Dropped), info.Error); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Recent returns up to limit sessions, newest first, with their sensor outcomes.
func (c *SQLite) Recent(ctx context.Context, limit int) ([]domain.RunSession, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, output_root, created_at, COALESCE(finished_at, 0), state, active
		 FROM sessions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RunSession
	for rows.Next() {
		var (
			s                 domain.RunSession
			created, finished int64
			state, active     string
		)
		if err := rows.Scan(&s.ID, &s.OutputRoot, &created, &finished, &state, &active); err != nil {
			return nil, err
		}
		s.CreatedAt = time.Unix(0, created)
		if finished > 0 {
			s.FinishedAt = time.Unix(0, finished)
		}
		s.State = domain.RunState(state)
		if active != "" {
			s.ActiveSensors = strings.Split(active, ",")
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		sensors, err := c.sensors(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Sensors = sensors
	}
	return out, nil
}

func (c *SQLite) sensors(ctx context.Context, sessionID string) ([]domain.SensorInfo, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT name, kind, available, ready, samples, dropped, error
		 FROM session_sensors WHERE session_id = ? ORDER BY name`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SensorInfo
	for rows.Next() {
		var (
			info             domain.SensorInfo
			kind             string
			samples, dropped int64
		)
		if err := rows.Scan(&info.Name, &kind, &info.Available, &info.Ready, &samples, &dropped, &info.Error); err != nil {
			return nil, err
		}
		info.Kind = domain.SensorKind(kind)
		info.Samples = uint64(samples)
		info.Dropped = uint64(dropped)
		out = append(out, info)
	}
	return out, rows.Err()
}

func (c *SQLite) Close() error {
	return c.db.Close()
}

var _ ports.Catalog = (*SQLite)(nil)
