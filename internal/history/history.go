// Package history is an append-only SQLite ledger of pool-best
// improvements: a row every time the saver task finds a new process-wide
// minimum-energy configuration. It supplements the CSV "latest best" record
// in internal/store with a queryable timeline, the way eve-flipper's
// internal/db keeps scan_history alongside the live watchlist state.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"diceopt/internal/logger"

	_ "modernc.org/sqlite"
)

// Ledger wraps the SQLite connection backing the improvement history.
type Ledger struct {
	sql *sql.DB
}

// Improvement is one recorded process-wide best.
type Improvement struct {
	ID         uuid.UUID
	SideCount  int
	Stress     float64
	MoveRate   float64
	WorkerID   uuid.UUID
	RecordedAt time.Time
}

// Open opens (or creates) <dataDir>/history.db and runs migrations.
func Open(dataDir string) (*Ledger, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("history: mkdir %s: %w", dataDir, err)
	}
	path := filepath.Join(dataDir, "history.db")
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	l := &Ledger{sql: sqlDB}
	if err := l.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	logger.Success("HISTORY", fmt.Sprintf("opened %s", path))
	return l, nil
}

// Close closes the underlying connection.
func (l *Ledger) Close() error {
	return l.sql.Close()
}

func (l *Ledger) migrate() error {
	version := 0
	l.sql.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)

	if version < 1 {
		_, err := l.sql.Exec(`
			CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

			CREATE TABLE IF NOT EXISTS improvements (
				id          TEXT PRIMARY KEY,
				side_count  INTEGER NOT NULL,
				stress      REAL NOT NULL,
				move_rate   REAL NOT NULL,
				worker_id   TEXT NOT NULL,
				recorded_at TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_improvements_side_count ON improvements(side_count, recorded_at DESC);

			INSERT OR IGNORE INTO schema_version (version) VALUES (1);
		`)
		if err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
		logger.Info("HISTORY", "applied migration v1")
	}

	return nil
}

// Record appends an improvement row. Recording is best-effort: the saver
// loop logs and continues on failure rather than treating it as fatal.
func (l *Ledger) Record(imp Improvement) error {
	if imp.ID == uuid.Nil {
		imp.ID = uuid.New()
	}
	if imp.RecordedAt.IsZero() {
		imp.RecordedAt = time.Now().UTC()
	}
	_, err := l.sql.Exec(
		`INSERT INTO improvements (id, side_count, stress, move_rate, worker_id, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		imp.ID.String(), imp.SideCount, imp.Stress, imp.MoveRate,
		// Fixed-width UTC timestamps so ORDER BY recorded_at on the text
		// column is chronological.
		imp.WorkerID.String(), imp.RecordedAt.UTC().Format("2006-01-02T15:04:05.000000000Z07:00"),
	)
	return err
}

// Recent returns up to limit improvement rows for a side count, most recent
// first.
func (l *Ledger) Recent(sideCount, limit int) ([]Improvement, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.sql.Query(
		`SELECT id, side_count, stress, move_rate, worker_id, recorded_at
		   FROM improvements
		  WHERE side_count = ?
		  ORDER BY recorded_at DESC
		  LIMIT ?`,
		sideCount, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Improvement
	for rows.Next() {
		var idStr, workerStr, recordedStr string
		var imp Improvement
		if err := rows.Scan(&idStr, &imp.SideCount, &imp.Stress, &imp.MoveRate, &workerStr, &recordedStr); err != nil {
			return nil, err
		}
		imp.ID, err = uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("history: bad id %q: %w", idStr, err)
		}
		imp.WorkerID, err = uuid.Parse(workerStr)
		if err != nil {
			return nil, fmt.Errorf("history: bad worker id %q: %w", workerStr, err)
		}
		imp.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedStr)
		if err != nil {
			return nil, fmt.Errorf("history: bad timestamp %q: %w", recordedStr, err)
		}
		out = append(out, imp)
	}
	return out, rows.Err()
}
