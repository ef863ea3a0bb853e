package history

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// openTestLedger opens an in-memory SQLite DB and runs migrations (for
// testing only).
func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	l := &Ledger{sql: sqlDB}
	if err := l.migrate(); err != nil {
		sqlDB.Close()
		t.Fatalf("migrate: %v", err)
	}
	return l
}

func TestLedger_RecordAndRecent(t *testing.T) {
	l := openTestLedger(t)
	defer l.Close()

	workerID := uuid.New()
	if err := l.Record(Improvement{SideCount: 20, Stress: 49.16, MoveRate: 0.01, WorkerID: workerID}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := l.Record(Improvement{SideCount: 20, Stress: 49.10, MoveRate: 0.005, WorkerID: workerID}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := l.Record(Improvement{SideCount: 6, Stress: 3.0, MoveRate: 0.1, WorkerID: workerID}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	rows, err := l.Recent(20, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("Recent(20) len = %d, want 2", len(rows))
	}
	if rows[0].Stress != 49.10 {
		t.Errorf("Recent(20)[0].Stress = %v, want 49.10 (most recent first)", rows[0].Stress)
	}
	if rows[0].WorkerID != workerID {
		t.Errorf("Recent(20)[0].WorkerID = %v, want %v", rows[0].WorkerID, workerID)
	}
	if rows[0].RecordedAt.After(time.Now()) {
		t.Error("RecordedAt is in the future")
	}
}

func TestLedger_RecentEmptyForUnknownSideCount(t *testing.T) {
	l := openTestLedger(t)
	defer l.Close()

	if err := l.Record(Improvement{SideCount: 20, Stress: 49.16, WorkerID: uuid.New()}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	rows, err := l.Recent(4, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Recent(4) len = %d, want 0", len(rows))
	}
}

func TestLedger_RecordGeneratesIDWhenNil(t *testing.T) {
	l := openTestLedger(t)
	defer l.Close()

	if err := l.Record(Improvement{SideCount: 8, Stress: 1.0, WorkerID: uuid.New()}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	rows, err := l.Recent(8, 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rows) != 1 || rows[0].ID == uuid.Nil {
		t.Fatalf("expected a generated non-nil ID, got %+v", rows)
	}
}
