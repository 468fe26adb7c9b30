package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/tallyhq/tally/internal/types"
)

// setupTestStorage connects to the database named by TALLY_TEST_POSTGRES_DSN
// and truncates the ledger tables. Tests skip when no database is available.
func setupTestStorage(t *testing.T) *PostgresStorage {
	t.Helper()

	dsn := os.Getenv("TALLY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("Skipping PostgreSQL test (TALLY_TEST_POSTGRES_DSN not set)")
	}

	ctx := context.Background()
	s, err := New(ctx, dsn)
	if err != nil {
		t.Skipf("Skipping PostgreSQL test (database not available): %v", err)
	}
	t.Cleanup(func() { s.Close() })

	_, err = s.db.ExecContext(ctx,
		`TRUNCATE TABLE ledger_bugs, ledger_blocked, ledger_tasks, ledger_journal`)
	if err != nil {
		t.Fatalf("failed to truncate test tables: %v", err)
	}
	return s
}

func testItem(id, message string) types.LedgerItem {
	now := types.NowTimestamp()
	return types.LedgerItem{
		ID:               id,
		Message:          message,
		Status:           types.StatusNew,
		CreatedTimestamp: now,
		UpdatedTimestamp: now,
	}
}

func TestEnsureChannelIdempotent(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)

	created, err := s.EnsureChannel(ctx, types.CategoryBugs, "C1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("first ensure should report created")
	}

	created, err = s.EnsureChannel(ctx, types.CategoryBugs, "C1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Error("second ensure should report already-exists")
	}
}

func TestLedgerRoundTripAndConflict(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)

	ledger := &types.ChannelLedger{
		ChannelID: "C2",
		Category:  types.CategoryTasks,
		Items:     []types.LedgerItem{testItem("tasks_1", "write the runbook")},
	}
	if err := s.PutLedger(ctx, ledger); err != nil {
		t.Fatalf("create put failed: %v", err)
	}

	first, err := s.GetLedger(ctx, types.CategoryTasks, "C2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := s.GetLedger(ctx, types.CategoryTasks, "C2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first.Items = append(first.Items, testItem("tasks_2", "review the runbook"))
	if err := s.PutLedger(ctx, first); err != nil {
		t.Fatalf("first writer should win: %v", err)
	}

	second.Items = append(second.Items, testItem("tasks_3", "archive the runbook"))
	err = s.PutLedger(ctx, second)
	if !errors.Is(err, types.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}

	fresh, err := s.GetLedger(ctx, types.CategoryTasks, "C2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fresh.Items) != 2 {
		t.Errorf("expected 2 items, got %d", len(fresh.Items))
	}
}

func TestJournalRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t)

	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		entry := types.JournalEntry{
			ID:        fmt.Sprintf("j%d", i),
			Category:  types.CategoryBugs,
			ChannelID: "C1",
			Kind:      "insert",
			ItemID:    fmt.Sprintf("bugs_%d", i),
			CreatedAt: types.FormatTimestamp(base.Add(time.Duration(i) * time.Minute)),
		}
		if err := s.AppendJournal(ctx, &entry); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	got, err := s.ReadJournal(ctx, types.CategoryBugs, "C1", 2)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].ID != "j2" {
		t.Errorf("expected newest first, got %q", got[0].ID)
	}
}
