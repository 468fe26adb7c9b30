package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/tallyhq/tally/internal/types"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "tally.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { s.Close() })
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

func TestNewCreatesDirectoryAndSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "tally.db")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New(%q) failed: %v", path, err)
	}
	defer s.Close()

	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("ping failed: %v", err)
	}
}

func TestNewRejectsEmptyPath(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestEnsureChannelIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

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

	ledger, err := s.GetLedger(ctx, types.CategoryBugs, "C1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ledger.Items) != 0 {
		t.Errorf("ensured channel should stay empty, got %d items", len(ledger.Items))
	}
}

func TestCategoriesUseSeparateTables(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	// Same channel id in two categories must not collide.
	for _, cat := range []types.Category{types.CategoryBugs, types.CategoryTasks} {
		if _, err := s.EnsureChannel(ctx, cat, "C1"); err != nil {
			t.Fatalf("ensure %s failed: %v", cat, err)
		}
	}

	bugs, err := s.GetLedger(ctx, types.CategoryBugs, "C1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bugs.Items = append(bugs.Items, testItem("bugs_1", "only in bugs"))
	if err := s.PutLedger(ctx, bugs); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	tasks, err := s.GetLedger(ctx, types.CategoryTasks, "C1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks.Items) != 0 {
		t.Errorf("tasks ledger should be empty, got %d items", len(tasks.Items))
	}

	_, err = s.GetLedger(ctx, types.CategoryBlocked, "C1")
	if !errors.Is(err, types.ErrChannelNotFound) {
		t.Errorf("blocked ledger should not exist, got %v", err)
	}
}

func TestGetLedgerMissingChannel(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.GetLedger(context.Background(), types.CategoryTasks, "missing")
	if !errors.Is(err, types.ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}
}

func TestGetLedgerInvalidCategory(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.GetLedger(context.Background(), "FEATURES", "C1")
	if !errors.Is(err, types.ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}
}

func TestPutLedgerRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	item := testItem("tasks_1700000000000000001", "ship the thing")
	item.URLs = []string{"https://example.com/thread/1"}
	item.FileURLs = []string{"https://files.example.com/a.png"}

	ledger := &types.ChannelLedger{
		ChannelID: "C2",
		Category:  types.CategoryTasks,
		Items:     []types.LedgerItem{item},
	}
	if err := s.PutLedger(ctx, ledger); err != nil {
		t.Fatalf("create put failed: %v", err)
	}

	got, err := s.GetLedger(ctx, types.CategoryTasks, "C2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Version != 1 {
		t.Errorf("version = %d, want 1", got.Version)
	}
	if len(got.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got.Items))
	}
	back := got.Items[0]
	if back.ID != item.ID || back.Message != item.Message || back.Status != item.Status ||
		back.CreatedTimestamp != item.CreatedTimestamp || back.UpdatedTimestamp != item.UpdatedTimestamp {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", back, item)
	}
	if len(back.URLs) != 1 || back.URLs[0] != item.URLs[0] {
		t.Errorf("urls mismatch: %v", back.URLs)
	}
	if len(back.FileURLs) != 1 || back.FileURLs[0] != item.FileURLs[0] {
		t.Errorf("file_urls mismatch: %v", back.FileURLs)
	}
}

func TestPutLedgerVersionConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	seed := &types.ChannelLedger{
		ChannelID: "C3",
		Category:  types.CategoryBugs,
		Items:     []types.LedgerItem{testItem("bugs_1", "crash on save")},
	}
	if err := s.PutLedger(ctx, seed); err != nil {
		t.Fatalf("seed put failed: %v", err)
	}

	first, err := s.GetLedger(ctx, types.CategoryBugs, "C3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := s.GetLedger(ctx, types.CategoryBugs, "C3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first.Items = append(first.Items, testItem("bugs_2", "crash on load"))
	if err := s.PutLedger(ctx, first); err != nil {
		t.Fatalf("first writer should win: %v", err)
	}

	second.Items = append(second.Items, testItem("bugs_3", "crash on exit"))
	err = s.PutLedger(ctx, second)
	if !errors.Is(err, types.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}

	fresh, err := s.GetLedger(ctx, types.CategoryBugs, "C3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fresh.Items = append(fresh.Items, testItem("bugs_3", "crash on exit"))
	if err := s.PutLedger(ctx, fresh); err != nil {
		t.Fatalf("retry from fresh read failed: %v", err)
	}

	final, err := s.GetLedger(ctx, types.CategoryBugs, "C3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(final.Items) != 3 {
		t.Errorf("expected both writers' items (3 total), got %d", len(final.Items))
	}
	if final.Version != 3 {
		t.Errorf("version = %d, want 3", final.Version)
	}
}

func TestPutLedgerCreateRace(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	if _, err := s.EnsureChannel(ctx, types.CategoryBlocked, "C4"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stale := &types.ChannelLedger{
		ChannelID: "C4",
		Category:  types.CategoryBlocked,
		Items:     []types.LedgerItem{testItem("blocked_1", "waiting on vendor")},
	}
	err := s.PutLedger(ctx, stale) // Version 0 against an existing row
	if !errors.Is(err, types.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
}

func TestJournalRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)

	entries := []types.JournalEntry{
		{ID: "j1", Category: types.CategoryBugs, ChannelID: "C1", Kind: "insert", ItemID: "bugs_1", CreatedAt: "2024-06-01T10:00:00Z"},
		{ID: "j2", Category: types.CategoryBugs, ChannelID: "C1", Kind: "noop", ItemID: "bugs_1", CreatedAt: "2024-06-01T10:01:00Z"},
		{ID: "j3", Category: types.CategoryTasks, ChannelID: "C1", Kind: "insert", ItemID: "tasks_1", CreatedAt: "2024-06-01T10:02:00Z"},
	}
	for i := range entries {
		if err := s.AppendJournal(ctx, &entries[i]); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	got, err := s.ReadJournal(ctx, types.CategoryBugs, "C1", 10)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].ID != "j2" || got[1].ID != "j1" {
		t.Errorf("expected newest first, got %q then %q", got[0].ID, got[1].ID)
	}
	if got[0].Kind != "noop" {
		t.Errorf("kind = %q, want noop", got[0].Kind)
	}
}

func TestInMemoryDatabase(t *testing.T) {
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New(:memory:) failed: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if _, err := s.EnsureChannel(ctx, types.CategoryBugs, "C1"); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	ledger, err := s.GetLedger(ctx, types.CategoryBugs, "C1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if ledger.Version != 1 {
		t.Errorf("version = %d, want 1", ledger.Version)
	}
}
