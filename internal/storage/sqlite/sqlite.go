// Package sqlite implements the ledger document store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/tallyhq/tally/internal/types"
)

// SQLiteStorage implements the storage.Storage interface using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS ledger_bugs (
	channel_id TEXT PRIMARY KEY,
	items      TEXT NOT NULL DEFAULT '[]',
	version    INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_blocked (
	channel_id TEXT PRIMARY KEY,
	items      TEXT NOT NULL DEFAULT '[]',
	version    INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_tasks (
	channel_id TEXT PRIMARY KEY,
	items      TEXT NOT NULL DEFAULT '[]',
	version    INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS ledger_journal (
	id         TEXT PRIMARY KEY,
	category   TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	kind       TEXT NOT NULL,
	item_id    TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_journal_channel
	ON ledger_journal(category, channel_id, created_at);
`

// New creates a new SQLite storage backend. The database file and its
// directory are created if missing; the schema is applied on open.
func New(path string) (*SQLiteStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite database path is required")
	}

	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create directory: %w", err)
			}
		}
	}

	// WAL keeps concurrent readers cheap; busy_timeout covers writer overlap.
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		// Each pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// ledgerTable maps a category to its physical table. The set is fixed;
// anything else is rejected before touching SQL.
func ledgerTable(c types.Category) (string, error) {
	switch c {
	case types.CategoryBugs:
		return "ledger_bugs", nil
	case types.CategoryBlocked:
		return "ledger_blocked", nil
	case types.CategoryTasks:
		return "ledger_tasks", nil
	default:
		return "", fmt.Errorf("%w: %q", types.ErrInvalidCategory, string(c))
	}
}

// EnsureChannel idempotently creates an empty ledger row.
func (s *SQLiteStorage) EnsureChannel(ctx context.Context, category types.Category, channelID string) (bool, error) {
	table, err := ledgerTable(category)
	if err != nil {
		return false, err
	}
	if channelID == "" {
		return false, fmt.Errorf("%w: channel id must not be empty", types.ErrValidation)
	}

	now := types.NowTimestamp()
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (channel_id, items, version, created_at, updated_at)
		 VALUES (?, '[]', 1, ?, ?)
		 ON CONFLICT(channel_id) DO NOTHING`, table),
		channelID, now, now)
	if err != nil {
		return false, fmt.Errorf("failed to ensure channel %s/%s: %w", category, channelID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read ensure result: %w", err)
	}
	return n > 0, nil
}

// GetLedger reads one ledger document.
func (s *SQLiteStorage) GetLedger(ctx context.Context, category types.Category, channelID string) (*types.ChannelLedger, error) {
	table, err := ledgerTable(category)
	if err != nil {
		return nil, err
	}

	var itemsJSON string
	var version int64
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT items, version FROM %s WHERE channel_id = ?`, table),
		channelID).Scan(&itemsJSON, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", types.ErrChannelNotFound, category, channelID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger %s/%s: %w", category, channelID, err)
	}

	var items []types.LedgerItem
	if err := json.Unmarshal([]byte(itemsJSON), &items); err != nil {
		return nil, fmt.Errorf("failed to decode ledger %s/%s: %w", category, channelID, err)
	}
	return &types.ChannelLedger{
		ChannelID: channelID,
		Category:  category,
		Items:     items,
		Version:   version,
	}, nil
}

// PutLedger persists the whole item list, conditional on ledger.Version.
func (s *SQLiteStorage) PutLedger(ctx context.Context, ledger *types.ChannelLedger) error {
	table, err := ledgerTable(ledger.Category)
	if err != nil {
		return err
	}

	items := ledger.Items
	if items == nil {
		items = []types.LedgerItem{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode ledger items: %w", err)
	}
	now := types.NowTimestamp()

	if ledger.Version == 0 {
		res, err := s.db.ExecContext(ctx, fmt.Sprintf(
			`INSERT INTO %s (channel_id, items, version, created_at, updated_at)
			 VALUES (?, ?, 1, ?, ?)
			 ON CONFLICT(channel_id) DO NOTHING`, table),
			ledger.ChannelID, string(itemsJSON), now, now)
		if err != nil {
			return fmt.Errorf("failed to create ledger %s/%s: %w", ledger.Category, ledger.ChannelID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read put result: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: ledger %s/%s was created by another writer",
				types.ErrConcurrentModification, ledger.Category, ledger.ChannelID)
		}
		ledger.Version = 1
		return nil
	}

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET items = ?, version = version + 1, updated_at = ?
		 WHERE channel_id = ? AND version = ?`, table),
		string(itemsJSON), now, ledger.ChannelID, ledger.Version)
	if err != nil {
		return fmt.Errorf("failed to write ledger %s/%s: %w", ledger.Category, ledger.ChannelID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read put result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: ledger %s/%s version %d is stale",
			types.ErrConcurrentModification, ledger.Category, ledger.ChannelID, ledger.Version)
	}
	ledger.Version++
	return nil
}

// AppendJournal records one applied mutation.
func (s *SQLiteStorage) AppendJournal(ctx context.Context, entry *types.JournalEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_journal (id, category, channel_id, kind, item_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, string(entry.Category), entry.ChannelID, entry.Kind, entry.ItemID, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}

// ReadJournal returns the newest journal entries for a ledger.
func (s *SQLiteStorage) ReadJournal(ctx context.Context, category types.Category, channelID string, limit int) ([]types.JournalEntry, error) {
	if _, err := ledgerTable(category); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	// rowid keeps insertion order; created_at strings trim trailing zeros
	// and do not sort reliably at second boundaries.
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, category, channel_id, kind, item_id, created_at
		 FROM ledger_journal
		 WHERE category = ? AND channel_id = ?
		 ORDER BY rowid DESC
		 LIMIT ?`,
		string(category), channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	defer rows.Close()

	var entries []types.JournalEntry
	for rows.Next() {
		var e types.JournalEntry
		var cat string
		if err := rows.Scan(&e.ID, &cat, &e.ChannelID, &e.Kind, &e.ItemID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.Category = types.Category(cat)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate journal: %w", err)
	}
	return entries, nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
