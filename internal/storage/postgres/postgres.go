// Package postgres implements the ledger document store on PostgreSQL.
// Items are stored as a JSONB snapshot per (category, channel) row.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/tallyhq/tally/internal/types"
)

// PostgresStorage implements the storage.Storage interface using PostgreSQL.
type PostgresStorage struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS ledger_bugs (
	channel_id TEXT PRIMARY KEY,
	items      JSONB NOT NULL DEFAULT '[]'::jsonb,
	version    BIGINT NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ledger_blocked (
	channel_id TEXT PRIMARY KEY,
	items      JSONB NOT NULL DEFAULT '[]'::jsonb,
	version    BIGINT NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ledger_tasks (
	channel_id TEXT PRIMARY KEY,
	items      JSONB NOT NULL DEFAULT '[]'::jsonb,
	version    BIGINT NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ledger_journal (
	seq        BIGSERIAL,
	id         TEXT PRIMARY KEY,
	category   TEXT NOT NULL,
	channel_id TEXT NOT NULL,
	kind       TEXT NOT NULL,
	item_id    TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_journal_channel
	ON ledger_journal(category, channel_id, seq);
`

// New creates a new PostgreSQL storage backend and applies the schema.
func New(ctx context.Context, dsn string) (*PostgresStorage, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &PostgresStorage{db: db}, nil
}

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
func (s *PostgresStorage) EnsureChannel(ctx context.Context, category types.Category, channelID string) (bool, error) {
	table, err := ledgerTable(category)
	if err != nil {
		return false, err
	}
	if channelID == "" {
		return false, fmt.Errorf("%w: channel id must not be empty", types.ErrValidation)
	}

	res, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (channel_id) VALUES ($1)
		 ON CONFLICT (channel_id) DO NOTHING`, table),
		channelID)
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
func (s *PostgresStorage) GetLedger(ctx context.Context, category types.Category, channelID string) (*types.ChannelLedger, error) {
	table, err := ledgerTable(category)
	if err != nil {
		return nil, err
	}

	var itemsJSON []byte
	var version int64
	err = s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT items, version FROM %s WHERE channel_id = $1`, table),
		channelID).Scan(&itemsJSON, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", types.ErrChannelNotFound, category, channelID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger %s/%s: %w", category, channelID, err)
	}

	var items []types.LedgerItem
	if err := json.Unmarshal(itemsJSON, &items); err != nil {
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
func (s *PostgresStorage) PutLedger(ctx context.Context, ledger *types.ChannelLedger) error {
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

	if ledger.Version == 0 {
		res, err := s.db.ExecContext(ctx, fmt.Sprintf(
			`INSERT INTO %s (channel_id, items, version) VALUES ($1, $2, 1)
			 ON CONFLICT (channel_id) DO NOTHING`, table),
			ledger.ChannelID, itemsJSON)
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
		`UPDATE %s SET items = $1, version = version + 1, updated_at = now()
		 WHERE channel_id = $2 AND version = $3`, table),
		itemsJSON, ledger.ChannelID, ledger.Version)
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
func (s *PostgresStorage) AppendJournal(ctx context.Context, entry *types.JournalEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_journal (id, category, channel_id, kind, item_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, string(entry.Category), entry.ChannelID, entry.Kind, entry.ItemID, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}

// ReadJournal returns the newest journal entries for a ledger.
func (s *PostgresStorage) ReadJournal(ctx context.Context, category types.Category, channelID string, limit int) ([]types.JournalEntry, error) {
	if _, err := ledgerTable(category); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	// seq keeps insertion order; created_at strings trim trailing zeros
	// and do not sort reliably at second boundaries.
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, category, channel_id, kind, item_id, created_at
		 FROM ledger_journal
		 WHERE category = $1 AND channel_id = $2
		 ORDER BY seq DESC
		 LIMIT $3`,
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
func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *PostgresStorage) Close() error {
	return s.db.Close()
}
