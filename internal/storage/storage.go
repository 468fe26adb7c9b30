// Package storage defines the document-store boundary for channel ledgers:
// a key-value store addressed by (category, channel_id) whose value is the
// ordered item list plus a version counter, supporting get, conditional put,
// and create-if-absent.
package storage

import (
	"context"
	"fmt"

	"github.com/tallyhq/tally/internal/storage/memory"
	"github.com/tallyhq/tally/internal/storage/postgres"
	"github.com/tallyhq/tally/internal/storage/sqlite"
	"github.com/tallyhq/tally/internal/types"
)

// Storage is the persistence boundary for channel ledgers.
//
// PutLedger is a conditional put keyed on ChannelLedger.Version: version 0
// creates the document if absent, any other version replaces the stored
// document only when the stored version matches. A lost race fails with
// types.ErrConcurrentModification; the store never retries on its own.
type Storage interface {
	// EnsureChannel idempotently creates an empty ledger. It reports true
	// when this call created the channel, false when it already existed.
	EnsureChannel(ctx context.Context, category types.Category, channelID string) (created bool, err error)

	// GetLedger reads one ledger document. A missing channel fails with
	// types.ErrChannelNotFound.
	GetLedger(ctx context.Context, category types.Category, channelID string) (*types.ChannelLedger, error)

	// PutLedger persists the entire item list as one unit, conditional on
	// ledger.Version. On success the ledger's Version is bumped to the
	// newly stored value.
	PutLedger(ctx context.Context, ledger *types.ChannelLedger) error

	// AppendJournal records one applied mutation.
	AppendJournal(ctx context.Context, entry *types.JournalEntry) error

	// ReadJournal returns the most recent journal entries for a ledger,
	// newest first, up to limit (0 means a backend-chosen default).
	ReadJournal(ctx context.Context, category types.Category, channelID string, limit int) ([]types.JournalEntry, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Backend names accepted by Config.Backend.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds document-store configuration.
type Config struct {
	// Backend selects the storage engine: sqlite (default), postgres, or
	// memory (ephemeral, for tests and dry runs).
	Backend string

	// Path is the SQLite database file path.
	// Default: ".tally/tally.db". The special value ":memory:" creates an
	// in-memory SQLite database.
	Path string

	// DSN is the PostgreSQL connection string (postgres backend only).
	DSN string
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendSQLite,
		Path:    ".tally/tally.db",
	}
}

// Validate checks that the config names a known backend and carries the
// settings that backend needs.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSQLite, "":
		if c.Path == "" {
			return fmt.Errorf("sqlite backend requires a database path")
		}
	case BackendPostgres:
		if c.DSN == "" {
			return fmt.Errorf("postgres backend requires a DSN")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q (valid: sqlite, postgres, memory)", c.Backend)
	}
	return nil
}

// NewStorage creates the configured storage backend.
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendSQLite
	}
	if cfg.Backend == BackendSQLite && cfg.Path == "" {
		cfg.Path = ".tally/tally.db"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case BackendSQLite:
		st, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, err
		}
		return st, nil
	case BackendPostgres:
		st, err := postgres.New(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return st, nil
	case BackendMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Compile-time interface checks.
var (
	_ Storage = (*sqlite.SQLiteStorage)(nil)
	_ Storage = (*postgres.PostgresStorage)(nil)
	_ Storage = (*memory.MemoryStorage)(nil)
)
