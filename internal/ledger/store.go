// Package ledger implements the per-channel ledger of tracked items: one
// ordered item collection per (category, channel) pair, mutated through
// insert and update instructions.
//
// Every mutation runs under a per-channel write lock and a conditional put,
// so concurrent writers serialize instead of overwriting each other. The
// whole item list is validated (Go invariants plus a JSON Schema gate) and
// persisted as one unit; there are no partial writes.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/tallyhq/tally/internal/storage"
	"github.com/tallyhq/tally/internal/types"
)

// Config holds ledger store configuration.
type Config struct {
	// LockTimeout bounds how long a mutation waits for the per-channel
	// write lock before failing with types.ErrLockTimeout. Zero waits
	// until the caller's context is done.
	LockTimeout time.Duration
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{LockTimeout: 10 * time.Second}
}

// Store coordinates reads and mutations of channel ledgers on top of a
// storage backend.
type Store struct {
	storage     storage.Storage
	locks       *lockTable
	ids         *IDGenerator
	schema      *jsonschema.Schema
	lockTimeout time.Duration
}

// NewStore creates a ledger store on the given backend.
func NewStore(st storage.Storage, cfg Config) (*Store, error) {
	if st == nil {
		return nil, fmt.Errorf("ledger store requires a storage backend")
	}
	schema, err := compileItemsSchema()
	if err != nil {
		return nil, err
	}
	return &Store{
		storage:     st,
		locks:       newLockTable(),
		ids:         NewIDGenerator(),
		schema:      schema,
		lockTimeout: cfg.LockTimeout,
	}, nil
}

// IDs exposes the store's item ID generator so callers minting items outside
// the Append path (the decision engine) share the same monotonic sequence.
func (s *Store) IDs() *IDGenerator {
	return s.ids
}

// ApplyResult reports what a mutation did.
type ApplyResult struct {
	// Item is the post-apply snapshot of the affected item.
	Item types.LedgerItem

	// Version is the ledger version after the mutation (unchanged for
	// no-op updates).
	Version int64

	// Noop is true when an update carried no field changes and nothing
	// was written.
	Noop bool
}

// EnsureChannel idempotently creates an empty ledger for the channel. It
// reports true when this call created it.
func (s *Store) EnsureChannel(ctx context.Context, category types.Category, channelID string) (bool, error) {
	if err := validateAddress(category, channelID); err != nil {
		return false, err
	}
	created, err := s.storage.EnsureChannel(ctx, category, channelID)
	if err != nil {
		return false, err
	}
	if created {
		log.Printf("[LEDGER] Created channel %s/%s", category, channelID)
	}
	return created, nil
}

// List returns the channel's items in insertion order. A channel that has
// never been written is indistinguishable from an empty one: both yield an
// empty slice.
func (s *Store) List(ctx context.Context, category types.Category, channelID string) ([]types.LedgerItem, error) {
	snapshot, err := s.Snapshot(ctx, category, channelID)
	if err != nil {
		return nil, err
	}
	return snapshot.Items, nil
}

// Snapshot returns the full ledger aggregate, including the version token
// for ApplyAt. A missing channel yields an empty ledger at version 0.
func (s *Store) Snapshot(ctx context.Context, category types.Category, channelID string) (*types.ChannelLedger, error) {
	if err := validateAddress(category, channelID); err != nil {
		return nil, err
	}
	ledger, err := s.storage.GetLedger(ctx, category, channelID)
	if errors.Is(err, types.ErrChannelNotFound) {
		return &types.ChannelLedger{ChannelID: channelID, Category: category}, nil
	}
	if err != nil {
		return nil, err
	}
	return ledger, nil
}

// Append inserts a new item and returns it. Identity fields left empty are
// filled in: the ID from the store's generator, timestamps from the clock.
func (s *Store) Append(ctx context.Context, category types.Category, channelID string, item types.LedgerItem) (*ApplyResult, error) {
	if err := validateAddress(category, channelID); err != nil {
		return nil, err
	}
	if item.ID == "" {
		item.ID = s.ids.NextID(category)
	}
	if item.CreatedTimestamp == "" {
		item.CreatedTimestamp = types.NowTimestamp()
	}
	if item.UpdatedTimestamp == "" {
		item.UpdatedTimestamp = item.CreatedTimestamp
	}
	return s.Apply(ctx, types.NewInsert(category, channelID, item))
}

// Update applies a partial update to one existing item.
func (s *Store) Update(ctx context.Context, category types.Category, channelID, itemID string, update types.ItemUpdate) (*ApplyResult, error) {
	return s.Apply(ctx, types.NewUpdate(category, channelID, itemID, update))
}

// Apply runs one mutation against the current ledger state, serialized by
// the per-channel lock. Inserts on a never-written channel create it.
func (s *Store) Apply(ctx context.Context, m *types.Mutation) (*ApplyResult, error) {
	return s.apply(ctx, m, -1)
}

// ApplyAt is Apply conditional on the ledger still being at the version the
// caller observed. A stale version fails with
// types.ErrConcurrentModification and writes nothing; the caller re-reads
// and retries. The store itself never retries.
func (s *Store) ApplyAt(ctx context.Context, m *types.Mutation, observedVersion int64) (*ApplyResult, error) {
	if observedVersion < 0 {
		return nil, fmt.Errorf("%w: observed version must be >= 0 (got %d)", types.ErrValidation, observedVersion)
	}
	return s.apply(ctx, m, observedVersion)
}

// apply is the single write path. expectedVersion < 0 skips the caller-side
// staleness check; the storage put stays conditional either way.
func (s *Store) apply(ctx context.Context, m *types.Mutation, expectedVersion int64) (*ApplyResult, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: mutation must not be nil", types.ErrValidation)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	release, err := s.locks.acquire(ctx, m.Category, m.ChannelID, s.lockTimeout)
	if err != nil {
		return nil, err
	}
	defer release()

	ledger, err := s.storage.GetLedger(ctx, m.Category, m.ChannelID)
	switch {
	case errors.Is(err, types.ErrChannelNotFound):
		if m.Kind == types.MutationUpdate {
			return nil, fmt.Errorf("channel %s/%s: %w", m.Category, m.ChannelID, types.ErrChannelNotFound)
		}
		ledger = &types.ChannelLedger{ChannelID: m.ChannelID, Category: m.Category}
	case err != nil:
		return nil, err
	}

	if expectedVersion >= 0 && ledger.Version != expectedVersion {
		return nil, fmt.Errorf("%w: ledger %s/%s is at version %d, caller observed %d",
			types.ErrConcurrentModification, m.Category, m.ChannelID, ledger.Version, expectedVersion)
	}

	result := &ApplyResult{}
	switch m.Kind {
	case types.MutationInsert:
		item := m.Item.Clone()
		if ledger.IndexOf(item.ID) >= 0 {
			return nil, fmt.Errorf("%w: duplicate item id %q in ledger %s/%s",
				types.ErrValidation, item.ID, m.Category, m.ChannelID)
		}
		ledger.Items = append(ledger.Items, item)
		result.Item = item

	case types.MutationUpdate:
		idx := ledger.IndexOf(m.ItemID)
		if idx < 0 {
			return nil, fmt.Errorf("item %q in ledger %s/%s: %w",
				m.ItemID, m.Category, m.ChannelID, types.ErrItemNotFound)
		}
		if m.IsNoop() {
			result.Item = ledger.Items[idx].Clone()
			result.Version = ledger.Version
			result.Noop = true
			s.journal(ctx, m)
			log.Printf("[LEDGER] No-op update for %s in %s/%s (no field changes)",
				m.ItemID, m.Category, m.ChannelID)
			return result, nil
		}
		item := ledger.Items[idx].Clone()
		m.Update.ApplyTo(&item)
		if m.Update.UpdatedTimestamp == "" {
			item.UpdatedTimestamp = types.NowTimestamp()
		}
		ledger.Items[idx] = item
		result.Item = item
	}

	if err := ledger.Validate(); err != nil {
		return nil, err
	}
	if err := validateItems(s.schema, ledger.Items); err != nil {
		return nil, err
	}

	if err := s.storage.PutLedger(ctx, ledger); err != nil {
		return nil, err
	}
	result.Version = ledger.Version

	s.journal(ctx, m)
	log.Printf("[LEDGER] Applied %s to %s/%s (item %s, version %d)",
		m.JournalKind(), m.Category, m.ChannelID, m.TargetID(), ledger.Version)
	return result, nil
}

// History returns the most recent mutation journal entries for a channel,
// newest first.
func (s *Store) History(ctx context.Context, category types.Category, channelID string, limit int) ([]types.JournalEntry, error) {
	if err := validateAddress(category, channelID); err != nil {
		return nil, err
	}
	return s.storage.ReadJournal(ctx, category, channelID, limit)
}

// journal records an applied mutation. Journal failures are logged and
// swallowed; the mutation itself already succeeded.
func (s *Store) journal(ctx context.Context, m *types.Mutation) {
	entry := types.NewJournalEntry(m)
	if err := s.storage.AppendJournal(ctx, &entry); err != nil {
		log.Printf("[WARN] Failed to journal %s mutation for %s/%s: %v",
			m.JournalKind(), m.Category, m.ChannelID, err)
	}
}

func validateAddress(category types.Category, channelID string) error {
	if !category.IsValid() {
		return fmt.Errorf("%w: %q", types.ErrInvalidCategory, string(category))
	}
	if channelID == "" {
		return fmt.Errorf("%w: channel id must not be empty", types.ErrValidation)
	}
	return nil
}
