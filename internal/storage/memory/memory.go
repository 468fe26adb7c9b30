// Package memory implements an ephemeral, mutex-guarded ledger document
// store. It backs tests and dry runs; nothing survives process exit.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/tallyhq/tally/internal/types"
)

// MemoryStorage implements the storage.Storage interface in memory.
type MemoryStorage struct {
	mu      sync.Mutex
	ledgers map[string]*record
	journal []types.JournalEntry
}

type record struct {
	items   []types.LedgerItem
	version int64
}

// New creates an empty in-memory storage backend.
func New() *MemoryStorage {
	return &MemoryStorage{ledgers: make(map[string]*record)}
}

func key(category types.Category, channelID string) string {
	return string(category) + "/" + channelID
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

func cloneItems(items []types.LedgerItem) []types.LedgerItem {
	if items == nil {
		return nil
	}
	out := make([]types.LedgerItem, 0, len(items))
	for i := range items {
		out = append(out, items[i].Clone())
	}
	return out
}

// EnsureChannel idempotently creates an empty ledger.
func (s *MemoryStorage) EnsureChannel(ctx context.Context, category types.Category, channelID string) (bool, error) {
	if err := validateAddress(category, channelID); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(category, channelID)
	if _, exists := s.ledgers[k]; exists {
		return false, nil
	}
	s.ledgers[k] = &record{items: []types.LedgerItem{}, version: 1}
	return true, nil
}

// GetLedger reads one ledger document.
func (s *MemoryStorage) GetLedger(ctx context.Context, category types.Category, channelID string) (*types.ChannelLedger, error) {
	if err := validateAddress(category, channelID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, exists := s.ledgers[key(category, channelID)]
	if !exists {
		return nil, fmt.Errorf("%w: %s/%s", types.ErrChannelNotFound, category, channelID)
	}
	return &types.ChannelLedger{
		ChannelID: channelID,
		Category:  category,
		Items:     cloneItems(rec.items),
		Version:   rec.version,
	}, nil
}

// PutLedger persists the whole item list, conditional on ledger.Version.
func (s *MemoryStorage) PutLedger(ctx context.Context, ledger *types.ChannelLedger) error {
	if err := validateAddress(ledger.Category, ledger.ChannelID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(ledger.Category, ledger.ChannelID)
	rec, exists := s.ledgers[k]

	if ledger.Version == 0 {
		if exists {
			return fmt.Errorf("%w: ledger %s/%s was created by another writer",
				types.ErrConcurrentModification, ledger.Category, ledger.ChannelID)
		}
		s.ledgers[k] = &record{items: cloneItems(ledger.Items), version: 1}
		ledger.Version = 1
		return nil
	}

	if !exists || rec.version != ledger.Version {
		return fmt.Errorf("%w: ledger %s/%s version %d is stale",
			types.ErrConcurrentModification, ledger.Category, ledger.ChannelID, ledger.Version)
	}
	rec.items = cloneItems(ledger.Items)
	rec.version++
	ledger.Version = rec.version
	return nil
}

// AppendJournal records one applied mutation.
func (s *MemoryStorage) AppendJournal(ctx context.Context, entry *types.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journal = append(s.journal, *entry)
	return nil
}

// ReadJournal returns the newest journal entries for a ledger.
func (s *MemoryStorage) ReadJournal(ctx context.Context, category types.Category, channelID string, limit int) ([]types.JournalEntry, error) {
	if err := validateAddress(category, channelID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var entries []types.JournalEntry
	for i := len(s.journal) - 1; i >= 0 && len(entries) < limit; i-- {
		e := s.journal[i]
		if e.Category == category && e.ChannelID == channelID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// Ping always succeeds for the in-memory backend.
func (s *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the in-memory backend.
func (s *MemoryStorage) Close() error {
	return nil
}
