package types

import (
	"fmt"

	"github.com/google/uuid"
)

// MutationKind tags a Mutation as an insert or an update.
type MutationKind string

const (
	MutationInsert MutationKind = "insert"
	MutationUpdate MutationKind = "update"
)

// Mutation is the single instruction the decision engine hands to the
// ledger store: insert one new item, or apply a partial update to one
// existing item. Every processed message produces exactly one Mutation,
// so each carries a unique MutationID even when the update is a no-op.
type Mutation struct {
	MutationID string       `json:"mutation_id"`
	Kind       MutationKind `json:"kind"`
	Category   Category     `json:"category"`
	ChannelID  string       `json:"channel_id"`

	// Item is the full new item for insert mutations.
	Item *LedgerItem `json:"item,omitempty"`

	// ItemID and Update describe update mutations. An empty Update is a
	// deliberate no-op: the target must exist, but nothing changes.
	ItemID string     `json:"item_id,omitempty"`
	Update ItemUpdate `json:"update"`
}

// NewInsert builds an insert mutation for a fresh item.
func NewInsert(category Category, channelID string, item LedgerItem) *Mutation {
	return &Mutation{
		MutationID: uuid.NewString(),
		Kind:       MutationInsert,
		Category:   category,
		ChannelID:  channelID,
		Item:       &item,
	}
}

// NewUpdate builds an update mutation targeting an existing item.
func NewUpdate(category Category, channelID, itemID string, update ItemUpdate) *Mutation {
	return &Mutation{
		MutationID: uuid.NewString(),
		Kind:       MutationUpdate,
		Category:   category,
		ChannelID:  channelID,
		ItemID:     itemID,
		Update:     update,
	}
}

// IsNoop reports whether the mutation is an update with no field changes.
func (m *Mutation) IsNoop() bool {
	return m.Kind == MutationUpdate && m.Update.IsZero()
}

// JournalKind is the kind recorded in the mutation journal: "insert",
// "update", or "noop".
func (m *Mutation) JournalKind() string {
	if m.IsNoop() {
		return "noop"
	}
	return string(m.Kind)
}

// TargetID returns the id of the item the mutation creates or updates.
func (m *Mutation) TargetID() string {
	if m.Kind == MutationInsert && m.Item != nil {
		return m.Item.ID
	}
	return m.ItemID
}

// Validate checks the mutation is internally consistent and its payload
// passes shape validation.
func (m *Mutation) Validate() error {
	if m.MutationID == "" {
		return fmt.Errorf("%w: mutation id must not be empty", ErrValidation)
	}
	if !m.Category.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, string(m.Category))
	}
	if m.ChannelID == "" {
		return fmt.Errorf("%w: channel id must not be empty", ErrValidation)
	}
	switch m.Kind {
	case MutationInsert:
		if m.Item == nil {
			return fmt.Errorf("%w: insert mutation requires an item", ErrValidation)
		}
		if m.ItemID != "" {
			return fmt.Errorf("%w: insert mutation must not target an existing id", ErrValidation)
		}
		return m.Item.Validate()
	case MutationUpdate:
		if m.ItemID == "" {
			return fmt.Errorf("%w: update mutation requires a target item id", ErrValidation)
		}
		if m.Item != nil {
			return fmt.Errorf("%w: update mutation must not carry a full item", ErrValidation)
		}
		return m.Update.Validate()
	default:
		return fmt.Errorf("%w: unknown mutation kind %q", ErrValidation, string(m.Kind))
	}
}

// JournalEntry records one applied mutation for observability. Entries are
// written best-effort; a journal failure never fails the apply.
type JournalEntry struct {
	ID        string   `json:"id"`
	Category  Category `json:"category"`
	ChannelID string   `json:"channel_id"`
	Kind      string   `json:"kind"` // insert | update | noop
	ItemID    string   `json:"item_id"`
	CreatedAt string   `json:"created_at"`
}

// NewJournalEntry builds the journal record for an applied mutation.
func NewJournalEntry(m *Mutation) JournalEntry {
	return JournalEntry{
		ID:        uuid.NewString(),
		Category:  m.Category,
		ChannelID: m.ChannelID,
		Kind:      m.JournalKind(),
		ItemID:    m.TargetID(),
		CreatedAt: NowTimestamp(),
	}
}
