// Package types defines the core data model for tally: categories, item
// statuses, ledger items, channel ledgers, and the mutations that move
// between the decision engine and the ledger store.
package types

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Category selects which physical ledger table an operation targets.
// The set is fixed; categories are not user-extensible.
type Category string

const (
	// CategoryBugs tracks defect reports.
	CategoryBugs Category = "BUGS"

	// CategoryBlocked tracks blockers waiting on someone or something.
	CategoryBlocked Category = "BLOCKED"

	// CategoryTasks tracks ordinary work items.
	CategoryTasks Category = "TASKS"
)

// Categories returns the fixed category set in canonical order.
func Categories() []Category {
	return []Category{CategoryBugs, CategoryBlocked, CategoryTasks}
}

// IsValid checks if the category is one of the fixed set.
func (c Category) IsValid() bool {
	switch c {
	case CategoryBugs, CategoryBlocked, CategoryTasks:
		return true
	default:
		return false
	}
}

// IDPrefix returns the lowercase prefix used when synthesizing item IDs,
// e.g. "bugs" for CategoryBugs.
func (c Category) IDPrefix() string {
	return strings.ToLower(string(c))
}

// ParseCategory converts a string to a Category, case-insensitively.
// Unrecognized values fail with ErrInvalidCategory before any store access.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: %q (valid: BUGS, BLOCKED, TASKS)", ErrInvalidCategory, s)
	}
	return c, nil
}

// Status is the lifecycle state of a ledger item.
type Status int

const (
	// StatusNew marks a freshly reported, unhandled item.
	StatusNew Status = 0

	// StatusInProgress marks an item someone has picked up. The classifier
	// never produces this value; it enters only via caller-driven updates.
	StatusInProgress Status = 1

	// StatusResolved marks a completed or fixed item.
	StatusResolved Status = 2
)

// IsValid checks if the status is a known lifecycle state.
func (s Status) IsValid() bool {
	switch s {
	case StatusNew, StatusInProgress, StatusResolved:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusInProgress:
		return "in_progress"
	case StatusResolved:
		return "resolved"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// LedgerItem is one tracked unit of work (bug, blocker, task).
//
// The message is immutable after creation: it reflects the first-seen
// wording even when later duplicates update the item's status.
type LedgerItem struct {
	ID               string   `json:"id"`
	Message          string   `json:"message"`
	Status           Status   `json:"status"`
	CreatedTimestamp string   `json:"created_timestamp"`
	UpdatedTimestamp string   `json:"updated_timestamp"`
	URLs             []string `json:"urls,omitempty"`
	FileURLs         []string `json:"file_urls,omitempty"`
}

// Validate checks the item invariants: non-empty id and message, a known
// status, RFC 3339 timestamps with updated >= created, and absolute
// HTTP(S) URLs throughout. Violations wrap ErrValidation.
func (i *LedgerItem) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("%w: item id must not be empty", ErrValidation)
	}
	if i.Message == "" {
		return fmt.Errorf("%w: item message must not be empty", ErrValidation)
	}
	if !i.Status.IsValid() {
		return fmt.Errorf("%w: status must be 0, 1, or 2 (got %d)", ErrValidation, int(i.Status))
	}
	created, err := ParseTimestamp(i.CreatedTimestamp)
	if err != nil {
		return fmt.Errorf("%w: created_timestamp: %v", ErrValidation, err)
	}
	updated, err := ParseTimestamp(i.UpdatedTimestamp)
	if err != nil {
		return fmt.Errorf("%w: updated_timestamp: %v", ErrValidation, err)
	}
	if updated.Before(created) {
		return fmt.Errorf("%w: updated_timestamp %s is before created_timestamp %s",
			ErrValidation, i.UpdatedTimestamp, i.CreatedTimestamp)
	}
	if err := validateURLs("urls", i.URLs); err != nil {
		return err
	}
	return validateURLs("file_urls", i.FileURLs)
}

// Clone returns a deep copy of the item.
func (i *LedgerItem) Clone() LedgerItem {
	out := *i
	if i.URLs != nil {
		out.URLs = append([]string(nil), i.URLs...)
	}
	if i.FileURLs != nil {
		out.FileURLs = append([]string(nil), i.FileURLs...)
	}
	return out
}

// ChannelLedger is the ordered item collection for one (category, channel)
// pair. Append order is preserved; updates happen in place.
//
// Version is the optimistic-concurrency token managed by the storage layer:
// 0 means "not yet persisted"; every successful write increments it. Callers
// outside the store treat it as opaque.
type ChannelLedger struct {
	ChannelID string       `json:"channel_id"`
	Category  Category     `json:"category"`
	Items     []LedgerItem `json:"items"`
	Version   int64        `json:"version"`
}

// IndexOf returns the position of the item with the given id, or -1.
func (l *ChannelLedger) IndexOf(id string) int {
	for idx := range l.Items {
		if l.Items[idx].ID == id {
			return idx
		}
	}
	return -1
}

// Validate checks ledger-level invariants: a valid category, a non-empty
// channel id, pairwise-distinct item ids, and per-item validity.
func (l *ChannelLedger) Validate() error {
	if !l.Category.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, string(l.Category))
	}
	if l.ChannelID == "" {
		return fmt.Errorf("%w: channel id must not be empty", ErrValidation)
	}
	seen := make(map[string]struct{}, len(l.Items))
	for idx := range l.Items {
		item := &l.Items[idx]
		if err := item.Validate(); err != nil {
			return fmt.Errorf("items[%d]: %w", idx, err)
		}
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("%w: duplicate item id %q", ErrValidation, item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return nil
}

// ItemUpdate is a partial update to one ledger item. Nil/empty fields are
// left unchanged; the message is immutable and cannot be updated.
type ItemUpdate struct {
	Status           *Status  `json:"status,omitempty"`
	UpdatedTimestamp string   `json:"updated_timestamp,omitempty"`
	URLs             []string `json:"urls,omitempty"`
	FileURLs         []string `json:"file_urls,omitempty"`
}

// IsZero reports whether the update carries no field changes.
func (u *ItemUpdate) IsZero() bool {
	return u.Status == nil && u.UpdatedTimestamp == "" && u.URLs == nil && u.FileURLs == nil
}

// Validate checks the update payload shape: a known status, an RFC 3339
// updated_timestamp, and absolute HTTP(S) URLs. Violations wrap
// ErrValidation.
func (u *ItemUpdate) Validate() error {
	if u.Status != nil && !u.Status.IsValid() {
		return fmt.Errorf("%w: status must be 0, 1, or 2 (got %d)", ErrValidation, int(*u.Status))
	}
	if u.UpdatedTimestamp != "" {
		if _, err := ParseTimestamp(u.UpdatedTimestamp); err != nil {
			return fmt.Errorf("%w: updated_timestamp: %v", ErrValidation, err)
		}
	}
	if err := validateURLs("urls", u.URLs); err != nil {
		return err
	}
	return validateURLs("file_urls", u.FileURLs)
}

// ApplyTo writes the update's set fields onto the item. The caller is
// responsible for validating both sides first.
func (u *ItemUpdate) ApplyTo(item *LedgerItem) {
	if u.Status != nil {
		item.Status = *u.Status
	}
	if u.UpdatedTimestamp != "" {
		item.UpdatedTimestamp = u.UpdatedTimestamp
	}
	if u.URLs != nil {
		item.URLs = append([]string(nil), u.URLs...)
	}
	if u.FileURLs != nil {
		item.FileURLs = append([]string(nil), u.FileURLs...)
	}
}

// NowTimestamp returns the current time as an RFC 3339 UTC string with
// nanosecond precision, the canonical timestamp form for ledger items.
func NowTimestamp() string {
	return FormatTimestamp(time.Now())
}

// FormatTimestamp renders a time as RFC 3339 UTC with nanosecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTimestamp parses an ISO-8601 (RFC 3339) timestamp. Offset-less
// strings are rejected; any explicit offset is accepted.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("not a valid ISO-8601 timestamp: %q", s)
	}
	return t, nil
}

// validateURL requires an absolute HTTP or HTTPS URL with a host.
func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %q is not a valid URL", ErrValidation, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: %q must be an absolute http(s) URL (got scheme %q)", ErrValidation, raw, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: %q is missing a host", ErrValidation, raw)
	}
	return nil
}

func validateURLs(field string, urls []string) error {
	for idx, raw := range urls {
		if err := validateURL(raw); err != nil {
			return fmt.Errorf("%s[%d]: %w", field, idx, err)
		}
	}
	return nil
}
