// Package dedup decides whether an incoming channel message is a new
// tracked item or an update to an existing one.
//
// The engine is a pure decision function. It embeds the message once,
// scans the caller-supplied items for a similar one, classifies the
// message status, and emits a single mutation for the ledger store to
// apply. It never touches the store itself and never retries provider
// calls (the transport wrappers in internal/ai own retry policy), so
// its output is fully determined by its inputs plus the injected clock.
package dedup

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/tallyhq/tally/internal/match"
	"github.com/tallyhq/tally/internal/types"
)

// Embedder turns text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Classifier returns the provider's raw verdict on a message's status.
// The engine parses it; garbage replies are not the classifier's problem.
type Classifier interface {
	ClassifyStatus(ctx context.Context, message string) (string, error)
}

// IDGenerator mints ledger item ids for a category.
type IDGenerator interface {
	NextID(category types.Category) string
}

// Request carries one incoming message plus the ledger state the caller
// read. Threshold is required; the engine has no default similarity
// cutoff (the shipped configuration default lives in internal/config).
type Request struct {
	Category  types.Category
	ChannelID string
	Message   string
	URLs      []string
	FileURLs  []string

	// Timestamp is the event time as RFC 3339 UTC. Empty means "now"
	// per the engine clock.
	Timestamp string

	// Existing is the current ledger item list, in insertion order.
	Existing []types.LedgerItem

	// Threshold is the minimum cosine similarity for the message to
	// attach to an existing item, in [0, 1].
	Threshold float64
}

// Result is the engine's decision for one message.
type Result struct {
	// Mutation is the insert or update to apply to the ledger. Every
	// processed message yields one, even when nothing changes (a
	// matched message with an unchanged status emits a no-op update).
	Mutation *types.Mutation

	// IsUpdate reports whether the message attached to an existing item.
	IsUpdate bool

	// MatchScore is the similarity of the matched item, 0 for inserts.
	MatchScore float64

	// Status is the classified status carried by the mutation.
	Status types.Status
}

// EngineConfig wires the engine's collaborators.
type EngineConfig struct {
	Embedder   Embedder
	Classifier Classifier
	IDs        IDGenerator

	// MatchPolicy selects the tie-break between candidate items
	// (default: first above threshold, in insertion order).
	MatchPolicy match.Policy

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// Engine maps messages onto a ledger's item set.
type Engine struct {
	embedder   Embedder
	classifier Classifier
	ids        IDGenerator
	matcher    *match.Matcher
	now        func() time.Time
}

// NewEngine creates a dedup engine from its collaborators.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.Classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if cfg.IDs == nil {
		return nil, fmt.Errorf("id generator is required")
	}

	policy := cfg.MatchPolicy
	if policy == "" {
		policy = match.PolicyFirstAboveThreshold
	}
	matcher, err := match.NewMatcher(cfg.Embedder, policy)
	if err != nil {
		return nil, err
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Engine{
		embedder:   cfg.Embedder,
		classifier: cfg.Classifier,
		ids:        cfg.IDs,
		matcher:    matcher,
		now:        clock,
	}, nil
}

// Process decides what one message means for the ledger: an update to a
// similar existing item, or a brand-new item. Embedding happens exactly
// once per call; the classifier runs after matching on both paths.
//
// Provider failures propagate to the caller without any store side
// effects. A classifier reply that does not parse to an accepted status
// is not a failure; it falls back to StatusNew.
func (e *Engine) Process(ctx context.Context, r Request) (Result, error) {
	if err := r.validate(); err != nil {
		return Result{}, err
	}

	now := r.Timestamp
	if now == "" {
		now = types.FormatTimestamp(e.now())
	}

	embedding, err := e.embedder.Embed(ctx, r.Message)
	if err != nil {
		return Result{}, fmt.Errorf("failed to embed message: %w", err)
	}

	matched, err := e.matcher.FindMatch(ctx, embedding, r.Existing, r.Threshold)
	if err != nil {
		return Result{}, fmt.Errorf("similarity scan failed: %w", err)
	}

	raw, err := e.classifier.ClassifyStatus(ctx, r.Message)
	if err != nil {
		return Result{}, fmt.Errorf("failed to classify message: %w", err)
	}
	status := parseStatus(raw)

	if matched != nil {
		if status != matched.Item.Status {
			update := types.ItemUpdate{Status: &status, UpdatedTimestamp: now}
			log.Printf("[DEDUP] Message matched item %s (score %.3f), status %s -> %s",
				matched.Item.ID, matched.Score, matched.Item.Status, status)
			return Result{
				Mutation:   types.NewUpdate(r.Category, r.ChannelID, matched.Item.ID, update),
				IsUpdate:   true,
				MatchScore: matched.Score,
				Status:     status,
			}, nil
		}

		log.Printf("[DEDUP] Message matched item %s (score %.3f), status unchanged (%s)",
			matched.Item.ID, matched.Score, status)
		return Result{
			Mutation:   types.NewUpdate(r.Category, r.ChannelID, matched.Item.ID, types.ItemUpdate{}),
			IsUpdate:   true,
			MatchScore: matched.Score,
			Status:     status,
		}, nil
	}

	item := types.LedgerItem{
		ID:               e.ids.NextID(r.Category),
		Message:          r.Message,
		Status:           status,
		CreatedTimestamp: now,
		UpdatedTimestamp: now,
		URLs:             append([]string(nil), r.URLs...),
		FileURLs:         append([]string(nil), r.FileURLs...),
	}
	log.Printf("[DEDUP] No match at or above threshold %.2f for %q, creating %s",
		r.Threshold, truncateForLog(r.Message, 60), item.ID)
	return Result{
		Mutation: types.NewInsert(r.Category, r.ChannelID, item),
		Status:   status,
	}, nil
}

func (r Request) validate() error {
	if !r.Category.IsValid() {
		return fmt.Errorf("%w: %q", types.ErrInvalidCategory, string(r.Category))
	}
	if r.ChannelID == "" {
		return fmt.Errorf("%w: channel id must not be empty", types.ErrValidation)
	}
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("%w: message must not be empty", types.ErrValidation)
	}
	if r.Threshold < 0 || r.Threshold > 1 {
		return fmt.Errorf("%w: similarity threshold must be in [0, 1] (got %.2f)", types.ErrValidation, r.Threshold)
	}
	if r.Timestamp != "" {
		if _, err := types.ParseTimestamp(r.Timestamp); err != nil {
			return fmt.Errorf("%w: timestamp: %v", types.ErrValidation, err)
		}
	}
	return nil
}
