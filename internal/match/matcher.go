package match

import (
	"context"
	"fmt"

	"github.com/tallyhq/tally/internal/types"
)

// Embedder turns text into an embedding vector. The AI providers implement
// this; the matcher needs nothing else from them.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Policy selects how the matcher picks among items that clear the
// similarity threshold.
type Policy string

const (
	// PolicyFirstAboveThreshold scans items in insertion order and returns
	// the first one at or above the threshold, without scoring the rest.
	// Oldest-wins: an early moderate match shadows a later near-perfect one.
	PolicyFirstAboveThreshold Policy = "first_above_threshold"

	// PolicyBestMatch scores every item and returns the highest-scoring one
	// at or above the threshold. Ties keep the earliest item.
	PolicyBestMatch Policy = "best_match"
)

// IsValid checks if the policy is a known matching policy.
func (p Policy) IsValid() bool {
	return p == PolicyFirstAboveThreshold || p == PolicyBestMatch
}

// Match is a successful duplicate lookup.
type Match struct {
	// Item is a copy of the matched ledger item.
	Item types.LedgerItem

	// Index is the item's position in the scanned list.
	Index int

	// Score is the cosine similarity that cleared the threshold.
	Score float64
}

// Matcher compares a new message's embedding against existing items.
// Item embeddings are computed per call and never stored, so the match
// always reflects the embedder's current behavior.
type Matcher struct {
	embedder Embedder
	policy   Policy
}

// NewMatcher creates a matcher with the given duplicate-selection policy.
func NewMatcher(embedder Embedder, policy Policy) (*Matcher, error) {
	if embedder == nil {
		return nil, fmt.Errorf("matcher requires an embedder")
	}
	if !policy.IsValid() {
		return nil, fmt.Errorf("unknown match policy %q (valid: %s, %s)",
			policy, PolicyFirstAboveThreshold, PolicyBestMatch)
	}
	return &Matcher{embedder: embedder, policy: policy}, nil
}

// FindMatch returns the existing item the new message duplicates, or nil
// when nothing clears the threshold. The threshold must be in [0, 1];
// comparison is inclusive (score == threshold matches).
func (m *Matcher) FindMatch(ctx context.Context, newEmbedding []float64, items []types.LedgerItem, threshold float64) (*Match, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("similarity threshold must be in [0, 1] (got %v)", threshold)
	}
	if len(items) == 0 {
		return nil, nil
	}

	var best *Match
	for i := range items {
		emb, err := m.embedder.Embed(ctx, items[i].Message)
		if err != nil {
			return nil, fmt.Errorf("failed to embed item %s: %w", items[i].ID, err)
		}
		score, err := CosineSimilarity(newEmbedding, emb)
		if err != nil {
			return nil, fmt.Errorf("failed to score item %s: %w", items[i].ID, err)
		}
		if score < threshold {
			continue
		}
		if m.policy == PolicyFirstAboveThreshold {
			return &Match{Item: items[i].Clone(), Index: i, Score: score}, nil
		}
		if best == nil || score > best.Score {
			best = &Match{Item: items[i].Clone(), Index: i, Score: score}
		}
	}
	return best, nil
}
