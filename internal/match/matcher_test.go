package match

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/tallyhq/tally/internal/types"
)

type fakeEmbedder struct {
	vectors map[string][]float64
	calls   int
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.vectors[text]
	if !ok {
		return nil, fmt.Errorf("no canned vector for %q", text)
	}
	return v, nil
}

// unitVectorWithCosine returns a 2D unit vector whose cosine similarity
// against [1, 0] is approximately c.
func unitVectorWithCosine(c float64) []float64 {
	return []float64{c, math.Sqrt(1 - c*c)}
}

func matchItem(id, message string) types.LedgerItem {
	now := types.NowTimestamp()
	return types.LedgerItem{
		ID:               id,
		Message:          message,
		Status:           types.StatusNew,
		CreatedTimestamp: now,
		UpdatedTimestamp: now,
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"zero vector", []float64{0, 0}, []float64{1, 0}, 0},
		{"both zero", []float64{0, 0}, []float64{0, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}

	if _, err := CosineSimilarity([]float64{1}, []float64{1, 2}); err == nil {
		t.Error("expected an error for mismatched lengths")
	}
}

func TestFirstAboveThresholdPrefersEarliest(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float64{
		"login broken":       unitVectorWithCosine(0.81),
		"login page is down": unitVectorWithCosine(0.95),
	}}
	m, err := NewMatcher(emb, PolicyFirstAboveThreshold)
	if err != nil {
		t.Fatalf("failed to create matcher: %v", err)
	}

	items := []types.LedgerItem{
		matchItem("bugs_1", "login broken"),
		matchItem("bugs_2", "login page is down"),
	}
	got, err := m.FindMatch(context.Background(), []float64{1, 0}, items, 0.8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.Item.ID != "bugs_1" {
		t.Fatalf("expected the earliest item above threshold, got %+v", got)
	}
	if got.Index != 0 {
		t.Errorf("expected index 0, got %d", got.Index)
	}
	if emb.calls != 1 {
		t.Errorf("expected the scan to stop at the first hit, embedded %d items", emb.calls)
	}
}

func TestBestMatchPrefersHighestScore(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float64{
		"login broken":       unitVectorWithCosine(0.81),
		"login page is down": unitVectorWithCosine(0.95),
	}}
	m, err := NewMatcher(emb, PolicyBestMatch)
	if err != nil {
		t.Fatalf("failed to create matcher: %v", err)
	}

	items := []types.LedgerItem{
		matchItem("bugs_1", "login broken"),
		matchItem("bugs_2", "login page is down"),
	}
	got, err := m.FindMatch(context.Background(), []float64{1, 0}, items, 0.8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.Item.ID != "bugs_2" {
		t.Fatalf("expected the highest-scoring item, got %+v", got)
	}
}

func TestBestMatchTieKeepsEarliest(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float64{
		"dup": unitVectorWithCosine(0.9),
	}}
	m, err := NewMatcher(emb, PolicyBestMatch)
	if err != nil {
		t.Fatalf("failed to create matcher: %v", err)
	}

	items := []types.LedgerItem{matchItem("bugs_1", "dup"), matchItem("bugs_2", "dup")}
	got, err := m.FindMatch(context.Background(), []float64{1, 0}, items, 0.8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.Item.ID != "bugs_1" {
		t.Fatalf("expected tie to keep the earliest item, got %+v", got)
	}
}

func TestNoMatchBelowThreshold(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float64{
		"unrelated": unitVectorWithCosine(0.3),
	}}
	m, err := NewMatcher(emb, PolicyFirstAboveThreshold)
	if err != nil {
		t.Fatalf("failed to create matcher: %v", err)
	}

	got, err := m.FindMatch(context.Background(), []float64{1, 0},
		[]types.LedgerItem{matchItem("bugs_1", "unrelated")}, 0.8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no match, got %+v", got)
	}
}

func TestThresholdIsInclusive(t *testing.T) {
	vec := unitVectorWithCosine(0.8)
	emb := &fakeEmbedder{vectors: map[string][]float64{"edge": vec}}
	m, err := NewMatcher(emb, PolicyFirstAboveThreshold)
	if err != nil {
		t.Fatalf("failed to create matcher: %v", err)
	}

	// Use the exact score the matcher will compute as the threshold, so the
	// comparison exercises score == threshold without float drift.
	probe := []float64{1, 0}
	exact, err := CosineSimilarity(probe, vec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := m.FindMatch(context.Background(), probe,
		[]types.LedgerItem{matchItem("bugs_1", "edge")}, exact)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Fatal("expected a match at exactly the threshold")
	}
}

func TestEmptyItemsMatchNothing(t *testing.T) {
	m, err := NewMatcher(&fakeEmbedder{}, PolicyFirstAboveThreshold)
	if err != nil {
		t.Fatalf("failed to create matcher: %v", err)
	}
	got, err := m.FindMatch(context.Background(), []float64{1, 0}, nil, 0.8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no match for empty items, got %+v", got)
	}
}

func TestFindMatchValidatesThreshold(t *testing.T) {
	m, err := NewMatcher(&fakeEmbedder{}, PolicyFirstAboveThreshold)
	if err != nil {
		t.Fatalf("failed to create matcher: %v", err)
	}
	for _, bad := range []float64{-0.1, 1.1} {
		if _, err := m.FindMatch(context.Background(), []float64{1, 0},
			[]types.LedgerItem{matchItem("bugs_1", "x")}, bad); err == nil {
			t.Errorf("expected an error for threshold %v", bad)
		}
	}
}

func TestEmbedderErrorPropagates(t *testing.T) {
	wantErr := errors.New("provider down")
	m, err := NewMatcher(&fakeEmbedder{err: wantErr}, PolicyFirstAboveThreshold)
	if err != nil {
		t.Fatalf("failed to create matcher: %v", err)
	}
	_, err = m.FindMatch(context.Background(), []float64{1, 0},
		[]types.LedgerItem{matchItem("bugs_1", "x")}, 0.8)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected the embedder error to propagate, got %v", err)
	}
}

func TestNewMatcherValidation(t *testing.T) {
	if _, err := NewMatcher(nil, PolicyBestMatch); err == nil {
		t.Error("expected an error for nil embedder")
	}
	if _, err := NewMatcher(&fakeEmbedder{}, Policy("fuzzy")); err == nil {
		t.Error("expected an error for unknown policy")
	}
}
