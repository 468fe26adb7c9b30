package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/tallyhq/tally/internal/types"
)

// IDGenerator synthesizes ledger item IDs of the form
// "{category-prefix}_{suffix}", e.g. "bugs_1717236000123456789".
//
// The suffix is the current Unix time in nanoseconds, bumped past the last
// issued value so IDs from one generator are strictly increasing even when
// two calls land on the same clock reading.
type IDGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewIDGenerator returns a generator backed by the system clock.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now}
}

// NewIDGeneratorWithClock returns a generator backed by the given clock.
// Tests use this to make IDs deterministic.
func NewIDGeneratorWithClock(now func() time.Time) *IDGenerator {
	return &IDGenerator{now: now}
}

// NextID returns a fresh item ID for the category.
func (g *IDGenerator) NextID(category types.Category) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	suffix := g.now().UnixNano()
	if suffix <= g.last {
		suffix = g.last + 1
	}
	g.last = suffix
	return fmt.Sprintf("%s_%d", category.IDPrefix(), suffix)
}
