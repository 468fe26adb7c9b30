package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tallyhq/tally/internal/types"
)

// lockTable hands out per-(category, channel) write locks so at most one
// mutation is in flight per channel ledger at a time. Entries are
// reference-counted and removed once the last holder releases, so the table
// does not grow with the number of channels ever seen.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*channelLock
}

type channelLock struct {
	sem  *semaphore.Weighted
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*channelLock)}
}

// acquire blocks until the channel lock is held, the timeout elapses, or ctx
// is done. Timeout expiry maps to ErrLockTimeout; caller cancellation
// propagates as-is. The returned release function must be called exactly once.
func (t *lockTable) acquire(ctx context.Context, category types.Category, channelID string, timeout time.Duration) (func(), error) {
	key := string(category) + "/" + channelID

	t.mu.Lock()
	cl, ok := t.locks[key]
	if !ok {
		cl = &channelLock{sem: semaphore.NewWeighted(1)}
		t.locks[key] = cl
	}
	cl.refs++
	t.mu.Unlock()

	acquireCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := cl.sem.Acquire(acquireCtx, 1); err != nil {
		t.release(key, cl, false)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: channel %s held by another writer after %s",
				types.ErrLockTimeout, key, timeout)
		}
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() { t.release(key, cl, true) })
	}, nil
}

func (t *lockTable) release(key string, cl *channelLock, held bool) {
	if held {
		cl.sem.Release(1)
	}
	t.mu.Lock()
	cl.refs--
	if cl.refs == 0 {
		delete(t.locks, key)
	}
	t.mu.Unlock()
}
