package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tallyhq/tally/internal/types"
)

func TestLockTableSerializes(t *testing.T) {
	lt := newLockTable()
	ctx := context.Background()

	release, err := lt.acquire(ctx, types.CategoryBugs, "C1", 0)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	_, err = lt.acquire(ctx, types.CategoryBugs, "C1", 20*time.Millisecond)
	if !errors.Is(err, types.ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout while held, got %v", err)
	}

	// A different channel under the same category is an independent lock.
	releaseOther, err := lt.acquire(ctx, types.CategoryBugs, "C2", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("unrelated channel blocked: %v", err)
	}
	releaseOther()

	release()
	release() // releasing twice is harmless

	release2, err := lt.acquire(ctx, types.CategoryBugs, "C1", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
	release2()
}

func TestLockTableCleansUpEntries(t *testing.T) {
	lt := newLockTable()
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := lt.acquire(ctx, types.CategoryTasks, "C1", time.Second)
			if err != nil {
				t.Errorf("acquire failed: %v", err)
				return
			}
			time.Sleep(time.Millisecond)
			release()
		}()
	}
	wg.Wait()

	lt.mu.Lock()
	remaining := len(lt.locks)
	lt.mu.Unlock()
	if remaining != 0 {
		t.Errorf("expected empty lock table after all releases, got %d entries", remaining)
	}
}
