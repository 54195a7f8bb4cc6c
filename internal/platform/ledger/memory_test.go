package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryTryMarkOncePerJobAndDate(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	day := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.TryMark(ctx, 1, day)
			if err != nil {
				t.Errorf("try mark: %v", err)
			}
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}

	if ok, _ := m.TryMark(ctx, 2, day); !ok {
		t.Fatal("another job on the same date must be markable")
	}
	if ok, _ := m.TryMark(ctx, 1, day.AddDate(0, 0, 1)); !ok {
		t.Fatal("the same job on the next date must be markable")
	}
	if ok, _ := m.TryMark(ctx, 1, day.Add(5*time.Hour)); ok {
		t.Fatal("a later instant on the same date must not be markable again")
	}
}

func TestMemoryPrune(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	_, _ = m.TryMark(ctx, 1, day.AddDate(0, 0, -3))
	_, _ = m.TryMark(ctx, 1, day.AddDate(0, 0, -1))
	_, _ = m.TryMark(ctx, 1, day)

	if err := m.Prune(ctx, day.AddDate(0, 0, -1)); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if m.Len() != 2 {
		t.Fatalf("expected 2 markers after prune, got %d", m.Len())
	}
	if ok, _ := m.TryMark(ctx, 1, day); ok {
		t.Fatal("pruning must keep today's marker")
	}
}
