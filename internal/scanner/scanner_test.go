package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"media-catalog/internal/processor"
)

func makeItems(n int) []processor.WorkItem {
	items := make([]processor.WorkItem, n)
	for i := range items {
		items[i] = processor.WorkItem{Path: fmt.Sprintf("/media/%d.jpg", i), Size: 10}
	}
	return items
}

func TestRunProcessesEverything(t *testing.T) {
	var processed int32
	s := New(4, 0, func(ctx context.Context, item processor.WorkItem) (bool, error) {
		atomic.AddInt32(&processed, 1)
		return true, nil
	})

	result := s.Run(context.Background(), makeItems(50))

	if result.Completed != 50 {
		t.Errorf("Completed = %d, want 50", result.Completed)
	}
	if result.Failed != 0 {
		t.Errorf("Failed = %d, want 0", result.Failed)
	}
	if got := atomic.LoadInt32(&processed); got != 50 {
		t.Errorf("process func ran %d times, want 50", got)
	}

	p := s.Progress()
	if p.Running {
		t.Error("progress still running after Run returned")
	}
	if p.Completed != 50 || p.Percent != 100 {
		t.Errorf("progress = %+v, want 50 completed at 100%%", p)
	}
}

func TestRunBoundedConcurrency(t *testing.T) {
	const budget = 3

	var mu sync.Mutex
	inFlight, highWater := 0, 0

	s := New(budget, 0, func(ctx context.Context, item processor.WorkItem) (bool, error) {
		mu.Lock()
		inFlight++
		if inFlight > highWater {
			highWater = inFlight
		}
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return true, nil
	})

	s.Run(context.Background(), makeItems(30))

	if highWater > budget {
		t.Errorf("high-water mark %d exceeds worker budget %d", highWater, budget)
	}
	if highWater == 0 {
		t.Error("no work observed in flight")
	}
}

func TestRunCountsFailures(t *testing.T) {
	var n int32
	s := New(2, 0, func(ctx context.Context, item processor.WorkItem) (bool, error) {
		if atomic.AddInt32(&n, 1)%2 == 0 {
			return true, errors.New("decode failed")
		}
		return true, nil
	})

	result := s.Run(context.Background(), makeItems(10))

	if result.Completed != 10 {
		t.Errorf("Completed = %d, want 10 (failures still complete)", result.Completed)
	}
	if result.Failed != 5 {
		t.Errorf("Failed = %d, want 5", result.Failed)
	}
}

func TestRunCountsSkipped(t *testing.T) {
	s := New(2, 0, func(ctx context.Context, item processor.WorkItem) (bool, error) {
		return false, nil
	})

	result := s.Run(context.Background(), makeItems(8))
	if result.Skipped != 8 {
		t.Errorf("Skipped = %d, want 8", result.Skipped)
	}
}

func TestRunCancellationDeclinesNewItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var started int32
	release := make(chan struct{})
	s := New(2, 0, func(ctx context.Context, item processor.WorkItem) (bool, error) {
		atomic.AddInt32(&started, 1)
		<-release
		return true, nil
	})

	done := make(chan *Result)
	go func() { done <- s.Run(ctx, makeItems(100)) }()

	// Let the workers pick up their first items, then cancel and release.
	for atomic.LoadInt32(&started) < 2 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	close(release)

	result := <-done
	if result.Completed == 100 {
		t.Error("cancellation did not decline any items")
	}
	if result.Completed == 0 {
		t.Error("in-flight items should have finished")
	}
}

func TestRunEmptyList(t *testing.T) {
	s := New(4, 0, func(ctx context.Context, item processor.WorkItem) (bool, error) {
		t.Error("process func called for empty work list")
		return false, nil
	})
	result := s.Run(context.Background(), nil)
	if result.Completed != 0 || result.Total != 0 {
		t.Errorf("result = %+v, want empty", result)
	}
}
