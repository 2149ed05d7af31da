// Package scanner runs scan passes: a bounded pool of workers draining a
// work list through the processor, with per-session progress accounting.
package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"media-catalog/internal/logging"
	"media-catalog/internal/metrics"
	"media-catalog/internal/processor"
)

// ProcessFunc handles one work item. The boolean reports whether the item
// actually needed decoding, as opposed to an unchanged-file skip.
type ProcessFunc func(ctx context.Context, item processor.WorkItem) (bool, error)

// Progress is a snapshot of a running or finished pass.
type Progress struct {
	SessionID string  `json:"session_id"`
	Total     int     `json:"total"`
	Completed int     `json:"completed"`
	Failed    int     `json:"failed"`
	Percent   float64 `json:"percent"`
	Running   bool    `json:"running"`
}

// Result summarizes one finished pass.
type Result struct {
	SessionID string
	Total     int
	Completed int
	Failed    int
	Skipped   int
	Duration  time.Duration
}

// Scanner executes scan passes with a fixed concurrency budget. One Scanner
// runs one pass at a time; Progress may be read concurrently.
type Scanner struct {
	threads  int
	maxBytes int64
	process  ProcessFunc

	mu   sync.Mutex
	last Progress
}

// New builds a Scanner. threads is the worker budget; maxBytes, when
// positive, is an advisory cap on total bytes per pass.
func New(threads int, maxBytes int64, process ProcessFunc) *Scanner {
	if threads < 1 {
		threads = 1
	}
	return &Scanner{threads: threads, maxBytes: maxBytes, process: process}
}

// Progress returns a snapshot of the current or most recent pass.
func (s *Scanner) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Run processes every item and blocks until all are done. Cancelling the
// context declines items not yet started; in-flight items finish. Every
// completion, success or failure, counts toward progress.
func (s *Scanner) Run(ctx context.Context, items []processor.WorkItem) *Result {
	session := uuid.NewString()
	start := time.Now()

	total := len(items)
	var totalBytes int64
	for _, item := range items {
		totalBytes += item.Size
	}
	if s.maxBytes > 0 && totalBytes > s.maxBytes {
		logging.Warn("Scan %s covers %d bytes, above the configured cap of %d; continuing", session, totalBytes, s.maxBytes)
	}

	logging.Info("Scan %s starting: %d files, %d workers", session, total, s.threads)
	metrics.ScanRunsTotal.Inc()

	s.mu.Lock()
	s.last = Progress{SessionID: session, Total: total, Running: true}
	s.mu.Unlock()

	work := make(chan processor.WorkItem)
	result := &Result{SessionID: session, Total: total}

	var wg sync.WaitGroup
	for i := 0; i < s.threads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				s.runOne(ctx, item, result)
			}
		}()
	}

	dispatched := 0
feed:
	for _, item := range items {
		select {
		case <-ctx.Done():
			logging.Warn("Scan %s cancelled with %d of %d files dispatched", session, dispatched, total)
			break feed
		case work <- item:
			dispatched++
		}
	}
	close(work)
	wg.Wait()

	result.Duration = time.Since(start)

	s.mu.Lock()
	s.last.Running = false
	s.mu.Unlock()

	metrics.ScanLastRunTimestamp.SetToCurrentTime()
	metrics.ScanLastRunDuration.Set(result.Duration.Seconds())

	logging.Info("Scan %s finished: %d of %d files done (%d failed, %d unchanged) in %s",
		session, result.Completed, total, result.Failed, result.Skipped, result.Duration.Round(time.Millisecond))
	return result
}

// runOne processes a single item and folds its outcome into the shared
// counters. The lock covers increment and progress report as one step.
func (s *Scanner) runOne(ctx context.Context, item processor.WorkItem, result *Result) {
	metrics.ScanInFlight.Inc()
	decoded, err := s.process(ctx, item)
	metrics.ScanInFlight.Dec()

	s.mu.Lock()
	defer s.mu.Unlock()

	result.Completed++
	if err != nil {
		result.Failed++
		metrics.ScanFilesFailed.Inc()
		logging.Error("Failed to process %s: %v", item.Path, err)
	} else {
		metrics.ScanFilesProcessed.Inc()
		if !decoded {
			result.Skipped++
		}
	}

	s.last.Completed = result.Completed
	s.last.Failed = result.Failed
	if result.Total > 0 {
		s.last.Percent = float64(result.Completed) / float64(result.Total) * 100
	}
	logging.Info("%d of %d (%.0f%%) done", result.Completed, result.Total, s.last.Percent)
}
