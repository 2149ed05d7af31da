package workers

import (
	"os"
	"runtime"
	"strconv"
)

// Worker counts for the scan pool. Indexing is I/O- and codec-bound, so the
// default is decoupled from the CPU count and clamped to a small fixed range.
const (
	minWorkers = 5
	maxWorkers = 15
)

// Default returns the worker count for a scan pass when the config file does
// not set one. It respects container CPU limits via GOMAXPROCS and can be
// overridden with the CATALOG_WORKERS environment variable.
func Default() int {
	if override := os.Getenv("CATALOG_WORKERS"); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			return count
		}
	}

	workers := runtime.GOMAXPROCS(0) * 2
	if workers < minWorkers {
		workers = minWorkers
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}
	return workers
}
