// Package parallel splits row loops across goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls how a loop is split.
type Config struct {
	Workers int // goroutines to use, at most
	MinRows int // rows below which a chunk is not worth a goroutine
}

// DefaultConfig uses one worker per available CPU.
func DefaultConfig() Config {
	return Config{
		Workers: runtime.GOMAXPROCS(0),
		MinRows: 256,
	}
}

// Chunks calls f on contiguous ranges [start, end) that together cover
// [0, n) exactly once, and returns when every call has. Small loops, or a
// single worker, run f(0, n) on the calling goroutine.
func Chunks(n int, cfg Config, f func(start, end int)) {
	if n <= 0 {
		return
	}
	if cfg.Workers <= 1 || n < 2*cfg.MinRows {
		f(0, n)
		return
	}

	size := max((n+cfg.Workers-1)/cfg.Workers, cfg.MinRows)

	var wg sync.WaitGroup
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		wg.Add(1)
		go func() {
			defer wg.Done()
			f(start, end)
		}()
	}
	wg.Wait()
}
