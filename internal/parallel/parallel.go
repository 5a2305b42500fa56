// Package parallel splits independent loop iterations across goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of goroutines to use.
	MinChunkSize int  // Minimum iterations per goroutine.
}

// DefaultConfig uses one worker per CPU. Chunks of fewer than 8 iterations
// are not worth a goroutine for the convolution kernels.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 8,
	}
}

// Sequential runs every loop on the calling goroutine.
func Sequential() Config {
	return Config{}
}

// For executes f(i) for i in [0, n). Iterations must not depend on each
// other; each i is visited exactly once. Runs sequentially when disabled or
// when n is below one chunk.
func For(n int, f func(i int), cfg Config) {
	if !cfg.Enabled || cfg.NumWorkers < 2 || n < 2*max(cfg.MinChunkSize, 1) {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize, 1)
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}
