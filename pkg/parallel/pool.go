// Package parallel runs rank-local, embarrassingly-parallel work —
// the per-block subdivisions of local refinement, where no two items
// ever share state — across a bounded set of worker goroutines.
package parallel

import (
	"context"
	"runtime"
	"sync"
)

// Config bounds a pool's concurrency.
type Config struct {
	// Workers is the number of concurrent worker goroutines. Zero or
	// negative selects DefaultConfig's value.
	Workers int
}

// DefaultConfig caps workers at 8: block subdivision is CPU-bound, and
// past that point goroutine scheduling costs more than it buys.
func DefaultConfig() Config {
	w := runtime.NumCPU()
	if w > 8 {
		w = 8
	}
	if w < 2 {
		w = 2
	}
	return Config{Workers: w}
}

// Result pairs one input's output value with the error, if any, its
// worker function returned.
type Result[R any] struct {
	Value R
	Err   error
}

// Map applies fn to every input on up to cfg.Workers goroutines and
// returns one Result per input, in input order. It always drains every
// input before returning, unless ctx is cancelled, in which case
// unstarted inputs keep their zero Result and ctx.Err() as Err.
func Map[T, R any](ctx context.Context, cfg Config, inputs []T, fn func(ctx context.Context, in T) (R, error)) []Result[R] {
	if len(inputs) == 0 {
		return nil
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultConfig().Workers
	}
	if workers > len(inputs) {
		workers = len(inputs)
	}

	results := make([]Result[R], len(inputs))
	next := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range next {
				v, err := fn(ctx, inputs[idx])
				results[idx] = Result[R]{Value: v, Err: err}
			}
		}()
	}

	for i := range inputs {
		select {
		case <-ctx.Done():
			for j := i; j < len(inputs); j++ {
				results[j].Err = ctx.Err()
			}
			close(next)
			wg.Wait()
			return results
		case next <- i:
		}
	}
	close(next)
	wg.Wait()
	return results
}

// FirstError returns the first non-nil Err among results, in input
// order, or nil.
func FirstError[R any](results []Result[R]) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}
