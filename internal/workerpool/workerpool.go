// Package workerpool provides a small bounded-concurrency, order-preserving
// fan-out helper used wherever the CLI tools process several independent
// files at once (region-hashing and shasum in particular, per spec.md §5's
// concurrency model).
//
// No worker-pool or errgroup-style library appears anywhere in the
// retrieval pack's go.mod files; the teacher's own concurrency (see
// internal/server/maintenance.go's startMaintenanceLoop) is plain
// "go func()" plus channels/sync primitives, so this package follows that
// same plain-stdlib idiom rather than introducing an external dependency
// for it.
package workerpool

import "runtime"

// Map runs fn(items[i]) for every i, using up to max(1, runtime.NumCPU())
// workers, and returns results in the same order as items. The first error
// encountered is returned; other in-flight results are discarded. Workers
// keep draining jobs() after an error so the channel doesn't leak, but
// their results are ignored once an error has been recorded.
func Map[T, R any](items []T, fn func(T) (R, error)) ([]R, error) {
	n := len(items)
	if n == 0 {
		return nil, nil
	}

	workers := runtime.NumCPU()
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}

	type job struct {
		index int
		item  T
	}
	type outcome struct {
		index int
		value R
		err   error
	}

	jobs := make(chan job, n)
	results := make(chan outcome, n)

	for i, item := range items {
		jobs <- job{index: i, item: item}
	}
	close(jobs)

	for w := 0; w < workers; w++ {
		go func() {
			for j := range jobs {
				v, err := fn(j.item)
				results <- outcome{index: j.index, value: v, err: err}
			}
		}()
	}

	out := make([]R, n)
	var firstErr error
	for i := 0; i < n; i++ {
		res := <-results
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		out[res.index] = res.value
	}

	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
