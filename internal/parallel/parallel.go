// Copyright 2020 Grail Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package parallel provides the bounded-concurrency fan-out helpers shared
// by abundance and assign. It generalizes the channel/WaitGroup
// worker pool markduplicates.generatePAM/generateBAM hand-roll per call site
// into one reusable shape backed by golang.org/x/sync/errgroup.
package parallel

import (
	"golang.org/x/sync/errgroup"
)

// Range is a half-open index range [Start, End).
type Range struct {
	Start, End int
}

// Partition splits [0, n) into up to workers contiguous, roughly equal
// ranges. Grounded on the shard-splitting markduplicates.Mark does before
// handing byte ranges to worker goroutines.
func Partition(n, workers int) []Range {
	if n <= 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	ranges := make([]Range, 0, workers)
	base := n / workers
	rem := n % workers
	start := 0
	for i := 0; i < workers; i++ {
		size := base
		if i < rem {
			size++
		}
		ranges = append(ranges, Range{Start: start, End: start + size})
		start += size
	}
	return ranges
}

// ForEach runs fn over every item in items, bounded to workers concurrent
// goroutines, and returns the first error encountered (if any). An error
// does not cancel anything: every item is still run. workers <= 0 means
// unlimited.
func ForEach[T any](items []T, workers int, fn func(T) error) error {
	g := new(errgroup.Group)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for _, item := range items {
		item := item
		g.Go(func() error { return fn(item) })
	}
	return g.Wait()
}

// ForEachIndex is ForEach over the index range [0, n).
func ForEachIndex(n, workers int, fn func(i int) error) error {
	g := new(errgroup.Group)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error { return fn(i) })
	}
	return g.Wait()
}

// Collect runs produce on the calling goroutine's behalf (produce is
// expected to push values onto out, possibly from many goroutines of its
// own) while draining out and handing each value to apply sequentially. This
// is the single-writer-applies-parallel-proposals shape assign's Phase 4
// (swapAssignment) uses for its swap commits.
func Collect[T any](produce func(out chan<- T), apply func(T)) {
	out := make(chan T)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for v := range out {
			apply(v)
		}
	}()
	produce(out)
	close(out)
	<-done
}
