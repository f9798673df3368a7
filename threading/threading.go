// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package threading implements the interval-splitting and scoped
// parallel-for abstractions used to fan a pure, disjoint-write computation
// out across a fixed thread pool, replacing the raw thread handles and MPI
// rank partitioning of the source material with goroutines joined through
// golang.org/x/sync/errgroup.
package threading

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// MaxThreadCount returns the number of logical CPUs available, used as the
// default width of a parallel region.
func MaxThreadCount() int {
	return runtime.GOMAXPROCS(0)
}

// SplitRange partitions [begin,end) into at most numIntervals contiguous,
// roughly equal intervals. Intervals are never empty; if end-begin is
// smaller than numIntervals, fewer intervals are returned.
func SplitRange(begin, end, numIntervals int) [][2]int {
	if numIntervals < 1 {
		numIntervals = 1
	}
	n := end - begin
	if n <= 0 {
		return nil
	}
	if numIntervals > n {
		numIntervals = n
	}

	intervals := make([][2]int, 0, numIntervals)
	base := n / numIntervals
	rem := n % numIntervals
	start := begin
	for i := 0; i < numIntervals; i++ {
		size := base
		if i < rem {
			size++
		}
		intervals = append(intervals, [2]int{start, start + size})
		start += size
	}
	return intervals
}

// ParallelFor splits [0,n) into min(MaxThreadCount(), n) contiguous
// intervals and runs fn(start,end) for each concurrently, blocking until
// all intervals complete. fn must only write to indices within its own
// [start,end) interval -- intervals are disjoint by construction, so no
// synchronisation is required inside fn.
func ParallelFor(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	intervals := SplitRange(0, n, MaxThreadCount())
	if len(intervals) <= 1 {
		if len(intervals) == 1 {
			fn(intervals[0][0], intervals[0][1])
		}
		return
	}

	var g errgroup.Group
	for _, iv := range intervals {
		start, end := iv[0], iv[1]
		g.Go(func() error {
			fn(start, end)
			return nil
		})
	}
	_ = g.Wait()
}

// ParallelForErr is the error-propagating variant of ParallelFor, used
// where an interval's work can itself fail (e.g. it calls into a solver).
// The first non-nil error from any interval is returned after all
// intervals have finished.
func ParallelForErr(n int, fn func(start, end int) error) error {
	if n <= 0 {
		return nil
	}
	intervals := SplitRange(0, n, MaxThreadCount())
	var g errgroup.Group
	for _, iv := range intervals {
		start, end := iv[0], iv[1]
		g.Go(func() error {
			return fn(start, end)
		})
	}
	return g.Wait()
}
