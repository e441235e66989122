// internal/pool/pool.go
// Copyright(c) 2017 Matt Pharr
// BSD licensed; see LICENSE for details.

// Package pool implements a fixed-size pool of worker goroutines
// pulling from a channel fed by a lazy enumerator, with no per-item
// process spawn. Built on golang.org/x/sync/errgroup so a fatal error
// from any worker cancels every other worker's context and propagates
// to the top, while per-item errors never reach the group.
package pool

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Work is invoked once per item, on a fixed worker identified by id
// (0..n-1 — useful for giving each worker its own journal log set). A
// non-nil error is fatal and aborts the run; per-item failures must be
// reported through the caller's own logging/journal path and must
// return nil here.
type Work func(ctx context.Context, worker int, item string) error

// Run starts n worker goroutines draining items, each invoking fn for
// every item it pulls. It returns the first fatal error any worker
// returns (if any); in-flight items complete before Run returns; workers
// that haven't yet pulled a new item stop as soon as the group's context
// is cancelled.
func Run(ctx context.Context, n int, items <-chan string, fn Work) error {
	if n < 1 {
		n = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		worker := i
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case item, ok := <-items:
					if !ok {
						return nil
					}
					if err := fn(gctx, worker, item); err != nil {
						return err
					}
				}
			}
		})
	}
	return g.Wait()
}
