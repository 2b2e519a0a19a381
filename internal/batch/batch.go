// Reelmatch - Movie Catalog Synchronization Engine
// Copyright 2026 Reelmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

// Package batch splits a slice of work into fixed-size chunks and runs
// them sequentially with a pause between chunks. Both the enrichment
// coordinator and the background rating fetcher pace their provider
// traffic through it.
package batch

import (
	"context"
	"sync"
	"time"
)

// Partition splits ids into consecutive chunks of at most size elements.
// The returned chunks alias the input slice. A size <= 0 yields a single
// chunk containing everything.
func Partition[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 || size >= len(items) {
		return [][]T{items}
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// Run invokes fn once per chunk of items, sleeping pause between chunks
// (not after the last one). It stops early when ctx is cancelled or fn
// returns an error, returning the cause. Chunks run strictly in order.
func Run[T any](ctx context.Context, items []T, size int, pause time.Duration, fn func(ctx context.Context, chunk []T) error) error {
	chunks := Partition(items, size)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, chunk); err != nil {
			return err
		}
		if pause > 0 && i < len(chunks)-1 {
			timer := time.NewTimer(pause)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return nil
}

// RunEach is like Run but fans the items of each chunk out concurrently,
// one goroutine per item, waiting for the whole chunk before pausing and
// moving on. Per-item failures are the callback's concern; RunEach only
// reports cancellation.
func RunEach[T any](ctx context.Context, items []T, size int, pause time.Duration, fn func(ctx context.Context, item T)) error {
	return Run(ctx, items, size, pause, func(ctx context.Context, chunk []T) error {
		var wg sync.WaitGroup
		for _, item := range chunk {
			wg.Add(1)
			go func(item T) {
				defer wg.Done()
				fn(ctx, item)
			}(item)
		}
		wg.Wait()
		return nil
	})
}
