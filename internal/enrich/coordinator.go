// Reelmatch - Movie Catalog Synchronization Engine
// Copyright 2026 Reelmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

// Package enrich fills the lazily-fetched secondary metadata (credits,
// genres, runtime, external rating id, providers) into a loaded item list.
package enrich

import (
	"context"
	"sync"
	"time"

	"github.com/reelmatch/reelmatch/internal/batch"
	"github.com/reelmatch/reelmatch/internal/config"
	"github.com/reelmatch/reelmatch/internal/logging"
	"github.com/reelmatch/reelmatch/internal/metrics"
	"github.com/reelmatch/reelmatch/internal/models"
)

// Backend is the slice of the REST client the coordinator uses.
type Backend interface {
	CatalogDetail(ctx context.Context, id int64) (*models.CatalogDetail, error)
}

// Coordinator enriches items at most once per query session. Candidates
// are partitioned into fixed-size batches of concurrent detail fetches
// with a pause between batches; individual failures are swallowed per item
// so one bad title never blocks its siblings.
//
// An id enters the in-flight set before its request starts, so a rapid
// re-trigger (every page load calls Enrich again) cannot double-fetch.
// Reset must be called whenever the underlying query changes, otherwise
// per-query enrichment state leaks across queries.
type Coordinator struct {
	client    Backend
	batchSize int
	pause     time.Duration

	mu       sync.Mutex
	done     map[int64]struct{}
	inflight map[int64]struct{}
}

// NewCoordinator builds a coordinator from the catalog configuration.
func NewCoordinator(cfg *config.CatalogConfig, client Backend) *Coordinator {
	return &Coordinator{
		client:    client,
		batchSize: cfg.EnrichBatchSize,
		pause:     cfg.EnrichBatchPause,
		done:      make(map[int64]struct{}),
		inflight:  make(map[int64]struct{}),
	}
}

// Enrich scans the list, claims every item not yet enriched and not in
// flight, and works through the claims in paced batches, merging results
// back through the stable list reference. It blocks until the pass
// completes or ctx is cancelled; callers run it in a goroutine.
func (c *Coordinator) Enrich(ctx context.Context, list *models.ItemList) {
	candidates := c.claim(list)
	if len(candidates) == 0 {
		return
	}

	logging.Debug().Int("count", len(candidates)).Msg("Starting enrichment pass")

	metrics.EnrichmentBatches.Add(float64((len(candidates) + c.batchSize - 1) / c.batchSize))
	err := batch.RunEach(ctx, candidates, c.batchSize, c.pause, func(ctx context.Context, id int64) {
		detail, err := c.client.CatalogDetail(ctx, id)

		c.mu.Lock()
		delete(c.inflight, id)
		c.done[id] = struct{}{}
		c.mu.Unlock()

		if err != nil {
			metrics.EnrichmentFetches.WithLabelValues("failure").Inc()
			logging.Debug().Err(err).Int64("catalog_id", id).Msg("Detail fetch failed, item stays un-enriched")
			return
		}
		metrics.EnrichmentFetches.WithLabelValues("success").Inc()
		list.MergeDetail(detail)
	})
	if err != nil {
		// Cancellation mid-pass: release unstarted claims so a later pass
		// can pick them up.
		c.mu.Lock()
		for _, id := range candidates {
			if _, started := c.done[id]; !started {
				delete(c.inflight, id)
			}
		}
		c.mu.Unlock()
	}
}

// claim marks every eligible id in flight and returns them in list order.
func (c *Coordinator) claim(list *models.ItemList) []int64 {
	items := list.Snapshot()

	c.mu.Lock()
	defer c.mu.Unlock()

	var ids []int64
	for i := range items {
		id := items[i].CatalogID
		if items[i].Enriched() {
			c.done[id] = struct{}{}
			continue
		}
		if _, ok := c.done[id]; ok {
			continue
		}
		if _, ok := c.inflight[id]; ok {
			continue
		}
		c.inflight[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// Reset clears the completed and in-flight sets for a new query session.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.done = make(map[int64]struct{})
	c.inflight = make(map[int64]struct{})
	c.mu.Unlock()
}

// Seed marks ids as already enriched, used when a surface restores from a
// view snapshot instead of starting cold.
func (c *Coordinator) Seed(ids []int64) {
	c.mu.Lock()
	for _, id := range ids {
		c.done[id] = struct{}{}
	}
	c.mu.Unlock()
}

// CompletedIDs returns the set of ids enriched (or attempted) this query
// session, for the view-continuity snapshot.
func (c *Coordinator) CompletedIDs() map[int64]struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int64]struct{}, len(c.done))
	for id := range c.done {
		out[id] = struct{}{}
	}
	return out
}
