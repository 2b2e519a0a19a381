// Reelmatch - Movie Catalog Synchronization Engine
// Copyright 2026 Reelmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

// Package viewcache keeps one snapshot per catalog surface so navigating
// away and back restores the view instead of starting cold.
package viewcache

import (
	"sync"

	"github.com/reelmatch/reelmatch/internal/logging"
	"github.com/reelmatch/reelmatch/internal/metrics"
	"github.com/reelmatch/reelmatch/internal/models"
)

// Cache holds view-continuity snapshots, logically partitioned per surface:
// one slot per catalog view, written only by that surface's own store.
// Safe for concurrent use.
type Cache struct {
	mu    sync.RWMutex
	slots map[string]*models.ViewSnapshot
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{slots: make(map[string]*models.ViewSnapshot)}
}

// Write stores a snapshot for the surface. Items, page, sort and hasMore
// replace the slot wholesale; ratings and the enriched-id set merge into
// whatever the slot already holds for the same filter key, because those
// fields keep completing long after the page load that wrote the slot.
// A differing filter key discards the old slot entirely.
func (c *Cache) Write(surface string, snap models.ViewSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.slots[surface]
	if ok && existing.FilterKey == snap.FilterKey {
		for id, r := range existing.Ratings {
			if _, have := snap.Ratings[id]; !have {
				if snap.Ratings == nil {
					snap.Ratings = make(map[int64]string)
				}
				snap.Ratings[id] = r
			}
		}
		for id := range existing.EnrichedIDs {
			if snap.EnrichedIDs == nil {
				snap.EnrichedIDs = make(map[int64]struct{})
			}
			snap.EnrichedIDs[id] = struct{}{}
		}
	}
	c.slots[surface] = snap.Clone()
}

// MergeRating records an asynchronously arrived rating into the surface's
// snapshot without touching the rest of it.
func (c *Cache) MergeRating(surface string, id int64, rating string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.slots[surface]
	if !ok {
		return
	}
	if snap.Ratings == nil {
		snap.Ratings = make(map[int64]string)
	}
	snap.Ratings[id] = rating
}

// MergeItems refreshes the stored item slice and enriched-id set after an
// enrichment pass lands, leaving page and ratings alone.
func (c *Cache) MergeItems(surface string, items []models.CatalogItem, enriched map[int64]struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.slots[surface]
	if !ok {
		return
	}
	snap.Items = append([]models.CatalogItem(nil), items...)
	if snap.EnrichedIDs == nil {
		snap.EnrichedIDs = make(map[int64]struct{})
	}
	for id := range enriched {
		snap.EnrichedIDs[id] = struct{}{}
	}
}

// Restore returns a deep copy of the surface's snapshot when one exists
// for the given filter key. ok=false means the surface starts cold.
func (c *Cache) Restore(surface, filterKey string) (*models.ViewSnapshot, bool) {
	c.mu.RLock()
	snap, ok := c.slots[surface]
	c.mu.RUnlock()

	if !ok || snap.FilterKey != filterKey {
		metrics.SnapshotRestores.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.SnapshotRestores.WithLabelValues("hit").Inc()
	logging.Debug().Str("surface", surface).Int("items", len(snap.Items)).Msg("Restoring view from snapshot")
	return snap.Clone(), true
}

// Invalidate clears the surface's slot. Called on any filter, sort, or
// explicit refresh change, before the next fetch.
func (c *Cache) Invalidate(surface string) {
	c.mu.Lock()
	delete(c.slots, surface)
	c.mu.Unlock()
}
