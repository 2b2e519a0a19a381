// Reelmatch - Movie Catalog Synchronization Engine
// Copyright 2026 Reelmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

// Package ratings holds the shared rating cache, the event bus that makes
// it observable, and the two supply paths that fill it: the bulk prime
// issued right after a page load and the rate-limited background fetcher
// for ids the bulk path missed.
package ratings

import (
	"sync"

	"github.com/reelmatch/reelmatch/internal/metrics"
	"github.com/reelmatch/reelmatch/internal/models"
)

type entry struct {
	state  models.RatingState
	rating string
}

// Cache is the session-wide rating cache, keyed by catalog id with a
// secondary index keyed by external rating id so surfaces showing the same
// title under different catalog entries share lookups.
//
// Upgrade invariant: once an id holds a real rating string it is never
// downgraded to absent or to the not-found sentinel. "Not found" is
// terminal unless Reset clears the whole cache. Safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	byID       map[int64]entry
	byExternal map[string]entry
}

// NewCache returns an empty rating cache.
func NewCache() *Cache {
	return &Cache{
		byID:       make(map[int64]entry),
		byExternal: make(map[string]entry),
	}
}

// Lookup returns the cached rating and state for a catalog id.
func (c *Cache) Lookup(id int64) (string, models.RatingState) {
	c.mu.RLock()
	e, ok := c.byID[id]
	c.mu.RUnlock()
	if !ok {
		metrics.RatingCacheMisses.Inc()
		return "", models.RatingAbsent
	}
	metrics.RatingCacheHits.Inc()
	return e.rating, e.state
}

// LookupExternal returns the cached rating and state for an external rating
// id, regardless of which catalog entry originally fetched it.
func (c *Cache) LookupExternal(externalID string) (string, models.RatingState) {
	if externalID == "" {
		return "", models.RatingAbsent
	}
	c.mu.RLock()
	e, ok := c.byExternal[externalID]
	c.mu.RUnlock()
	if !ok {
		return "", models.RatingAbsent
	}
	return e.rating, e.state
}

// SetFound records a real rating for the id (and its external id, when
// known). Returns false when the write was suppressed because the cache
// already holds a rating for the id.
func (c *Cache) SetFound(id int64, externalID, rating string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.byID[id]; ok && existing.state == models.RatingFound {
		return false
	}
	e := entry{state: models.RatingFound, rating: rating}
	c.byID[id] = e
	if externalID != "" {
		c.byExternal[externalID] = e
	}
	return true
}

// SetNotFound records a definitive miss. A miss never overwrites a real
// rating; returns false when suppressed.
func (c *Cache) SetNotFound(id int64, externalID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.byID[id]; ok && existing.state == models.RatingFound {
		return false
	}
	e := entry{state: models.RatingMissing, rating: models.RatingNotFound}
	c.byID[id] = e
	if externalID != "" {
		if ext, ok := c.byExternal[externalID]; !ok || ext.state != models.RatingFound {
			c.byExternal[externalID] = e
		}
	}
	return true
}

// Reset clears the whole cache. This is the only way a not-found entry
// becomes eligible for another lookup.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.byID = make(map[int64]entry)
	c.byExternal = make(map[string]entry)
	c.mu.Unlock()
}

// RatingsFor returns the display value (rating string or sentinel) for
// every id with a resolved entry. Used by the view-continuity snapshot.
func (c *Cache) RatingsFor(ids []int64) map[int64]string {
	out := make(map[int64]string)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, id := range ids {
		if e, ok := c.byID[id]; ok {
			out[id] = e.rating
		}
	}
	return out
}

// Prime re-seeds the cache from a restored snapshot. Entries equal to the
// not-found sentinel seed misses, everything else seeds found ratings;
// the upgrade invariant applies, so a restore can never clobber fresher
// data that arrived while the surface was away.
func (c *Cache) Prime(snapshot map[int64]string) {
	for id, rating := range snapshot {
		if rating == models.RatingNotFound {
			c.SetNotFound(id, "")
		} else if rating != "" {
			c.SetFound(id, "", rating)
		}
	}
}
