// Reelmatch - Movie Catalog Synchronization Engine
// Copyright 2026 Reelmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package ratings

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/reelmatch/reelmatch/internal/batch"
	"github.com/reelmatch/reelmatch/internal/config"
	"github.com/reelmatch/reelmatch/internal/logging"
	"github.com/reelmatch/reelmatch/internal/metrics"
	"github.com/reelmatch/reelmatch/internal/models"
)

// Backend is the slice of the REST client the rating supply paths use.
type Backend interface {
	BulkRatings(ctx context.Context, ids []int64) (map[int64]models.RatingRecord, error)
	FetchAndStoreRating(ctx context.Context, catalogID int64, externalRatingID, releaseDate string) (*models.RatingResult, error)
}

// Fetcher runs the two rating supply paths.
//
// The bulk path (BulkPrime) is called synchronously after every page load
// and costs one request regardless of page size. The background path is a
// long-running service (Serve) that drains a priority queue in batches of
// batchSize individual lookups with a pause between batches, under a hard
// rate.Limiter budget, because the upstream provider meters requests.
//
// Per-id attempted and in-flight sets make each lookup happen at most once
// per pass; a reset clears attempted so the next query session starts
// fresh, while in-flight lookups are left to land (the cache upgrade rule
// keeps their results safe). The fetcher is shared by every surface in a
// session, so queued and attempted entries carry the owning surface and a
// query change on one surface only sheds that surface's work.
type Fetcher struct {
	client    Backend
	cache     *Cache
	bus       *Bus
	limiter   *rate.Limiter
	batchSize int
	pause     time.Duration

	mu        sync.Mutex
	q         *lookupQueue
	attempted map[int64]string // id -> owning surface
	inflight  map[int64]struct{}

	wake chan struct{}
}

// NewFetcher builds the fetcher; Serve must be started (normally under the
// session supervisor) before enqueued lookups make progress.
func NewFetcher(cfg *config.RatingsConfig, client Backend, cache *Cache, bus *Bus) *Fetcher {
	return &Fetcher{
		client:    client,
		cache:     cache,
		bus:       bus,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		batchSize: cfg.BatchSize,
		pause:     cfg.BatchPause,
		q:         newLookupQueue(),
		attempted: make(map[int64]string),
		inflight:  make(map[int64]struct{}),
		wake:      make(chan struct{}, 1),
	}
}

// String names the service in supervisor logs.
func (f *Fetcher) String() string { return "ratings-fetcher" }

// BulkPrime issues the single bulk lookup for a freshly loaded page,
// merges every hit into the cache (and the external-id cross index), and
// publishes each on the bus. Ids absent from the response stay absent;
// the background path picks them up.
func (f *Fetcher) BulkPrime(ctx context.Context, items []models.CatalogItem) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(items))
	externalByID := make(map[int64]string, len(items))
	for _, item := range items {
		ids = append(ids, item.CatalogID)
		externalByID[item.CatalogID] = item.ExternalRatingID
	}

	records, err := f.client.BulkRatings(ctx, ids)
	if err != nil {
		metrics.RatingLookups.WithLabelValues("bulk", "error").Inc()
		return err
	}

	for id, rec := range records {
		f.apply(id, externalByID[id], rec.Rating, "bulk")
	}
	return nil
}

// Enqueue adds background lookups for items the bulk path missed. Items
// without an external rating id are never queried against the provider;
// ids already resolved, already attempted this pass, or currently in
// flight are skipped. A hit in the external-id cross index resolves the
// id immediately with no provider call.
func (f *Fetcher) Enqueue(reqs ...Request) {
	queued := false
	for _, req := range reqs {
		if req.ExternalRatingID == "" {
			continue
		}
		if _, state := f.cache.Lookup(req.CatalogID); state != models.RatingAbsent {
			continue
		}
		if rating, state := f.cache.LookupExternal(req.ExternalRatingID); state != models.RatingAbsent {
			// Another surface already resolved this title.
			f.apply(req.CatalogID, req.ExternalRatingID, rating, "background")
			continue
		}

		f.mu.Lock()
		_, tried := f.attempted[req.CatalogID]
		_, flying := f.inflight[req.CatalogID]
		if !tried && !flying {
			f.q.push(req)
			metrics.RatingQueueDepth.Set(float64(f.q.len()))
			queued = true
		}
		f.mu.Unlock()
	}

	if queued {
		select {
		case f.wake <- struct{}{}:
		default:
		}
	}
}

// Reset starts a new query session for one surface: its queued lookups
// and attempted marks are dropped, while other surfaces' pending work is
// untouched and keeps draining. In-flight lookups are not aborted; their
// eventual merges are harmless under the cache upgrade rule.
func (f *Fetcher) Reset(owner string) {
	f.mu.Lock()
	f.q.removeOwner(owner)
	for id, by := range f.attempted {
		if by == owner {
			delete(f.attempted, id)
		}
	}
	metrics.RatingQueueDepth.Set(float64(f.q.len()))
	f.mu.Unlock()
}

// ResetAll clears the queue and attempted set for every surface, used
// when the signed-in account itself may have changed.
func (f *Fetcher) ResetAll() {
	f.mu.Lock()
	f.q.clear()
	f.attempted = make(map[int64]string)
	metrics.RatingQueueDepth.Set(0)
	f.mu.Unlock()
}

// Pending returns the queue depth, for tests and debug output.
func (f *Fetcher) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.q.len()
}

// Serve drains the queue until ctx is cancelled. It implements
// suture.Service; the session runs it under a supervisor so a panic in a
// lookup restarts the loop without tearing the session down.
func (f *Fetcher) Serve(ctx context.Context) error {
	logging.Info().Int("batch_size", f.batchSize).Dur("pause", f.pause).Msg("Rating fetcher started")

	for {
		next := f.takeBatch()
		if len(next) == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-f.wake:
				continue
			}
		}

		if err := batch.RunEach(ctx, next, f.batchSize, 0, func(ctx context.Context, req Request) {
			f.lookup(ctx, req)
		}); err != nil {
			return err
		}
		if f.pause > 0 && f.Pending() > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(f.pause):
			}
		}
	}
}

// takeBatch pops up to batchSize requests, marking them attempted and
// in flight.
func (f *Fetcher) takeBatch() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()

	var reqs []Request
	for len(reqs) < f.batchSize {
		req, ok := f.q.pop()
		if !ok {
			break
		}
		f.attempted[req.CatalogID] = req.Owner
		f.inflight[req.CatalogID] = struct{}{}
		reqs = append(reqs, req)
	}
	metrics.RatingQueueDepth.Set(float64(f.q.len()))
	return reqs
}

// lookup performs one individual provider lookup. Any failure, including a
// rate-limit rejection and an open breaker, is a definitive miss for this
// pass: the sentinel is cached and published so subscribers stop waiting.
func (f *Fetcher) lookup(ctx context.Context, req Request) {
	defer func() {
		f.mu.Lock()
		delete(f.inflight, req.CatalogID)
		f.mu.Unlock()
	}()

	if err := f.limiter.Wait(ctx); err != nil {
		return
	}

	res, err := f.client.FetchAndStoreRating(ctx, req.CatalogID, req.ExternalRatingID, req.ReleaseDate)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.Debug().Err(err).Int64("catalog_id", req.CatalogID).Msg("Rating lookup failed, recording miss")
		metrics.RatingLookups.WithLabelValues("background", "error").Inc()
		f.apply(req.CatalogID, req.ExternalRatingID, models.RatingNotFound, "")
		return
	}
	f.apply(req.CatalogID, req.ExternalRatingID, res.Rating, "background")
}

// apply merges one resolved rating into the cache and publishes it. An
// empty rating counts as a miss.
func (f *Fetcher) apply(id int64, externalID, rating, metricPath string) {
	found := rating != "" && rating != models.RatingNotFound
	if found {
		f.cache.SetFound(id, externalID, rating)
	} else {
		rating = models.RatingNotFound
		f.cache.SetNotFound(id, externalID)
	}

	if metricPath != "" {
		outcome := "found"
		if !found {
			outcome = "not_found"
		}
		metrics.RatingLookups.WithLabelValues(metricPath, outcome).Inc()
	}

	if err := f.bus.Publish(models.RatingUpdate{CatalogID: id, Rating: rating, Found: found}); err != nil {
		logging.Warn().Err(err).Int64("catalog_id", id).Msg("Failed to publish rating update")
	}
}
