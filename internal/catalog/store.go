// Reelmatch - Movie Catalog Synchronization Engine
// Copyright 2026 Reelmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

// Package catalog holds the per-surface store that owns item identity and
// ordering, drives page loads, and fans the post-load work out to the
// enrichment coordinator and the rating supply paths.
package catalog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/reelmatch/reelmatch/internal/enrich"
	"github.com/reelmatch/reelmatch/internal/logging"
	"github.com/reelmatch/reelmatch/internal/metrics"
	"github.com/reelmatch/reelmatch/internal/models"
	"github.com/reelmatch/reelmatch/internal/ratings"
	"github.com/reelmatch/reelmatch/internal/viewcache"
)

var (
	// ErrLoadInProgress means a load is already running for the surface.
	ErrLoadInProgress = errors.New("load already in progress")

	// ErrNoMorePages means the last page returned fewer items than the
	// page size, so pagination has ended.
	ErrNoMorePages = errors.New("no more pages")

	// ErrDismissalsPending means LoadMore was refused because staged
	// dismissals have not settled yet.
	ErrDismissalsPending = errors.New("dismissals pending")

	// ErrStaleLoad means the query changed while a page fetch was in
	// flight, so the response was dropped without touching the list.
	ErrStaleLoad = errors.New("query changed during load")
)

// State is the surface's load state machine position.
type State int

const (
	// StateIdle means nothing has been loaded yet.
	StateIdle State = iota
	// StateLoading means the first page fetch is in flight.
	StateLoading
	// StateReady means the list is usable.
	StateReady
	// StateLoadingMore means an append fetch is in flight.
	StateLoadingMore
	// StateFailed means the last load failed; the previous list is retained.
	StateFailed
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateLoadingMore:
		return "loading_more"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Backend is the slice of the REST client the store uses.
type Backend interface {
	CatalogPage(ctx context.Context, filters models.Filters, sortKey string, page int) (*models.CatalogPage, error)
}

// Excluder reports ids the surface must never show: already liked or
// pending removal in collaborators outside this layer.
type Excluder func(id int64) bool

// DismissalGuard is the slice of the interaction ledger the store consults
// before paginating.
type DismissalGuard interface {
	PendingDismissals() int
}

// Deps wires one store to the session-wide collaborators.
type Deps struct {
	Client   Backend
	Enricher *enrich.Coordinator
	Fetcher  *ratings.Fetcher
	Ratings  *ratings.Cache
	Bus      *ratings.Bus
	Views    *viewcache.Cache
	Ledger   DismissalGuard
	Exclude  Excluder
	PageSize int
}

// Store is one catalog surface's synchronization driver.
//
// It owns the stable item list reference that the enrichment coordinator
// and rating bus subscribers read through, so background work that lands
// seconds after a load still merges into whatever the surface currently
// shows.
type Store struct {
	surface string
	deps    Deps

	list *models.ItemList

	mu          sync.Mutex
	state       State
	filters     models.Filters
	sortKey     string
	page        int
	hasMore     bool
	lastErr     error
	lastPageIDs map[int64]struct{}

	background sync.WaitGroup
}

// NewStore builds a store for one surface. PageSize defaults to the model
// constant when unset.
func NewStore(surface string, deps Deps) *Store {
	if deps.PageSize <= 0 {
		deps.PageSize = models.PageSize
	}
	if deps.Exclude == nil {
		deps.Exclude = func(int64) bool { return false }
	}
	return &Store{
		surface: surface,
		deps:    deps,
		list:    models.NewItemList(),
		state:   StateIdle,
		hasMore: true,
	}
}

// List exposes the stable item list reference. Subscribers must read
// current items through it, never through a snapshot captured earlier.
func (s *Store) List() *models.ItemList { return s.list }

// Items returns a copy of the current items.
func (s *Store) Items() []models.CatalogItem { return s.list.Snapshot() }

// State returns the surface's current load state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HasMore reports whether another page may exist.
func (s *Store) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// Page returns the last successfully loaded page number.
func (s *Store) Page() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// Err returns the failure behind StateFailed.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// FilterKey returns the canonical key of the current query.
func (s *Store) FilterKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters.Key(s.sortKey)
}

// SetQuery installs a new filter/sort combination. A changed key
// invalidates the surface's snapshot and resets enrichment and the
// background rating queue, so per-query state cannot leak across queries.
func (s *Store) SetQuery(filters models.Filters, sortKey string) {
	s.mu.Lock()
	changed := filters.Key(sortKey) != s.filters.Key(s.sortKey)
	s.filters = filters
	s.sortKey = sortKey
	s.mu.Unlock()

	if changed {
		s.deps.Views.Invalidate(s.surface)
		s.deps.Enricher.Reset()
		s.deps.Fetcher.Reset(s.surface)
	}
}

// Mount brings the surface up: restore from the view snapshot when one
// matches the current query key, otherwise load page one cold. Returns
// true when the snapshot path was taken.
func (s *Store) Mount(ctx context.Context) (bool, error) {
	s.mu.Lock()
	key := s.filters.Key(s.sortKey)
	s.mu.Unlock()

	snap, ok := s.deps.Views.Restore(s.surface, key)
	if !ok {
		return false, s.LoadPage(ctx, 1, false)
	}

	s.list.Replace(snap.Items)
	s.deps.Ratings.Prime(snap.Ratings)
	enriched := make([]int64, 0, len(snap.EnrichedIDs))
	for id := range snap.EnrichedIDs {
		enriched = append(enriched, id)
	}
	s.deps.Enricher.Seed(enriched)

	s.mu.Lock()
	s.page = snap.Page
	s.hasMore = snap.HasMore
	s.state = StateReady
	s.lastPageIDs = idSet(snap.Items)
	s.mu.Unlock()

	// Finish whatever the snapshot was still missing.
	s.startBackground(ctx)
	return true, nil
}

// Refresh clears the snapshot and all per-query state, then reloads page
// one under the current query.
func (s *Store) Refresh(ctx context.Context) error {
	s.deps.Views.Invalidate(s.surface)
	s.deps.Enricher.Reset()
	s.deps.Fetcher.Reset(s.surface)
	return s.LoadPage(ctx, 1, false)
}

// LoadPage fetches one page and either replaces or appends to the list.
// Exactly one logical request per call; a concurrent call fails fast with
// ErrLoadInProgress. On failure the previous list is retained and the
// surface reports StateFailed.
func (s *Store) LoadPage(ctx context.Context, page int, appendMode bool) error {
	s.mu.Lock()
	if s.state == StateLoading || s.state == StateLoadingMore {
		s.mu.Unlock()
		return ErrLoadInProgress
	}
	if appendMode {
		s.state = StateLoadingMore
	} else {
		s.state = StateLoading
	}
	filters, sortKey := s.filters, s.sortKey
	key := filters.Key(sortKey)
	s.mu.Unlock()

	start := time.Now()
	result, err := s.deps.Client.CatalogPage(ctx, filters, sortKey, page)
	metrics.PageLoadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PageLoads.WithLabelValues("failure").Inc()
		logging.Warn().Err(err).Str("surface", s.surface).Int("page", page).Msg("Page load failed, retaining previous list")
		s.mu.Lock()
		if s.filters.Key(s.sortKey) != key {
			s.state = StateIdle
			s.mu.Unlock()
			return ErrStaleLoad
		}
		s.state = StateFailed
		s.lastErr = err
		s.mu.Unlock()
		return err
	}

	kept := make([]models.CatalogItem, 0, len(result.Results))
	for _, item := range result.Results {
		if !s.deps.Exclude(item.CatalogID) {
			kept = append(kept, item)
		}
	}

	s.mu.Lock()
	if s.filters.Key(s.sortKey) != key {
		// The query moved on while the fetch was in flight. Applying the
		// response would resurrect exactly what SetQuery just invalidated,
		// so it is dropped whole: no list write, no snapshot, no state.
		s.state = StateIdle
		s.mu.Unlock()
		metrics.PageLoads.WithLabelValues("stale").Inc()
		logging.Debug().Str("surface", s.surface).Int("page", page).Msg("Dropping stale page response after query change")
		return ErrStaleLoad
	}
	if appendMode {
		s.list.Append(kept)
	} else {
		s.list.Replace(kept)
	}
	s.page = page
	// The raw page length decides pagination, not the post-exclusion count.
	s.hasMore = len(result.Results) == s.deps.PageSize
	s.state = StateReady
	s.lastErr = nil
	s.lastPageIDs = idSet(kept)
	s.mu.Unlock()

	metrics.PageLoads.WithLabelValues("success").Inc()
	logging.Debug().Str("surface", s.surface).Int("page", page).Int("items", len(kept)).Bool("append", appendMode).Msg("Page loaded")

	// Bulk rating path runs inline: one request, and its hits should land
	// before the first render if possible.
	if err := s.deps.Fetcher.BulkPrime(ctx, kept); err != nil {
		logging.Warn().Err(err).Str("surface", s.surface).Msg("Bulk rating prime failed, background path will fill in")
	}

	s.writeSnapshot(key)
	s.startBackground(ctx)
	return nil
}

// LoadMore appends the next page, guarded: never while a load is running,
// never past the last page, never while dismissals are staged (their
// server state is still unsettled, so the next page could resurface them).
func (s *Store) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.state == StateLoading || s.state == StateLoadingMore:
		s.mu.Unlock()
		return ErrLoadInProgress
	case !s.hasMore:
		s.mu.Unlock()
		return ErrNoMorePages
	}
	next := s.page + 1
	s.mu.Unlock()

	if s.deps.Ledger != nil && s.deps.Ledger.PendingDismissals() > 0 {
		return ErrDismissalsPending
	}
	return s.LoadPage(ctx, next, true)
}

// WatchRatings subscribes the surface to the rating bus and merges every
// update relevant to the current list into the view snapshot. Runs until
// ctx is cancelled; the session starts it once per surface lifetime.
func (s *Store) WatchRatings(ctx context.Context) error {
	updates, err := s.deps.Bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	for u := range updates {
		// Relevance is checked through the stable list reference at
		// delivery time, not against the list as it was at subscribe time.
		if !s.list.Contains(u.CatalogID) {
			continue
		}
		s.deps.Views.MergeRating(s.surface, u.CatalogID, u.Rating)
	}
	return nil
}

// WaitBackground blocks until in-flight enrichment passes triggered by
// this store have finished. Test and shutdown hook.
func (s *Store) WaitBackground() {
	s.background.Wait()
}

// startBackground kicks off the enrichment pass and, once it completes,
// refreshes the snapshot and feeds the background rating queue with the
// external ids enrichment discovered.
func (s *Store) startBackground(ctx context.Context) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()

		s.deps.Enricher.Enrich(ctx, s.list)
		if ctx.Err() != nil {
			return
		}

		items := s.list.Snapshot()
		s.deps.Views.MergeItems(s.surface, items, s.deps.Enricher.CompletedIDs())

		s.mu.Lock()
		visible := s.lastPageIDs
		s.mu.Unlock()

		reqs := make([]ratings.Request, 0, len(items))
		for _, item := range items {
			_, isVisible := visible[item.CatalogID]
			reqs = append(reqs, ratings.Request{
				CatalogID:        item.CatalogID,
				ExternalRatingID: item.ExternalRatingID,
				ReleaseDate:      item.ReleaseDate,
				Popularity:       item.Popularity,
				Visible:          isVisible,
				Owner:            s.surface,
			})
		}
		s.deps.Fetcher.Enqueue(reqs...)
	}()
}

// writeSnapshot stores the post-merge state for view continuity. The key
// is the one the loaded page was fetched under, not whatever the filters
// say by the time this runs, so a concurrent query change can never file
// old items under the new key.
func (s *Store) writeSnapshot(key string) {
	items := s.list.Snapshot()
	ids := make([]int64, len(items))
	for i := range items {
		ids[i] = items[i].CatalogID
	}

	s.mu.Lock()
	snap := models.ViewSnapshot{
		Items:       items,
		Page:        s.page,
		FilterKey:   key,
		SortKey:     s.sortKey,
		HasMore:     s.hasMore,
		Ratings:     s.deps.Ratings.RatingsFor(ids),
		EnrichedIDs: s.deps.Enricher.CompletedIDs(),
	}
	s.mu.Unlock()

	s.deps.Views.Write(s.surface, snap)
}

func idSet(items []models.CatalogItem) map[int64]struct{} {
	out := make(map[int64]struct{}, len(items))
	for i := range items {
		out[items[i].CatalogID] = struct{}{}
	}
	return out
}
