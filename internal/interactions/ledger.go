// Reelmatch - Movie Catalog Synchronization Engine
// Copyright 2026 Reelmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

// Package interactions keeps the signed-in user's per-title flags (watched,
// not-interested) with optimistic local mutation and asynchronous server
// reconciliation.
package interactions

import (
	"context"
	"sync"
	"time"

	"github.com/reelmatch/reelmatch/internal/config"
	"github.com/reelmatch/reelmatch/internal/logging"
	"github.com/reelmatch/reelmatch/internal/metrics"
	"github.com/reelmatch/reelmatch/internal/models"
)

// Backend is the slice of the REST client the ledger uses.
type Backend interface {
	AllInteractions(ctx context.Context) ([]models.InteractionFlag, error)
	SetWatched(ctx context.Context, id int64) error
	RemoveWatched(ctx context.Context, id int64) error
	SetNotInterested(ctx context.Context, id int64) error
	RemoveNotInterested(ctx context.Context, id int64) error
}

// Ledger applies flag mutations to local state immediately, so the UI
// reflects them with zero latency, and confirms them with the server in the
// background. A failed confirmation does not attempt a per-field revert:
// the whole flag set is reloaded from the server of record, because partial
// reverts risk desynchronizing derived sets like the watched-id filter.
//
// The full reload runs single-flight: a second RefreshAll while one is in
// flight is a no-op, which avoids a slow early reload overwriting a fresher
// later one. Pending state is tracked per id so one item's in-flight
// mutation does not disable controls for unrelated items.
type Ledger struct {
	client       Backend
	dismissDelay time.Duration

	mu         sync.Mutex
	flags      map[int64]models.InteractionFlag
	pending    map[int64]int // per-id count of in-flight mutations
	dismissals map[int64]*dismissal
	refreshing bool
	loaded     bool

	// wg tracks background confirmations so Close and tests can drain.
	wg sync.WaitGroup
}

// NewLedger builds an empty ledger; Load must run before the derived sets
// mean anything.
func NewLedger(cfg *config.LedgerConfig, client Backend) *Ledger {
	return &Ledger{
		client:       client,
		dismissDelay: cfg.DismissDelay,
		flags:        make(map[int64]models.InteractionFlag),
		pending:      make(map[int64]int),
		dismissals:   make(map[int64]*dismissal),
	}
}

// Load performs the once-per-session bulk load of all flags.
func (l *Ledger) Load(ctx context.Context) error {
	flags, err := l.client.AllInteractions(ctx)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.flags = make(map[int64]models.InteractionFlag, len(flags))
	for _, f := range flags {
		l.flags[f.CatalogID] = f
	}
	l.loaded = true
	l.mu.Unlock()

	logging.Info().Int("flags", len(flags)).Msg("Interaction ledger loaded")
	return nil
}

// Loaded reports whether the session's bulk load has completed.
func (l *Ledger) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// Flag returns the current local flag state for an id.
func (l *Ledger) Flag(id int64) (models.InteractionFlag, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f, ok := l.flags[id]
	return f, ok
}

// Pending reports whether the id has a mutation awaiting server confirm.
func (l *Ledger) Pending(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending[id] > 0
}

// WatchedIDs returns the set of ids currently flagged watched.
func (l *Ledger) WatchedIDs() map[int64]struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[int64]struct{})
	for id, f := range l.flags {
		if f.IsWatched {
			out[id] = struct{}{}
		}
	}
	return out
}

// NotInterestedIDs returns the set of ids currently flagged not-interested,
// including staged dismissals, so every surface filters them out at once.
func (l *Ledger) NotInterestedIDs() map[int64]struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[int64]struct{})
	for id, f := range l.flags {
		if f.IsNotInterested {
			out[id] = struct{}{}
		}
	}
	for id := range l.dismissals {
		out[id] = struct{}{}
	}
	return out
}

// SetWatched optimistically toggles the watched flag and confirms with the
// server in the background.
func (l *Ledger) SetWatched(id int64, value bool) {
	l.setFlag(id, models.FlagWatched, value)
}

// SetNotInterested optimistically toggles the not-interested flag and
// confirms with the server in the background. For the staged, undoable
// variant see Dismiss.
func (l *Ledger) SetNotInterested(id int64, value bool) {
	l.setFlag(id, models.FlagNotInterested, value)
}

func (l *Ledger) setFlag(id int64, flag models.FlagName, value bool) {
	now := time.Now()

	l.mu.Lock()
	f, ok := l.flags[id]
	if !ok {
		f = models.InteractionFlag{CatalogID: id, CreatedAt: now}
	}
	switch flag {
	case models.FlagWatched:
		f.IsWatched = value
	case models.FlagNotInterested:
		f.IsNotInterested = value
	}
	f.UpdatedAt = now
	l.flags[id] = f
	l.pending[id]++
	l.mu.Unlock()

	l.wg.Add(1)
	go l.confirm(id, flag, value)
}

// confirm issues the matching server call. On success local state is
// already correct; on failure the whole ledger reconciles via RefreshAll.
func (l *Ledger) confirm(id int64, flag models.FlagName, value bool) {
	defer l.wg.Done()
	defer func() {
		l.mu.Lock()
		if l.pending[id]--; l.pending[id] <= 0 {
			delete(l.pending, id)
		}
		l.mu.Unlock()
	}()

	ctx := context.Background()
	var err error
	switch {
	case flag == models.FlagWatched && value:
		err = l.client.SetWatched(ctx, id)
	case flag == models.FlagWatched && !value:
		err = l.client.RemoveWatched(ctx, id)
	case flag == models.FlagNotInterested && value:
		err = l.client.SetNotInterested(ctx, id)
	default:
		err = l.client.RemoveNotInterested(ctx, id)
	}

	if err != nil {
		metrics.LedgerMutations.WithLabelValues(string(flag), "reconciled").Inc()
		logging.Warn().Err(err).Int64("catalog_id", id).Str("flag", string(flag)).Msg("Flag mutation failed, reconciling from server")
		if rerr := l.RefreshAll(ctx); rerr != nil {
			logging.Error().Err(rerr).Msg("Ledger reconciliation reload failed")
		}
		return
	}
	metrics.LedgerMutations.WithLabelValues(string(flag), "confirmed").Inc()
}

// RefreshAll replaces the whole local flag set from the server. Runs
// single-flight: a call while another is in flight returns immediately and
// relies on that one's completion for the consistent final state.
func (l *Ledger) RefreshAll(ctx context.Context) error {
	l.mu.Lock()
	if l.refreshing {
		l.mu.Unlock()
		return nil
	}
	l.refreshing = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.refreshing = false
		l.mu.Unlock()
	}()

	flags, err := l.client.AllInteractions(ctx)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.flags = make(map[int64]models.InteractionFlag, len(flags))
	for _, f := range flags {
		l.flags[f.CatalogID] = f
	}
	l.loaded = true
	l.mu.Unlock()

	metrics.LedgerReloads.Inc()
	return nil
}

// Wait blocks until every background confirmation has finished. Used by
// Close and by tests that need a deterministic settle point.
func (l *Ledger) Wait() {
	l.wg.Wait()
}
