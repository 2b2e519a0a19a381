// Reelmatch - Movie Catalog Synchronization Engine
// Copyright 2026 Reelmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

// Package session wires the sync engine together for one signed-in user:
// the REST client, the shared rating cache/bus/fetcher, the interaction
// ledger, the view-continuity cache, and per-surface catalog stores, with
// the background fetcher running under a suture supervisor.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/reelmatch/reelmatch/internal/backend"
	"github.com/reelmatch/reelmatch/internal/catalog"
	"github.com/reelmatch/reelmatch/internal/config"
	"github.com/reelmatch/reelmatch/internal/enrich"
	"github.com/reelmatch/reelmatch/internal/interactions"
	"github.com/reelmatch/reelmatch/internal/logging"
	"github.com/reelmatch/reelmatch/internal/ratings"
	"github.com/reelmatch/reelmatch/internal/viewcache"
)

// Session owns one user's synchronization state. The rating cache, event
// bus, interaction ledger, and view cache are shared across every surface
// the session creates; each surface gets its own store and enrichment
// coordinator because enrichment state is per-query.
type Session struct {
	cfg    *config.Config
	client backend.ClientInterface

	ratingCache *ratings.Cache
	bus         *ratings.Bus
	fetcher     *ratings.Fetcher
	ledger      *interactions.Ledger
	views       *viewcache.Cache

	supervisor *suture.Supervisor
	cancel     context.CancelFunc
	errCh      <-chan error

	mu    sync.Mutex
	token string
}

// New builds a stopped session from configuration. Call Start to run the
// background services and Load the ledger before creating surfaces.
func New(cfg *config.Config) *Session {
	s := &Session{
		cfg:   cfg,
		token: cfg.Backend.Token,
	}

	client := backend.NewBreakerClient(backend.NewClient(&cfg.Backend, s.currentToken))
	s.client = client

	s.ratingCache = ratings.NewCache()
	s.bus = ratings.NewBus()
	s.fetcher = ratings.NewFetcher(&cfg.Ratings, client, s.ratingCache, s.bus)
	s.ledger = interactions.NewLedger(&cfg.Ledger, client)
	s.views = viewcache.New()

	handler := &sutureslog.Handler{Logger: logging.NewSlogLogger()}
	s.supervisor = suture.New("reelmatch-session", suture.Spec{
		EventHook: handler.MustHook(),
	})
	s.supervisor.Add(s.fetcher)

	return s
}

// Client exposes the breaker-wrapped REST client.
func (s *Session) Client() backend.ClientInterface { return s.client }

// Ledger exposes the shared interaction ledger.
func (s *Session) Ledger() *interactions.Ledger { return s.ledger }

// Ratings exposes the shared rating cache.
func (s *Session) Ratings() *ratings.Cache { return s.ratingCache }

// Bus exposes the shared rating event bus.
func (s *Session) Bus() *ratings.Bus { return s.bus }

// Views exposes the view-continuity cache.
func (s *Session) Views() *viewcache.Cache { return s.views }

// Start runs the supervised background services and performs the
// once-per-session ledger load.
func (s *Session) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.errCh = s.supervisor.ServeBackground(ctx)

	if err := s.ledger.Load(ctx); err != nil {
		return fmt.Errorf("failed to load interaction ledger: %w", err)
	}
	return nil
}

// NewSurface creates a catalog store bound to the session's shared state.
// exclude may be nil; it exists so the partner-matching collaborator can
// keep already-liked ids off a surface. Items with a staged dismissal are
// always excluded on top of it, so a reload during the undo window cannot
// re-deliver a dismissed title.
func (s *Session) NewSurface(name string, exclude catalog.Excluder) *catalog.Store {
	enricher := enrich.NewCoordinator(&s.cfg.Catalog, s.client)
	return catalog.NewStore(name, catalog.Deps{
		Client:   s.client,
		Enricher: enricher,
		Fetcher:  s.fetcher,
		Ratings:  s.ratingCache,
		Bus:      s.bus,
		Views:    s.views,
		Ledger:   s.ledger,
		Exclude: func(id int64) bool {
			if exclude != nil && exclude(id) {
				return true
			}
			return s.ledger.Dismissed(id)
		},
		PageSize: s.cfg.Catalog.PageSize,
	})
}

// currentToken is the TokenSource handed to the REST client.
func (s *Session) currentToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// SetToken installs a rotated bearer credential. The credential is opaque;
// an actual change means a different account may be behind it, so the
// rating cache, background queue, and ledger all reload. Setting the same
// token again is a no-op.
func (s *Session) SetToken(ctx context.Context, token string) error {
	s.mu.Lock()
	if token == s.token {
		s.mu.Unlock()
		return nil
	}
	s.token = token
	s.mu.Unlock()

	logging.Info().Msg("Credential rotated, reloading user state")
	s.ratingCache.Reset()
	s.fetcher.ResetAll()
	if err := s.ledger.RefreshAll(ctx); err != nil {
		return fmt.Errorf("failed to reload ledger after credential change: %w", err)
	}
	return nil
}

// Close stops the supervised services and waits for in-flight ledger
// confirmations to settle.
func (s *Session) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	var err error
	if s.errCh != nil {
		if serr := <-s.errCh; serr != nil && !errors.Is(serr, context.Canceled) {
			err = serr
		}
	}
	s.ledger.Wait()
	if berr := s.bus.Close(); berr != nil && err == nil {
		err = berr
	}
	return err
}
