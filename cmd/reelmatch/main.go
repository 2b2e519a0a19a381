// Reelmatch - Movie Catalog Synchronization Engine
// Copyright 2026 Reelmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

// Package main is the operational entry point for the Reelmatch sync
// engine: it wires a session against a live backend and runs a one-shot
// browse pass (page load, enrichment, rating fill) for smoke-testing and
// debugging deployments.
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (REELMATCH_ prefix, e.g. REELMATCH_BACKEND_BASE_URL)
//   - Config file (reelmatch.yaml, or REELMATCH_CONFIG)
//   - Built-in defaults
//
// Example:
//
//	export REELMATCH_BACKEND_BASE_URL=https://api.reelmatch.app
//	export REELMATCH_BACKEND_TOKEN=...
//	reelmatch -genres drama,thriller -sort popularity -wait 10s
//
// The process exits non-zero when the page load fails.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/reelmatch/reelmatch/internal/config"
	"github.com/reelmatch/reelmatch/internal/logging"
	"github.com/reelmatch/reelmatch/internal/models"
	"github.com/reelmatch/reelmatch/internal/session"
)

func main() {
	genres := flag.String("genres", "", "comma-separated genre filter")
	search := flag.String("search", "", "search term filter")
	sortKey := flag.String("sort", "popularity", "sort key for the page load")
	wait := flag.Duration("wait", 10*time.Second, "how long to wait for enrichment and ratings to settle")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *genres, *search, *sortKey, *wait); err != nil {
		logging.Error().Err(err).Msg("Browse pass failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, genres, search, sortKey string, wait time.Duration) error {
	s := session.New(cfg)
	if err := s.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			logging.Warn().Err(err).Msg("Session shutdown reported an error")
		}
	}()

	filters := models.Filters{Search: search}
	if genres != "" {
		filters.Genres = strings.Split(genres, ",")
	}

	store := s.NewSurface("browse", nil)
	store.SetQuery(filters, sortKey)

	go func() {
		if err := store.WatchRatings(ctx); err != nil {
			logging.Warn().Err(err).Msg("Rating watcher stopped")
		}
	}()

	start := time.Now()
	if _, err := store.Mount(ctx); err != nil {
		return err
	}
	store.WaitBackground()

	// Give the background rating path a bounded window to settle.
	settleCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	waitForRatings(settleCtx, s, store)

	printReport(s, store, time.Since(start))
	return nil
}

// waitForRatings polls until every item carrying an external rating id has
// a resolved cache entry, or the window closes.
func waitForRatings(ctx context.Context, s *session.Session, store interface {
	Items() []models.CatalogItem
}) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		unresolved := 0
		for _, item := range store.Items() {
			if item.ExternalRatingID == "" {
				continue
			}
			if _, state := s.Ratings().Lookup(item.CatalogID); state == models.RatingAbsent {
				unresolved++
			}
		}
		if unresolved == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func printReport(s *session.Session, store interface {
	Items() []models.CatalogItem
	Page() int
	HasMore() bool
}, elapsed time.Duration) {
	items := store.Items()
	enriched, rated := 0, 0

	fmt.Printf("%-8s %-32s %-10s %-8s %s\n", "ID", "TITLE", "RATING", "RUNTIME", "DIRECTOR")
	for _, item := range items {
		rating := "-"
		if r, state := s.Ratings().Lookup(item.CatalogID); state != models.RatingAbsent {
			rating = r
			rated++
		}
		runtime := "-"
		if item.RuntimeMinutes > 0 {
			runtime = fmt.Sprintf("%dm", item.RuntimeMinutes)
		}
		if item.Enriched() {
			enriched++
		}
		fmt.Printf("%-8d %-32s %-10s %-8s %s\n", item.CatalogID, truncate(item.Title, 32), rating, runtime, item.Director)
	}

	fmt.Printf("\npage=%d hasMore=%v items=%d enriched=%d rated=%d watched=%d elapsed=%s\n",
		store.Page(), store.HasMore(), len(items), enriched, rated, len(s.Ledger().WatchedIDs()), elapsed.Round(time.Millisecond))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
