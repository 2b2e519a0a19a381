// Reelmatch - Movie Catalog Synchronization Engine
// Copyright 2026 Reelmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

// Package metrics provides Prometheus instrumentation for the sync engine:
// page loads, enrichment fetches, rating cache efficiency, event-bus traffic,
// ledger reconciliations and circuit breaker state.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Catalog Store
	PageLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelmatch_catalog_page_loads_total",
			Help: "Total catalog page loads by outcome",
		},
		[]string{"outcome"}, // "success", "failure"
	)

	PageLoadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reelmatch_catalog_page_load_duration_seconds",
			Help:    "Duration of catalog page loads in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Enrichment Coordinator
	EnrichmentFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelmatch_enrichment_fetches_total",
			Help: "Total per-item detail fetches by outcome",
		},
		[]string{"outcome"}, // "success", "failure"
	)

	EnrichmentBatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reelmatch_enrichment_batches_total",
			Help: "Total enrichment batches issued",
		},
	)

	// Rating Cache
	RatingCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reelmatch_rating_cache_hits_total",
			Help: "Total rating cache hits",
		},
	)

	RatingCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reelmatch_rating_cache_misses_total",
			Help: "Total rating cache misses",
		},
	)

	RatingLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelmatch_rating_lookups_total",
			Help: "Total rating provider lookups by path and outcome",
		},
		[]string{"path", "outcome"}, // path: "bulk", "background"; outcome: "found", "not_found", "error"
	)

	RatingQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reelmatch_rating_queue_depth",
			Help: "Current number of ids waiting in the background rating queue",
		},
	)

	// Event Bus
	BusPublishes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reelmatch_rating_bus_publishes_total",
			Help: "Total rating updates published on the event bus",
		},
	)

	// Interaction Ledger
	LedgerMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelmatch_ledger_mutations_total",
			Help: "Total optimistic flag mutations by flag and outcome",
		},
		[]string{"flag", "outcome"}, // outcome: "confirmed", "reconciled"
	)

	LedgerReloads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reelmatch_ledger_reloads_total",
			Help: "Total full ledger reloads from the server",
		},
	)

	DismissalsCommitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reelmatch_dismissals_committed_total",
			Help: "Total staged dismissals committed to the server",
		},
	)

	DismissalsUndone = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reelmatch_dismissals_undone_total",
			Help: "Total staged dismissals cancelled by undo",
		},
	)

	// View-Continuity Cache
	SnapshotRestores = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelmatch_snapshot_restores_total",
			Help: "Total snapshot restore attempts by outcome",
		},
		[]string{"outcome"}, // "hit", "miss"
	)

	// Circuit Breaker (rating provider proxy)
	BreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reelmatch_rating_breaker_state",
			Help: "Rating provider circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	BreakerRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reelmatch_rating_breaker_rejections_total",
			Help: "Total rating lookups rejected by an open circuit breaker",
		},
	)
)
