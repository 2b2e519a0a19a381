// Reelmatch - Movie Catalog Synchronization Engine
// Copyright 2026 Reelmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

// Package config holds the engine configuration, loaded through koanf with
// the precedence ENV > config file > built-in defaults.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the root configuration for the catalog sync engine.
type Config struct {
	Backend BackendConfig `koanf:"backend"`
	Catalog CatalogConfig `koanf:"catalog"`
	Ratings RatingsConfig `koanf:"ratings"`
	Ledger  LedgerConfig  `koanf:"ledger"`
	Logging LoggingConfig `koanf:"logging"`
}

// BackendConfig describes the Reelmatch REST backend.
type BackendConfig struct {
	// BaseURL is the backend origin, e.g. https://api.reelmatch.app
	BaseURL string `koanf:"base_url" validate:"required,url"`

	// Token is the initial bearer credential. The auth collaborator can
	// rotate it at runtime through Session.SetToken.
	Token string `koanf:"token"`

	// Timeout applies to every HTTP request.
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`
}

// CatalogConfig tunes page loading and enrichment.
type CatalogConfig struct {
	// PageSize is the fixed catalog page size; a shorter page ends pagination.
	PageSize int `koanf:"page_size" validate:"gt=0"`

	// EnrichBatchSize bounds concurrent detail fetches per batch.
	EnrichBatchSize int `koanf:"enrich_batch_size" validate:"gt=0"`

	// EnrichBatchPause is the delay observed between detail batches.
	EnrichBatchPause time.Duration `koanf:"enrich_batch_pause" validate:"gte=0"`
}

// RatingsConfig tunes the rating background path. The defaults respect the
// upstream rating provider's request budget; raising them risks sustained
// HTTP 429 responses.
type RatingsConfig struct {
	// BatchSize bounds concurrent individual lookups per batch.
	BatchSize int `koanf:"batch_size" validate:"gt=0"`

	// BatchPause is the pause between background lookup batches.
	BatchPause time.Duration `koanf:"batch_pause" validate:"gte=0"`

	// RatePerSecond is the hard sustained request budget toward the provider.
	RatePerSecond float64 `koanf:"rate_per_second" validate:"gt=0"`

	// Burst is the limiter burst size.
	Burst int `koanf:"burst" validate:"gt=0"`
}

// LedgerConfig tunes the optimistic interaction ledger.
type LedgerConfig struct {
	// DismissDelay is how long a staged dismissal waits for an undo before
	// committing the removal to the server.
	DismissDelay time.Duration `koanf:"dismiss_delay" validate:"gt=0"`
}

// LoggingConfig mirrors logging.Config for the koanf layer.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and environment.
func defaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			BaseURL: "http://127.0.0.1:8080",
			Token:   "",
			Timeout: 30 * time.Second,
		},
		Catalog: CatalogConfig{
			PageSize:         10,
			EnrichBatchSize:  5,
			EnrichBatchPause: 200 * time.Millisecond,
		},
		Ratings: RatingsConfig{
			BatchSize:     5,
			BatchPause:    1200 * time.Millisecond,
			RatePerSecond: 5,
			Burst:         5,
		},
		Ledger: LedgerConfig{
			DismissDelay: 4 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the configuration with struct tags plus cross-field rules.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// The batch pause is the primary pacing mechanism; a rate budget slower
	// than one batch per pause would starve the queue without ever filling it.
	perBatch := float64(c.Ratings.BatchSize)
	if c.Ratings.BatchPause > 0 {
		sustained := perBatch / c.Ratings.BatchPause.Seconds()
		if c.Ratings.RatePerSecond > sustained*10 {
			return fmt.Errorf("ratings.rate_per_second %.1f is inconsistent with batch pacing (%.1f req/s)",
				c.Ratings.RatePerSecond, sustained)
		}
	}
	return nil
}
