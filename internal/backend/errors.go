// Reelmatch - Movie Catalog Synchronization Engine
// Copyright 2026 Reelmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrRatingUnavailable means a rating provider proxy call did not
	// produce a usable rating: HTTP 429, any other non-2xx, or an open
	// circuit breaker. Callers treat it as a definitive miss for the
	// current pass and must not retry inline.
	ErrRatingUnavailable = errors.New("rating unavailable")

	// ErrUnauthorized means the bearer credential was rejected.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited means the backend kept answering HTTP 429 after all
	// backoff retries were spent.
	ErrRateLimited = errors.New("rate limited")
)

// StatusError carries an unexpected HTTP status with a bounded excerpt of
// the response body for diagnostics.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned HTTP %d: %s", e.Code, e.Body)
}
