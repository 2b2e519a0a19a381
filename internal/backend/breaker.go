// Reelmatch - Movie Catalog Synchronization Engine
// Copyright 2026 Reelmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/reelmatch/reelmatch/internal/logging"
	"github.com/reelmatch/reelmatch/internal/metrics"
	"github.com/reelmatch/reelmatch/internal/models"
)

// BreakerClient wraps Client with a circuit breaker around the two rating
// provider proxy endpoints. Catalog and interaction traffic passes through
// untouched: only the proxied provider is flaky enough to warrant one.
//
// The breaker uses real time (via sony/gobreaker) for its interval and
// timeout calculations. Unit tests exercise the wrapped client directly or
// mock ClientInterface rather than racing the breaker clock.
type BreakerClient struct {
	*Client
	cb *gobreaker.CircuitBreaker[interface{}]
}

var _ ClientInterface = (*BreakerClient)(nil)

// NewBreakerClient wraps client so rating proxy failures trip a shared
// breaker. Configuration:
//   - Max 3 concurrent requests in half-open state
//   - 1 minute measurement window
//   - 2 minute timeout before attempting recovery
//   - Opens after 60% failure rate with minimum 10 requests
func NewBreakerClient(client *Client) *BreakerClient {
	metrics.BreakerState.Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        "rating-provider",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("[CIRCUIT BREAKER] Opening rating provider circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", stateToString(from)).Str("to", stateToString(to)).Msg("[CIRCUIT BREAKER] State transition")
			metrics.BreakerState.Set(stateToFloat(to))
		},
	})

	return &BreakerClient{Client: client, cb: cb}
}

// execute runs fn through the breaker and normalizes rejection bookkeeping.
func (b *BreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.BreakerRejections.Inc()
			logging.Warn().Err(err).Msg("[CIRCUIT BREAKER] Rating lookup rejected")
		}
		return nil, err
	}
	return result, nil
}

// castResult safely type-casts a breaker result.
func castResult[T any](result interface{}, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	typed, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

// BulkRatings routes the bulk proxy lookup through the breaker.
func (b *BreakerClient) BulkRatings(ctx context.Context, ids []int64) (map[int64]models.RatingRecord, error) {
	return castResult[map[int64]models.RatingRecord](b.execute(func() (interface{}, error) {
		return b.Client.BulkRatings(ctx, ids)
	}))
}

// FetchAndStoreRating routes the individual proxy lookup through the
// breaker. An open breaker maps to ErrRatingUnavailable so callers record a
// miss for the pass, identical to an HTTP 429.
func (b *BreakerClient) FetchAndStoreRating(ctx context.Context, catalogID int64, externalRatingID, releaseDate string) (*models.RatingResult, error) {
	res, err := castResult[*models.RatingResult](b.execute(func() (interface{}, error) {
		return b.Client.FetchAndStoreRating(ctx, catalogID, externalRatingID, releaseDate)
	}))
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit open", ErrRatingUnavailable)
		}
		return nil, err
	}
	return res, nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
