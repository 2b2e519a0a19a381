// Reelmatch - Movie Catalog Synchronization Engine
// Copyright 2026 Reelmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

// Package backend implements the REST client for the Reelmatch backend:
// catalog listing and detail, the rating provider proxy endpoints, and the
// interaction flag mutations.
//
// Resilience:
//   - Exponential backoff (1s, 2s, 4s, 8s, 16s) on HTTP 429 for read paths
//   - The rating proxy endpoints go through a circuit breaker (breaker.go)
//   - fetch-and-store is deliberately single-shot: a 429 there is a miss
//     for the current pass, never an inline retry
//
// All methods accept a context and are safe for concurrent use.
package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/reelmatch/reelmatch/internal/config"
	"github.com/reelmatch/reelmatch/internal/models"
)

// maxErrorBodySize bounds how much of an error response body is read back
// for diagnostics.
const maxErrorBodySize = 64 * 1024

// TokenSource supplies the current bearer credential. The auth collaborator
// owns the token lifecycle; the client just asks before every request.
type TokenSource func() string

// ClientInterface is the backend contract consumed by the stores. The
// production implementation is Client (wrapped by BreakerClient); tests
// substitute mocks.
type ClientInterface interface {
	CatalogPage(ctx context.Context, filters models.Filters, sortKey string, page int) (*models.CatalogPage, error)
	CatalogDetail(ctx context.Context, id int64) (*models.CatalogDetail, error)
	BulkRatings(ctx context.Context, ids []int64) (map[int64]models.RatingRecord, error)
	FetchAndStoreRating(ctx context.Context, catalogID int64, externalRatingID, releaseDate string) (*models.RatingResult, error)
	AllInteractions(ctx context.Context) ([]models.InteractionFlag, error)
	SetWatched(ctx context.Context, id int64) error
	RemoveWatched(ctx context.Context, id int64) error
	SetNotInterested(ctx context.Context, id int64) error
	RemoveNotInterested(ctx context.Context, id int64) error
}

// Client talks to the Reelmatch backend over HTTP.
type Client struct {
	baseURL        string
	tokens         TokenSource
	client         *http.Client
	maxRetries     int
	retryBaseDelay time.Duration
}

var _ ClientInterface = (*Client)(nil)

// NewClient builds a Client from configuration. The token source falls back
// to the configured static token when none is injected.
func NewClient(cfg *config.BackendConfig, tokens TokenSource) *Client {
	if tokens == nil {
		static := cfg.Token
		tokens = func() string { return static }
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		tokens:  tokens,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		maxRetries:     5,
		retryBaseDelay: time.Second,
	}
}

// readBodyForError reads at most maxErrorBodySize bytes of a response body
// for inclusion in an error message.
func readBodyForError(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return "(failed to read response body)"
	}
	return string(body)
}

// newRequest builds an authenticated request with a JSON body when payload
// is non-nil.
func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, payload interface{}) (*http.Request, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var body io.Reader = http.NoBody
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.tokens(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

// doWithRateLimit performs a request with exponential backoff on HTTP 429.
// Retry-After is honored when the server sends one. The returned response
// has a non-429 status; the caller still checks it.
func (c *Client) doWithRateLimit(ctx context.Context, method, path string, query url.Values, payload interface{}) (*http.Response, error) {
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := c.newRequest(ctx, method, path, query, payload)
		if err != nil {
			return nil, err
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("HTTP request failed: %w", err)
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		_ = resp.Body.Close()

		if attempt == c.maxRetries {
			break
		}

		delay := c.retryBaseDelay * time.Duration(1<<uint(attempt))
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
				delay = seconds
			}
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("%w: gave up after %d retries (HTTP 429)", ErrRateLimited, c.maxRetries)
}

// checkStatus maps a non-2xx response to a typed error and drains the body.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body := readBodyForError(resp.Body)
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrUnauthorized, resp.StatusCode)
	default:
		return &StatusError{Code: resp.StatusCode, Body: body}
	}
}

// call performs a rate-limit-aware request and decodes the JSON response
// into result when result is non-nil.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, payload, result interface{}) error {
	resp, err := c.doWithRateLimit(ctx, method, path, query, payload)
	if err != nil {
		return fmt.Errorf("failed %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("failed %s %s: %w", method, path, err)
	}

	if result == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// CatalogPage fetches one page of the filtered, sorted catalog listing.
func (c *Client) CatalogPage(ctx context.Context, filters models.Filters, sortKey string, page int) (*models.CatalogPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	if sortKey != "" {
		query.Set("sort", sortKey)
	}
	if len(filters.Genres) > 0 {
		query.Set("genres", strings.Join(filters.Genres, ","))
	}
	if filters.YearFrom > 0 {
		query.Set("yearFrom", strconv.Itoa(filters.YearFrom))
	}
	if filters.YearTo > 0 {
		query.Set("yearTo", strconv.Itoa(filters.YearTo))
	}
	if filters.MinRating > 0 {
		query.Set("minRating", strconv.FormatFloat(filters.MinRating, 'f', 1, 64))
	}
	if s := strings.TrimSpace(filters.Search); s != "" {
		query.Set("search", s)
	}

	var out models.CatalogPage
	if err := c.call(ctx, http.MethodGet, "/catalog", query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CatalogDetail fetches the full detail object for one title.
func (c *Client) CatalogDetail(ctx context.Context, id int64) (*models.CatalogDetail, error) {
	var out models.CatalogDetail
	path := "/catalog/" + strconv.FormatInt(id, 10)
	if err := c.call(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BulkRatings asks the rating proxy for every already-stored rating among
// ids. Ids the server has no stored rating for are simply absent from the
// returned map.
func (c *Client) BulkRatings(ctx context.Context, ids []int64) (map[int64]models.RatingRecord, error) {
	payload := struct {
		IDs []int64 `json:"ids"`
	}{IDs: ids}

	out := make(map[int64]models.RatingRecord)
	if err := c.call(ctx, http.MethodPost, "/ratings/bulk", nil, payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchAndStoreRating asks the backend to look the title up at the external
// rating provider and persist the result. The call is single-shot: HTTP 429
// and every other non-2xx map to ErrRatingUnavailable so the caller records
// a miss for this pass instead of hammering the provider.
func (c *Client) FetchAndStoreRating(ctx context.Context, catalogID int64, externalRatingID, releaseDate string) (*models.RatingResult, error) {
	payload := struct {
		CatalogID        int64  `json:"catalogId"`
		ExternalRatingID string `json:"externalRatingId"`
		ReleaseDate      string `json:"releaseDate"`
	}{CatalogID: catalogID, ExternalRatingID: externalRatingID, ReleaseDate: releaseDate}

	req, err := c.newRequest(ctx, http.MethodPost, "/ratings/fetch-and-store", nil, payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed POST /ratings/fetch-and-store: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, fmt.Errorf("%w: HTTP %d", ErrRatingUnavailable, resp.StatusCode)
	}

	var out models.RatingResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode fetch-and-store response: %w", err)
	}
	return &out, nil
}

// AllInteractions loads the user's complete interaction flag set. Called
// once per session and after reconciliation reloads.
func (c *Client) AllInteractions(ctx context.Context) ([]models.InteractionFlag, error) {
	var out models.InteractionList
	if err := c.call(ctx, http.MethodGet, "/interactions/all", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Interactions, nil
}

// interactionBody is the shared payload of the flag-set endpoints.
type interactionBody struct {
	CatalogID int64 `json:"catalogId"`
}

// SetWatched marks a title watched on the server.
func (c *Client) SetWatched(ctx context.Context, id int64) error {
	return c.call(ctx, http.MethodPost, "/interactions/watched", nil, interactionBody{CatalogID: id}, nil)
}

// RemoveWatched clears the watched flag on the server.
func (c *Client) RemoveWatched(ctx context.Context, id int64) error {
	return c.call(ctx, http.MethodDelete, "/interactions/watched/"+strconv.FormatInt(id, 10), nil, nil, nil)
}

// SetNotInterested marks a title not-interested on the server.
func (c *Client) SetNotInterested(ctx context.Context, id int64) error {
	return c.call(ctx, http.MethodPost, "/interactions/not-interested", nil, interactionBody{CatalogID: id}, nil)
}

// RemoveNotInterested clears the not-interested flag on the server.
func (c *Client) RemoveNotInterested(ctx context.Context, id int64) error {
	return c.call(ctx, http.MethodDelete, "/interactions/not-interested/"+strconv.FormatInt(id, 10), nil, nil, nil)
}
