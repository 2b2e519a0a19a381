// Reelmatch - Movie Catalog Synchronization Engine
// Copyright 2026 Reelmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/reelmatch/reelmatch/internal/config"
	"github.com/reelmatch/reelmatch/internal/models"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(&config.BackendConfig{
		BaseURL: srv.URL,
		Token:   "test-token",
		Timeout: 5 * time.Second,
	}, nil)
	client.retryBaseDelay = time.Millisecond
	return client, srv
}

func TestCatalogPageRequestShape(t *testing.T) {
	var gotPath, gotAuth string
	var gotQuery map[string][]string

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query()
		_ = json.NewEncoder(w).Encode(models.CatalogPage{Results: []models.CatalogItem{
			{CatalogID: 1, Title: "Heat"},
		}})
	}))

	filters := models.Filters{Genres: []string{"thriller", "crime"}, YearFrom: 1990, MinRating: 7.5, Search: " pacino "}
	page, err := client.CatalogPage(context.Background(), filters, "popularity", 2)
	if err != nil {
		t.Fatalf("CatalogPage() error = %v", err)
	}

	if gotPath != "/catalog" {
		t.Errorf("path = %q, want /catalog", gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	wantQuery := map[string]string{
		"page":      "2",
		"sort":      "popularity",
		"genres":    "thriller,crime",
		"yearFrom":  "1990",
		"minRating": "7.5",
		"search":    "pacino",
	}
	for k, want := range wantQuery {
		if got := gotQuery[k]; len(got) != 1 || got[0] != want {
			t.Errorf("query[%s] = %v, want %q", k, got, want)
		}
	}
	if len(page.Results) != 1 || page.Results[0].Title != "Heat" {
		t.Errorf("unexpected page results: %+v", page.Results)
	}
}

func TestCatalogPageRetriesOn429(t *testing.T) {
	attempts := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(models.CatalogPage{})
	}))

	if _, err := client.CatalogPage(context.Background(), models.Filters{}, "", 1); err != nil {
		t.Fatalf("CatalogPage() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("server saw %d attempts, want 3", attempts)
	}
}

func TestCatalogPageGivesUpAfterMaxRetries(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	client.maxRetries = 2

	_, err := client.CatalogPage(context.Background(), models.Filters{}, "", 1)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("CatalogPage() error = %v, want ErrRateLimited", err)
	}
}

func TestCatalogDetailUnauthorized(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.CatalogDetail(context.Background(), 42)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("CatalogDetail() error = %v, want ErrUnauthorized", err)
	}
}

func TestBulkRatingsRoundTrip(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/ratings/bulk" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body struct {
			IDs []int64 `json:"ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		if len(body.IDs) != 2 || body.IDs[0] != 7 || body.IDs[1] != 9 {
			t.Errorf("ids = %v, want [7 9]", body.IDs)
		}
		_ = json.NewEncoder(w).Encode(map[int64]models.RatingRecord{
			7: {Rating: "82%"},
		})
	}))

	got, err := client.BulkRatings(context.Background(), []int64{7, 9})
	if err != nil {
		t.Fatalf("BulkRatings() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	if got[7].Rating != "82%" {
		t.Errorf("rating for 7 = %q, want 82%%", got[7].Rating)
	}
}

func TestFetchAndStoreRatingSingleShotOn429(t *testing.T) {
	attempts := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := client.FetchAndStoreRating(context.Background(), 1, "tt0113277", "1995-12-15")
	if !errors.Is(err, ErrRatingUnavailable) {
		t.Fatalf("FetchAndStoreRating() error = %v, want ErrRatingUnavailable", err)
	}
	if attempts != 1 {
		t.Errorf("server saw %d attempts, want exactly 1 (no inline retry)", attempts)
	}
}

func TestFetchAndStoreRatingServerErrorIsUnavailable(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.FetchAndStoreRating(context.Background(), 1, "tt0113277", "1995-12-15")
	if !errors.Is(err, ErrRatingUnavailable) {
		t.Fatalf("FetchAndStoreRating() error = %v, want ErrRatingUnavailable", err)
	}
}

func TestFetchAndStoreRatingSentinel(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			CatalogID        int64  `json:"catalogId"`
			ExternalRatingID string `json:"externalRatingId"`
			ReleaseDate      string `json:"releaseDate"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		if body.CatalogID != 3 || body.ExternalRatingID != "tt0099674" || body.ReleaseDate != "1990-12-25" {
			t.Errorf("unexpected body: %+v", body)
		}
		_ = json.NewEncoder(w).Encode(models.RatingResult{Rating: models.RatingNotFound})
	}))

	got, err := client.FetchAndStoreRating(context.Background(), 3, "tt0099674", "1990-12-25")
	if err != nil {
		t.Fatalf("FetchAndStoreRating() error = %v", err)
	}
	if got.Rating != models.RatingNotFound {
		t.Errorf("rating = %q, want sentinel %q", got.Rating, models.RatingNotFound)
	}
}

func TestInteractionEndpoints(t *testing.T) {
	type call struct{ method, path string }
	var calls []call

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		calls = append(calls, call{r.Method, r.URL.Path})
		w.WriteHeader(http.StatusNoContent)
	}))

	ctx := context.Background()
	if err := client.SetWatched(ctx, 5); err != nil {
		t.Fatalf("SetWatched() error = %v", err)
	}
	if err := client.RemoveWatched(ctx, 5); err != nil {
		t.Fatalf("RemoveWatched() error = %v", err)
	}
	if err := client.SetNotInterested(ctx, 6); err != nil {
		t.Fatalf("SetNotInterested() error = %v", err)
	}
	if err := client.RemoveNotInterested(ctx, 6); err != nil {
		t.Fatalf("RemoveNotInterested() error = %v", err)
	}

	want := []call{
		{http.MethodPost, "/interactions/watched"},
		{http.MethodDelete, "/interactions/watched/5"},
		{http.MethodPost, "/interactions/not-interested"},
		{http.MethodDelete, "/interactions/not-interested/6"},
	}
	if len(calls) != len(want) {
		t.Fatalf("server saw %d calls, want %d", len(calls), len(want))
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %v, want %v", i, calls[i], want[i])
		}
	}
}

func TestAllInteractions(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/interactions/all" {
			t.Errorf("path = %q, want /interactions/all", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(models.InteractionList{Interactions: []models.InteractionFlag{
			{CatalogID: 1, IsWatched: true},
			{CatalogID: 2, IsNotInterested: true},
		}})
	}))

	got, err := client.AllInteractions(context.Background())
	if err != nil {
		t.Fatalf("AllInteractions() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d flags, want 2", len(got))
	}
	if !got[0].IsWatched || got[0].CatalogID != 1 {
		t.Errorf("unexpected first flag: %+v", got[0])
	}
}
