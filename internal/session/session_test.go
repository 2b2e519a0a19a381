// Reelmatch - Movie Catalog Synchronization Engine
// Copyright 2026 Reelmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/reelmatch/reelmatch/internal/config"
	"github.com/reelmatch/reelmatch/internal/models"
)

// fakeBackend is an httptest handler covering the slice of the REST
// contract a browse pass touches.
type fakeBackend struct {
	mu               sync.Mutex
	interactionCalls int
	lastBearer       string
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/catalog", func(w http.ResponseWriter, r *http.Request) {
		f.recordBearer(r)
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		var items []models.CatalogItem
		if page == 1 {
			for i := int64(1); i <= 10; i++ {
				items = append(items, models.CatalogItem{CatalogID: i, Title: "movie", ReleaseDate: "2020-01-01"})
			}
		}
		_ = json.NewEncoder(w).Encode(models.CatalogPage{Results: items})
	})

	mux.HandleFunc("/catalog/", func(w http.ResponseWriter, r *http.Request) {
		f.recordBearer(r)
		id, _ := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/catalog/"), 10, 64)
		detail := models.CatalogDetail{CatalogID: id, Director: "director"}
		if id <= 5 {
			detail.ExternalRatingID = "tt" + strconv.FormatInt(id, 10)
		}
		_ = json.NewEncoder(w).Encode(detail)
	})

	mux.HandleFunc("/ratings/bulk", func(w http.ResponseWriter, r *http.Request) {
		f.recordBearer(r)
		// Ids 1-3 are already stored server-side.
		_ = json.NewEncoder(w).Encode(map[int64]models.RatingRecord{
			1: {Rating: "81%"}, 2: {Rating: "62%"}, 3: {Rating: "93%"},
		})
	})

	mux.HandleFunc("/ratings/fetch-and-store", func(w http.ResponseWriter, r *http.Request) {
		f.recordBearer(r)
		var body struct {
			ExternalRatingID string `json:"externalRatingId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		rating := "55%"
		if body.ExternalRatingID == "tt5" {
			rating = models.RatingNotFound
		}
		_ = json.NewEncoder(w).Encode(models.RatingResult{Rating: rating})
	})

	mux.HandleFunc("/interactions/all", func(w http.ResponseWriter, r *http.Request) {
		f.recordBearer(r)
		f.mu.Lock()
		f.interactionCalls++
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(models.InteractionList{Interactions: []models.InteractionFlag{
			{CatalogID: 99, IsWatched: true},
		}})
	})

	return mux
}

func (f *fakeBackend) recordBearer(r *http.Request) {
	f.mu.Lock()
	f.lastBearer = r.Header.Get("Authorization")
	f.mu.Unlock()
}

func (f *fakeBackend) reloads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.interactionCalls
}

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		Backend: config.BackendConfig{BaseURL: baseURL, Token: "tok-1", Timeout: 5 * time.Second},
		Catalog: config.CatalogConfig{PageSize: 10, EnrichBatchSize: 5, EnrichBatchPause: time.Millisecond},
		Ratings: config.RatingsConfig{BatchSize: 5, BatchPause: time.Millisecond, RatePerSecond: 10000, Burst: 10000},
		Ledger:  config.LedgerConfig{DismissDelay: time.Minute},
		Logging: config.LoggingConfig{Level: "error", Format: "json"},
	}
}

func TestSessionBrowsePass(t *testing.T) {
	fake := &fakeBackend{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	s := New(testConfig(srv.URL))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}()

	if _, ok := s.Ledger().WatchedIDs()[99]; !ok {
		t.Error("ledger not loaded on Start")
	}

	store := s.NewSurface("browse", nil)
	store.SetQuery(models.Filters{}, "popularity")
	restored, err := store.Mount(context.Background())
	if err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	if restored {
		t.Fatal("first mount must start cold")
	}
	store.WaitBackground()

	if got := len(store.Items()); got != 10 {
		t.Fatalf("loaded %d items, want 10", got)
	}

	// After the background pass every item with an external rating id
	// resolves to either a rating or the sentinel.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resolved := 0
		for i := int64(1); i <= 5; i++ {
			if _, state := s.Ratings().Lookup(i); state != models.RatingAbsent {
				resolved++
			}
		}
		if resolved == 5 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if rating, state := s.Ratings().Lookup(4); state != models.RatingFound || rating != "55%" {
		t.Errorf("Lookup(4) = %q/%v, want 55%%/found (background path)", rating, state)
	}
	if _, state := s.Ratings().Lookup(5); state != models.RatingMissing {
		t.Errorf("Lookup(5) state = %v, want missing (provider sentinel)", state)
	}
	if rating, _ := s.Ratings().Lookup(1); rating != "81%" {
		t.Errorf("Lookup(1) = %q, want bulk-primed 81%%", rating)
	}
	// Ids without an external rating id stay absent.
	if _, state := s.Ratings().Lookup(9); state != models.RatingAbsent {
		t.Errorf("Lookup(9) state = %v, want absent", state)
	}
}

func TestSetTokenReloadsUserState(t *testing.T) {
	fake := &fakeBackend{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	s := New(testConfig(srv.URL))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Close()

	s.Ratings().SetFound(1, "", "90%")
	before := fake.reloads()

	// Same token: nothing happens.
	if err := s.SetToken(context.Background(), "tok-1"); err != nil {
		t.Fatalf("SetToken(same) error = %v", err)
	}
	if fake.reloads() != before {
		t.Error("same-token SetToken must not reload")
	}

	// Rotated token: rating cache resets, ledger reloads, new bearer used.
	if err := s.SetToken(context.Background(), "tok-2"); err != nil {
		t.Fatalf("SetToken(new) error = %v", err)
	}
	if fake.reloads() != before+1 {
		t.Errorf("reloads = %d, want %d", fake.reloads(), before+1)
	}
	if _, state := s.Ratings().Lookup(1); state != models.RatingAbsent {
		t.Error("rating cache must reset on credential change")
	}

	fake.mu.Lock()
	bearer := fake.lastBearer
	fake.mu.Unlock()
	if bearer != "Bearer tok-2" {
		t.Errorf("last bearer = %q, want Bearer tok-2", bearer)
	}
}

func TestSurfaceExcludesStagedDismissals(t *testing.T) {
	fake := &fakeBackend{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	s := New(testConfig(srv.URL))
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}()

	// Id 3 sits in its undo window: dismissed locally, nothing on the
	// server yet. A reload during the window must not re-deliver it.
	s.Ledger().Dismiss(3)

	store := s.NewSurface("browse", func(id int64) bool { return id == 7 })
	store.SetQuery(models.Filters{}, "popularity")
	if _, err := store.Mount(context.Background()); err != nil {
		t.Fatalf("Mount() error = %v", err)
	}
	store.WaitBackground()

	if got := len(store.Items()); got != 8 {
		t.Fatalf("loaded %d items, want 8", got)
	}
	if store.List().Contains(3) {
		t.Error("staged dismissal resurfaced in the list")
	}
	if store.List().Contains(7) {
		t.Error("caller exclusion not applied alongside dismissals")
	}

	// Undoing lifts the exclusion for the next load.
	if !s.Ledger().Undo(3) {
		t.Fatal("Undo(3) = false, want true")
	}
	if err := store.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	store.WaitBackground()
	if !store.List().Contains(3) {
		t.Error("undone dismissal still excluded after refresh")
	}
}
