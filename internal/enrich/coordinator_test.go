// Reelmatch - Movie Catalog Synchronization Engine
// Copyright 2026 Reelmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package enrich

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/reelmatch/reelmatch/internal/config"
	"github.com/reelmatch/reelmatch/internal/models"
)

type mockDetailBackend struct {
	mu      sync.Mutex
	calls   map[int64]int
	failIDs map[int64]bool
}

func newMockDetailBackend() *mockDetailBackend {
	return &mockDetailBackend{calls: make(map[int64]int), failIDs: make(map[int64]bool)}
}

func (m *mockDetailBackend) CatalogDetail(_ context.Context, id int64) (*models.CatalogDetail, error) {
	m.mu.Lock()
	m.calls[id]++
	m.mu.Unlock()
	if m.failIDs[id] {
		return nil, errors.New("HTTP 500")
	}
	return &models.CatalogDetail{
		CatalogID:        id,
		Director:         "Director",
		ExternalRatingID: "tt000",
	}, nil
}

func (m *mockDetailBackend) count(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[id]
}

func testCatalogConfig() *config.CatalogConfig {
	return &config.CatalogConfig{
		PageSize:         10,
		EnrichBatchSize:  5,
		EnrichBatchPause: time.Millisecond,
	}
}

func listOf(ids ...int64) *models.ItemList {
	l := models.NewItemList()
	items := make([]models.CatalogItem, len(ids))
	for i, id := range ids {
		items[i] = models.CatalogItem{CatalogID: id, Title: "t"}
	}
	l.Replace(items)
	return l
}

func TestEnrichMergesDetails(t *testing.T) {
	backend := newMockDetailBackend()
	c := NewCoordinator(testCatalogConfig(), backend)
	list := listOf(1, 2, 3)

	c.Enrich(context.Background(), list)

	for _, item := range list.Snapshot() {
		if !item.Enriched() {
			t.Errorf("item %d not enriched", item.CatalogID)
		}
		if item.Director != "Director" {
			t.Errorf("item %d director = %q", item.CatalogID, item.Director)
		}
	}
}

func TestEnrichAtMostOncePerSession(t *testing.T) {
	backend := newMockDetailBackend()
	backend.failIDs[2] = true
	c := NewCoordinator(testCatalogConfig(), backend)
	list := listOf(1, 2, 3)

	c.Enrich(context.Background(), list)
	c.Enrich(context.Background(), list)
	c.Enrich(context.Background(), list)

	for _, id := range []int64{1, 2, 3} {
		if n := backend.count(id); n != 1 {
			t.Errorf("id %d fetched %d times, want 1 (failed ids included)", id, n)
		}
	}

	// An explicit reset makes everything eligible again. Already-merged
	// items are claimed as done via their Enriched marker, so only the
	// failed id is refetched.
	c.Reset()
	c.Enrich(context.Background(), list)
	if n := backend.count(2); n != 2 {
		t.Errorf("id 2 fetched %d times after reset, want 2", n)
	}
	if n := backend.count(1); n != 1 {
		t.Errorf("id 1 fetched %d times, want 1 (already enriched in place)", n)
	}
}

func TestEnrichSwallowsPerItemFailure(t *testing.T) {
	backend := newMockDetailBackend()
	backend.failIDs[2] = true
	c := NewCoordinator(testCatalogConfig(), backend)
	list := listOf(1, 2, 3)

	c.Enrich(context.Background(), list)

	items := list.Snapshot()
	if !items[0].Enriched() || !items[2].Enriched() {
		t.Error("siblings of a failed item must still enrich")
	}
	if items[1].Enriched() {
		t.Error("failed item must keep its un-enriched fields")
	}
}

func TestEnrichConcurrentPassesDoNotDoubleFetch(t *testing.T) {
	backend := newMockDetailBackend()
	c := NewCoordinator(testCatalogConfig(), backend)
	list := listOf(1, 2, 3, 4, 5, 6, 7)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Enrich(context.Background(), list)
		}()
	}
	wg.Wait()

	for _, id := range []int64{1, 2, 3, 4, 5, 6, 7} {
		if n := backend.count(id); n != 1 {
			t.Errorf("id %d fetched %d times, want 1", id, n)
		}
	}
}

func TestSeedSkipsRestoredIDs(t *testing.T) {
	backend := newMockDetailBackend()
	c := NewCoordinator(testCatalogConfig(), backend)
	list := listOf(1, 2, 3)

	c.Seed([]int64{1, 2})
	c.Enrich(context.Background(), list)

	if n := backend.count(1); n != 0 {
		t.Errorf("seeded id 1 fetched %d times, want 0", n)
	}
	if n := backend.count(3); n != 1 {
		t.Errorf("unseeded id 3 fetched %d times, want 1", n)
	}
}

func TestEnrichDropsStaleResultForRemovedID(t *testing.T) {
	backend := newMockDetailBackend()
	c := NewCoordinator(testCatalogConfig(), backend)
	list := listOf(1, 2)

	// The pass targets ids 1 and 2; id 2 leaves the list before the pass
	// runs (filter change racing an in-flight batch). The merge for the
	// departed id is simply dropped, no error.
	claimed := c.claim(list)
	if len(claimed) != 2 {
		t.Fatalf("claimed %d ids, want 2", len(claimed))
	}
	list.Replace([]models.CatalogItem{{CatalogID: 1}})

	d, err := backend.CatalogDetail(context.Background(), 2)
	if err != nil {
		t.Fatalf("CatalogDetail() error = %v", err)
	}
	if list.MergeDetail(d) {
		t.Error("merge for a removed id should report false")
	}
	if list.Len() != 1 {
		t.Errorf("list length = %d, want 1", list.Len())
	}
}
