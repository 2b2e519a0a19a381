// Reelmatch - Movie Catalog Synchronization Engine
// Copyright 2026 Reelmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package models

// ViewSnapshot captures one catalog surface's full observable state so that
// navigating away and back restores the view without re-running the initial
// page fetch, the bulk rating lookup, or enrichment from scratch.
//
// Items and Page are replaced wholesale on every successful load or merge.
// Ratings and EnrichedIDs complete asynchronously after the page load and are
// merged incrementally into an existing snapshot, never replaced, so a
// snapshot written at page-load time does not permanently lack data that
// arrives seconds later.
type ViewSnapshot struct {
	Items       []CatalogItem      `json:"items"`
	Page        int                `json:"page"`
	FilterKey   string             `json:"filterKey"`
	SortKey     string             `json:"sortKey"`
	HasMore     bool               `json:"hasMore"`
	Ratings     map[int64]string   `json:"ratings"`
	EnrichedIDs map[int64]struct{} `json:"enrichedIds"`
}

// Clone returns a deep copy so callers can hand the snapshot to a rendering
// surface without aliasing the cache's internal state.
func (s *ViewSnapshot) Clone() *ViewSnapshot {
	if s == nil {
		return nil
	}
	out := &ViewSnapshot{
		Items:       append([]CatalogItem(nil), s.Items...),
		Page:        s.Page,
		FilterKey:   s.FilterKey,
		SortKey:     s.SortKey,
		HasMore:     s.HasMore,
		Ratings:     make(map[int64]string, len(s.Ratings)),
		EnrichedIDs: make(map[int64]struct{}, len(s.EnrichedIDs)),
	}
	for id, r := range s.Ratings {
		out.Ratings[id] = r
	}
	for id := range s.EnrichedIDs {
		out.EnrichedIDs[id] = struct{}{}
	}
	return out
}
