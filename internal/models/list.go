// Reelmatch - Movie Catalog Synchronization Engine
// Copyright 2026 Reelmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package models

import "sync"

// ItemList is the stable, shared reference to one surface's current item
// slice. The catalog store owns writes; the enrichment coordinator and
// rating bus subscribers read and merge through it rather than through a
// captured snapshot, because background work outlives any one render of
// the list. Safe for concurrent use.
type ItemList struct {
	mu    sync.RWMutex
	items []CatalogItem
}

// NewItemList returns an empty list.
func NewItemList() *ItemList {
	return &ItemList{}
}

// Snapshot returns a copy of the current items.
func (l *ItemList) Snapshot() []CatalogItem {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]CatalogItem(nil), l.items...)
}

// IDs returns the current catalog ids in list order.
func (l *ItemList) IDs() []int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]int64, len(l.items))
	for i := range l.items {
		ids[i] = l.items[i].CatalogID
	}
	return ids
}

// Get returns a copy of the item with the given id.
func (l *ItemList) Get(id int64) (CatalogItem, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := range l.items {
		if l.items[i].CatalogID == id {
			return l.items[i], true
		}
	}
	return CatalogItem{}, false
}

// Contains reports whether the id is currently in the list.
func (l *ItemList) Contains(id int64) bool {
	_, ok := l.Get(id)
	return ok
}

// Len returns the current item count.
func (l *ItemList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Replace swaps the whole list.
func (l *ItemList) Replace(items []CatalogItem) {
	l.mu.Lock()
	l.items = append([]CatalogItem(nil), items...)
	l.mu.Unlock()
}

// Append adds items whose id is not already present, silently dropping
// duplicates, and returns how many were actually added.
func (l *ItemList) Append(items []CatalogItem) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[int64]struct{}, len(l.items))
	for i := range l.items {
		seen[l.items[i].CatalogID] = struct{}{}
	}
	added := 0
	for _, item := range items {
		if _, dup := seen[item.CatalogID]; dup {
			continue
		}
		seen[item.CatalogID] = struct{}{}
		l.items = append(l.items, item)
		added++
	}
	return added
}

// MergeDetail merges an enrichment result into the item in place, keyed by
// id. Returns false when the id has left the list (the stale result is
// simply dropped).
func (l *ItemList) MergeDetail(d *CatalogDetail) bool {
	if d == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		if l.items[i].CatalogID == d.CatalogID {
			l.items[i].Merge(d)
			return true
		}
	}
	return false
}
