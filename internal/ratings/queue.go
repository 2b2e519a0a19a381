// Reelmatch - Movie Catalog Synchronization Engine
// Copyright 2026 Reelmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package ratings

import "container/heap"

// Request describes one background lookup: the catalog id to resolve, the
// provider-side identity to resolve it with, the priority signals, and the
// surface that asked, so a per-surface reset only drops that surface's
// work.
type Request struct {
	CatalogID        int64
	ExternalRatingID string
	ReleaseDate      string // ISO 8601, lexicographic order is date order
	Popularity       float64
	Visible          bool
	Owner            string
}

// less orders requests: visible-to-the-user first, then catalog popularity
// descending, then recency descending.
func (r Request) less(other Request) bool {
	if r.Visible != other.Visible {
		return r.Visible
	}
	if r.Popularity != other.Popularity {
		return r.Popularity > other.Popularity
	}
	return r.ReleaseDate > other.ReleaseDate
}

type queueItem struct {
	req   Request
	index int
}

// lookupHeap implements heap.Interface over queue items.
type lookupHeap []*queueItem

func (h lookupHeap) Len() int           { return len(h) }
func (h lookupHeap) Less(i, j int) bool { return h[i].req.less(h[j].req) }
func (h lookupHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *lookupHeap) Push(x interface{}) {
	item := x.(*queueItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *lookupHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// lookupQueue is a priority queue of pending lookups with id-level
// membership, so re-enqueueing an id only ever raises its priority. Not
// goroutine-safe; the fetcher guards it with its own mutex.
type lookupQueue struct {
	h      lookupHeap
	member map[int64]*queueItem
}

func newLookupQueue() *lookupQueue {
	return &lookupQueue{member: make(map[int64]*queueItem)}
}

// push inserts the request or, when the id is already queued, upgrades its
// priority signals in place.
func (q *lookupQueue) push(req Request) {
	if item, ok := q.member[req.CatalogID]; ok {
		if req.Visible {
			item.req.Visible = true
		}
		if req.Popularity > item.req.Popularity {
			item.req.Popularity = req.Popularity
		}
		heap.Fix(&q.h, item.index)
		return
	}
	item := &queueItem{req: req}
	heap.Push(&q.h, item)
	q.member[req.CatalogID] = item
}

// pop removes and returns the highest-priority request.
func (q *lookupQueue) pop() (Request, bool) {
	if len(q.h) == 0 {
		return Request{}, false
	}
	item := heap.Pop(&q.h).(*queueItem)
	delete(q.member, item.req.CatalogID)
	return item.req, true
}

// removeOwner drops every queued request the given owner enqueued.
// Requests another owner queued first for the same id stay put.
func (q *lookupQueue) removeOwner(owner string) {
	for id, item := range q.member {
		if item.req.Owner == owner {
			heap.Remove(&q.h, item.index)
			delete(q.member, id)
		}
	}
}

func (q *lookupQueue) len() int { return len(q.h) }

func (q *lookupQueue) clear() {
	q.h = nil
	q.member = make(map[int64]*queueItem)
}
