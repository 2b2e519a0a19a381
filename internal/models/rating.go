// Reelmatch - Movie Catalog Synchronization Engine
// Copyright 2026 Reelmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package models

import "time"

// RatingNotFound is the literal sentinel the rating provider proxy returns
// when a title has no rating. It is a terminal cache value: "looked up, no
// result exists", distinct from "not yet looked up".
const RatingNotFound = "NOT_FOUND"

// RatingState classifies a rating cache entry.
type RatingState int

const (
	// RatingAbsent means no lookup has been attempted for the id yet.
	RatingAbsent RatingState = iota
	// RatingFound means the cache holds a real rating string.
	RatingFound
	// RatingMissing means a lookup completed and the provider has no rating.
	RatingMissing
)

// String returns the state name for logs.
func (s RatingState) String() string {
	switch s {
	case RatingAbsent:
		return "absent"
	case RatingFound:
		return "found"
	case RatingMissing:
		return "not_found"
	default:
		return "unknown"
	}
}

// RatingRecord is one entry of the POST /ratings/bulk response map.
type RatingRecord struct {
	Rating    string    `json:"rating"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// RatingResult is the response of POST /ratings/fetch-and-store. Rating may
// be the RatingNotFound sentinel.
type RatingResult struct {
	Rating string `json:"rating"`
}

// RatingUpdate is the event published on the rating bus for every completed
// lookup, including definitive misses, so subscribers driving a loading
// indicator can stop spinning instead of waiting indefinitely.
type RatingUpdate struct {
	CatalogID int64  `json:"catalogId"`
	Rating    string `json:"rating"`
	Found     bool   `json:"found"`
}
