// Reelmatch - Movie Catalog Synchronization Engine
// Copyright 2026 Reelmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package models

import (
	"sort"
	"strconv"
	"strings"
)

// PageSize is the fixed catalog page size. A page with fewer results
// signals the end of pagination.
const PageSize = 10

// CatalogItem is one browsable movie record.
//
// Base fields come from the listing endpoint and are immutable for the
// lifetime of the item. Enrichable fields start at their zero value and are
// filled at most once by the enrichment coordinator; they are upgraded from
// absent to present and never reverted.
type CatalogItem struct {
	CatalogID   int64   `json:"catalogId"`
	Title       string  `json:"title"`
	PosterPath  string  `json:"posterPath"`
	BaseRating  float64 `json:"baseRating"`
	ReleaseDate string  `json:"releaseDate"` // ISO 8601 date (YYYY-MM-DD)
	Popularity  float64 `json:"popularity"`

	// Enrichable fields (absent until the detail fetch merges them in).
	Director         string   `json:"director,omitempty"`
	Cast             []string `json:"cast,omitempty"`
	RuntimeMinutes   int      `json:"runtimeMinutes,omitempty"`
	Genres           []string `json:"genres,omitempty"`
	ExternalRatingID string   `json:"externalRatingId,omitempty"`
	Providers        []string `json:"providers,omitempty"`
}

// CatalogDetail is the full detail object returned by GET /catalog/{id}.
// It carries the secondary metadata that the listing payload omits.
type CatalogDetail struct {
	CatalogID        int64    `json:"catalogId"`
	Director         string   `json:"director"`
	Cast             []string `json:"cast"`
	RuntimeMinutes   int      `json:"runtimeMinutes"`
	Genres           []string `json:"genres"`
	ExternalRatingID string   `json:"externalRatingId"`
	Providers        []string `json:"providers"`
}

// Merge applies a detail fetch onto the item. Base fields are never
// overwritten; enrichable fields are only upgraded from absent to present.
// Merging a zero-value detail is a no-op, so a partially failed fetch can
// never revert data that arrived earlier.
func (c *CatalogItem) Merge(d *CatalogDetail) {
	if d == nil {
		return
	}
	if c.Director == "" && d.Director != "" {
		c.Director = d.Director
	}
	if len(c.Cast) == 0 && len(d.Cast) > 0 {
		c.Cast = append([]string(nil), d.Cast...)
	}
	if c.RuntimeMinutes == 0 && d.RuntimeMinutes > 0 {
		c.RuntimeMinutes = d.RuntimeMinutes
	}
	if len(c.Genres) == 0 && len(d.Genres) > 0 {
		c.Genres = append([]string(nil), d.Genres...)
	}
	if c.ExternalRatingID == "" && d.ExternalRatingID != "" {
		c.ExternalRatingID = d.ExternalRatingID
	}
	if len(c.Providers) == 0 && len(d.Providers) > 0 {
		c.Providers = append([]string(nil), d.Providers...)
	}
}

// Enriched reports whether the item has received its detail merge.
// The external rating id is the marker field: every detail payload carries
// one (possibly empty on the provider side, in which case the director
// fallback applies).
func (c *CatalogItem) Enriched() bool {
	return c.ExternalRatingID != "" || c.Director != ""
}

// Filters describes the catalog query the user has composed. The zero value
// means "no filtering".
type Filters struct {
	Genres    []string `json:"genres,omitempty"`
	YearFrom  int      `json:"yearFrom,omitempty"`
	YearTo    int      `json:"yearTo,omitempty"`
	MinRating float64  `json:"minRating,omitempty"`
	Search    string   `json:"search,omitempty"`
}

// Key returns a canonical, order-independent serialization of the filter set
// combined with the sort. Two queries with the same Key are the same logical
// view; the catalog store and view-continuity cache partition on it.
func (f Filters) Key(sortKey string) string {
	genres := append([]string(nil), f.Genres...)
	sort.Strings(genres)

	var b strings.Builder
	b.WriteString("g=")
	b.WriteString(strings.Join(genres, ","))
	b.WriteString("|y=")
	b.WriteString(strconv.Itoa(f.YearFrom))
	b.WriteString("-")
	b.WriteString(strconv.Itoa(f.YearTo))
	b.WriteString("|r=")
	b.WriteString(strconv.FormatFloat(f.MinRating, 'f', 1, 64))
	b.WriteString("|q=")
	b.WriteString(strings.ToLower(strings.TrimSpace(f.Search)))
	b.WriteString("|s=")
	b.WriteString(sortKey)
	return b.String()
}

// CatalogPage is the response envelope of GET /catalog.
type CatalogPage struct {
	Results []CatalogItem `json:"results"`
}
