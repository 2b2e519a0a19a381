// Reelmatch - Movie Catalog Synchronization Engine
// Copyright 2026 Reelmatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/reelmatch/reelmatch

package models

import "time"

// InteractionFlag holds the signed-in user's per-title flags. Flags are
// created on first mutation and never deleted: clearing a flag sets it back
// to false rather than removing the record.
type InteractionFlag struct {
	CatalogID       int64     `json:"catalogId"`
	IsWatched       bool      `json:"isWatched"`
	IsNotInterested bool      `json:"isNotInterested"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// InteractionList is the response envelope of GET /interactions/all.
type InteractionList struct {
	Interactions []InteractionFlag `json:"interactions"`
}

// FlagName identifies which interaction flag a mutation targets.
type FlagName string

const (
	// FlagWatched marks a title the user has already seen.
	FlagWatched FlagName = "watched"
	// FlagNotInterested marks a title the user dismissed.
	FlagNotInterested FlagName = "notInterested"
)
