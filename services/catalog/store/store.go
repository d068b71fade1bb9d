// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store provides the local catalog of already-verified offers.
// It is the primary source when fresh, and the fallback when the
// upstream marketplace is down.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrOfferNotFound is returned when an offer id is absent locally.
var ErrOfferNotFound = errors.New("offer not found in local catalog")

// Offer is one locally stored, previously vetted product offer.
type Offer struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Price      float64   `json:"price"`
	Currency   string    `json:"currency"`
	CategoryID string    `json:"category_id"`
	StoreID    string    `json:"store_id"`
	ImageURL   string    `json:"image_url"`
	// Popularity is the normalized demand signal in [0,1].
	Popularity float64   `json:"popularity"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Filter selects offers by keyword, category, and price range. Nil price
// bounds are unbounded. Limit <= 0 means no limit.
type Filter struct {
	Keyword    string
	CategoryID string
	PriceMin   *float64
	PriceMax   *float64
	Limit      int
	Offset     int
}

// CatalogStore is the read interface the resolver depends on. The count
// query must use predicates identical to the list query so pagination
// math stays consistent.
type CatalogStore interface {
	// ListOffers returns offers matching the filter in rank order
	// (highest popularity first, then recency).
	ListOffers(ctx context.Context, f Filter) ([]Offer, error)

	// CountOffers returns the total number of offers matching the same
	// predicates, ignoring Limit/Offset.
	CountOffers(ctx context.Context, f Filter) (int, error)

	// GetOffer returns one offer by id, or ErrOfferNotFound.
	GetOffer(ctx context.Context, id string) (*Offer, error)
}
