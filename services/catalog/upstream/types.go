// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package upstream

import "encoding/json"

// --- Marketplace Wire Structs ---

// envelope is the common response wrapper. A code of zero means success;
// any other code is an application-level failure despite the 200 status.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// SearchItem is one product row in a search response.
type SearchItem struct {
	ItemID    string  `json:"item_id"`
	Title     string  `json:"title"`
	Price     float64 `json:"price"`
	Currency  string  `json:"currency"`
	SoldCount int64   `json:"sold_count"`
	StoreID   string  `json:"store_id"`
	ImageURL  string  `json:"image_url"`
	DetailURL string  `json:"detail_url"`
}

// SearchResult is the payload of a product search.
type SearchResult struct {
	Items []SearchItem `json:"items"`
	Total int          `json:"total"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
}

// SKU is one purchasable variant of a product.
type SKU struct {
	SKUID string  `json:"sku_id"`
	Spec  string  `json:"spec"`
	Price float64 `json:"price"`
	Stock int     `json:"stock"`
}

// ProductDetail is the payload of a product detail lookup.
type ProductDetail struct {
	ItemID      string   `json:"item_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Price       float64  `json:"price"`
	Currency    string   `json:"currency"`
	SoldCount   int64    `json:"sold_count"`
	StoreID     string   `json:"store_id"`
	Images      []string `json:"images"`
	SKUs        []SKU    `json:"skus"`
	MinOrderQty int      `json:"min_order_qty"`
}

// StoreDetail is the payload of a store detail lookup.
type StoreDetail struct {
	StoreID      string  `json:"store_id"`
	Name         string  `json:"name"`
	Location     string  `json:"location"`
	Rating       float64 `json:"rating"`
	YearsActive  int     `json:"years_active"`
	ResponseRate float64 `json:"response_rate"`
}
