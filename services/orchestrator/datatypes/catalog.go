// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides request and response types for the
// orchestrator's HTTP surface.
//
// This file contains the catalog retrieval types (product search, detail
// lookups, batch enrichment). For evidence search types, see evidence.go.
package datatypes

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianShop/services/catalog/resolver"
	"github.com/AleutianAI/AleutianShop/services/catalog/upstream"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxQueryBytes is the maximum size of a search query. Byte length,
	// not rune count, to bound memory for multi-byte scripts too.
	MaxQueryBytes = 1024

	// MaxBatchDetailIDs bounds one batch enrichment request.
	MaxBatchDetailIDs = 50

	// MaxPageLimit is the largest page a caller may request.
	MaxPageLimit = 100
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// catalogValidate is the validator instance for catalog datatypes.
// Initialized in init() with custom validators.
var catalogValidate *validator.Validate

func init() {
	catalogValidate = validator.New()

	_ = catalogValidate.RegisterValidation("querybytes", validateQueryBytes)
}

// validateQueryBytes validates that a query field does not exceed
// MaxQueryBytes. Checks byte length to prevent memory exhaustion with
// large payloads.
func validateQueryBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxQueryBytes
}

// =============================================================================
// Product Search
// =============================================================================

// ProductSearchRequest is the query surface of GET /v1/products/search.
//
// # Fields
//
//   - Query: Required. The shopper's phrase as typed, any language.
//   - TranslatedQuery: Optional. Agent-supplied translation, used for
//     fallback query planning against the upstream marketplace.
//   - PriceMin/PriceMax: Optional unit-price bounds.
//   - CategoryID: Optional local catalog category filter.
//   - Limit/Offset: Pagination over the merged result list.
//   - IncludeUpstream: Force marketplace augmentation even when the
//     local catalog has matches.
//
// # Validation
//
// Uses go-playground/validator:
//   - Query: required, max 1024 bytes
//   - Limit: 0-100 (0 means server default)
//   - Offset: >= 0
//   - PriceMax must not be below PriceMin when both are set
type ProductSearchRequest struct {
	Query           string   `form:"q" json:"q" validate:"required,querybytes"`
	TranslatedQuery string   `form:"q_translated" json:"q_translated" validate:"omitempty,querybytes"`
	PriceMin        *float64 `form:"price_min" json:"price_min" validate:"omitempty,gte=0"`
	PriceMax        *float64 `form:"price_max" json:"price_max" validate:"omitempty,gte=0"`
	CategoryID      string   `form:"category_id" json:"category_id"`
	Limit           int      `form:"limit" json:"limit" validate:"gte=0,lte=100"`
	Offset          int      `form:"offset" json:"offset" validate:"gte=0"`
	IncludeUpstream bool     `form:"include_upstream" json:"include_upstream"`
}

// Validate validates the ProductSearchRequest fields.
func (r *ProductSearchRequest) Validate() error {
	if err := catalogValidate.Struct(r); err != nil {
		return err
	}
	if r.PriceMin != nil && r.PriceMax != nil && *r.PriceMax < *r.PriceMin {
		return fmt.Errorf("price_max (%g) is below price_min (%g)", *r.PriceMax, *r.PriceMin)
	}
	return nil
}

// ToQuery converts the request into a resolver query.
func (r *ProductSearchRequest) ToQuery() resolver.Query {
	return resolver.Query{
		Text:            r.Query,
		TranslatedText:  r.TranslatedQuery,
		PriceMin:        r.PriceMin,
		PriceMax:        r.PriceMax,
		CategoryID:      r.CategoryID,
		Limit:           r.Limit,
		Offset:          r.Offset,
		IncludeUpstream: r.IncludeUpstream,
	}
}

// ProductSearchResponse wraps one resolved page with audit identifiers.
type ProductSearchResponse struct {
	RequestID string                 `json:"request_id"`
	Timestamp int64                  `json:"timestamp"`
	Page      *resolver.ResolvedPage `json:"page"`
}

// NewProductSearchResponse stamps a page with a fresh response identity.
func NewProductSearchResponse(page *resolver.ResolvedPage) ProductSearchResponse {
	return ProductSearchResponse{
		RequestID: uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
		Page:      page,
	}
}

// =============================================================================
// Single Detail Lookups
// =============================================================================

// DetailSource marks where a product detail was served from.
type DetailSource string

const (
	// DetailSourceUpstream is a full marketplace detail record.
	DetailSourceUpstream DetailSource = "upstream"

	// DetailSourceLocal is a degraded record synthesized from the
	// local catalog when the marketplace is unreachable.
	DetailSourceLocal DetailSource = "local"
)

// ProductDetailResponse wraps one product detail lookup.
type ProductDetailResponse struct {
	RequestID string                  `json:"request_id"`
	Timestamp int64                   `json:"timestamp"`
	Source    DetailSource            `json:"source"`
	Detail    *upstream.ProductDetail `json:"detail"`
}

// NewProductDetailResponse stamps a detail record with response identity.
func NewProductDetailResponse(source DetailSource, detail *upstream.ProductDetail) ProductDetailResponse {
	return ProductDetailResponse{
		RequestID: uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
		Source:    source,
		Detail:    detail,
	}
}

// StoreDetailResponse wraps one store detail lookup.
type StoreDetailResponse struct {
	RequestID string                `json:"request_id"`
	Timestamp int64                 `json:"timestamp"`
	Store     *upstream.StoreDetail `json:"store"`
}

// NewStoreDetailResponse stamps a store record with response identity.
func NewStoreDetailResponse(detail *upstream.StoreDetail) StoreDetailResponse {
	return StoreDetailResponse{
		RequestID: uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
		Store:     detail,
	}
}

// =============================================================================
// Batch Detail Enrichment
// =============================================================================

// BatchDetailsRequest is the body of POST /v1/products/details/batch.
//
// # Fields
//
//   - IDs: Required. 1-50 upstream product ids to enrich. Failed items
//     come back as null in their slot rather than failing the batch.
//   - Workers: Optional concurrency bound; 0 uses the server default.
type BatchDetailsRequest struct {
	IDs     []string `json:"ids" validate:"required,min=1,max=50,dive,required"`
	Workers int      `json:"workers" validate:"gte=0,lte=16"`
}

// Validate validates the BatchDetailsRequest fields.
func (r *BatchDetailsRequest) Validate() error {
	return catalogValidate.Struct(r)
}

// BatchDetailsResponse carries one detail (or null) per requested id,
// in input order.
type BatchDetailsResponse struct {
	RequestID string                    `json:"request_id"`
	Timestamp int64                     `json:"timestamp"`
	Details   []*upstream.ProductDetail `json:"details"`
}

// NewBatchDetailsResponse stamps the batch result with response identity.
func NewBatchDetailsResponse(details []*upstream.ProductDetail) BatchDetailsResponse {
	return BatchDetailsResponse{
		RequestID: uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}
