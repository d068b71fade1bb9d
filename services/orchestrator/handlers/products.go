// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the gin handlers for the retrieval API.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianShop/pkg/validation"
	"github.com/AleutianAI/AleutianShop/services/catalog/resolver"
	"github.com/AleutianAI/AleutianShop/services/catalog/store"
	"github.com/AleutianAI/AleutianShop/services/catalog/upstream"
	"github.com/AleutianAI/AleutianShop/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianShop/services/orchestrator/observability"
)

// =============================================================================
// Dependency Interfaces
// =============================================================================

// CandidateResolver merges local and marketplace candidates for a query.
type CandidateResolver interface {
	Resolve(ctx context.Context, q resolver.Query) (*resolver.ResolvedPage, error)
	FetchDetails(ctx context.Context, ids []string, workers int) []*upstream.ProductDetail
}

// OfferReader reads single offers from the local catalog.
type OfferReader interface {
	GetOffer(ctx context.Context, id string) (*store.Offer, error)
}

// UpstreamDirectory fetches single detail records from the marketplace.
type UpstreamDirectory interface {
	GetProductDetail(ctx context.Context, id string) (*upstream.ProductDetail, error)
	GetStoreDetail(ctx context.Context, id string) (*upstream.StoreDetail, error)
}

// =============================================================================
// Error Mapping
// =============================================================================

// writeUpstreamError translates the typed upstream error taxonomy into an
// HTTP status and envelope. Every upstream failure class gets a distinct
// status so the agent can branch on it without parsing messages.
func writeUpstreamError(c *gin.Context, err error) {
	var httpErr *upstream.HTTPError
	var apiErr *upstream.APIError
	var transportErr *upstream.TransportError

	switch {
	case errors.Is(err, upstream.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, upstream.ErrCircuitOpen):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Marketplace temporarily unavailable"})
	case errors.Is(err, upstream.ErrTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Marketplace timed out"})
	case errors.As(err, &apiErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Marketplace rejected the request", "code": apiErr.Code})
	case errors.As(err, &transportErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Marketplace unreachable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

// recordRequest records the request outcome metric if metrics are enabled.
func recordRequest(endpoint observability.Endpoint, success bool) {
	if observability.DefaultMetrics != nil {
		observability.DefaultMetrics.RecordRequest(endpoint, success)
	}
}

// =============================================================================
// Handlers
// =============================================================================

// SearchProducts handles GET /v1/products/search.
//
// # Description
//
// Binds the query string into a ProductSearchRequest, validates it, and
// resolves one merged page of local and marketplace candidates. Marketplace
// failures never surface here: the resolver degrades to local-only results,
// so the only error responses are validation (400) and local store
// failures (500).
func SearchProducts(res CandidateResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ProductSearchRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
			recordRequest(observability.EndpointProductSearch, false)
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			recordRequest(observability.EndpointProductSearch, false)
			return
		}

		page, err := res.Resolve(c.Request.Context(), req.ToQuery())
		if err != nil {
			slog.Error("Product search failed", "query", req.Query, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed"})
			recordRequest(observability.EndpointProductSearch, false)
			return
		}

		recordRequest(observability.EndpointProductSearch, true)
		c.JSON(http.StatusOK, datatypes.NewProductSearchResponse(page))
	}
}

// GetProduct handles GET /v1/products/:id.
//
// # Description
//
// Prefers the full marketplace detail record. When the marketplace is
// unreachable (circuit open, timeout, transport failure) and the product
// exists in the local catalog, a degraded detail is synthesized from the
// local offer instead of failing the request. A 404 means neither side
// knows the id.
func GetProduct(offers OfferReader, dir UpstreamDirectory) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := validation.SanitizeResourceID(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product id"})
			recordRequest(observability.EndpointProductDetail, false)
			return
		}

		detail, err := dir.GetProductDetail(c.Request.Context(), id)
		if err == nil {
			recordRequest(observability.EndpointProductDetail, true)
			c.JSON(http.StatusOK, datatypes.NewProductDetailResponse(datatypes.DetailSourceUpstream, detail))
			return
		}

		offer, localErr := offers.GetOffer(c.Request.Context(), id)
		if localErr == nil {
			slog.Warn("Serving degraded product detail from local catalog",
				"id", id, "upstream_error", err)
			if observability.DefaultMetrics != nil {
				observability.DefaultMetrics.RecordDegradedSearch()
			}
			recordRequest(observability.EndpointProductDetail, true)
			c.JSON(http.StatusOK, datatypes.NewProductDetailResponse(
				datatypes.DetailSourceLocal, localDetail(offer)))
			return
		}
		if !errors.Is(localErr, store.ErrOfferNotFound) {
			slog.Error("Local offer lookup failed", "id", id, "error", localErr)
		}

		recordRequest(observability.EndpointProductDetail, false)
		writeUpstreamError(c, err)
	}
}

// localDetail synthesizes a detail record from a local offer. It has no
// SKUs, description, or sales figures; Source marks it as degraded.
func localDetail(o *store.Offer) *upstream.ProductDetail {
	d := &upstream.ProductDetail{
		ItemID:   o.ID,
		Title:    o.Title,
		Price:    o.Price,
		Currency: o.Currency,
		StoreID:  o.StoreID,
	}
	if o.ImageURL != "" {
		d.Images = []string{o.ImageURL}
	}
	return d
}

// GetStore handles GET /v1/stores/:id.
//
// Store profiles exist only upstream, so there is no local fallback;
// failures map straight through the error taxonomy.
func GetStore(dir UpstreamDirectory) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := validation.SanitizeResourceID(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid store id"})
			recordRequest(observability.EndpointStoreDetail, false)
			return
		}

		detail, err := dir.GetStoreDetail(c.Request.Context(), id)
		if err != nil {
			slog.Warn("Store detail fetch failed", "id", id, "error", err)
			recordRequest(observability.EndpointStoreDetail, false)
			writeUpstreamError(c, err)
			return
		}

		recordRequest(observability.EndpointStoreDetail, true)
		c.JSON(http.StatusOK, datatypes.NewStoreDetailResponse(detail))
	}
}

// BatchProductDetails handles POST /v1/products/details/batch.
//
// # Description
//
// Enriches up to 50 candidate ids concurrently. Partial failure is the
// normal case: failed slots come back null and the response is still 200,
// so one dead listing never sinks a comparison table.
func BatchProductDetails(res CandidateResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.BatchDetailsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			recordRequest(observability.EndpointBatchDetails, false)
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			recordRequest(observability.EndpointBatchDetails, false)
			return
		}
		if err := validation.ValidateResourceIDs(req.IDs); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			recordRequest(observability.EndpointBatchDetails, false)
			return
		}

		details := res.FetchDetails(c.Request.Context(), req.IDs, req.Workers)

		recordRequest(observability.EndpointBatchDetails, true)
		c.JSON(http.StatusOK, datatypes.NewBatchDetailsResponse(details))
	}
}
