// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianShop/services/catalog/resilience"
	"github.com/AleutianAI/AleutianShop/services/catalog/resolver"
	"github.com/AleutianAI/AleutianShop/services/catalog/store"
	"github.com/AleutianAI/AleutianShop/services/catalog/upstream"
	"github.com/AleutianAI/AleutianShop/services/evidence"
)

// ============================================================================
// Test Setup
// ============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

type stubResolver struct{}

func (stubResolver) Resolve(context.Context, resolver.Query) (*resolver.ResolvedPage, error) {
	return &resolver.ResolvedPage{Offers: []resolver.CandidateOffer{}}, nil
}

func (stubResolver) FetchDetails(_ context.Context, ids []string, _ int) []*upstream.ProductDetail {
	return make([]*upstream.ProductDetail, len(ids))
}

type stubOffers struct{}

func (stubOffers) GetOffer(context.Context, string) (*store.Offer, error) {
	return nil, store.ErrOfferNotFound
}

type stubDirectory struct{}

func (stubDirectory) GetProductDetail(context.Context, string) (*upstream.ProductDetail, error) {
	return nil, upstream.ErrNotFound
}

func (stubDirectory) GetStoreDetail(context.Context, string) (*upstream.StoreDetail, error) {
	return &upstream.StoreDetail{StoreID: "s-1", Name: "stub"}, nil
}

type stubPassages struct{}

func (stubPassages) ListPassages(context.Context, evidence.Filter) ([]evidence.Passage, error) {
	return nil, nil
}

type stubRanker struct{}

func (stubRanker) Rank(context.Context, string, []evidence.Passage, float64, int) ([]evidence.ScoredPassage, error) {
	return nil, nil
}

func fullDeps() Deps {
	return Deps{
		Resolver:      stubResolver{},
		Offers:        stubOffers{},
		Upstream:      stubDirectory{},
		Gate:          resilience.NewFailureGate(resilience.DefaultGateConfig()),
		Passages:      stubPassages{},
		Ranker:        stubRanker{},
		EnableMetrics: true,
	}
}

func serve(r *gin.Engine, method, path string, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ============================================================================
// Tests
// ============================================================================

func TestSetupRoutes_AllEndpointsRegistered(t *testing.T) {
	r := gin.New()
	SetupRoutes(r, fullDeps())

	tests := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/health", ""},
		{http.MethodGet, "/metrics", ""},
		{http.MethodGet, "/v1/products/search?q=mug", ""},
		{http.MethodGet, "/v1/stores/s-1", ""},
		{http.MethodPost, "/v1/products/details/batch", `{"ids":["p-1"]}`},
		{http.MethodPost, "/v1/evidence/search", `{"query":"waterproof"}`},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := serve(r, tt.method, tt.path, tt.body)
			if w.Code == http.StatusNotFound {
				t.Errorf("Route not registered: got 404 for %s %s", tt.method, tt.path)
			}
		})
	}
}

func TestSetupRoutes_SearchIsNotShadowedByParam(t *testing.T) {
	r := gin.New()
	SetupRoutes(r, fullDeps())

	// /search must hit the search handler, not /:id with id="search".
	w := serve(r, http.MethodGet, "/v1/products/search?q=mug", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected search handler to answer 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSetupRoutes_ProductDetailUsesParam(t *testing.T) {
	r := gin.New()
	SetupRoutes(r, fullDeps())

	// Stub directory and stub store both miss, so a clean 404 envelope
	// proves the param route exists and the lookup ran.
	w := serve(r, http.MethodGet, "/v1/products/p-404", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected lookup 404, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "error") {
		t.Errorf("Expected an error envelope, got %s", w.Body.String())
	}
}

func TestSetupRoutes_EvidenceOptional(t *testing.T) {
	deps := fullDeps()
	deps.Passages = nil
	deps.Ranker = nil

	r := gin.New()
	SetupRoutes(r, deps)

	w := serve(r, http.MethodPost, "/v1/evidence/search", `{"query":"q"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("Evidence route should be absent without a passage store, got %d", w.Code)
	}
}

func TestSetupRoutes_MetricsOptional(t *testing.T) {
	deps := fullDeps()
	deps.EnableMetrics = false

	r := gin.New()
	SetupRoutes(r, deps)

	w := serve(r, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Metrics route should be absent when disabled, got %d", w.Code)
	}
}

func TestSetupRoutes_HealthReportsCircuit(t *testing.T) {
	r := gin.New()
	SetupRoutes(r, fullDeps())

	w := serve(r, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if body := w.Body.String(); !strings.Contains(body, "upstream_circuit") {
		t.Errorf("Health body missing circuit state: %s", body)
	}
}
