// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolver turns a free-text product query into a ranked,
// deduplicated, paginated page of candidate offers, blending the local
// catalog with the upstream marketplace.
//
// Upstream failure of any kind degrades result completeness but never
// surfaces to the caller as an error: local-only (or empty) pages are
// valid outcomes.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/AleutianAI/AleutianShop/services/catalog/planner"
	"github.com/AleutianAI/AleutianShop/services/catalog/store"
	"github.com/AleutianAI/AleutianShop/services/catalog/upstream"
	"github.com/AleutianAI/AleutianShop/services/orchestrator/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var resolverTracer = otel.Tracer("aleutian.shop.catalog.resolver")

// defaultUpstreamPageSize is how many upstream rows one variant fetch
// requests. Large enough to fill a page after price filtering and dedup.
const defaultUpstreamPageSize = 40

// Source tags where a candidate offer came from.
type Source string

const (
	// SourceLocal marks an offer served from the verified local catalog.
	SourceLocal Source = "local"

	// SourceUpstream marks an unverified offer from the marketplace.
	SourceUpstream Source = "upstream"
)

// Searcher is the slice of the upstream client the resolver needs.
type Searcher interface {
	SearchProducts(ctx context.Context, text string, pageNo, pageSize int) (*upstream.SearchResult, error)
	GetProductDetail(ctx context.Context, id string) (*upstream.ProductDetail, error)
}

// Query is one resolution request.
type Query struct {
	// Text is the shopper's phrase as typed.
	Text string

	// TranslatedText is the agent-supplied translation, if any.
	TranslatedText string

	// PriceMin/PriceMax bound unit price; nil is unbounded. Upstream does
	// not filter by price server-side, so the bounds are re-applied here
	// to upstream candidates.
	PriceMin *float64
	PriceMax *float64

	// CategoryID filters the local catalog only.
	CategoryID string

	// Limit/Offset paginate the merged list. Limit defaults to 20,
	// capped at 100.
	Limit  int
	Offset int

	// IncludeUpstream forces marketplace augmentation even when the
	// local catalog has matches.
	IncludeUpstream bool
}

// CandidateOffer is one vetted candidate in a resolved page. Identity is
// the ID: the same id seen locally and upstream is one entity, collapsed
// in favor of the local (richer, already verified) record.
type CandidateOffer struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
	StoreID  string  `json:"store_id"`
	ImageURL string  `json:"image_url"`

	// Score is the normalized popularity signal in [0,1].
	Score float64 `json:"score"`

	// Source is local or upstream.
	Source Source `json:"source"`

	// Raw keeps the upstream reference for deferred detail fetches.
	// Nil for local candidates.
	Raw *upstream.SearchItem `json:"-"`
}

// ResolvedPage is one page of candidates. It is produced per request and
// never persisted.
type ResolvedPage struct {
	Offers []CandidateOffer `json:"offers"`

	// TotalEstimated is localCount + upstreamCandidateCount. It double
	// counts products present in both sources; the true distinct total
	// is unknowable without fetching everything, so this is an estimate
	// by contract, not a bug to fix here.
	TotalEstimated int `json:"total_estimated"`

	HasMore bool `json:"has_more"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
}

// Resolver merges local and upstream candidates.
//
// # Thread Safety
//
// Resolver holds no per-request state and is safe for concurrent use;
// all resolution requests share its gate and caches through the client.
type Resolver struct {
	store            store.CatalogStore
	client           Searcher
	planner          *planner.Planner
	upstreamPageSize int
}

// New creates a Resolver. pageSize <= 0 uses the default upstream page
// size.
func New(catalog store.CatalogStore, client Searcher, p *planner.Planner, pageSize int) *Resolver {
	if pageSize <= 0 {
		pageSize = defaultUpstreamPageSize
	}
	return &Resolver{
		store:            catalog,
		client:           client,
		planner:          p,
		upstreamPageSize: pageSize,
	}
}

// Resolve produces one page of candidates for q.
//
// # Description
//
// Local offers are fetched in rank order with the full predicate set and
// counted with identical predicates. Upstream augmentation runs when the
// local result is empty or explicitly requested: the planner's variants
// are tried in order and the first non-empty variant wins; results are
// never merged across variants. Upstream candidates failing the price
// bounds are dropped, then appended after local candidates unless their
// id is already present. The merged list is paginated by Limit/Offset.
//
// # Outputs
//
//   - *ResolvedPage: Always non-nil on nil error. An empty page is a
//     valid, non-error outcome.
//   - error: Only local-store failures; upstream failures are logged and
//     absorbed.
func (r *Resolver) Resolve(ctx context.Context, q Query) (*ResolvedPage, error) {
	ctx, span := resolverTracer.Start(ctx, "CatalogResolver.Resolve")
	defer span.End()

	q = q.withDefaults()
	span.SetAttributes(
		attribute.String("query.text", q.Text),
		attribute.Int("query.limit", q.Limit),
		attribute.Int("query.offset", q.Offset),
	)

	filter := store.Filter{
		Keyword:    q.Text,
		CategoryID: q.CategoryID,
		PriceMin:   q.PriceMin,
		PriceMax:   q.PriceMax,
	}

	localOffers, err := r.store.ListOffers(ctx, filter)
	if err != nil {
		return nil, err
	}
	localCount, err := r.store.CountOffers(ctx, filter)
	if err != nil {
		return nil, err
	}

	merged := make([]CandidateOffer, 0, len(localOffers))
	for _, o := range localOffers {
		merged = append(merged, CandidateOffer{
			ID:       o.ID,
			Title:    o.Title,
			Price:    o.Price,
			Currency: o.Currency,
			StoreID:  o.StoreID,
			ImageURL: o.ImageURL,
			Score:    o.Popularity,
			Source:   SourceLocal,
		})
	}

	upstreamCount := 0
	if len(localOffers) == 0 || q.IncludeUpstream {
		candidates := r.fetchUpstream(ctx, q)
		upstreamCount = len(candidates)
		span.SetAttributes(attribute.Int("upstream.candidates", upstreamCount))

		seen := make(map[string]bool, len(merged))
		for _, c := range merged {
			seen[c.ID] = true
		}
		for _, c := range candidates {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			merged = append(merged, c)
		}
	}

	total := localCount + upstreamCount
	page := paginate(merged, q.Limit, q.Offset)

	return &ResolvedPage{
		Offers:         page,
		TotalEstimated: total,
		HasMore:        q.Offset+len(page) < total,
		Limit:          q.Limit,
		Offset:         q.Offset,
	}, nil
}

// fetchUpstream tries the planner's variants until one returns results,
// mapping items to price-filtered candidates. Any upstream error ends
// augmentation: the page degrades to local-only rather than failing.
func (r *Resolver) fetchUpstream(ctx context.Context, q Query) []CandidateOffer {
	ctx, span := resolverTracer.Start(ctx, "CatalogResolver.fetchUpstream")
	defer span.End()

	for i, variant := range r.planner.Plan(q.Text, q.TranslatedText) {
		result, err := r.client.SearchProducts(ctx, variant.Text, 1, r.upstreamPageSize)
		if err != nil {
			if errors.Is(err, upstream.ErrCircuitOpen) {
				slog.Info("Upstream circuit open, serving local-only results", "query", q.Text)
			} else {
				slog.Warn("Upstream search failed, serving local-only results",
					"query", q.Text, "variant", variant.Text, "error", err)
			}
			span.SetAttributes(attribute.Bool("upstream.degraded", true))
			return nil
		}
		if len(result.Items) == 0 {
			continue
		}

		span.SetAttributes(attribute.String("upstream.winning_variant", variant.Text))
		if observability.DefaultMetrics != nil {
			observability.DefaultMetrics.RecordFallbackDepth(i + 1)
		}
		var candidates []CandidateOffer
		for i := range result.Items {
			item := result.Items[i]
			if q.PriceMin != nil && item.Price < *q.PriceMin {
				continue
			}
			if q.PriceMax != nil && item.Price > *q.PriceMax {
				continue
			}
			candidates = append(candidates, CandidateOffer{
				ID:       item.ItemID,
				Title:    item.Title,
				Price:    item.Price,
				Currency: item.Currency,
				StoreID:  item.StoreID,
				ImageURL: item.ImageURL,
				Score:    normalizePopularity(item.SoldCount),
				Source:   SourceUpstream,
				Raw:      &item,
			})
		}
		return candidates
	}
	return nil
}

// withDefaults clamps pagination parameters.
func (q Query) withDefaults() Query {
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// paginate slices the merged list by limit/offset.
func paginate(offers []CandidateOffer, limit, offset int) []CandidateOffer {
	if offset >= len(offers) {
		return []CandidateOffer{}
	}
	end := offset + limit
	if end > len(offers) {
		end = len(offers)
	}
	return offers[offset:end]
}

// normalizePopularity maps a raw sold-count signal onto [0,1]: log scale
// clipped to [0,5], then rescaled.
func normalizePopularity(sold int64) float64 {
	if sold <= 0 {
		return 0
	}
	v := math.Log10(float64(sold) + 1)
	if v > 5 {
		v = 5
	}
	return v / 5
}
