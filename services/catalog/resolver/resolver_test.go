// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/AleutianAI/AleutianShop/services/catalog/planner"
	"github.com/AleutianAI/AleutianShop/services/catalog/store"
	"github.com/AleutianAI/AleutianShop/services/catalog/upstream"
	"github.com/AleutianAI/AleutianShop/services/orchestrator/observability"
)

// fakeStore is an in-memory CatalogStore.
type fakeStore struct {
	offers []store.Offer
	err    error
}

func (f *fakeStore) ListOffers(ctx context.Context, filter store.Filter) ([]store.Offer, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []store.Offer
	for _, o := range f.offers {
		if filter.PriceMin != nil && o.Price < *filter.PriceMin {
			continue
		}
		if filter.PriceMax != nil && o.Price > *filter.PriceMax {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeStore) CountOffers(ctx context.Context, filter store.Filter) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	offers, _ := f.ListOffers(ctx, filter)
	return len(offers), nil
}

func (f *fakeStore) GetOffer(ctx context.Context, id string) (*store.Offer, error) {
	for _, o := range f.offers {
		if o.ID == id {
			return &o, nil
		}
	}
	return nil, store.ErrOfferNotFound
}

// fakeSearcher scripts upstream behavior per query text.
type fakeSearcher struct {
	mu       sync.Mutex
	results  map[string][]upstream.SearchItem
	err      error
	searched []string
	details  map[string]*upstream.ProductDetail
	inFlight int
	maxSeen  int
}

func (f *fakeSearcher) SearchProducts(ctx context.Context, text string, pageNo, pageSize int) (*upstream.SearchResult, error) {
	f.mu.Lock()
	f.searched = append(f.searched, text)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	items := f.results[text]
	return &upstream.SearchResult{Items: items, Total: len(items), Page: pageNo, Limit: pageSize}, nil
}

func (f *fakeSearcher) GetProductDetail(ctx context.Context, id string) (*upstream.ProductDetail, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	d, ok := f.details[id]
	if !ok {
		return nil, upstream.ErrNotFound
	}
	return d, nil
}

func newTestResolver(s *fakeStore, c *fakeSearcher) *Resolver {
	return New(s, c, planner.New("zh", nil), 0)
}

func ptr(v float64) *float64 { return &v }

// TestResolve_MergeDeduplicatesById tests that a product present both
// locally and upstream collapses to one entry, keeping the local record.
func TestResolve_MergeDeduplicatesById(t *testing.T) {
	catalog := &fakeStore{offers: []store.Offer{
		{ID: "A", Title: "夹克 本地", Price: 30, Popularity: 0.7},
	}}
	searcher := &fakeSearcher{results: map[string][]upstream.SearchItem{
		"夹克": {
			{ItemID: "A", Title: "夹克 上游", Price: 29, SoldCount: 100},
			{ItemID: "B", Title: "夹克 B", Price: 31, SoldCount: 50},
		},
	}}

	r := newTestResolver(catalog, searcher)
	page, err := r.Resolve(context.Background(), Query{Text: "夹克", IncludeUpstream: true, Limit: 10})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if len(page.Offers) != 2 {
		t.Fatalf("Expected exactly [A, B], got %d offers", len(page.Offers))
	}
	if page.Offers[0].ID != "A" || page.Offers[0].Source != SourceLocal {
		t.Errorf("Expected local A first, got %+v", page.Offers[0])
	}
	if page.Offers[0].Title != "夹克 本地" {
		t.Error("Dedup must prefer the richer local record")
	}
	if page.Offers[1].ID != "B" || page.Offers[1].Source != SourceUpstream {
		t.Errorf("Expected upstream B second, got %+v", page.Offers[1])
	}
}

// TestResolve_PriceFilterAppliesToUpstream tests that price bounds the
// upstream cannot enforce server-side are applied locally.
func TestResolve_PriceFilterAppliesToUpstream(t *testing.T) {
	catalog := &fakeStore{}
	searcher := &fakeSearcher{results: map[string][]upstream.SearchItem{
		"charger": {
			{ItemID: "cheap", Price: 5, SoldCount: 10},
			{ItemID: "ok", Price: 15, SoldCount: 10},
		},
	}}

	r := newTestResolver(catalog, searcher)
	page, err := r.Resolve(context.Background(), Query{
		Text:     "charger",
		PriceMin: ptr(10),
		PriceMax: ptr(20),
		Limit:    10,
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if len(page.Offers) != 1 || page.Offers[0].ID != "ok" {
		t.Errorf("Expected only the in-range item, got %+v", page.Offers)
	}
}

// TestResolve_EmptyLocalUsesUpstream tests the end-to-end scenario:
// local empty, circuit closed, upstream returns 2 items.
func TestResolve_EmptyLocalUsesUpstream(t *testing.T) {
	catalog := &fakeStore{}
	searcher := &fakeSearcher{results: map[string][]upstream.SearchItem{
		"charger": {
			{ItemID: "U1", Price: 9.9, SoldCount: 500},
			{ItemID: "U2", Price: 12.5, SoldCount: 80},
		},
	}}

	r := newTestResolver(catalog, searcher)
	page, err := r.Resolve(context.Background(), Query{Text: "charger", Limit: 10})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if len(page.Offers) != 2 {
		t.Fatalf("Expected 2 offers, got %d", len(page.Offers))
	}
	if page.TotalEstimated != 2 {
		t.Errorf("Expected total 2, got %d", page.TotalEstimated)
	}
	if page.HasMore {
		t.Error("Expected hasMore=false for 2 items with limit 10")
	}
	for _, o := range page.Offers {
		if o.Score < 0 || o.Score > 1 {
			t.Errorf("Score %f outside [0,1]", o.Score)
		}
	}
}

// TestResolve_VariantFallbackToExtractedKeyword tests that the resolver
// walks the plan until the bare category token succeeds, after both full
// phrases fail.
func TestResolve_VariantFallbackToExtractedKeyword(t *testing.T) {
	catalog := &fakeStore{}
	searcher := &fakeSearcher{results: map[string][]upstream.SearchItem{
		"jacket": {{ItemID: "J1", Price: 20, SoldCount: 10}},
	}}

	r := newTestResolver(catalog, searcher)
	page, err := r.Resolve(context.Background(), Query{
		Text:           "黑色夹克",
		TranslatedText: "black jacket",
		Limit:          10,
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if len(page.Offers) != 1 || page.Offers[0].ID != "J1" {
		t.Fatalf("Expected the jacket hit, got %+v", page.Offers)
	}

	// Both full phrases (and the more specific zh noun) must have been
	// tried before the winning bare token.
	want := []string{"黑色夹克", "black jacket", "夹克", "jacket"}
	if len(searcher.searched) != len(want) {
		t.Fatalf("Expected %v, searched %v", want, searcher.searched)
	}
	for i, q := range want {
		if searcher.searched[i] != q {
			t.Errorf("Search %d: expected %q, got %q", i, q, searcher.searched[i])
		}
	}
}

// TestResolve_RecordsFallbackDepth tests that the winning variant's
// position feeds the fallback depth histogram.
func TestResolve_RecordsFallbackDepth(t *testing.T) {
	prev := observability.DefaultMetrics
	m := observability.NewMetrics(prometheus.NewRegistry())
	observability.DefaultMetrics = m
	defer func() { observability.DefaultMetrics = prev }()

	catalog := &fakeStore{}
	searcher := &fakeSearcher{results: map[string][]upstream.SearchItem{
		"jacket": {{ItemID: "J1", Price: 20, SoldCount: 10}},
	}}

	r := newTestResolver(catalog, searcher)
	_, err := r.Resolve(context.Background(), Query{
		Text:           "黑色夹克",
		TranslatedText: "black jacket",
		Limit:          10,
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// The plan is [黑色夹克, black jacket, 夹克, jacket]; the fourth
	// variant wins, so one observation of 4.
	var pb dto.Metric
	if err := m.FallbackDepth.Write(&pb); err != nil {
		t.Fatalf("Reading histogram failed: %v", err)
	}
	if got := pb.Histogram.GetSampleCount(); got != 1 {
		t.Fatalf("Expected 1 observation, got %d", got)
	}
	if got := pb.Histogram.GetSampleSum(); got != 4 {
		t.Errorf("Expected depth 4, got %v", got)
	}
}

// TestResolve_UpstreamFailureDegradesToLocal tests that upstream errors
// never surface: the page silently degrades to local-only.
func TestResolve_UpstreamFailureDegradesToLocal(t *testing.T) {
	catalog := &fakeStore{offers: []store.Offer{
		{ID: "L1", Title: "夹克", Price: 25, Popularity: 0.5},
	}}
	searcher := &fakeSearcher{err: &upstream.HTTPError{Status: 503}}

	r := newTestResolver(catalog, searcher)
	page, err := r.Resolve(context.Background(), Query{Text: "夹克", IncludeUpstream: true, Limit: 10})
	if err != nil {
		t.Fatalf("Upstream failure must not become a caller error, got %v", err)
	}
	if len(page.Offers) != 1 || page.Offers[0].ID != "L1" {
		t.Errorf("Expected the local offer, got %+v", page.Offers)
	}
}

// TestResolve_CircuitOpenYieldsValidEmptyPage tests that a fully dark
// upstream with an empty local catalog produces an empty page and no
// error.
func TestResolve_CircuitOpenYieldsValidEmptyPage(t *testing.T) {
	r := newTestResolver(&fakeStore{}, &fakeSearcher{err: upstream.ErrCircuitOpen})

	page, err := r.Resolve(context.Background(), Query{Text: "charger", Limit: 10})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(page.Offers) != 0 || page.TotalEstimated != 0 || page.HasMore {
		t.Errorf("Expected a valid empty page, got %+v", page)
	}
}

// TestResolve_LocalStoreErrorSurfaces tests that local store failures
// (unlike upstream ones) do propagate.
func TestResolve_LocalStoreErrorSurfaces(t *testing.T) {
	sentinel := errors.New("db locked")
	r := newTestResolver(&fakeStore{err: sentinel}, &fakeSearcher{})

	if _, err := r.Resolve(context.Background(), Query{Text: "x"}); !errors.Is(err, sentinel) {
		t.Errorf("Expected the store error, got %v", err)
	}
}

// TestResolve_Pagination tests offset/limit slicing and the hasMore
// estimate over the merged list.
func TestResolve_Pagination(t *testing.T) {
	var offers []store.Offer
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		offers = append(offers, store.Offer{ID: id, Title: "夹克 " + id, Price: 10})
	}
	r := newTestResolver(&fakeStore{offers: offers}, &fakeSearcher{})

	page, err := r.Resolve(context.Background(), Query{Text: "夹克", Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(page.Offers) != 2 || page.Offers[0].ID != "c" {
		t.Errorf("Expected page [c, d], got %+v", page.Offers)
	}
	if !page.HasMore {
		t.Error("Expected hasMore=true with one row remaining")
	}

	last, err := r.Resolve(context.Background(), Query{Text: "夹克", Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(last.Offers) != 1 || last.HasMore {
		t.Errorf("Expected the final single-row page, got %+v", last)
	}
}

// TestNormalizePopularity tests the clip-and-rescale of the sold-count
// signal.
func TestNormalizePopularity(t *testing.T) {
	cases := []struct {
		sold int64
		min  float64
		max  float64
	}{
		{0, 0, 0},
		{9, 0.19, 0.21},       // log10(10)/5 = 0.2
		{99999, 0.99, 1.0},    // log10(1e5)/5 = 1.0
		{10000000, 1.0, 1.0},  // clipped at 5, rescaled to exactly 1
	}
	for _, tc := range cases {
		got := normalizePopularity(tc.sold)
		if got < tc.min || got > tc.max {
			t.Errorf("normalizePopularity(%d) = %f, want within [%f, %f]", tc.sold, got, tc.min, tc.max)
		}
	}
}

// TestFetchDetails_NilSlotsAndOrder tests that failed items produce nil
// slots in input order and the worker bound is respected.
func TestFetchDetails_NilSlotsAndOrder(t *testing.T) {
	searcher := &fakeSearcher{details: map[string]*upstream.ProductDetail{
		"A": {ItemID: "A"},
		"C": {ItemID: "C"},
	}}
	r := newTestResolver(&fakeStore{}, searcher)

	details := r.FetchDetails(context.Background(), []string{"A", "missing", "C"}, 2)

	if len(details) != 3 {
		t.Fatalf("Expected 3 slots, got %d", len(details))
	}
	if details[0] == nil || details[0].ItemID != "A" {
		t.Errorf("Slot 0 should be A, got %+v", details[0])
	}
	if details[1] != nil {
		t.Errorf("Failed item should leave a nil slot, got %+v", details[1])
	}
	if details[2] == nil || details[2].ItemID != "C" {
		t.Errorf("Slot 2 should be C, got %+v", details[2])
	}
	if searcher.maxSeen > 2 {
		t.Errorf("Concurrency bound exceeded: %d workers observed", searcher.maxSeen)
	}
}
