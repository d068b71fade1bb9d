// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"strings"
	"testing"
)

func float64Ptr(v float64) *float64 { return &v }

// manyIDs builds n non-empty ids so only the max rule trips.
func manyIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = "p"
	}
	return ids
}

func TestProductSearchRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     ProductSearchRequest
		wantErr bool
	}{
		{
			name: "minimal valid request",
			req:  ProductSearchRequest{Query: "无线耳机"},
		},
		{
			name: "full valid request",
			req: ProductSearchRequest{
				Query:           "black jacket",
				TranslatedQuery: "黑色夹克",
				PriceMin:        float64Ptr(10),
				PriceMax:        float64Ptr(200),
				CategoryID:      "apparel",
				Limit:           50,
				Offset:          100,
				IncludeUpstream: true,
			},
		},
		{
			name:    "missing query",
			req:     ProductSearchRequest{Limit: 10},
			wantErr: true,
		},
		{
			name:    "query over byte budget",
			req:     ProductSearchRequest{Query: strings.Repeat("q", MaxQueryBytes+1)},
			wantErr: true,
		},
		{
			name: "multibyte query within budget",
			req:  ProductSearchRequest{Query: strings.Repeat("夹", MaxQueryBytes/3)},
		},
		{
			name:    "limit over cap",
			req:     ProductSearchRequest{Query: "mug", Limit: MaxPageLimit + 1},
			wantErr: true,
		},
		{
			name:    "negative offset",
			req:     ProductSearchRequest{Query: "mug", Offset: -1},
			wantErr: true,
		},
		{
			name:    "negative price bound",
			req:     ProductSearchRequest{Query: "mug", PriceMin: float64Ptr(-5)},
			wantErr: true,
		},
		{
			name: "inverted price range",
			req: ProductSearchRequest{
				Query:    "mug",
				PriceMin: float64Ptr(100),
				PriceMax: float64Ptr(10),
			},
			wantErr: true,
		},
		{
			name: "equal price bounds are fine",
			req: ProductSearchRequest{
				Query:    "mug",
				PriceMin: float64Ptr(25),
				PriceMax: float64Ptr(25),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestProductSearchRequest_ToQuery(t *testing.T) {
	req := ProductSearchRequest{
		Query:           "黑色夹克",
		TranslatedQuery: "black jacket",
		PriceMin:        float64Ptr(10),
		PriceMax:        float64Ptr(99.5),
		CategoryID:      "apparel",
		Limit:           20,
		Offset:          40,
		IncludeUpstream: true,
	}

	q := req.ToQuery()

	if q.Text != req.Query || q.TranslatedText != req.TranslatedQuery {
		t.Errorf("query text mismatch: got %q/%q", q.Text, q.TranslatedText)
	}
	if q.PriceMin == nil || *q.PriceMin != 10 || q.PriceMax == nil || *q.PriceMax != 99.5 {
		t.Errorf("price bounds not carried over: %v %v", q.PriceMin, q.PriceMax)
	}
	if q.CategoryID != "apparel" || q.Limit != 20 || q.Offset != 40 || !q.IncludeUpstream {
		t.Errorf("filter fields not carried over: %+v", q)
	}
}

func TestBatchDetailsRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     BatchDetailsRequest
		wantErr bool
	}{
		{
			name: "valid batch",
			req:  BatchDetailsRequest{IDs: []string{"p-1", "p-2"}},
		},
		{
			name:    "empty ids",
			req:     BatchDetailsRequest{IDs: []string{}},
			wantErr: true,
		},
		{
			name:    "nil ids",
			req:     BatchDetailsRequest{},
			wantErr: true,
		},
		{
			name:    "blank id inside batch",
			req:     BatchDetailsRequest{IDs: []string{"p-1", ""}},
			wantErr: true,
		},
		{
			name:    "too many ids",
			req:     BatchDetailsRequest{IDs: manyIDs(MaxBatchDetailIDs + 1)},
			wantErr: true,
		},
		{
			name:    "negative workers",
			req:     BatchDetailsRequest{IDs: []string{"p-1"}, Workers: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEvidenceSearchRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     EvidenceSearchRequest
		wantErr bool
	}{
		{
			name: "minimal valid request",
			req:  EvidenceSearchRequest{Query: "does it survive rain"},
		},
		{
			name: "full valid request",
			req: EvidenceSearchRequest{
				Query:      "这个防水吗",
				ProductID:  "prod-7",
				SourceType: "review",
				Language:   "zh",
				MinScore:   0.35,
				Limit:      10,
			},
		},
		{
			name:    "missing query",
			req:     EvidenceSearchRequest{SourceType: "review"},
			wantErr: true,
		},
		{
			name:    "unknown source type",
			req:     EvidenceSearchRequest{Query: "q", SourceType: "blog"},
			wantErr: true,
		},
		{
			name:    "unknown language",
			req:     EvidenceSearchRequest{Query: "q", Language: "fr"},
			wantErr: true,
		},
		{
			name:    "min score above one",
			req:     EvidenceSearchRequest{Query: "q", MinScore: 1.5},
			wantErr: true,
		},
		{
			name:    "limit over cap",
			req:     EvidenceSearchRequest{Query: "q", Limit: 51},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEvidenceSearchRequest_ToFilter(t *testing.T) {
	req := EvidenceSearchRequest{
		Query:      "防水",
		ProductID:  "prod-7",
		SourceType: "qa",
		Language:   "zh",
	}

	f := req.ToFilter()
	if string(f.SourceType) != "qa" || f.SourceID != "prod-7" || f.Language != "zh" {
		t.Errorf("filter mismatch: %+v", f)
	}
}

func TestNewResponses_StampIdentity(t *testing.T) {
	sr := NewProductSearchResponse(nil)
	if sr.RequestID == "" || sr.Timestamp == 0 {
		t.Errorf("search response missing identity: %+v", sr)
	}

	br := NewBatchDetailsResponse(nil)
	if br.RequestID == "" || br.Timestamp == 0 {
		t.Errorf("batch response missing identity: %+v", br)
	}

	er := NewEvidenceSearchResponse(nil)
	if er.RequestID == "" || er.Timestamp == 0 {
		t.Errorf("evidence response missing identity: %+v", er)
	}

	if sr.RequestID == br.RequestID {
		t.Error("request ids should be unique per response")
	}
}
