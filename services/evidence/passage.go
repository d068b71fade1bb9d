// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package evidence scores stored text passages against a shopper query
// and returns a ranked, citation-annotated result set. Passages live in
// an external store; this package reads them and never mutates them.
// Citation-count increments belong to the calling system.
package evidence

import (
	"context"
	"fmt"
)

// SourceType categorizes where a passage came from.
type SourceType string

const (
	// SourceReview is a buyer review attached to a product.
	SourceReview SourceType = "review"

	// SourceDescription is seller-authored product copy.
	SourceDescription SourceType = "description"

	// SourceQA is a question/answer exchange on a product page.
	SourceQA SourceType = "qa"

	// SourcePolicy is store policy text (shipping, returns).
	SourcePolicy SourceType = "policy"
)

// Passage is one stored evidence text. It is persisted externally and
// read-only here.
type Passage struct {
	// ID uniquely identifies the passage in the store.
	ID string `json:"id"`

	// Text is the passage body.
	Text string `json:"text"`

	// SourceType categorizes the passage origin.
	SourceType SourceType `json:"source_type"`

	// SourceID is the owning entity (product or store id).
	SourceID string `json:"source_id"`

	// Language is a BCP-47-ish tag ("zh", "en").
	Language string `json:"language"`

	// Embedding is an optional precomputed vector. Comparable by cosine
	// similarity only against vectors from the same provider.
	Embedding []float32 `json:"embedding,omitempty"`

	// Confidence in [0,1] reflects how trustworthy the source is.
	Confidence float64 `json:"confidence"`

	// CitationCount is how many times prior answers cited this passage.
	CitationCount int `json:"citation_count"`
}

// Citation derives the passage's citation string. It depends only on
// the source identifiers, so the same passage always cites identically.
func (p Passage) Citation() string {
	return fmt.Sprintf("%s:%s#%s", p.SourceType, p.SourceID, p.ID)
}

// ScoredPassage is one ranked result. Ephemeral, per-query.
type ScoredPassage struct {
	PassageID string  `json:"passage_id"`
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
	Citation  string  `json:"citation"`
}

// Filter narrows a passage listing. Zero values mean "any".
type Filter struct {
	SourceType SourceType
	SourceID   string
	Language   string

	// Limit caps the number of passages fetched; <= 0 uses the store
	// default.
	Limit int
}

// PassageStore is the read interface over the external passage store.
type PassageStore interface {
	// ListPassages returns passages matching the filter. Order is
	// store-defined; ranking happens elsewhere.
	ListPassages(ctx context.Context, filter Filter) ([]Passage, error)
}
