// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// passageClassName is the Weaviate class holding evidence passages.
const passageClassName = "EvidencePassage"

// defaultListLimit bounds an unqualified passage listing.
const defaultListLimit = 200

// WeaviatePassageStore implements PassageStore over a Weaviate class.
//
// # Description
//
// Passages live in the EvidencePassage class with content, source_type,
// source_id, language, confidence, and citation_count properties.
// Stored vectors come back through _additional.vector so the ranker's
// semantic path can use them without a second round trip.
//
// # Thread Safety
//
// WeaviatePassageStore is safe for concurrent use. The underlying
// Weaviate client handles connection pooling.
type WeaviatePassageStore struct {
	client *weaviate.Client
}

var _ PassageStore = (*WeaviatePassageStore)(nil)

// NewWeaviatePassageStore creates a passage store over client.
func NewWeaviatePassageStore(client *weaviate.Client) *WeaviatePassageStore {
	return &WeaviatePassageStore{client: client}
}

// ListPassages returns passages matching the filter.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - filter: Source type, owning entity id, and language predicates;
//     zero values match everything.
//
// # Outputs
//
//   - []Passage: Matching passages with stored vectors when present.
//   - error: Non-nil if the query or parsing fails.
func (s *WeaviatePassageStore) ListPassages(ctx context.Context, filter Filter) ([]Passage, error) {
	ctx, span := rankerTracer.Start(ctx, "WeaviatePassageStore.ListPassages")
	defer span.End()

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source_type"},
		{Name: "source_id"},
		{Name: "language"},
		{Name: "confidence"},
		{Name: "citation_count"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "vector"},
		}},
	}

	query := s.client.GraphQL().Get().
		WithClassName(passageClassName).
		WithFields(fields...).
		WithLimit(limit)

	if where := buildPassageWhere(filter); where != nil {
		query = query.WithWhere(where)
	}

	result, err := query.Do(ctx)
	if err != nil {
		slog.Error("Failed to query passage class", "error", err)
		return nil, fmt.Errorf("weaviate query failed: %w", err)
	}

	parsed, err := parseGraphQLResponse[passageQueryResponse](result)
	if err != nil {
		slog.Error("Failed to parse passage results", "error", err)
		return nil, fmt.Errorf("failed to parse results: %w", err)
	}

	passages := toPassages(parsed)
	slog.Debug("Listed evidence passages", "count", len(passages))
	return passages, nil
}

// buildPassageWhere combines the filter predicates with AND. Returns
// nil when no predicate is set.
func buildPassageWhere(filter Filter) *filters.WhereBuilder {
	var operands []*filters.WhereBuilder

	if filter.SourceType != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"source_type"}).
			WithOperator(filters.Equal).
			WithValueString(string(filter.SourceType)))
	}
	if filter.SourceID != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"source_id"}).
			WithOperator(filters.Equal).
			WithValueString(filter.SourceID))
	}
	if filter.Language != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"language"}).
			WithOperator(filters.Equal).
			WithValueString(filter.Language))
	}

	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	default:
		return filters.Where().
			WithOperator(filters.And).
			WithOperands(operands)
	}
}

// =============================================================================
// Response Parsing
// =============================================================================

// passageQueryResponse is the typed shape of an EvidencePassage query.
type passageQueryResponse struct {
	Get struct {
		EvidencePassage []passageResult `json:"EvidencePassage"`
	} `json:"Get"`
}

// passageResult is a single passage object from a query.
type passageResult struct {
	Content       string   `json:"content"`
	SourceType    string   `json:"source_type"`
	SourceID      string   `json:"source_id"`
	Language      string   `json:"language"`
	Confidence    *float64 `json:"confidence"`
	CitationCount *int     `json:"citation_count"`
	Additional    struct {
		ID     string    `json:"id"`
		Vector []float32 `json:"vector"`
	} `json:"_additional"`
}

// parseGraphQLResponse unmarshals the data portion of a GraphQL
// response into a typed target via a JSON round trip.
func parseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}

// toPassages converts query results to Passage values. Confidence
// defaults to 1 when the property is absent so legacy rows still rank.
func toPassages(resp *passageQueryResponse) []Passage {
	if resp == nil {
		return []Passage{}
	}

	passages := make([]Passage, 0, len(resp.Get.EvidencePassage))
	for _, row := range resp.Get.EvidencePassage {
		confidence := 1.0
		if row.Confidence != nil {
			confidence = *row.Confidence
		}
		citations := 0
		if row.CitationCount != nil {
			citations = *row.CitationCount
		}

		passages = append(passages, Passage{
			ID:            row.Additional.ID,
			Text:          row.Content,
			SourceType:    SourceType(row.SourceType),
			SourceID:      row.SourceID,
			Language:      row.Language,
			Embedding:     row.Additional.Vector,
			Confidence:    confidence,
			CitationCount: citations,
		})
	}
	return passages
}
