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
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianShop/services/evidence"
)

// =============================================================================
// Evidence Search
// =============================================================================

// EvidenceSearchRequest is the body of POST /v1/evidence/search.
//
// # Fields
//
//   - Query: Required. The claim or question to ground, any language.
//   - ProductID: Optional. Restricts the passage pool to one product.
//   - SourceType: Optional. One of review, description, qa, policy.
//   - Language: Optional. zh or en; empty searches both.
//   - MinScore: Relevance floor in [0,1]. Passages below it are dropped.
//   - Limit: Max passages returned; 0 uses the ranker default.
type EvidenceSearchRequest struct {
	Query      string  `json:"query" validate:"required,querybytes"`
	ProductID  string  `json:"product_id"`
	SourceType string  `json:"source_type" validate:"omitempty,oneof=review description qa policy"`
	Language   string  `json:"language" validate:"omitempty,oneof=zh en"`
	MinScore   float64 `json:"min_score" validate:"gte=0,lte=1"`
	Limit      int     `json:"limit" validate:"gte=0,lte=50"`
}

// Validate validates the EvidenceSearchRequest fields.
func (r *EvidenceSearchRequest) Validate() error {
	return catalogValidate.Struct(r)
}

// ToFilter converts the request into a passage store filter.
func (r *EvidenceSearchRequest) ToFilter() evidence.Filter {
	return evidence.Filter{
		SourceType: evidence.SourceType(r.SourceType),
		SourceID:   r.ProductID,
		Language:   r.Language,
	}
}

// EvidenceSearchResponse carries the ranked, cited passages.
type EvidenceSearchResponse struct {
	RequestID string                   `json:"request_id"`
	Timestamp int64                    `json:"timestamp"`
	Passages  []evidence.ScoredPassage `json:"passages"`
}

// NewEvidenceSearchResponse stamps ranked passages with response identity.
func NewEvidenceSearchResponse(passages []evidence.ScoredPassage) EvidenceSearchResponse {
	return EvidenceSearchResponse{
		RequestID: uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
		Passages:  passages,
	}
}
