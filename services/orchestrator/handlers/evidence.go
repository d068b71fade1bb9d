// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianShop/services/evidence"
	"github.com/AleutianAI/AleutianShop/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianShop/services/orchestrator/observability"
)

// PassageRanker scores a passage pool against a query.
type PassageRanker interface {
	Rank(ctx context.Context, query string, passages []evidence.Passage, minScore float64, limit int) ([]evidence.ScoredPassage, error)
}

// SearchEvidence handles POST /v1/evidence/search.
//
// # Description
//
// Lists candidate passages from the passage store, ranks them against the
// query, and returns the scored survivors with deterministic citations.
// An unavailable passage store is a hard failure (503): unlike catalog
// search there is no local pool to degrade to, and returning fabricated
// evidence would be worse than returning none.
func SearchEvidence(passages evidence.PassageStore, ranker PassageRanker) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.EvidenceSearchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			recordRequest(observability.EndpointEvidenceSearch, false)
			return
		}
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			recordRequest(observability.EndpointEvidenceSearch, false)
			return
		}

		pool, err := passages.ListPassages(c.Request.Context(), req.ToFilter())
		if err != nil {
			slog.Error("Passage listing failed", "product_id", req.ProductID, "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Evidence store unavailable"})
			recordRequest(observability.EndpointEvidenceSearch, false)
			return
		}

		ranked, err := ranker.Rank(c.Request.Context(), req.Query, pool, req.MinScore, req.Limit)
		if err != nil {
			slog.Error("Evidence ranking failed", "query", req.Query, "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "Ranking failed"})
			recordRequest(observability.EndpointEvidenceSearch, false)
			return
		}

		recordRequest(observability.EndpointEvidenceSearch, true)
		c.JSON(http.StatusOK, datatypes.NewEvidenceSearchResponse(ranked))
	}
}
