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
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var rankerTracer = otel.Tracer("aleutian.shop.evidence")

// Lexical scoring weights. A verbatim phrase hit dominates token hits,
// tokens accumulate, and early matches beat buried ones.
const (
	// phraseBonus rewards the full query appearing verbatim.
	phraseBonus = 0.4

	// tokenIncrement rewards each query token present in the passage.
	tokenIncrement = 0.1

	// positionalBonus rewards a token whose first occurrence falls
	// within the passage's leading positionalWindow runes.
	positionalBonus  = 0.1
	positionalWindow = 100

	// citationBonusPerUse and citationBonusCap reward passages prior
	// answers already cited, without letting popularity swamp relevance.
	citationBonusPerUse = 0.02
	citationBonusCap    = 0.1
)

// DefaultLimit is how many passages a rank call returns when the
// caller does not say.
const DefaultLimit = 5

// Ranker scores passages against a query.
//
// # Description
//
// The lexical path is always available and never fails. The semantic
// path runs only when no lexical candidate clears minScore, an embedder
// is configured, and at least one passage carries a vector. A single
// rank call returns results from exactly one path, never a mix.
//
// # Thread Safety
//
// Ranker holds no per-query state and is safe for concurrent use.
type Ranker struct {
	embedder EmbeddingProvider
}

// NewRanker creates a Ranker. embedder may be nil, which disables the
// semantic fallback.
func NewRanker(embedder EmbeddingProvider) *Ranker {
	return &Ranker{embedder: embedder}
}

// Rank scores passages against query and returns the top matches.
//
// # Inputs
//
//   - ctx: Context for cancellation; only the semantic path blocks on it.
//   - query: The shopper's question, matched case-insensitively.
//   - passages: The candidate pool. An empty pool yields an empty result.
//   - minScore: Passages scoring below this are dropped. Negative is
//     treated as 0.
//   - limit: Maximum results; <= 0 uses DefaultLimit.
//
// # Outputs
//
//   - []ScoredPassage: Non-increasing by score, at most limit entries,
//     all with score >= minScore. Never nil on nil error.
//   - error: Only embedding failures on the semantic path; the lexical
//     path cannot fail.
func (r *Ranker) Rank(ctx context.Context, query string, passages []Passage, minScore float64, limit int) ([]ScoredPassage, error) {
	ctx, span := rankerTracer.Start(ctx, "EvidenceRanker.Rank")
	defer span.End()

	if minScore < 0 {
		minScore = 0
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	span.SetAttributes(
		attribute.Int("passages.pool", len(passages)),
		attribute.Float64("rank.min_score", minScore),
	)

	lexical := make([]ScoredPassage, 0, len(passages))
	anyCleared := false
	for _, p := range passages {
		score := lexicalScore(query, p)
		if score >= minScore {
			anyCleared = true
		}
		lexical = append(lexical, ScoredPassage{
			PassageID: p.ID,
			Text:      p.Text,
			Score:     score,
			Citation:  p.Citation(),
		})
	}

	if anyCleared || !r.semanticAvailable(passages) {
		span.SetAttributes(attribute.String("rank.path", "lexical"))
		return selectTop(lexical, minScore, limit), nil
	}

	span.SetAttributes(attribute.String("rank.path", "semantic"))
	semantic, err := r.semanticScore(ctx, query, passages)
	if err != nil {
		return nil, err
	}
	return selectTop(semantic, minScore, limit), nil
}

// semanticAvailable reports whether the semantic fallback can run.
func (r *Ranker) semanticAvailable(passages []Passage) bool {
	if r.embedder == nil {
		return false
	}
	for _, p := range passages {
		if len(p.Embedding) > 0 {
			return true
		}
	}
	return false
}

// semanticScore embeds the query and scores embedded passages by
// cosine similarity. Passages without a vector are skipped rather than
// given a lexical score: the two paths never mix.
func (r *Ranker) semanticScore(ctx context.Context, query string, passages []Passage) ([]ScoredPassage, error) {
	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		slog.Error("Failed to embed query for semantic ranking", "error", err)
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	scored := make([]ScoredPassage, 0, len(passages))
	for _, p := range passages {
		if len(p.Embedding) == 0 {
			continue
		}
		scored = append(scored, ScoredPassage{
			PassageID: p.ID,
			Text:      p.Text,
			Score:     clamp01(cosineSimilarity(queryVec, p.Embedding)),
			Citation:  p.Citation(),
		})
	}
	return scored, nil
}

// lexicalScore computes the heuristic match score for one passage.
func lexicalScore(query string, p Passage) float64 {
	queryLower := strings.ToLower(strings.TrimSpace(query))
	textLower := strings.ToLower(p.Text)
	if queryLower == "" || textLower == "" {
		return 0
	}

	score := 0.0
	if strings.Contains(textLower, queryLower) {
		score += phraseBonus
	}

	for _, token := range strings.Fields(queryLower) {
		idx := strings.Index(textLower, token)
		if idx < 0 {
			continue
		}
		score += tokenIncrement
		if utf8.RuneCountInString(textLower[:idx]) < positionalWindow {
			score += positionalBonus
		}
	}

	confidence := clamp01(p.Confidence)
	score *= 0.5 + confidence*0.5

	citationBonus := float64(p.CitationCount) * citationBonusPerUse
	if citationBonus > citationBonusCap {
		citationBonus = citationBonusCap
	}
	score += citationBonus

	return clamp01(score)
}

// selectTop keeps passages at or above minScore, sorts them by score
// descending (id ascending on ties, so ranking is deterministic), and
// truncates to limit.
func selectTop(scored []ScoredPassage, minScore float64, limit int) []ScoredPassage {
	kept := make([]ScoredPassage, 0, len(scored))
	for _, s := range scored {
		if s.Score >= minScore {
			kept = append(kept, s)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Score != kept[j].Score {
			return kept[i].Score > kept[j].Score
		}
		return kept[i].PassageID < kept[j].PassageID
	})

	if len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}

// cosineSimilarity computes the cosine of the angle between a and b.
// Mismatched lengths or zero vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// clamp01 clamps v to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
