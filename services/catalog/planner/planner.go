// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package planner produces the ordered sequence of query variants tried
// against the upstream marketplace when a shopper's phrasing does not
// match upstream indexing.
//
// Queries arrive in up to two languages with no guarantee either matches.
// The planner only decides whom to ask and with what substitute phrasing;
// it never invents results and never merges results across variants.
// The caller stops at the first variant that returns anything, so results
// always come from a single relevance model.
package planner

import "unicode"

// Origin tags how a query variant was derived.
type Origin string

const (
	// OriginOriginal is the shopper's phrase as typed.
	OriginOriginal Origin = "original"

	// OriginTranslated is the agent-supplied translation of the phrase.
	OriginTranslated Origin = "translated"

	// OriginKeyword is a single category noun extracted from a phrase.
	OriginKeyword Origin = "extracted-keyword"
)

// QueryVariant is one candidate query, ephemeral to a single resolution
// request. Lower Priority is tried earlier.
type QueryVariant struct {
	Text     string
	Origin   Origin
	Priority int
}

// Planner builds fallback plans for one marketplace, whose preferred
// indexing language is fixed at construction.
//
// # Thread Safety
//
// Planner is immutable after construction and safe for concurrent use.
type Planner struct {
	preferredLang string
	vocab         *Vocabulary
}

// New creates a Planner. preferredLang is the language the upstream
// indexes best ("zh" or "en"). A nil vocab uses DefaultVocabulary.
func New(preferredLang string, vocab *Vocabulary) *Planner {
	if preferredLang == "" {
		preferredLang = "zh"
	}
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	return &Planner{preferredLang: preferredLang, vocab: vocab}
}

// Plan returns the ordered variants to try for the given query pair.
//
// # Policy
//
//  1. The full phrase written in the upstream's preferred language goes
//     first; that index performs best for native-language text.
//  2. The other full phrase follows.
//  3. Category nouns extracted from the original text, most specific
//     first.
//  4. The same extraction over the translated text.
//
// Duplicated texts are emitted once, keeping their earliest position.
// With two empty inputs the plan is empty; the planner never invents
// query text.
func (p *Planner) Plan(originalText, translatedText string) []QueryVariant {
	var ordered []QueryVariant

	phraseFirst, phraseSecond := originalText, translatedText
	firstOrigin, secondOrigin := OriginOriginal, OriginTranslated
	if originalText == "" || !writtenIn(originalText, p.preferredLang) {
		phraseFirst, phraseSecond = translatedText, originalText
		firstOrigin, secondOrigin = OriginTranslated, OriginOriginal
	}

	if phraseFirst != "" {
		ordered = append(ordered, QueryVariant{Text: phraseFirst, Origin: firstOrigin})
	}
	if phraseSecond != "" {
		ordered = append(ordered, QueryVariant{Text: phraseSecond, Origin: secondOrigin})
	}

	for _, token := range p.vocab.Extract(originalText, languageOf(originalText)) {
		ordered = append(ordered, QueryVariant{Text: token, Origin: OriginKeyword})
	}
	for _, token := range p.vocab.Extract(translatedText, languageOf(translatedText)) {
		ordered = append(ordered, QueryVariant{Text: token, Origin: OriginKeyword})
	}

	seen := make(map[string]bool, len(ordered))
	variants := ordered[:0]
	for _, v := range ordered {
		if v.Text == "" || seen[v.Text] {
			continue
		}
		seen[v.Text] = true
		v.Priority = len(variants)
		variants = append(variants, v)
	}
	return variants
}

// writtenIn reports whether text plausibly belongs to lang.
func writtenIn(text, lang string) bool {
	return languageOf(text) == lang
}

// languageOf guesses between "zh" and "en" by script: any meaningful
// share of Han runes marks the text as Chinese.
func languageOf(text string) string {
	if text == "" {
		return ""
	}
	han, letters := 0, 0
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			han++
			letters++
		} else if unicode.IsLetter(r) {
			letters++
		}
	}
	if letters == 0 {
		return "en"
	}
	if float64(han)/float64(letters) >= 0.25 {
		return "zh"
	}
	return "en"
}
