// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package planner

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Vocabulary is the curated set of product-category nouns used for
// keyword extraction when full-phrase queries come up empty.
//
// Terms are keyed by language ("zh", "en"). Extraction prefers the most
// specific match: longer terms are tried before shorter, so 充电器
// (charger) beats 器 and "phone case" beats "case".
type Vocabulary struct {
	Terms map[string][]string `yaml:"terms"`
}

// DefaultVocabulary returns the built-in category vocabulary. It covers
// the common sourcing categories; deployments extend it via a YAML file.
func DefaultVocabulary() *Vocabulary {
	return &Vocabulary{
		Terms: map[string][]string{
			"zh": {
				"羽绒服", "连衣裙", "充电器", "数据线", "保温杯", "手机壳",
				"蓝牙耳机", "夹克", "外套", "衬衫", "裤子", "毛衣", "围巾",
				"耳机", "音箱", "背包", "手套", "帽子", "袜子", "鞋",
				"台灯", "水杯", "玩具", "雨伞", "毛毯", "枕头",
			},
			"en": {
				"phone case", "power bank", "water bottle", "desk lamp",
				"bluetooth speaker", "charger", "jacket", "coat", "shirt",
				"dress", "sweater", "scarf", "pants", "shoes", "boots",
				"backpack", "gloves", "socks", "headphones", "earbuds",
				"cable", "blanket", "pillow", "umbrella", "toy", "hat",
			},
		},
	}
}

// LoadVocabulary reads a YAML vocabulary file and merges it over the
// defaults, so deployments only list their additions.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary file: %w", err)
	}

	var loaded Vocabulary
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary file: %w", err)
	}

	merged := DefaultVocabulary()
	for lang, terms := range loaded.Terms {
		merged.Terms[lang] = append(merged.Terms[lang], terms...)
	}
	return merged, nil
}

// Extract returns the vocabulary terms found in text for the given
// language, most specific (longest) first, without duplicates.
//
// Chinese terms match by substring since the text carries no word
// boundaries; Latin-script terms match case-insensitively on word
// boundaries so "cable" does not fire inside "vocables".
func (v *Vocabulary) Extract(text, lang string) []string {
	terms := v.Terms[lang]
	if text == "" || len(terms) == 0 {
		return nil
	}

	lowered := strings.ToLower(text)
	seen := make(map[string]bool)
	var found []string
	for _, term := range terms {
		if seen[term] {
			continue
		}
		if containsTerm(lowered, strings.ToLower(term)) {
			seen[term] = true
			found = append(found, term)
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		return len([]rune(found[i])) > len([]rune(found[j]))
	})
	return found
}

// containsTerm reports whether term occurs in text, requiring word
// boundaries when the term starts or ends with a Latin letter.
func containsTerm(text, term string) bool {
	idx := strings.Index(text, term)
	for idx >= 0 {
		if boundaryOK(text, idx, len(term)) {
			return true
		}
		next := strings.Index(text[idx+1:], term)
		if next < 0 {
			return false
		}
		idx = idx + 1 + next
	}
	return false
}

// boundaryOK checks the runes adjacent to a match at [idx, idx+n).
func boundaryOK(text string, idx, n int) bool {
	runes := []rune(term(text, idx, n))
	if len(runes) == 0 {
		return false
	}
	first, last := runes[0], runes[len(runes)-1]

	if isLatinLetter(first) {
		before := lastRuneBefore(text, idx)
		if isLatinLetter(before) {
			return false
		}
	}
	if isLatinLetter(last) {
		after := firstRuneAt(text, idx+n)
		if isLatinLetter(after) {
			return false
		}
	}
	return true
}

func term(text string, idx, n int) string {
	return text[idx : idx+n]
}

func lastRuneBefore(text string, idx int) rune {
	if idx <= 0 {
		return 0
	}
	r := rune(0)
	for _, c := range text[:idx] {
		r = c
	}
	return r
}

func firstRuneAt(text string, idx int) rune {
	if idx >= len(text) {
		return 0
	}
	for _, c := range text[idx:] {
		return c
	}
	return 0
}

func isLatinLetter(r rune) bool {
	return r != 0 && r < unicode.MaxASCII && unicode.IsLetter(r)
}
