// Package search implements the Search & Relevance engine: query
// classification, multi-factor scoring, and the two-stage Elasticsearch
// hybrid query, combining a knn + bool + rescore search with a weighted
// scoring model for matching free-text queries against the taxonomy.
package search

import (
	"regexp"
	"strings"
)

// Class is the deterministic query classification.
type Class string

const (
	ClassEmpty    Class = "empty"
	ClassShort    Class = "short"
	ClassEntity   Class = "entity"
	ClassPhrase   Class = "phrase"
	ClassCategory Class = "category"
	ClassGeneral  Class = "general"
)

var capitalizedTokenRe = regexp.MustCompile(`^[A-Z][a-zA-Z]*$`)

// Classify assigns a deterministic class to a raw query string, given the
// known primary categories (for the category class).
func Classify(q string, primaryCategories []string) Class {
	trimmed := strings.TrimSpace(q)
	if trimmed == "" {
		return ClassEmpty
	}

	if strings.Contains(trimmed, `"`) {
		return ClassPhrase
	}

	tokens := strings.Fields(trimmed)
	if len(tokens) >= 5 {
		return ClassPhrase
	}

	for _, cat := range primaryCategories {
		if len(tokens) == 1 && strings.EqualFold(tokens[0], cat) {
			return ClassCategory
		}
	}

	capitalized := 0
	for _, t := range tokens {
		if capitalizedTokenRe.MatchString(t) {
			capitalized++
		}
	}
	if capitalized >= 2 {
		return ClassEntity
	}

	if len(tokens) <= 2 {
		return ClassShort
	}

	return ClassGeneral
}

// Weights is the six-factor weight vector; must sum to 1.0.
type Weights struct {
	Vector     float64
	Text       float64
	Taxonomy   float64
	Quality    float64
	Freshness  float64
	Popularity float64
}

var baseWeights = map[Class]Weights{
	ClassEmpty:    {0.00, 0.00, 0.00, 0.50, 0.30, 0.20},
	ClassShort:    {0.50, 0.20, 0.15, 0.05, 0.05, 0.05},
	ClassEntity:   {0.30, 0.35, 0.20, 0.05, 0.05, 0.05},
	ClassCategory: {0.35, 0.15, 0.30, 0.10, 0.05, 0.05},
	ClassPhrase:   {0.30, 0.40, 0.15, 0.05, 0.05, 0.05},
	ClassGeneral:  {0.40, 0.25, 0.15, 0.10, 0.05, 0.05},
}

// WeightsFor returns the weight vector for a class, bumping Taxonomy by 0.10
// and subtracting proportionally from Vector/Text when a taxonomy filter is
// applied ("filtered").
func WeightsFor(class Class, filtered bool) Weights {
	w := baseWeights[class]
	if !filtered {
		return w
	}
	const bump = 0.10
	vtSum := w.Vector + w.Text
	if vtSum <= 0 {
		w.Taxonomy += bump
		return w
	}
	vShare := w.Vector / vtSum
	tShare := w.Text / vtSum
	w.Vector -= bump * vShare
	w.Text -= bump * tShare
	w.Taxonomy += bump
	return w
}
