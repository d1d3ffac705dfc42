package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyEmpty(t *testing.T) {
	assert.Equal(t, ClassEmpty, Classify("   ", nil))
}

func TestClassifyQuotedPhrase(t *testing.T) {
	assert.Equal(t, ClassPhrase, Classify(`"annual report"`, nil))
}

func TestClassifyLongQueryIsPhrase(t *testing.T) {
	assert.Equal(t, ClassPhrase, Classify("this is a very long search query", nil))
}

func TestClassifyMatchesKnownCategory(t *testing.T) {
	assert.Equal(t, ClassCategory, Classify("Finance", []string{"Finance", "Legal"}))
}

func TestClassifyShortQuery(t *testing.T) {
	assert.Equal(t, ClassShort, Classify("invoice", nil))
	assert.Equal(t, ClassShort, Classify("invoice 2024", nil))
}

func TestClassifyEntityFromCapitalizedTokens(t *testing.T) {
	assert.Equal(t, ClassEntity, Classify("Acme Corporation annual", nil))
}

func TestClassifyEntityOutranksShortForTwoTokenEntity(t *testing.T) {
	assert.Equal(t, ClassEntity, Classify("Acme Corporation", nil))
}

func TestClassifyGeneralFallback(t *testing.T) {
	assert.Equal(t, ClassGeneral, Classify("quarterly budget summary", nil))
}

func TestWeightsForSumsToOne(t *testing.T) {
	for _, class := range []Class{ClassEmpty, ClassShort, ClassEntity, ClassCategory, ClassPhrase, ClassGeneral} {
		w := WeightsFor(class, false)
		sum := w.Vector + w.Text + w.Taxonomy + w.Quality + w.Freshness + w.Popularity
		assert.InDelta(t, 1.0, sum, 1e-9, "class %s", class)
	}
}

func TestWeightsForFilteredBumpsTaxonomy(t *testing.T) {
	unfiltered := WeightsFor(ClassGeneral, false)
	filtered := WeightsFor(ClassGeneral, true)

	assert.Greater(t, filtered.Taxonomy, unfiltered.Taxonomy)
	assert.InDelta(t, unfiltered.Taxonomy+0.10, filtered.Taxonomy, 1e-9)

	sum := filtered.Vector + filtered.Text + filtered.Taxonomy + filtered.Quality + filtered.Freshness + filtered.Popularity
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestWeightsForFilteredHandlesZeroVectorText(t *testing.T) {
	filtered := WeightsFor(ClassEmpty, true)
	assert.InDelta(t, 0.10, filtered.Taxonomy, 1e-9)
}
