package search

import "math"

// Candidate is one document surfaced by the Elasticsearch candidate set,
// carrying the raw per-factor signals the scorer combines.
type Candidate struct {
	DocumentID      uint
	VectorScore     float64 // raw ES knn cosine score, 0 if no vector
	TextRank        int     // 1-based BM25 rank within the candidate set, 0 if absent
	MaxTextRank     int     // top rank in the candidate set, for normalization
	TaxonomyExact   bool    // mapped term equals q or canonical_term
	CategoryMatch   bool    // primary category match
	KeywordBonus    bool    // keyword-mapping bonus applies
	HasExtractedText bool
	HasSummary      bool
	HasVector       bool
	HasTaxonomyMap  bool
	MappingCount    int
	CreatedAtUnix   int64
	NowUnix         int64
}

// Scored is a Candidate plus its final weighted score.
type Scored struct {
	Candidate
	Score float64
}

func textScore(c Candidate) float64 {
	if c.TextRank <= 0 || c.MaxTextRank <= 0 {
		return 0
	}
	return 1.0 - float64(c.TextRank-1)/float64(c.MaxTextRank)
}

func taxonomyScore(c Candidate) float64 {
	switch {
	case c.TaxonomyExact:
		return 1.0
	case c.CategoryMatch:
		return 0.7
	case c.KeywordBonus:
		return 0.4
	default:
		return 0
	}
}

func qualityScore(c Candidate) float64 {
	present := 0
	if c.HasExtractedText {
		present++
	}
	if c.HasSummary {
		present++
	}
	if c.HasVector {
		present++
	}
	if c.HasTaxonomyMap {
		present++
	}
	switch present {
	case 0:
		return 0
	case 1:
		return 0.33
	case 2:
		return 0.66
	default:
		return 1.0
	}
}

func freshnessScore(c Candidate) float64 {
	ageDays := float64(c.NowUnix-c.CreatedAtUnix) / 86400.0
	switch {
	case ageDays <= 30:
		return 1.0
	case ageDays <= 90:
		return 0.6
	default:
		return 0.2
	}
}

func popularityScore(quality float64, mappingCount int) float64 {
	v := quality + 0.1*math.Log1p(float64(mappingCount))
	if v > 1.0 {
		return 1.0
	}
	return v
}

// Score combines a candidate's normalized per-factor signals with the given
// weights into a single [0,1]-ish relevance score.
func Score(c Candidate, w Weights) Scored {
	v := c.VectorScore
	if !c.HasVector {
		v = 0
	}
	t := textScore(c)
	tx := taxonomyScore(c)
	q := qualityScore(c)
	f := freshnessScore(c)
	p := popularityScore(q, c.MappingCount)

	score := w.Vector*v + w.Text*t + w.Taxonomy*tx + w.Quality*q + w.Freshness*f + w.Popularity*p
	return Scored{Candidate: c, Score: score}
}

// LegacyScore implements the config-gated fallback blend (V=0.7, T=0.3), no
// classification, matching the plain "simple" search path.
func LegacyScore(c Candidate) Scored {
	v := c.VectorScore
	if !c.HasVector {
		v = 0
	}
	t := textScore(c)
	return Scored{Candidate: c, Score: 0.7*v + 0.3*t}
}
