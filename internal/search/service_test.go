package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaultsFillsUnsetFields(t *testing.T) {
	req := applyDefaults(Request{})
	assert.Equal(t, "relevance", req.SortBy)
	assert.Equal(t, "desc", req.SortDirection)
	assert.Equal(t, 12, req.PerPage)
	assert.Equal(t, 1, req.Page)
}

func TestApplyDefaultsCapsPerPageAt50(t *testing.T) {
	req := applyDefaults(Request{PerPage: 500})
	assert.Equal(t, 50, req.PerPage)
}

func TestApplyDefaultsPreservesExplicitValues(t *testing.T) {
	req := applyDefaults(Request{SortBy: "created_at", SortDirection: "asc", PerPage: 20, Page: 3})
	assert.Equal(t, "created_at", req.SortBy)
	assert.Equal(t, "asc", req.SortDirection)
	assert.Equal(t, 20, req.PerPage)
	assert.Equal(t, 3, req.Page)
}

func TestContainsTermID(t *testing.T) {
	assert.True(t, containsTermID([]uint{1, 2, 3}, 2))
	assert.False(t, containsTermID([]uint{1, 2, 3}, 9))
	assert.False(t, containsTermID(nil, 1))
}

func TestCacheKeyIsStableAndDistinguishesRequests(t *testing.T) {
	s := &Service{}
	a := s.cacheKey(Request{Q: "invoice", Page: 1, PerPage: 12})
	b := s.cacheKey(Request{Q: "invoice", Page: 1, PerPage: 12})
	c := s.cacheKey(Request{Q: "contract", Page: 1, PerPage: 12})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, searchCacheTTL)
}

func TestFmtHashProducesFixedWidthHex(t *testing.T) {
	assert.Len(t, fmtHash(0), 16)
	assert.Equal(t, "0000000000000000", fmtHash(0))
	assert.Len(t, fmtHash(^uint64(0)), 16)
}
