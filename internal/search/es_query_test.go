package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildHybridQueryPlainText(t *testing.T) {
	q := buildHybridQuery("invoice", nil, nil, "", 10)

	assert.Equal(t, 10, q["size"])
	assert.NotContains(t, q, "knn")

	rescore, ok := q["rescore"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 300, rescore["window_size"])
}

func TestBuildHybridQueryWithVector(t *testing.T) {
	vec := []float32{0.1, 0.2, 0.3}
	q := buildHybridQuery("", vec, nil, "", 5)

	knn, ok := q["knn"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 150, knn["k"])
	assert.Equal(t, 150, knn["num_candidates"])

	assert.NotContains(t, q, "rescore")

	boolQuery := q["query"].(map[string]interface{})["bool"].(map[string]interface{})
	must := boolQuery["must"].(map[string]interface{})
	assert.Contains(t, must, "match_all")
}

func TestBuildHybridQueryAppliesFilters(t *testing.T) {
	var termID uint = 42
	q := buildHybridQuery("report", nil, &termID, "Finance", 10)

	boolQuery := q["query"].(map[string]interface{})["bool"].(map[string]interface{})
	filters, ok := boolQuery["filter"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, filters, 2)
}

func TestBuildHybridQueryRecallNeverBelowTopK(t *testing.T) {
	q := buildHybridQuery("x", []float32{0.1}, nil, "", 1)
	knn := q["knn"].(map[string]interface{})
	assert.GreaterOrEqual(t, knn["k"].(int), 1)
}
