package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"doccatalog-go/internal/apperr"
	"doccatalog-go/pkg/es"
)

// esHit is one hit's _source plus its raw ES score.
type esHit struct {
	Source es.IndexedDocument `json:"_source"`
	Score  float64            `json:"_score"`
}

type esSearchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []esHit `json:"hits"`
	} `json:"hits"`
}

// buildHybridQuery follows a knn+bool+rescore shape, widening
// the internal candidate pool to topK*30 the same way, but filters on
// taxonomy term ids / primary category instead of org_tag/user_id/is_public.
func buildHybridQuery(queryText string, queryVector []float32, canonicalTermID *uint, primaryCategory string, topK int) map[string]interface{} {
	recall := topK * 30
	if recall < topK {
		recall = topK
	}

	boolQuery := map[string]interface{}{}
	if queryText != "" {
		boolQuery["must"] = map[string]interface{}{
			"match": map[string]interface{}{"full_text_index": queryText},
		}
	} else {
		boolQuery["must"] = map[string]interface{}{"match_all": map[string]interface{}{}}
	}

	var filters []map[string]interface{}
	if canonicalTermID != nil {
		filters = append(filters, map[string]interface{}{"term": map[string]interface{}{"taxonomy_term_ids": *canonicalTermID}})
	}
	if primaryCategory != "" {
		filters = append(filters, map[string]interface{}{"term": map[string]interface{}{"primary_category": primaryCategory}})
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}

	query := map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
		"size":  topK,
	}

	if len(queryVector) > 0 {
		query["knn"] = map[string]interface{}{
			"field":          "vector",
			"query_vector":   queryVector,
			"k":              recall,
			"num_candidates": recall,
		}
	}

	if queryText != "" {
		query["rescore"] = map[string]interface{}{
			"window_size": recall,
			"query": map[string]interface{}{
				"rescore_query": map[string]interface{}{
					"match": map[string]interface{}{
						"full_text_index": map[string]interface{}{"query": queryText, "operator": "and"},
					},
				},
				"query_weight":         0.2,
				"rescore_query_weight": 1.0,
			},
		}
	}

	return query
}

func executeSearch(ctx context.Context, indexName string, query map[string]interface{}) (esSearchResponse, error) {
	var out esSearchResponse
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return out, apperr.Wrap(apperr.KindInternal, "failed to encode elasticsearch query", err)
	}

	res, err := es.ESClient.Search(
		es.ESClient.Search.WithContext(ctx),
		es.ESClient.Search.WithIndex(indexName),
		es.ESClient.Search.WithBody(&buf),
		es.ESClient.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		return out, apperr.Wrap(apperr.KindTransient, "elasticsearch search request failed", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return out, apperr.New(apperr.KindTransient, fmt.Sprintf("elasticsearch returned an error: %s", string(body)))
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return out, apperr.Wrap(apperr.KindInternal, "failed to decode elasticsearch response", err)
	}
	return out, nil
}

// facetBuckets fetches the primary_category/subcategory terms aggregation
// over the unfiltered corpus, for the page-1 facets envelope.
func facetBuckets(ctx context.Context, indexName string) (map[string]int64, map[string]int64, error) {
	query := map[string]interface{}{
		"size": 0,
		"aggs": map[string]interface{}{
			"primary_categories": map[string]interface{}{"terms": map[string]interface{}{"field": "primary_category", "size": 100}},
			"subcategories":       map[string]interface{}{"terms": map[string]interface{}{"field": "subcategory", "size": 100}},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return nil, nil, apperr.Wrap(apperr.KindInternal, "failed to encode facets query", err)
	}
	res, err := es.ESClient.Search(
		es.ESClient.Search.WithContext(ctx),
		es.ESClient.Search.WithIndex(indexName),
		es.ESClient.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.KindTransient, "elasticsearch facets request failed", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, nil, apperr.New(apperr.KindTransient, fmt.Sprintf("elasticsearch facets error: %s", string(body)))
	}

	var decoded struct {
		Aggregations struct {
			PrimaryCategories struct {
				Buckets []struct {
					Key   string `json:"key"`
					Count int64  `json:"doc_count"`
				} `json:"buckets"`
			} `json:"primary_categories"`
			Subcategories struct {
				Buckets []struct {
					Key   string `json:"key"`
					Count int64  `json:"doc_count"`
				} `json:"buckets"`
			} `json:"subcategories"`
		} `json:"aggregations"`
	}
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return nil, nil, apperr.Wrap(apperr.KindInternal, "failed to decode facets response", err)
	}

	primary := make(map[string]int64)
	for _, b := range decoded.Aggregations.PrimaryCategories.Buckets {
		primary[b.Key] = b.Count
	}
	sub := make(map[string]int64)
	for _, b := range decoded.Aggregations.Subcategories.Buckets {
		sub[b.Key] = b.Count
	}
	return primary, sub, nil
}
