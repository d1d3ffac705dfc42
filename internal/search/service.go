package search

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sort"
	"time"

	"doccatalog-go/internal/ai"
	"doccatalog-go/internal/broker"
	"doccatalog-go/internal/config"
	"doccatalog-go/internal/repository"
	"doccatalog-go/internal/taxonomy"
	"doccatalog-go/pkg/log"
)

const (
	candidateTopK  = 100
	facetsCacheKey = "facets:enhanced:all"
	searchCacheTTL = "search:"
)

// Request is the Search & Relevance engine's input; Search applies the
// defaults for sort, page and page size itself.
type Request struct {
	Q               string
	CanonicalTerm   string
	PrimaryCategory string
	SortBy          string
	SortDirection   string
	Page            int
	PerPage         int
}

// DocumentResult is one scored document in a Response.
type DocumentResult struct {
	DocumentID uint    `json:"document_id"`
	Filename   string  `json:"filename"`
	Score      float64 `json:"score"`
}

// Pagination describes the current page within the full result set.
type Pagination struct {
	Page    int  `json:"page"`
	PerPage int  `json:"per_page"`
	Total   int64 `json:"total"`
	HasNext bool `json:"has_next"`
}

// Facets is the page-1-only category/subcategory breakdown.
type Facets struct {
	PrimaryCategories map[string]int64 `json:"primary_categories"`
	Subcategories     map[string]int64 `json:"subcategories"`
}

// Response is the Search & Relevance engine's output envelope.
type Response struct {
	Documents  []DocumentResult `json:"documents"`
	Pagination Pagination       `json:"pagination"`
	TotalCount int64            `json:"total_count"`
	Facets     *Facets          `json:"facets,omitempty"`
}

// Service is the Search & Relevance engine's public surface.
type Service struct {
	repo     repository.DocumentRepository
	broker   broker.Broker
	gateway  *ai.Gateway
	taxonomy *taxonomy.Engine
	cfg      config.SearchConfig
	esIndex  string
}

// NewService builds a Service.
func NewService(repo repository.DocumentRepository, b broker.Broker, gateway *ai.Gateway, tax *taxonomy.Engine, cfg config.SearchConfig, esIndex string) *Service {
	return &Service{repo: repo, broker: b, gateway: gateway, taxonomy: tax, cfg: cfg, esIndex: esIndex}
}

// Search answers one query, applying defaults, caching, classification,
// scoring, pagination and facets.
func (s *Service) Search(ctx context.Context, req Request) (Response, error) {
	req = applyDefaults(req)

	cacheKey := s.cacheKey(req)
	if cached, ok, err := s.broker.Get(ctx, cacheKey); err == nil && ok {
		var resp Response
		if err := json.Unmarshal(cached, &resp); err == nil {
			return resp, nil
		}
	}

	resp, err := s.compute(ctx, req)
	if err != nil {
		return Response{}, err
	}

	if encoded, err := json.Marshal(resp); err == nil {
		ttl := time.Duration(s.cfg.SearchCacheTTLSeconds) * time.Second
		if err := s.broker.Set(ctx, cacheKey, encoded, ttl); err != nil {
			log.Warnf("[Search] failed to populate search cache: %v", err)
		}
	}

	// Analytics logging never blocks or fails the query.
	if req.Q != "" {
		go func(q string) {
			if err := s.repo.LogSearchQuery(q, nil); err != nil {
				log.Warnf("[Search] failed to log search query: %v", err)
			}
		}(req.Q)
	}

	return resp, nil
}

func applyDefaults(req Request) Request {
	if req.SortBy == "" {
		req.SortBy = "relevance"
	}
	if req.SortDirection == "" {
		req.SortDirection = "desc"
	}
	if req.PerPage <= 0 {
		req.PerPage = 12
	}
	if req.PerPage > 50 {
		req.PerPage = 50
	}
	if req.Page <= 0 {
		req.Page = 1
	}
	return req
}

func (s *Service) compute(ctx context.Context, req Request) (Response, error) {
	var queryVector []float32
	if req.Q != "" {
		v, err := s.gateway.Embed(ctx, req.Q)
		if err != nil {
			log.Warnf("[Search] query embedding failed, continuing text-only: %v", err)
		} else {
			queryVector = v
		}
	}

	var termID *uint
	if req.CanonicalTerm != "" {
		if id, ok := s.taxonomy.TermIDByName(req.CanonicalTerm); ok {
			termID = &id
		}
	}

	query := buildHybridQuery(req.Q, queryVector, termID, req.PrimaryCategory, candidateTopK)
	esResp, err := executeSearch(ctx, s.esIndex, query)
	if err != nil {
		return Response{}, err
	}

	filtered := req.CanonicalTerm != "" || req.PrimaryCategory != ""
	var primaryCategories []string
	for cat := range s.taxonomy.Hierarchy() {
		primaryCategories = append(primaryCategories, cat)
	}
	class := Classify(req.Q, primaryCategories)
	weights := WeightsFor(class, filtered)
	useEnhanced := s.cfg.UseEnhancedRelevance

	var exactTermID *uint
	if termID != nil {
		exactTermID = termID
	} else if id, ok := s.taxonomy.TermIDByName(req.Q); ok {
		exactTermID = &id
	}

	now := time.Now().Unix()
	scored := make([]Scored, 0, len(esResp.Hits.Hits))
	for rank, hit := range esResp.Hits.Hits {
		c := Candidate{
			DocumentID:       hit.Source.DocumentID,
			VectorScore:      hit.Score,
			HasVector:        len(hit.Source.Vector) > 0,
			TextRank:         rank + 1,
			MaxTextRank:      len(esResp.Hits.Hits),
			TaxonomyExact:    exactTermID != nil && containsTermID(hit.Source.TaxonomyTermIDs, *exactTermID),
			CategoryMatch:    req.PrimaryCategory != "" && hit.Source.PrimaryCategory == req.PrimaryCategory,
			KeywordBonus:     hit.Source.MappingCount > 0,
			HasExtractedText: hit.Source.FullTextIndex != "",
			HasSummary:       hit.Source.HasSummary,
			HasTaxonomyMap:   hit.Source.HasTaxonomyMap,
			MappingCount:     hit.Source.MappingCount,
			CreatedAtUnix:    hit.Source.CreatedAtUnix,
			NowUnix:          now,
		}
		if useEnhanced {
			scored = append(scored, Score(c, weights))
		} else {
			scored = append(scored, LegacyScore(c))
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].CreatedAtUnix != scored[j].CreatedAtUnix {
			return scored[i].CreatedAtUnix > scored[j].CreatedAtUnix
		}
		return scored[i].DocumentID < scored[j].DocumentID
	})

	total := int64(len(scored))
	start := (req.Page - 1) * req.PerPage
	end := start + req.PerPage
	if start > len(scored) {
		start = len(scored)
	}
	if end > len(scored) {
		end = len(scored)
	}
	page := scored[start:end]

	docs := make([]DocumentResult, 0, len(page))
	for _, sc := range page {
		doc, err := s.repo.Get(sc.DocumentID)
		filename := ""
		if err == nil {
			filename = doc.Filename
		}
		docs = append(docs, DocumentResult{DocumentID: sc.DocumentID, Filename: filename, Score: sc.Score})
	}

	resp := Response{
		Documents: docs,
		Pagination: Pagination{
			Page: req.Page, PerPage: req.PerPage, Total: total,
			HasNext: int64(end) < total,
		},
		TotalCount: total,
	}

	if req.Page == 1 {
		facets, err := s.facets(ctx)
		if err != nil {
			log.Warnf("[Search] facets unavailable: %v", err)
		} else {
			resp.Facets = facets
		}
	}

	return resp, nil
}

func containsTermID(ids []uint, target uint) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}

func (s *Service) facets(ctx context.Context) (*Facets, error) {
	if cached, ok, err := s.broker.Get(ctx, facetsCacheKey); err == nil && ok {
		var f Facets
		if err := json.Unmarshal(cached, &f); err == nil {
			return &f, nil
		}
	}
	primary, sub, err := facetBuckets(ctx, s.esIndex)
	if err != nil {
		return nil, err
	}
	f := &Facets{PrimaryCategories: primary, Subcategories: sub}
	if encoded, err := json.Marshal(f); err == nil {
		ttl := time.Duration(s.cfg.FacetCacheTTLSeconds) * time.Second
		_ = s.broker.Set(ctx, facetsCacheKey, encoded, ttl)
	}
	return f, nil
}

// TopQueries returns the top-N logged queries in the last 7 days.
func (s *Service) TopQueries(limit int) ([]repository.TopQueryRow, error) {
	return s.repo.TopQueries(limit, time.Now().Add(-7*24*time.Hour))
}

// cacheKey computes a stable FNV-1a hash over a canonical JSON encoding of
// the request.
func (s *Service) cacheKey(req Request) string {
	canonical := struct {
		Q               string `json:"q"`
		CanonicalTerm   string `json:"canonical_term"`
		PrimaryCategory string `json:"primary_category"`
		SortBy          string `json:"sort_by"`
		SortDirection   string `json:"sort_direction"`
		Page            int    `json:"page"`
		PerPage         int    `json:"per_page"`
	}{req.Q, req.CanonicalTerm, req.PrimaryCategory, req.SortBy, req.SortDirection, req.Page, req.PerPage}

	encoded, _ := json.Marshal(canonical)
	h := fnv.New64a()
	_, _ = h.Write(encoded)
	return searchCacheTTL + fmtHash(h.Sum64())
}

func fmtHash(v uint64) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hexDigits[v&0xf]
		v >>= 4
	}
	return string(buf)
}
