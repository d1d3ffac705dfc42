// Package taxonomy implements the Taxonomy Engine: a controlled vocabulary
// with hierarchy and synonym resolution, adapted from a flat
// OrganizationTag{TagID, ParentTag} hierarchy (internal/model/org_tag.go,
// internal/repository/org_tag_repository.go) into TaxonomyTerm/
// TaxonomySynonym. Unlike organization tags gating user access, terms here
// classify document content — there is no access-control semantic carried
// over.
package taxonomy

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"doccatalog-go/internal/model"
	"doccatalog-go/internal/repository"
	"doccatalog-go/pkg/log"
)

// Row is one line of the tabular source accepted by Initialize. ParentTerm,
// if set, names another row's Term and becomes the created/found term's
// parent once every row in the batch has been resolved.
type Row struct {
	PrimaryCategory string
	Subcategory     string
	Term            string
	ParentTerm      string
	Synonyms        []string
}

// InitializeCounts summarizes the effect of a bulk load.
type InitializeCounts struct {
	TermsCreated    int
	SynonymsCreated int
}

// Statistics is the result of the statistics operation.
type Statistics struct {
	TotalTerms         int64
	TotalSynonyms      int64
	PrimaryCategories  int64
}

// Hierarchy is primary_category -> subcategory -> []term.
type Hierarchy map[string]map[string][]string

// snapshot is the atomically-swapped in-memory read path, refreshed every
// SnapshotRefreshS seconds or on explicit invalidation. Reads are
// read-mostly and eventually consistent against the in-memory snapshot.
type snapshot struct {
	terms       []model.TaxonomyTerm
	synonyms    []model.TaxonomySynonym
	termsByName map[string]model.TaxonomyTerm // lowercased term -> term
	termsByID   map[uint]model.TaxonomyTerm   // id -> term, used to walk the parent chain
	synByName   map[string]model.TaxonomyTerm // lowercased synonym -> owning term
	builtAt     time.Time
}

// Engine is the Taxonomy Engine's public surface.
type Engine struct {
	repo    repository.TaxonomyRepository
	current atomic.Pointer[snapshot]
}

// NewEngine creates an Engine and performs an initial synchronous snapshot
// load; callers should also run Run in the background to refresh it.
func NewEngine(repo repository.TaxonomyRepository) (*Engine, error) {
	e := &Engine{repo: repo}
	if err := e.Refresh(); err != nil {
		return nil, err
	}
	return e, nil
}

// Run refreshes the snapshot every interval until stop is closed.
func (e *Engine) Run(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := e.Refresh(); err != nil {
				log.Errorf("[Taxonomy] snapshot refresh failed: %v", err)
			}
		case <-stop:
			return
		}
	}
}

// Refresh reloads the in-memory snapshot from the repository and swaps it in
// atomically so concurrent readers never observe a half-built snapshot.
func (e *Engine) Refresh() error {
	terms, err := e.repo.AllTerms()
	if err != nil {
		return err
	}
	syns, err := e.repo.AllSynonyms()
	if err != nil {
		return err
	}

	termsByID := make(map[uint]model.TaxonomyTerm, len(terms))
	termsByName := make(map[string]model.TaxonomyTerm, len(terms))
	for _, t := range terms {
		termsByID[t.ID] = t
		termsByName[strings.ToLower(t.Term)] = t
	}
	synByName := make(map[string]model.TaxonomyTerm, len(syns))
	for _, s := range syns {
		if t, ok := termsByID[s.TermID]; ok {
			synByName[strings.ToLower(s.Synonym)] = t
		}
	}

	e.current.Store(&snapshot{
		terms:       terms,
		synonyms:    syns,
		termsByName: termsByName,
		termsByID:   termsByID,
		synByName:   synByName,
		builtAt:     time.Now(),
	})
	return nil
}

func (e *Engine) snap() *snapshot {
	s := e.current.Load()
	if s == nil {
		return &snapshot{termsByName: map[string]model.TaxonomyTerm{}, termsByID: map[uint]model.TaxonomyTerm{}, synByName: map[string]model.TaxonomyTerm{}}
	}
	return s
}

// Initialize idempotently loads a hierarchy from a tabular source, creating
// missing terms and synonyms and then, in a second pass once every term in
// the batch exists, wiring parent_id links. A parent assignment that would
// introduce a cycle in the parent relation is rejected and logged rather
// than applied. It invalidates the snapshot afterward.
func (e *Engine) Initialize(rows []Row) (InitializeCounts, error) {
	var counts InitializeCounts
	byRowTerm := map[string]*model.TaxonomyTerm{}

	for _, row := range rows {
		var primaryCat, subCat *string
		if row.PrimaryCategory != "" {
			p := row.PrimaryCategory
			primaryCat = &p
		}
		if row.Subcategory != "" {
			s := row.Subcategory
			subCat = &s
		}

		existing, err := e.repo.FindTermByName(row.Term)
		if err != nil {
			return counts, err
		}
		var term *model.TaxonomyTerm
		if existing == nil {
			created, err := e.repo.FindOrCreateTerm(row.Term, primaryCat, subCat)
			if err != nil {
				return counts, err
			}
			counts.TermsCreated++
			term = created
		} else {
			term = existing
		}
		byRowTerm[strings.ToLower(row.Term)] = term

		for _, syn := range row.Synonyms {
			created, err := e.repo.FindOrCreateSynonym(term.ID, syn)
			if err != nil {
				return counts, err
			}
			if created {
				counts.SynonymsCreated++
			}
		}
	}

	pendingParent := map[uint]uint{}
	for _, row := range rows {
		if row.ParentTerm == "" {
			continue
		}
		term, ok := byRowTerm[strings.ToLower(row.Term)]
		if !ok {
			continue
		}
		parent, ok := byRowTerm[strings.ToLower(row.ParentTerm)]
		if !ok {
			found, err := e.repo.FindTermByName(row.ParentTerm)
			if err != nil {
				return counts, err
			}
			if found == nil {
				log.Warnf("[Taxonomy] skipping parent assignment %q -> %q: parent term not found", row.Term, row.ParentTerm)
				continue
			}
			parent = found
		}
		if term.ID == parent.ID || e.parentChainContains(parent.ID, term.ID, pendingParent) {
			log.Warnf("[Taxonomy] skipping parent assignment %q -> %q: would introduce a cycle", row.Term, row.ParentTerm)
			continue
		}
		if err := e.repo.SetParent(term.ID, &parent.ID); err != nil {
			return counts, err
		}
		pendingParent[term.ID] = parent.ID
	}

	if err := e.Refresh(); err != nil {
		return counts, err
	}
	return counts, nil
}

// parentChainContains walks the parent chain starting at startID, preferring
// any not-yet-refreshed assignment from pending over the current snapshot,
// and reports whether target appears in it.
func (e *Engine) parentChainContains(startID, target uint, pending map[uint]uint) bool {
	s := e.snap()
	visited := map[uint]bool{}
	current := startID
	for {
		if current == target {
			return true
		}
		if visited[current] {
			return false
		}
		visited[current] = true
		if p, ok := pending[current]; ok {
			current = p
			continue
		}
		t, ok := s.termsByID[current]
		if !ok || t.ParentID == nil {
			return false
		}
		current = *t.ParentID
	}
}

// Hierarchy returns primary_category -> subcategory -> [term].
func (e *Engine) Hierarchy() Hierarchy {
	s := e.snap()
	h := make(Hierarchy)
	for _, t := range s.terms {
		primary := "Uncategorized"
		if t.PrimaryCategory != nil && *t.PrimaryCategory != "" {
			primary = *t.PrimaryCategory
		}
		sub := "General"
		if t.Subcategory != nil && *t.Subcategory != "" {
			sub = *t.Subcategory
		}
		if h[primary] == nil {
			h[primary] = make(map[string][]string)
		}
		h[primary][sub] = append(h[primary][sub], t.Term)
	}
	for _, subs := range h {
		for sub := range subs {
			sort.Strings(subs[sub])
		}
	}
	return h
}

// CanonicalTerms returns the full set of canonical term strings.
func (e *Engine) CanonicalTerms() []string {
	s := e.snap()
	out := make([]string, 0, len(s.terms))
	for _, t := range s.terms {
		out = append(out, t.Term)
	}
	sort.Strings(out)
	return out
}

// Search returns up to limit terms whose name contains the given substring.
func (e *Engine) Search(substrOrPrefix string, limit int) []string {
	s := e.snap()
	lower := strings.ToLower(substrOrPrefix)
	var out []string
	for _, t := range s.terms {
		if strings.Contains(strings.ToLower(t.Term), lower) {
			out = append(out, t.Term)
			if len(out) >= limit {
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// Resolve maps a verbatim term to its canonical form following this match
// order: exact (case-insensitive) term, exact synonym, normalized equality,
// then fuzzy match (edit distance <= 2) only if exactly one candidate
// qualifies.
func (e *Engine) Resolve(verbatim string) (string, bool) {
	s := e.snap()
	lower := strings.ToLower(strings.TrimSpace(verbatim))

	if t, ok := s.termsByName[lower]; ok {
		return t.Term, true
	}
	if t, ok := s.synByName[lower]; ok {
		return t.Term, true
	}

	normalized := normalize(verbatim)
	for name, t := range s.termsByName {
		if normalize(name) == normalized {
			return t.Term, true
		}
	}

	var candidates []string
	for name, t := range s.termsByName {
		if editDistance(normalized, normalize(name)) <= 2 {
			candidates = append(candidates, t.Term)
		}
	}
	sort.Strings(candidates)
	if len(candidates) == 1 {
		return candidates[0], true
	}
	return "", false
}

func normalize(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	return strings.Join(fields, " ")
}

// editDistance computes the Levenshtein distance between two strings over
// runes. Bounded by construction to short taxonomy terms, so the O(n*m)
// table is cheap; no third-party fuzzy-matching library appears anywhere in
// the pack, so this stays on the standard library (see DESIGN.md).
func editDistance(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// ValidateMapping drops keyword mappings whose mapped_canonical_term is not
// a known canonical term, logging each rejection.
func (e *Engine) ValidateMapping(mappings []model.KeywordMapping) (valid []model.KeywordMapping, rejected []model.KeywordMapping) {
	s := e.snap()
	for _, m := range mappings {
		if m.MappedCanonicalTerm == "" {
			valid = append(valid, m)
			continue
		}
		if _, ok := s.termsByName[strings.ToLower(m.MappedCanonicalTerm)]; ok {
			valid = append(valid, m)
			continue
		}
		log.Warnf("[Taxonomy] rejecting keyword mapping %q -> %q: not a known canonical term", m.VerbatimTerm, m.MappedCanonicalTerm)
		rejected = append(rejected, m)
	}
	return valid, rejected
}

// FindOrCreate atomically upserts a term, refreshing the snapshot afterward.
func (e *Engine) FindOrCreate(term string, primaryCategory, subcategory *string) (*model.TaxonomyTerm, error) {
	t, err := e.repo.FindOrCreateTerm(term, primaryCategory, subcategory)
	if err != nil {
		return nil, err
	}
	if err := e.Refresh(); err != nil {
		log.Errorf("[Taxonomy] snapshot refresh after find_or_create failed: %v", err)
	}
	return t, nil
}

// TermIDByName resolves a canonical term string to its id using the current
// snapshot, used by the Ingestion Pipeline to build DocumentTaxonomyMap rows.
func (e *Engine) TermIDByName(term string) (uint, bool) {
	s := e.snap()
	t, ok := s.termsByName[strings.ToLower(term)]
	if !ok {
		return 0, false
	}
	return t.ID, true
}

// CategoryForTermID returns the primary category of the term with the given
// id, used by the Ingestion Pipeline when building the Elasticsearch
// document's primary_category field from a resolved taxonomy map.
func (e *Engine) CategoryForTermID(termID uint) (string, bool) {
	s := e.snap()
	for _, t := range s.terms {
		if t.ID == termID {
			if t.PrimaryCategory != nil {
				return *t.PrimaryCategory, true
			}
			return "", false
		}
	}
	return "", false
}

// Statistics reports corpus-wide counts.
func (e *Engine) Statistics() (Statistics, error) {
	total, err := e.repo.CountTerms()
	if err != nil {
		return Statistics{}, err
	}
	syns, err := e.repo.CountSynonyms()
	if err != nil {
		return Statistics{}, err
	}
	cats, err := e.repo.CountPrimaryCategories()
	if err != nil {
		return Statistics{}, err
	}
	return Statistics{TotalTerms: total, TotalSynonyms: syns, PrimaryCategories: cats}, nil
}

// snapshotAge exposes how stale the current in-memory snapshot is, used by
// the admin/health surface.
func (e *Engine) snapshotAge() time.Duration {
	return time.Since(e.snap().builtAt)
}

// String implements fmt.Stringer for debug logging.
func (e *Engine) String() string {
	s := e.snap()
	return fmt.Sprintf("taxonomy.Engine{terms=%d synonyms=%d age=%s}", len(s.terms), len(s.synonyms), e.snapshotAge())
}
