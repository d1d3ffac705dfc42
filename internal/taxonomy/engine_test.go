package taxonomy

import (
	"strings"
	"testing"

	"doccatalog-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo is an in-memory stand-in for repository.TaxonomyRepository.
type fakeRepo struct {
	terms    []model.TaxonomyTerm
	synonyms []model.TaxonomySynonym
	nextID   uint
}

func newFakeRepo(terms []model.TaxonomyTerm, synonyms []model.TaxonomySynonym) *fakeRepo {
	var maxID uint
	for _, t := range terms {
		if t.ID > maxID {
			maxID = t.ID
		}
	}
	return &fakeRepo{terms: terms, synonyms: synonyms, nextID: maxID + 1}
}

func (f *fakeRepo) AllTerms() ([]model.TaxonomyTerm, error)       { return f.terms, nil }
func (f *fakeRepo) AllSynonyms() ([]model.TaxonomySynonym, error) { return f.synonyms, nil }

func (f *fakeRepo) FindTermByName(term string) (*model.TaxonomyTerm, error) {
	for _, t := range f.terms {
		if strings.EqualFold(t.Term, term) {
			cp := t
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) FindOrCreateTerm(term string, primaryCategory, subcategory *string) (*model.TaxonomyTerm, error) {
	if existing, _ := f.FindTermByName(term); existing != nil {
		return existing, nil
	}
	t := model.TaxonomyTerm{ID: f.nextID, Term: term, PrimaryCategory: primaryCategory, Subcategory: subcategory}
	f.nextID++
	f.terms = append(f.terms, t)
	return &t, nil
}

func (f *fakeRepo) FindOrCreateSynonym(termID uint, synonym string) (bool, error) {
	for _, s := range f.synonyms {
		if s.TermID == termID && strings.EqualFold(s.Synonym, synonym) {
			return false, nil
		}
	}
	f.synonyms = append(f.synonyms, model.TaxonomySynonym{ID: uint(len(f.synonyms) + 1), TermID: termID, Synonym: synonym})
	return true, nil
}

func (f *fakeRepo) SetParent(termID uint, parentID *uint) error {
	for i := range f.terms {
		if f.terms[i].ID == termID {
			f.terms[i].ParentID = parentID
			return nil
		}
	}
	return nil
}

func (f *fakeRepo) SearchTerms(substr string, limit int) ([]model.TaxonomyTerm, error) {
	var out []model.TaxonomyTerm
	for _, t := range f.terms {
		if strings.Contains(strings.ToLower(t.Term), strings.ToLower(substr)) {
			out = append(out, t)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeRepo) CountTerms() (int64, error)    { return int64(len(f.terms)), nil }
func (f *fakeRepo) CountSynonyms() (int64, error) { return int64(len(f.synonyms)), nil }
func (f *fakeRepo) CountPrimaryCategories() (int64, error) {
	seen := map[string]bool{}
	for _, t := range f.terms {
		if t.PrimaryCategory != nil {
			seen[*t.PrimaryCategory] = true
		}
	}
	return int64(len(seen)), nil
}

func strPtr(s string) *string { return &s }

func newTestEngine(t *testing.T) (*Engine, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo([]model.TaxonomyTerm{
		{ID: 1, Term: "Invoice", PrimaryCategory: strPtr("Finance"), Subcategory: strPtr("Billing")},
		{ID: 2, Term: "Contract", PrimaryCategory: strPtr("Legal")},
	}, []model.TaxonomySynonym{
		{ID: 1, TermID: 1, Synonym: "bill"},
	})
	e, err := NewEngine(repo)
	require.NoError(t, err)
	return e, repo
}

func TestResolveExactTerm(t *testing.T) {
	e, _ := newTestEngine(t)
	term, ok := e.Resolve("invoice")
	assert.True(t, ok)
	assert.Equal(t, "Invoice", term)
}

func TestResolveExactSynonym(t *testing.T) {
	e, _ := newTestEngine(t)
	term, ok := e.Resolve("Bill")
	assert.True(t, ok)
	assert.Equal(t, "Invoice", term)
}

func TestResolveFuzzyMatchWithinEditDistance(t *testing.T) {
	e, _ := newTestEngine(t)
	term, ok := e.Resolve("Invoce")
	assert.True(t, ok)
	assert.Equal(t, "Invoice", term)
}

func TestResolveNoMatch(t *testing.T) {
	e, _ := newTestEngine(t)
	_, ok := e.Resolve("completely unrelated phrase")
	assert.False(t, ok)
}

func TestHierarchyGroupsByCategoryAndSubcategory(t *testing.T) {
	e, _ := newTestEngine(t)
	h := e.Hierarchy()
	assert.Equal(t, []string{"Invoice"}, h["Finance"]["Billing"])
	assert.Equal(t, []string{"Contract"}, h["Legal"]["General"])
}

func TestCanonicalTermsSorted(t *testing.T) {
	e, _ := newTestEngine(t)
	assert.Equal(t, []string{"Contract", "Invoice"}, e.CanonicalTerms())
}

func TestSearchReturnsSubstringMatches(t *testing.T) {
	e, _ := newTestEngine(t)
	assert.Equal(t, []string{"Invoice"}, e.Search("voi", 10))
}

func TestValidateMappingRejectsUnknownCanonicalTerm(t *testing.T) {
	e, _ := newTestEngine(t)
	mappings := []model.KeywordMapping{
		{VerbatimTerm: "bill", MappedCanonicalTerm: "Invoice"},
		{VerbatimTerm: "widget", MappedCanonicalTerm: "NotATerm"},
		{VerbatimTerm: "misc"},
	}
	valid, rejected := e.ValidateMapping(mappings)
	require.Len(t, valid, 2)
	require.Len(t, rejected, 1)
	assert.Equal(t, "NotATerm", rejected[0].MappedCanonicalTerm)
}

func TestFindOrCreateAddsNewTermAndRefreshesSnapshot(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.FindOrCreate("Receipt", strPtr("Finance"), nil)
	require.NoError(t, err)

	_, ok := e.TermIDByName("Receipt")
	assert.True(t, ok)
}

func TestTermIDByNameAndCategoryForTermID(t *testing.T) {
	e, _ := newTestEngine(t)
	id, ok := e.TermIDByName("invoice")
	require.True(t, ok)

	cat, ok := e.CategoryForTermID(id)
	require.True(t, ok)
	assert.Equal(t, "Finance", cat)
}

func TestStatistics(t *testing.T) {
	e, _ := newTestEngine(t)
	stats, err := e.Statistics()
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.TotalTerms)
	assert.EqualValues(t, 1, stats.TotalSynonyms)
	assert.EqualValues(t, 2, stats.PrimaryCategories)
}

func TestInitializeCreatesMissingTermsIdempotently(t *testing.T) {
	e, repo := newTestEngine(t)
	rows := []Row{
		{PrimaryCategory: "Finance", Subcategory: "Billing", Term: "Invoice"},
		{PrimaryCategory: "HR", Term: "Resume"},
	}

	counts, err := e.Initialize(rows)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.TermsCreated)
	assert.Len(t, repo.terms, 3)

	counts2, err := e.Initialize(rows)
	require.NoError(t, err)
	assert.Equal(t, 0, counts2.TermsCreated)
}

func TestInitializeCreatesSynonymsIdempotently(t *testing.T) {
	e, repo := newTestEngine(t)
	rows := []Row{
		{Term: "Invoice", Synonyms: []string{"bill", "statement"}},
	}

	counts, err := e.Initialize(rows)
	require.NoError(t, err)
	assert.Equal(t, 0, counts.TermsCreated)
	assert.Equal(t, 1, counts.SynonymsCreated)
	assert.Len(t, repo.synonyms, 2)

	counts2, err := e.Initialize(rows)
	require.NoError(t, err)
	assert.Equal(t, 0, counts2.SynonymsCreated)
	assert.Len(t, repo.synonyms, 2)
}

func TestInitializeWiresParentLinksIncludingForwardReferences(t *testing.T) {
	e, repo := newTestEngine(t)
	rows := []Row{
		{Term: "Receipt", ParentTerm: "Invoice"},
		{Term: "W2", ParentTerm: "Tax Form"},
		{Term: "Tax Form"},
	}

	_, err := e.Initialize(rows)
	require.NoError(t, err)

	var receipt, w2, taxForm model.TaxonomyTerm
	for _, term := range repo.terms {
		switch term.Term {
		case "Receipt":
			receipt = term
		case "W2":
			w2 = term
		case "Tax Form":
			taxForm = term
		}
	}

	invoiceID, ok := e.TermIDByName("Invoice")
	require.True(t, ok)
	require.NotNil(t, receipt.ParentID)
	assert.Equal(t, invoiceID, *receipt.ParentID)

	require.NotNil(t, w2.ParentID)
	assert.Equal(t, taxForm.ID, *w2.ParentID)
}

func TestInitializeRejectsSelfParenting(t *testing.T) {
	e, repo := newTestEngine(t)
	rows := []Row{
		{Term: "Invoice", ParentTerm: "Invoice"},
	}

	_, err := e.Initialize(rows)
	require.NoError(t, err)

	for _, term := range repo.terms {
		if term.Term == "Invoice" {
			assert.Nil(t, term.ParentID)
		}
	}
}

func TestInitializeRejectsParentAssignmentThatWouldCloseACycle(t *testing.T) {
	e, repo := newTestEngine(t)

	_, err := e.Initialize([]Row{{Term: "Contract", ParentTerm: "Invoice"}})
	require.NoError(t, err)

	_, err = e.Initialize([]Row{{Term: "Invoice", ParentTerm: "Contract"}})
	require.NoError(t, err)

	var invoice, contract model.TaxonomyTerm
	for _, term := range repo.terms {
		switch term.Term {
		case "Invoice":
			invoice = term
		case "Contract":
			contract = term
		}
	}
	require.NotNil(t, contract.ParentID)
	assert.Equal(t, invoice.ID, *contract.ParentID)
	assert.Nil(t, invoice.ParentID, "assigning Invoice -> Contract would close a cycle and must be rejected")
}
