package repository

import (
	"doccatalog-go/internal/apperr"
	"doccatalog-go/internal/model"

	"gorm.io/gorm"
)

// TaxonomyRepository is the Taxonomy Engine's direct access to terms and
// synonyms, distinct from the Store's bulk ingestion path.
type TaxonomyRepository interface {
	AllTerms() ([]model.TaxonomyTerm, error)
	AllSynonyms() ([]model.TaxonomySynonym, error)
	FindTermByName(term string) (*model.TaxonomyTerm, error)
	FindOrCreateTerm(term string, primaryCategory, subcategory *string) (*model.TaxonomyTerm, error)
	FindOrCreateSynonym(termID uint, synonym string) (created bool, err error)
	SetParent(termID uint, parentID *uint) error
	SearchTerms(substr string, limit int) ([]model.TaxonomyTerm, error)
	CountTerms() (int64, error)
	CountSynonyms() (int64, error)
	CountPrimaryCategories() (int64, error)
}

type taxonomyRepository struct {
	db *gorm.DB
}

// NewTaxonomyRepository creates a TaxonomyRepository backed by db.
func NewTaxonomyRepository(db *gorm.DB) TaxonomyRepository {
	return &taxonomyRepository{db: db}
}

func (r *taxonomyRepository) AllTerms() ([]model.TaxonomyTerm, error) {
	var terms []model.TaxonomyTerm
	if err := r.db.Find(&terms).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to load taxonomy terms", err)
	}
	return terms, nil
}

func (r *taxonomyRepository) AllSynonyms() ([]model.TaxonomySynonym, error) {
	var syns []model.TaxonomySynonym
	if err := r.db.Find(&syns).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to load taxonomy synonyms", err)
	}
	return syns, nil
}

func (r *taxonomyRepository) FindTermByName(term string) (*model.TaxonomyTerm, error) {
	var t model.TaxonomyTerm
	err := r.db.Where("term = ?", term).First(&t).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to look up taxonomy term", err)
	}
	return &t, nil
}

func (r *taxonomyRepository) FindOrCreateTerm(term string, primaryCategory, subcategory *string) (*model.TaxonomyTerm, error) {
	var t model.TaxonomyTerm
	err := r.db.Where("term = ?", term).First(&t).Error
	if err == nil {
		return &t, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to look up taxonomy term", err)
	}
	t = model.TaxonomyTerm{Term: term, PrimaryCategory: primaryCategory, Subcategory: subcategory}
	if err := r.db.Create(&t).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to create taxonomy term", err)
	}
	return &t, nil
}

// FindOrCreateSynonym attaches synonym to termID if it is not already
// present, reporting whether a new row was created.
func (r *taxonomyRepository) FindOrCreateSynonym(termID uint, synonym string) (bool, error) {
	var existing model.TaxonomySynonym
	err := r.db.Where("term_id = ? AND synonym = ?", termID, synonym).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if err != gorm.ErrRecordNotFound {
		return false, apperr.Wrap(apperr.KindStorage, "failed to look up taxonomy synonym", err)
	}
	s := model.TaxonomySynonym{TermID: termID, Synonym: synonym}
	if err := r.db.Create(&s).Error; err != nil {
		return false, apperr.Wrap(apperr.KindStorage, "failed to create taxonomy synonym", err)
	}
	return true, nil
}

// SetParent updates a term's parent_id, passing nil to clear it.
func (r *taxonomyRepository) SetParent(termID uint, parentID *uint) error {
	if err := r.db.Model(&model.TaxonomyTerm{}).Where("id = ?", termID).Update("parent_id", parentID).Error; err != nil {
		return apperr.Wrap(apperr.KindStorage, "failed to set taxonomy term parent", err)
	}
	return nil
}

func (r *taxonomyRepository) SearchTerms(substr string, limit int) ([]model.TaxonomyTerm, error) {
	var terms []model.TaxonomyTerm
	like := "%" + substr + "%"
	if err := r.db.Where("term LIKE ?", like).Order("term").Limit(limit).Find(&terms).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to search taxonomy terms", err)
	}
	return terms, nil
}

func (r *taxonomyRepository) CountTerms() (int64, error) {
	var n int64
	err := r.db.Model(&model.TaxonomyTerm{}).Count(&n).Error
	return n, err
}

func (r *taxonomyRepository) CountSynonyms() (int64, error) {
	var n int64
	err := r.db.Model(&model.TaxonomySynonym{}).Count(&n).Error
	return n, err
}

func (r *taxonomyRepository) CountPrimaryCategories() (int64, error) {
	var n int64
	err := r.db.Model(&model.TaxonomyTerm{}).Distinct("primary_category").Where("primary_category IS NOT NULL").Count(&n).Error
	return n, err
}
