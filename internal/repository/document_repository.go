// Package repository holds the data-access logic for the Store component.
package repository

import (
	"fmt"
	"strings"
	"time"

	"doccatalog-go/internal/apperr"
	"doccatalog-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DocumentFilter narrows query_documents and the fulltext/vector candidate sets.
type DocumentFilter struct {
	Status          string
	CanonicalTerm   string
	PrimaryCategory string
	FreeText        string
}

// DocumentSort names a query_documents sort key.
type DocumentSort string

const (
	SortRelevance DocumentSort = "relevance"
	SortCreatedAt DocumentSort = "created_at"
	SortFilename  DocumentSort = "filename"
	SortSize      DocumentSort = "size"
)

// DocumentRepository is the Store's typed access to the documents table and
// its taxonomy join.
type DocumentRepository interface {
	CreateDocument(filename, blobKey string, size *int64) (*model.Document, error)
	Get(id uint) (*model.Document, error)
	UpdateStatus(id uint, status string, progress *int, errMsg *string, allowReset bool) error
	UpdateContent(id uint, extractedText string, analysis *model.AIAnalysis, keywords []string, metadata map[string]any, previewKey *string) error
	UpdateEmbedding(id uint, vector []float32, expectedDim int) error
	ResetForReprocessing(id uint) error
	Delete(id uint) error
	QueryDocuments(filter DocumentFilter, sort DocumentSort, sortDesc bool, page, perPage int) ([]model.Document, int64, error)
	TaxonomyBulkUpsert(terms []model.TaxonomyTerm, synonyms []model.TaxonomySynonym) error
	ReplaceTaxonomyMap(documentID uint, termIDs []uint) error
	TaxonomyMapTermIDs(documentID uint) ([]uint, error)
	StuckDocuments(olderThan time.Time) ([]model.Document, error)
	LogSearchQuery(queryText string, actorID *string) error
	TopQueries(limit int, since time.Time) ([]TopQueryRow, error)
}

// TopQueryRow is one row of the top_queries aggregation.
type TopQueryRow struct {
	QueryText string
	Count     int64
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository creates a DocumentRepository backed by db.
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) CreateDocument(filename, blobKey string, size *int64) (*model.Document, error) {
	doc := &model.Document{
		Filename:  filename,
		BlobKey:   blobKey,
		SizeBytes: size,
		Status:    model.StatusPending,
		Progress:  0,
	}
	doc.DeriveFullTextIndex()
	if err := r.db.Create(doc).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to create document", err)
	}
	return doc, nil
}

func (r *documentRepository) Get(id uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.Where("id = ?", id).First(&doc).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.New(apperr.KindNotFound, "document not found")
		}
		return nil, apperr.Wrap(apperr.KindStorage, "failed to load document", err)
	}
	return &doc, nil
}

// UpdateStatus atomically transitions a document's status, rejecting illegal
// transitions without mutating state.
func (r *documentRepository) UpdateStatus(id uint, status string, progress *int, errMsg *string, allowReset bool) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var doc model.Document
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&doc).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperr.New(apperr.KindNotFound, "document not found")
			}
			return apperr.Wrap(apperr.KindStorage, "failed to load document for status update", err)
		}
		if !model.CanTransition(doc.Status, status, allowReset) {
			return apperr.New(apperr.KindConflictingState, fmt.Sprintf("illegal transition %s -> %s", doc.Status, status))
		}
		updates := map[string]any{"status": status}
		if progress != nil {
			updates["progress"] = *progress
		}
		if errMsg != nil {
			updates["error"] = *errMsg
		}
		if status == model.StatusCompleted {
			now := time.Now()
			updates["processed_at"] = now
		}
		if err := tx.Model(&model.Document{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return apperr.Wrap(apperr.KindStorage, "failed to persist status update", err)
		}
		return nil
	})
}

func (r *documentRepository) UpdateContent(id uint, extractedText string, analysis *model.AIAnalysis, keywords []string, metadata map[string]any, previewKey *string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var doc model.Document
		if err := tx.Where("id = ?", id).First(&doc).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperr.New(apperr.KindNotFound, "document not found")
			}
			return apperr.Wrap(apperr.KindStorage, "failed to load document for content update", err)
		}
		doc.ExtractedText = &extractedText
		if err := doc.SetAIAnalysis(analysis); err != nil {
			return apperr.Wrap(apperr.KindInternal, "failed to marshal ai_analysis", err)
		}
		if err := doc.SetKeywords(keywords); err != nil {
			return apperr.Wrap(apperr.KindInternal, "failed to marshal keywords", err)
		}
		if metadata != nil {
			if err := doc.SetMetadata(metadata); err != nil {
				return apperr.Wrap(apperr.KindInternal, "failed to marshal metadata", err)
			}
		}
		if previewKey != nil {
			doc.PreviewKey = previewKey
		}
		doc.DeriveFullTextIndex()
		if err := tx.Save(&doc).Error; err != nil {
			return apperr.Wrap(apperr.KindStorage, "failed to persist content update", err)
		}
		return nil
	})
}

func (r *documentRepository) UpdateEmbedding(id uint, vector []float32, expectedDim int) error {
	if len(vector) != expectedDim {
		return apperr.New(apperr.KindValidation, fmt.Sprintf("embedding dimension %d does not match expected %d", len(vector), expectedDim))
	}
	var doc model.Document
	if err := r.db.Where("id = ?", id).First(&doc).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return apperr.New(apperr.KindNotFound, "document not found")
		}
		return apperr.Wrap(apperr.KindStorage, "failed to load document for embedding update", err)
	}
	if err := doc.SetSearchVector(vector); err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to marshal search_vector", err)
	}
	if err := r.db.Model(&model.Document{}).Where("id = ?", id).Update("search_vector", doc.SearchVectorJSON).Error; err != nil {
		return apperr.Wrap(apperr.KindStorage, "failed to persist embedding", err)
	}
	return nil
}

func (r *documentRepository) ResetForReprocessing(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var doc model.Document
		if err := tx.Where("id = ?", id).First(&doc).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperr.New(apperr.KindNotFound, "document not found")
			}
			return apperr.Wrap(apperr.KindStorage, "failed to load document for reprocessing", err)
		}
		if doc.Status == model.StatusProcessing {
			return apperr.New(apperr.KindConflictingState, "cannot reset while PROCESSING")
		}
		if err := tx.Where("document_id = ?", id).Delete(&model.DocumentTaxonomyMap{}).Error; err != nil {
			return apperr.Wrap(apperr.KindStorage, "failed to clear taxonomy map", err)
		}
		updates := map[string]any{
			"status":           model.StatusQueued,
			"progress":         0,
			"error":            nil,
			"extracted_text":   nil,
			"ai_analysis":      nil,
			"keywords":         nil,
			"search_vector":    nil,
			"full_text_index":  doc.Filename,
		}
		if err := tx.Model(&model.Document{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return apperr.Wrap(apperr.KindStorage, "failed to reset document", err)
		}
		return nil
	})
}

func (r *documentRepository) Delete(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&model.DocumentTaxonomyMap{}).Error; err != nil {
			return apperr.Wrap(apperr.KindStorage, "failed to cascade-delete taxonomy map", err)
		}
		if err := tx.Delete(&model.Document{}, id).Error; err != nil {
			return apperr.Wrap(apperr.KindStorage, "failed to delete document", err)
		}
		return nil
	})
}

func (r *documentRepository) QueryDocuments(filter DocumentFilter, sort DocumentSort, sortDesc bool, page, perPage int) ([]model.Document, int64, error) {
	q := r.db.Model(&model.Document{})
	q = applyFilter(q, filter)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, apperr.Wrap(apperr.KindStorage, "failed to count documents", err)
	}

	order := "created_at"
	switch sort {
	case SortFilename:
		order = "filename"
	case SortSize:
		order = "size_bytes"
	case SortCreatedAt, SortRelevance:
		order = "created_at"
	}
	dir := "DESC"
	if !sortDesc {
		dir = "ASC"
	}

	var docs []model.Document
	offset := (page - 1) * perPage
	if err := q.Order(fmt.Sprintf("%s %s", order, dir)).Offset(offset).Limit(perPage).Find(&docs).Error; err != nil {
		return nil, 0, apperr.Wrap(apperr.KindStorage, "failed to query documents", err)
	}
	return docs, total, nil
}

func applyFilter(q *gorm.DB, filter DocumentFilter) *gorm.DB {
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.FreeText != "" {
		like := "%" + filter.FreeText + "%"
		q = q.Where("full_text_index LIKE ?", like)
	}
	if filter.CanonicalTerm != "" {
		q = q.Where("id IN (?)", q.Session(&gorm.Session{NewDB: true}).
			Table("document_taxonomy_map dtm").
			Select("dtm.document_id").
			Joins("JOIN taxonomy_terms t ON t.id = dtm.term_id").
			Where("t.term = ?", filter.CanonicalTerm))
	}
	if filter.PrimaryCategory != "" {
		q = q.Where("id IN (?)", q.Session(&gorm.Session{NewDB: true}).
			Table("document_taxonomy_map dtm").
			Select("dtm.document_id").
			Joins("JOIN taxonomy_terms t ON t.id = dtm.term_id").
			Where("t.primary_category = ?", filter.PrimaryCategory))
	}
	return q
}

func (r *documentRepository) TaxonomyBulkUpsert(terms []model.TaxonomyTerm, synonyms []model.TaxonomySynonym) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		for _, t := range terms {
			var existing model.TaxonomyTerm
			err := tx.Where("term = ?", t.Term).First(&existing).Error
			if err == gorm.ErrRecordNotFound {
				if err := tx.Create(&t).Error; err != nil {
					return apperr.Wrap(apperr.KindStorage, "failed to insert taxonomy term", err)
				}
				continue
			}
			if err != nil {
				return apperr.Wrap(apperr.KindStorage, "failed to look up taxonomy term", err)
			}
			existing.PrimaryCategory = t.PrimaryCategory
			existing.Subcategory = t.Subcategory
			existing.Description = t.Description
			existing.ParentID = t.ParentID
			if err := tx.Save(&existing).Error; err != nil {
				return apperr.Wrap(apperr.KindStorage, "failed to update taxonomy term", err)
			}
		}
		for _, s := range synonyms {
			var existing model.TaxonomySynonym
			err := tx.Where("term_id = ? AND synonym = ?", s.TermID, s.Synonym).First(&existing).Error
			if err == gorm.ErrRecordNotFound {
				if err := tx.Create(&s).Error; err != nil {
					return apperr.Wrap(apperr.KindStorage, "failed to insert synonym", err)
				}
				continue
			}
			if err != nil {
				return apperr.Wrap(apperr.KindStorage, "failed to look up synonym", err)
			}
		}
		return nil
	})
}

func (r *documentRepository) ReplaceTaxonomyMap(documentID uint, termIDs []uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&model.DocumentTaxonomyMap{}).Error; err != nil {
			return apperr.Wrap(apperr.KindStorage, "failed to clear taxonomy map", err)
		}
		for _, termID := range termIDs {
			m := model.DocumentTaxonomyMap{DocumentID: documentID, TermID: termID}
			if err := tx.Create(&m).Error; err != nil {
				return apperr.Wrap(apperr.KindStorage, "failed to insert taxonomy map entry", err)
			}
		}
		return nil
	})
}

func (r *documentRepository) TaxonomyMapTermIDs(documentID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.Model(&model.DocumentTaxonomyMap{}).Where("document_id = ?", documentID).Pluck("term_id", &ids).Error; err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to load taxonomy map", err)
	}
	return ids, nil
}

func (r *documentRepository) StuckDocuments(olderThan time.Time) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.Where("status IN (?) AND updated_at < ?", []string{model.StatusPending, model.StatusQueued}, olderThan).Find(&docs).Error
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to query stuck documents", err)
	}
	return docs, nil
}

func (r *documentRepository) LogSearchQuery(queryText string, actorID *string) error {
	q := model.SearchQuery{QueryText: strings.TrimSpace(queryText), ActorID: actorID}
	if q.QueryText == "" {
		return nil
	}
	return r.db.Create(&q).Error
}

func (r *documentRepository) TopQueries(limit int, since time.Time) ([]TopQueryRow, error) {
	var rows []TopQueryRow
	err := r.db.Model(&model.SearchQuery{}).
		Select("query_text, COUNT(*) as count").
		Where("at >= ?", since).
		Group("query_text").
		Order("count DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "failed to aggregate top queries", err)
	}
	return rows, nil
}
