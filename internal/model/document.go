// Package model defines the Go structs mapped onto database tables and
// the structured payloads exchanged between components.
package model

import (
	"encoding/json"
	"time"
)

// Document status values, per the ingestion state machine.
const (
	StatusPending    = "PENDING"
	StatusQueued     = "QUEUED"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// legalTransitions enumerates the state machine's allowed edges.
var legalTransitions = map[string]map[string]bool{
	StatusPending:    {StatusQueued: true},
	StatusQueued:     {StatusProcessing: true},
	StatusProcessing: {StatusCompleted: true, StatusFailed: true, StatusQueued: true},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// CanTransition reports whether moving from "from" to "to" is legal.
// COMPLETED/FAILED -> QUEUED is only permitted through reset_for_reprocessing,
// which callers signal with the allowReset flag.
func CanTransition(from, to string, allowReset bool) bool {
	if allowReset && to == StatusQueued && (from == StatusCompleted || from == StatusFailed) {
		return true
	}
	edges, ok := legalTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// AIAnalysis is the structured output of the AI Gateway's analyze operation.
// Unknown fields are preserved in Extra but ignored by search.
type AIAnalysis struct {
	Summary         string            `json:"summary,omitempty"`
	DocumentType    string            `json:"document_type,omitempty"`
	CampaignType    string            `json:"campaign_type,omitempty"`
	DocumentTone    string            `json:"document_tone,omitempty"`
	Categories      []string          `json:"categories,omitempty"`
	KeywordMappings []KeywordMapping  `json:"keyword_mappings,omitempty"`
	Extra           map[string]any    `json:"-"`
}

// KeywordMapping pairs a surface term with its resolved canonical term, if any.
type KeywordMapping struct {
	VerbatimTerm        string `json:"verbatim_term"`
	MappedCanonicalTerm string `json:"mapped_canonical_term,omitempty"`
}

// Document is the central entity: one uploaded file and its derived content.
type Document struct {
	ID             uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Filename       string     `gorm:"type:varchar(255);not null" json:"filename"`
	BlobKey        string     `gorm:"type:varchar(512);not null;index" json:"blob_key"`
	SizeBytes      *int64     `json:"size_bytes"`
	Status         string     `gorm:"type:varchar(20);not null;index:idx_status_created;index:idx_status_updated" json:"status"`
	Progress       int        `gorm:"not null;default:0" json:"progress"`
	Error          *string    `gorm:"type:text" json:"error"`
	CreatedAt      time.Time  `gorm:"autoCreateTime;index:idx_status_created;index:idx_created_desc" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime;index:idx_status_updated" json:"updated_at"`
	ProcessedAt    *time.Time `json:"processed_at"`
	ExtractedText  *string    `gorm:"type:longtext" json:"extracted_text,omitempty"`
	AIAnalysisJSON *string    `gorm:"type:json;column:ai_analysis" json:"-"`
	KeywordsJSON   *string    `gorm:"type:json;column:keywords" json:"-"`
	MetadataJSON   *string    `gorm:"type:json;column:metadata" json:"-"`
	SearchVectorJSON *string  `gorm:"type:json;column:search_vector" json:"-"`
	FullTextIndex  string     `gorm:"type:longtext;column:full_text_index" json:"-"`
	PreviewKey     *string    `gorm:"type:varchar(512)" json:"preview_key,omitempty"`
}

// TableName pins the GORM table name.
func (Document) TableName() string {
	return "documents"
}

// IsComplete reports whether the invariant for status=COMPLETED holds:
// extracted_text, ai_analysis, and search_vector must all be present.
func (d *Document) IsComplete() bool {
	return d.Status == StatusCompleted &&
		d.ExtractedText != nil && *d.ExtractedText != "" &&
		d.AIAnalysisJSON != nil && *d.AIAnalysisJSON != "" &&
		d.SearchVectorJSON != nil && *d.SearchVectorJSON != ""
}

// GetAIAnalysis unmarshals the stored ai_analysis JSON, if any.
func (d *Document) GetAIAnalysis() (*AIAnalysis, error) {
	if d.AIAnalysisJSON == nil || *d.AIAnalysisJSON == "" {
		return nil, nil
	}
	var a AIAnalysis
	if err := json.Unmarshal([]byte(*d.AIAnalysisJSON), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// SetAIAnalysis marshals and stores the ai_analysis JSON.
func (d *Document) SetAIAnalysis(a *AIAnalysis) error {
	if a == nil {
		d.AIAnalysisJSON = nil
		return nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	s := string(b)
	d.AIAnalysisJSON = &s
	return nil
}

// GetKeywords unmarshals the stored keywords JSON array, if any.
func (d *Document) GetKeywords() ([]string, error) {
	if d.KeywordsJSON == nil || *d.KeywordsJSON == "" {
		return nil, nil
	}
	var k []string
	if err := json.Unmarshal([]byte(*d.KeywordsJSON), &k); err != nil {
		return nil, err
	}
	return k, nil
}

// SetKeywords marshals and stores the keywords JSON array.
func (d *Document) SetKeywords(keywords []string) error {
	b, err := json.Marshal(keywords)
	if err != nil {
		return err
	}
	s := string(b)
	d.KeywordsJSON = &s
	return nil
}

// GetMetadata unmarshals the stored opaque metadata JSON, if any.
func (d *Document) GetMetadata() (map[string]any, error) {
	if d.MetadataJSON == nil || *d.MetadataJSON == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(*d.MetadataJSON), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// SetMetadata marshals and stores the opaque metadata JSON.
func (d *Document) SetMetadata(meta map[string]any) error {
	b, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	s := string(b)
	d.MetadataJSON = &s
	return nil
}

// GetSearchVector unmarshals the stored embedding vector, if any.
func (d *Document) GetSearchVector() ([]float32, error) {
	if d.SearchVectorJSON == nil || *d.SearchVectorJSON == "" {
		return nil, nil
	}
	var v []float32
	if err := json.Unmarshal([]byte(*d.SearchVectorJSON), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// SetSearchVector marshals and stores the embedding vector.
func (d *Document) SetSearchVector(v []float32) error {
	if v == nil {
		d.SearchVectorJSON = nil
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s := string(b)
	d.SearchVectorJSON = &s
	return nil
}

// DeriveFullTextIndex rebuilds the full-text index column from filename and
// extracted text, per the Store's update_content contract.
func (d *Document) DeriveFullTextIndex() {
	text := d.Filename
	if d.ExtractedText != nil {
		text = text + " " + *d.ExtractedText
	}
	d.FullTextIndex = text
}

// TaxonomyTerm is a canonical concept in the controlled vocabulary.
type TaxonomyTerm struct {
	ID              uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	Term            string  `gorm:"type:varchar(255);not null;uniqueIndex" json:"term"`
	PrimaryCategory *string `gorm:"type:varchar(100);index" json:"primary_category"`
	Subcategory     *string `gorm:"type:varchar(100)" json:"subcategory"`
	Description     string  `gorm:"type:text" json:"description"`
	ParentID        *uint   `gorm:"index" json:"parent_id"`
}

// TableName pins the GORM table name.
func (TaxonomyTerm) TableName() string {
	return "taxonomy_terms"
}

// TaxonomySynonym is an alternative spelling or label resolving to a term.
type TaxonomySynonym struct {
	ID      uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	TermID  uint   `gorm:"not null;uniqueIndex:idx_term_synonym" json:"term_id"`
	Synonym string `gorm:"type:varchar(255);not null;uniqueIndex:idx_term_synonym" json:"synonym"`
}

// TableName pins the GORM table name.
func (TaxonomySynonym) TableName() string {
	return "taxonomy_synonyms"
}

// DocumentTaxonomyMap is the many-to-many join between documents and terms.
type DocumentTaxonomyMap struct {
	DocumentID uint `gorm:"primaryKey;column:document_id" json:"document_id"`
	TermID     uint `gorm:"primaryKey;column:term_id" json:"term_id"`
}

// TableName pins the GORM table name.
func (DocumentTaxonomyMap) TableName() string {
	return "document_taxonomy_map"
}

// SearchQuery is an append-only analytics record of a non-empty query.
type SearchQuery struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	QueryText string    `gorm:"type:varchar(500);not null;index" json:"query_text"`
	At        time.Time `gorm:"autoCreateTime;index" json:"at"`
	ActorID   *string   `gorm:"type:varchar(255)" json:"actor_id,omitempty"`
}

// TableName pins the GORM table name.
func (SearchQuery) TableName() string {
	return "search_queries"
}
