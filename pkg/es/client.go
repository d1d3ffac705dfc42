// Package es provides the Elasticsearch client used by the ingestion
// pipeline and the search service for indexing and vector and full-text
// search over documents.
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"doccatalog-go/internal/config"
	"doccatalog-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ESClient is the process-wide Elasticsearch client.
var ESClient *elasticsearch.Client

// IndexedDocument is the shape of a Document mirrored into Elasticsearch.
// It carries only what the hybrid search query needs: the Store remains the
// source of truth for everything else.
type IndexedDocument struct {
	DocumentID       uint      `json:"document_id"`
	Filename         string    `json:"filename"`
	FullTextIndex    string    `json:"full_text_index"`
	Vector           []float32 `json:"vector,omitempty"`
	TaxonomyTermIDs  []uint    `json:"taxonomy_term_ids"`
	PrimaryCategory  string    `json:"primary_category"`
	Subcategory      string    `json:"subcategory"`
	Status           string    `json:"status"`
	CreatedAtUnix    int64     `json:"created_at_unix"`
	HasSummary       bool      `json:"has_summary"`
	HasTaxonomyMap   bool      `json:"has_taxonomy_map"`
	MappingCount     int       `json:"mapping_count"`
}

// InitES connects to Elasticsearch and ensures the configured index exists.
func InitES(esCfg config.ElasticsearchConfig, vectorDim int) error {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return createIndexIfNotExists(esCfg.IndexName, vectorDim)
}

func createIndexIfNotExists(indexName string, vectorDim int) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("checking index existence failed: %v", err)
		return err
	}
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("index '%s' already exists", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("unexpected status checking index '%s': %d", indexName, res.StatusCode)
		return fmt.Errorf("unexpected status checking index existence: %d", res.StatusCode)
	}

	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"document_id": { "type": "long" },
				"filename": { "type": "keyword" },
				"full_text_index": {
					"type": "text",
					"analyzer": "ik_max_word",
					"search_analyzer": "ik_smart"
				},
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"taxonomy_term_ids": { "type": "long" },
				"primary_category": { "type": "keyword" },
				"subcategory": { "type": "keyword" },
				"status": { "type": "keyword" },
				"created_at_unix": { "type": "long" },
				"has_summary": { "type": "boolean" },
				"has_taxonomy_map": { "type": "boolean" },
				"mapping_count": { "type": "integer" }
			}
		}
	}`, vectorDim)

	res, err = ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("failed to create index '%s': %v", indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("elasticsearch returned an error creating index '%s': %s", indexName, res.String())
		return errors.New("elasticsearch returned an error creating the index")
	}

	log.Infof("index '%s' created successfully", indexName)
	return nil
}

// IndexDocument upserts one document into Elasticsearch, keyed by DocumentID.
func IndexDocument(ctx context.Context, indexName string, doc IndexedDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: fmt.Sprintf("%d", doc.DocumentID),
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("failed to index document into elasticsearch: %s", res.String())
		return errors.New("failed to index document")
	}

	return nil
}

// DeleteDocument removes a document's ES entry, e.g. after Store deletion.
func DeleteDocument(ctx context.Context, indexName string, documentID uint) error {
	req := esapi.DeleteRequest{
		Index:      indexName,
		DocumentID: fmt.Sprintf("%d", documentID),
	}
	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("failed to delete document %d from elasticsearch: %s", documentID, res.String())
	}
	return nil
}
