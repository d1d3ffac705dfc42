package pipeline

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"time"

	"doccatalog-go/internal/ai"
	"doccatalog-go/internal/apperr"
	"doccatalog-go/internal/broker"
	"doccatalog-go/internal/config"
	"doccatalog-go/internal/model"
	"doccatalog-go/internal/repository"
	"doccatalog-go/internal/taxonomy"
	"doccatalog-go/pkg/blob"
	"doccatalog-go/pkg/es"
	"doccatalog-go/pkg/log"
)

// Preview is the out-of-scope preview-generation collaborator; this
// implementation is a no-op stub.
type Preview interface {
	Generate(ctx context.Context, blobKey, filename string) (*string, error)
}

type noopPreview struct{}

func (noopPreview) Generate(ctx context.Context, blobKey, filename string) (*string, error) {
	return nil, nil
}

// WorkerPool runs W goroutines, each reserving and processing one document
// job at a time, sized by the configured worker-concurrency knob and
// panic-recovering worker loop idiom.
type WorkerPool struct {
	repo      repository.DocumentRepository
	broker    broker.Broker
	blobs     blob.Store
	gateway   *ai.Gateway
	taxonomy  *taxonomy.Engine
	preview   Preview
	cfg       config.PipelineConfig
	esIndex   string
	vectorDim int
}

// NewWorkerPool builds a WorkerPool.
func NewWorkerPool(
	repo repository.DocumentRepository,
	b broker.Broker,
	blobs blob.Store,
	gateway *ai.Gateway,
	tax *taxonomy.Engine,
	cfg config.PipelineConfig,
	esIndex string,
	vectorDim int,
) *WorkerPool {
	return &WorkerPool{
		repo: repo, broker: b, blobs: blobs, gateway: gateway, taxonomy: tax,
		preview: noopPreview{}, cfg: cfg, esIndex: esIndex, vectorDim: vectorDim,
	}
}

// Run starts W worker goroutines and returns; each worker exits once stop is
// closed.
func (p *WorkerPool) Run(ctx context.Context, stop <-chan struct{}) {
	w := p.cfg.WorkerConcurrency
	if w < 1 {
		w = 1
	}
	for i := 0; i < w; i++ {
		go p.loop(ctx, stop, i)
	}
}

func (p *WorkerPool) loop(ctx context.Context, stop <-chan struct{}, id int) {
	visibility := time.Duration(p.cfg.JobVisibilityTimeoutS) * time.Second
	for {
		select {
		case <-stop:
			return
		default:
		}

		job, err := p.broker.Reserve(ctx, documentQueue, visibility)
		if err != nil {
			log.Errorf("[Pipeline] worker %d reserve failed: %v", id, err)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			time.Sleep(200 * time.Millisecond)
			continue
		}
		p.processSafely(ctx, job)
	}
}

// processSafely recovers from panics in process so a single bad document
// never kills a worker goroutine.
func (p *WorkerPool) processSafely(ctx context.Context, job *broker.Job) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("[Pipeline] worker recovered from panic processing job %s: %v", job.ID, r)
			_ = p.broker.Nack(ctx, job, "panic during processing", p.backoffFor(job.Attempts))
		}
	}()
	p.process(ctx, job)
}

func (p *WorkerPool) process(ctx context.Context, job *broker.Job) {
	var payload JobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		log.Errorf("[Pipeline] discarding job %s: malformed payload: %v", job.ID, err)
		_ = p.broker.Ack(ctx, job)
		return
	}

	five := 5
	if err := p.repo.UpdateStatus(payload.DocumentID, model.StatusProcessing, &five, nil, false); err != nil {
		log.Warnf("[Pipeline] document %d could not transition to PROCESSING: %v", payload.DocumentID, err)
		_ = p.broker.Ack(ctx, job)
		return
	}

	if err := p.runSteps(ctx, payload.DocumentID); err != nil {
		p.handleFailure(ctx, job, payload, err)
		return
	}

	_ = p.broker.Ack(ctx, job)
}

func (p *WorkerPool) handleFailure(ctx context.Context, job *broker.Job, payload JobPayload, err error) {
	kind := apperr.KindOf(err)
	if apperr.Retriable(kind) && job.Attempts < p.cfg.RetryMaxAttempts {
		backoffDur := p.backoffFor(job.Attempts)
		log.Warnf("[Pipeline] document %d transient failure (attempt %d): %v; retrying in %s", payload.DocumentID, job.Attempts, err, backoffDur)
		if resetErr := p.repo.UpdateStatus(payload.DocumentID, model.StatusQueued, nil, nil, true); resetErr != nil {
			log.Errorf("[Pipeline] failed to requeue document %d: %v", payload.DocumentID, resetErr)
		}
		_ = p.broker.Nack(ctx, job, err.Error(), backoffDur)
		return
	}

	msg := err.Error()
	if markErr := p.repo.UpdateStatus(payload.DocumentID, model.StatusFailed, nil, &msg, false); markErr != nil {
		log.Errorf("[Pipeline] failed to mark document %d FAILED: %v", payload.DocumentID, markErr)
	}
	_ = p.broker.Ack(ctx, job)
}

// backoffFor implements min(2^attempts*base, cap).
func (p *WorkerPool) backoffFor(attempts int) time.Duration {
	base := time.Duration(p.cfg.RetryBaseS) * time.Second
	cap := time.Duration(p.cfg.RetryCapS) * time.Second
	d := base * time.Duration(math.Pow(2, float64(attempts)))
	if d > cap {
		d = cap
	}
	return d
}

// runSteps performs processing steps A-E for one document.
func (p *WorkerPool) runSteps(ctx context.Context, docID uint) error {
	doc, err := p.repo.Get(docID)
	if err != nil {
		return err
	}

	// A. Fetch blob.
	rc, err := p.blobs.Get(ctx, doc.BlobKey)
	if err != nil {
		return apperr.Wrap(apperr.KindBlobMissing, "blob missing for document", err)
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, "failed to read blob", err)
	}
	twentyFive := 25
	_ = p.repo.UpdateStatus(docID, model.StatusProcessing, &twentyFive, nil, false)

	// B. Extract.
	text, err := p.gateway.Extract(ctx, nil, doc.Filename, data)
	if err != nil {
		return err
	}

	// C. Analyze + validate taxonomy + persist.
	taxonomyTerms := p.taxonomy.CanonicalTerms()
	analysis, err := p.gateway.Analyze(ctx, text, "", taxonomyTerms)
	if err != nil {
		return err
	}
	valid, rejected := p.taxonomy.ValidateMapping(analysis.KeywordMappings)
	analysis.KeywordMappings = valid
	if len(rejected) > 0 {
		log.Infof("[Pipeline] document %d: dropped %d invalid keyword mapping(s)", docID, len(rejected))
	}

	keywords := make([]string, 0, len(valid))
	var termIDs []uint
	for _, m := range valid {
		keywords = append(keywords, m.VerbatimTerm)
		if m.MappedCanonicalTerm == "" {
			continue
		}
		if id, ok := p.taxonomy.TermIDByName(m.MappedCanonicalTerm); ok {
			termIDs = append(termIDs, id)
		}
	}
	for _, c := range analysis.Categories {
		if id, ok := p.taxonomy.TermIDByName(c); ok {
			termIDs = append(termIDs, id)
		}
	}

	fiftyFive := 55
	if err := p.repo.UpdateContent(docID, text, &analysis, keywords, nil, nil); err != nil {
		return err
	}
	if err := p.repo.ReplaceTaxonomyMap(docID, dedupeUints(termIDs)); err != nil {
		return err
	}
	_ = p.repo.UpdateStatus(docID, model.StatusProcessing, &fiftyFive, nil, false)

	// D. Embed + persist + index.
	vector, err := p.gateway.Embed(ctx, text)
	if err != nil {
		if p.cfg.RequireEmbedding {
			return apperr.Wrap(apperr.KindProviderUnavailable, "embedding required but failed", err)
		}
		log.Warnf("[Pipeline] document %d: embedding failed, continuing without vector: %v", docID, err)
	} else {
		if err := p.repo.UpdateEmbedding(docID, vector, p.vectorDim); err != nil {
			return err
		}
	}
	eighty := 80
	_ = p.repo.UpdateStatus(docID, model.StatusProcessing, &eighty, nil, false)

	if err := p.indexDocument(ctx, docID, vector); err != nil {
		log.Errorf("[Pipeline] document %d: elasticsearch index failed: %v", docID, err)
	}

	// E. Preview (no-op) + complete + cache invalidation.
	previewKey, _ := p.preview.Generate(ctx, doc.BlobKey, doc.Filename)
	if previewKey != nil {
		if err := p.repo.UpdateContent(docID, text, &analysis, keywords, nil, previewKey); err != nil {
			log.Errorf("[Pipeline] document %d: failed to persist preview key: %v", docID, err)
		}
	}

	hundred := 100
	if err := p.repo.UpdateStatus(docID, model.StatusCompleted, &hundred, nil, false); err != nil {
		return err
	}

	if err := p.broker.DeletePrefix(ctx, "search:"); err != nil {
		log.Errorf("[Pipeline] failed to invalidate search cache for document %d: %v", docID, err)
	}
	if err := p.broker.DeletePrefix(ctx, "facets:enhanced:"); err != nil {
		log.Errorf("[Pipeline] failed to invalidate facets cache for document %d: %v", docID, err)
	}
	return nil
}

func (p *WorkerPool) indexDocument(ctx context.Context, docID uint, vector []float32) error {
	doc, err := p.repo.Get(docID)
	if err != nil {
		return err
	}
	termIDs, err := p.repo.TaxonomyMapTermIDs(docID)
	if err != nil {
		return err
	}

	var primaryCategory, subcategory string
	if len(termIDs) > 0 {
		if name, ok := p.taxonomy.CategoryForTermID(termIDs[0]); ok {
			primaryCategory = name
		}
	}

	analysis, _ := doc.GetAIAnalysis()
	kws, _ := doc.GetKeywords()

	return es.IndexDocument(ctx, p.esIndex, es.IndexedDocument{
		DocumentID:      docID,
		Filename:        doc.Filename,
		FullTextIndex:   doc.FullTextIndex,
		Vector:          vector,
		TaxonomyTermIDs: termIDs,
		PrimaryCategory: primaryCategory,
		Subcategory:     subcategory,
		Status:          doc.Status,
		CreatedAtUnix:   doc.CreatedAt.Unix(),
		HasSummary:      analysis != nil && analysis.Summary != "",
		HasTaxonomyMap:  len(termIDs) > 0,
		MappingCount:    len(kws),
	})
}

func dedupeUints(in []uint) []uint {
	seen := make(map[uint]bool, len(in))
	out := make([]uint, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
