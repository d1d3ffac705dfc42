// Package pipeline implements the Ingestion Pipeline: the Enqueuer, Worker
// pool, and Scheduler that move a Document through its five-stage
// extract/analyze/embed/index lifecycle.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"doccatalog-go/internal/apperr"
	"doccatalog-go/internal/broker"
	"doccatalog-go/internal/config"
	"doccatalog-go/internal/model"
	"doccatalog-go/internal/repository"
	"doccatalog-go/pkg/log"
)

// DocumentQueue is the broker queue name processing jobs are pushed to and
// consumed from, exported so callers assembling admin/monitoring surfaces
// don't have to hardcode it.
const DocumentQueue = "document.process"

const documentQueue = DocumentQueue

// JobPayload is the wire shape enqueued for every document-processing job.
type JobPayload struct {
	DocumentID uint `json:"doc_id"`
	Attempts   int  `json:"attempts"`
}

// Enqueuer creates Document records and schedules their processing jobs, and
// periodically sweeps for documents stuck in PENDING/QUEUED.
type Enqueuer struct {
	repo   repository.DocumentRepository
	broker broker.Broker
	cfg    config.PipelineConfig
}

// NewEnqueuer builds an Enqueuer.
func NewEnqueuer(repo repository.DocumentRepository, b broker.Broker, cfg config.PipelineConfig) *Enqueuer {
	return &Enqueuer{repo: repo, broker: b, cfg: cfg}
}

// Upload creates a new Document in PENDING, transitions it to QUEUED, and
// enqueues its first processing job.
func (e *Enqueuer) Upload(ctx context.Context, filename, blobKey string, size *int64) (uint, error) {
	return e.UploadDelayed(ctx, filename, blobKey, size, 0)
}

// UploadDelayed is Upload with the first processing job deferred by delay,
// used to stagger a multi-file upload batch's AI Gateway calls instead of
// bursting all of them against the providers at once (the configured
// upload_batch_stagger_s).
func (e *Enqueuer) UploadDelayed(ctx context.Context, filename, blobKey string, size *int64, delay time.Duration) (uint, error) {
	if err := e.CheckBackpressure(ctx); err != nil {
		return 0, err
	}

	doc, err := e.repo.CreateDocument(filename, blobKey, size)
	if err != nil {
		return 0, err
	}
	var eta *time.Time
	if delay > 0 {
		t := time.Now().Add(delay)
		eta = &t
	}
	if err := e.enqueueJob(ctx, doc.ID, 0, eta); err != nil {
		return 0, err
	}
	return doc.ID, nil
}

// CheckBackpressure rejects new upload jobs once the configured queue depth
// watermark is exceeded.
func (e *Enqueuer) CheckBackpressure(ctx context.Context) error {
	depth, err := e.broker.QueueDepth(ctx, documentQueue)
	if err != nil {
		log.Warnf("[Pipeline] failed to read queue depth, proceeding without backpressure check: %v", err)
		return nil
	}
	if e.cfg.QueueDepthWatermark > 0 && depth >= int64(e.cfg.QueueDepthWatermark) {
		return apperr.New(apperr.KindBackpressure, "document processing queue is over its depth watermark")
	}
	return nil
}

// enqueueJob transitions the document to QUEUED (if not already) and pushes
// a job payload, optionally deferred until eta.
func (e *Enqueuer) enqueueJob(ctx context.Context, docID uint, attempts int, eta *time.Time) error {
	doc, err := e.repo.Get(docID)
	if err != nil {
		return err
	}
	if doc.Status != model.StatusPending && doc.Status != model.StatusQueued {
		// Already PROCESSING or beyond; re-enqueueing a document that is
		// already in flight is a no-op by design (idempotent sweep requirement).
		log.Infof("[Pipeline] skipping enqueue for document %d in status %s", docID, doc.Status)
		return nil
	}
	if doc.Status == model.StatusPending {
		if err := e.repo.UpdateStatus(docID, "QUEUED", nil, nil, false); err != nil {
			if !apperr.Is(err, apperr.KindConflictingState) {
				return err
			}
			// Another caller moved it out of PENDING in the meantime.
			log.Infof("[Pipeline] skipping enqueue for document %d: %v", docID, err)
			return nil
		}
	}
	payload, err := json.Marshal(JobPayload{DocumentID: docID, Attempts: attempts})
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to marshal job payload", err)
	}
	if _, err := e.broker.Enqueue(ctx, documentQueue, payload, eta); err != nil {
		return err
	}
	return nil
}

// Requeue pushes a fresh processing job for a document whose status has
// already been reset to QUEUED (by ResetForReprocessing), used by the
// reprocess operation. It pushes the job without reading or changing the
// document's status, since the repository has already made the transition.
func (e *Enqueuer) Requeue(ctx context.Context, docID uint) error {
	payload, err := json.Marshal(JobPayload{DocumentID: docID, Attempts: 0})
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to marshal job payload", err)
	}
	if _, err := e.broker.Enqueue(ctx, documentQueue, payload, nil); err != nil {
		return err
	}
	return nil
}

// SweepStuck re-enqueues documents that have sat in PENDING/QUEUED for
// longer than stuckThreshold, skipping any that have since progressed past
// QUEUED (enqueueJob re-reads each document's status; a job pushed just as a
// worker picks the document up is dropped by the next worker's
// QUEUED->PROCESSING transition check).
func (e *Enqueuer) SweepStuck(ctx context.Context, stuckThreshold time.Duration) (int, error) {
	cutoff := time.Now().Add(-stuckThreshold)
	docs, err := e.repo.StuckDocuments(cutoff)
	if err != nil {
		return 0, err
	}
	swept := 0
	for _, d := range docs {
		if err := e.enqueueJob(ctx, d.ID, 0, nil); err != nil {
			log.Errorf("[Pipeline] failed to re-enqueue stuck document %d: %v", d.ID, err)
			continue
		}
		swept++
	}
	if swept > 0 {
		log.Infof("[Pipeline] swept %d stuck document(s)", swept)
	}
	return swept, nil
}
