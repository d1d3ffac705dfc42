package pipeline

import (
	"context"
	"sync"
	"time"

	"doccatalog-go/internal/apperr"
	"doccatalog-go/internal/broker"
	"doccatalog-go/internal/model"
	"doccatalog-go/internal/repository"
)

// fakeDocumentRepository is an in-memory stand-in for repository.DocumentRepository
// covering only what the Enqueuer/Worker/Scheduler exercise.
type fakeDocumentRepository struct {
	mu     sync.Mutex
	docs   map[uint]*model.Document
	nextID uint
}

func newFakeDocumentRepository() *fakeDocumentRepository {
	return &fakeDocumentRepository{docs: make(map[uint]*model.Document), nextID: 1}
}

func (r *fakeDocumentRepository) CreateDocument(filename, blobKey string, size *int64) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc := &model.Document{ID: r.nextID, Filename: filename, BlobKey: blobKey, SizeBytes: size, Status: model.StatusPending}
	doc.DeriveFullTextIndex()
	r.docs[doc.ID] = doc
	r.nextID++
	return doc, nil
}

func (r *fakeDocumentRepository) Get(id uint) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "document not found")
	}
	cp := *doc
	return &cp, nil
}

func (r *fakeDocumentRepository) UpdateStatus(id uint, status string, progress *int, errMsg *string, allowReset bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return apperr.New(apperr.KindNotFound, "document not found")
	}
	if !model.CanTransition(doc.Status, status, allowReset) {
		return apperr.New(apperr.KindConflictingState, "illegal transition")
	}
	doc.Status = status
	if progress != nil {
		doc.Progress = *progress
	}
	if errMsg != nil {
		doc.Error = errMsg
	}
	return nil
}

func (r *fakeDocumentRepository) UpdateContent(id uint, extractedText string, analysis *model.AIAnalysis, keywords []string, metadata map[string]any, previewKey *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return apperr.New(apperr.KindNotFound, "document not found")
	}
	doc.ExtractedText = &extractedText
	_ = doc.SetAIAnalysis(analysis)
	_ = doc.SetKeywords(keywords)
	if previewKey != nil {
		doc.PreviewKey = previewKey
	}
	doc.DeriveFullTextIndex()
	return nil
}

func (r *fakeDocumentRepository) UpdateEmbedding(id uint, vector []float32, expectedDim int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(vector) != expectedDim {
		return apperr.New(apperr.KindValidation, "embedding dimension mismatch")
	}
	doc, ok := r.docs[id]
	if !ok {
		return apperr.New(apperr.KindNotFound, "document not found")
	}
	return doc.SetSearchVector(vector)
}

func (r *fakeDocumentRepository) ResetForReprocessing(id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return apperr.New(apperr.KindNotFound, "document not found")
	}
	doc.Status = model.StatusQueued
	doc.Progress = 0
	doc.Error = nil
	return nil
}

func (r *fakeDocumentRepository) Delete(id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, id)
	return nil
}

func (r *fakeDocumentRepository) QueryDocuments(filter repository.DocumentFilter, sort repository.DocumentSort, sortDesc bool, page, perPage int) ([]model.Document, int64, error) {
	return nil, 0, nil
}

func (r *fakeDocumentRepository) TaxonomyBulkUpsert(terms []model.TaxonomyTerm, synonyms []model.TaxonomySynonym) error {
	return nil
}

func (r *fakeDocumentRepository) ReplaceTaxonomyMap(documentID uint, termIDs []uint) error {
	return nil
}

func (r *fakeDocumentRepository) TaxonomyMapTermIDs(documentID uint) ([]uint, error) {
	return nil, nil
}

func (r *fakeDocumentRepository) StuckDocuments(olderThan time.Time) ([]model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Document
	for _, d := range r.docs {
		if (d.Status == model.StatusPending || d.Status == model.StatusQueued) && d.UpdatedAt.Before(olderThan) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r *fakeDocumentRepository) LogSearchQuery(queryText string, actorID *string) error { return nil }

func (r *fakeDocumentRepository) TopQueries(limit int, since time.Time) ([]repository.TopQueryRow, error) {
	return nil, nil
}

var _ repository.DocumentRepository = (*fakeDocumentRepository)(nil)

// fakeBroker is an in-memory stand-in for broker.Broker covering the queue
// operations the Enqueuer/Worker/Scheduler exercise.
type fakeBroker struct {
	mu       sync.Mutex
	queues   map[string][][]byte
	depth    int64
	depthErr error
	down     bool
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{queues: make(map[string][][]byte)}
}

func (f *fakeBroker) Get(ctx context.Context, key string) ([]byte, bool, error) { return nil, false, nil }
func (f *fakeBroker) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}
func (f *fakeBroker) Delete(ctx context.Context, key string) error       { return nil }
func (f *fakeBroker) DeletePrefix(ctx context.Context, prefix string) error { return nil }

func (f *fakeBroker) Enqueue(ctx context.Context, queue string, payload []byte, eta *time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues[queue] = append(f.queues[queue], payload)
	return "job-id", nil
}

func (f *fakeBroker) Reserve(ctx context.Context, queue string, visibilityTimeout time.Duration) (*broker.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.queues[queue]
	if len(q) == 0 {
		return nil, nil
	}
	payload := q[0]
	f.queues[queue] = q[1:]
	return &broker.Job{ID: "job-id", Queue: queue, Payload: payload}, nil
}

func (f *fakeBroker) Ack(ctx context.Context, job *broker.Job) error { return nil }
func (f *fakeBroker) Nack(ctx context.Context, job *broker.Job, reason string, retryAfter time.Duration) error {
	return nil
}
func (f *fakeBroker) PumpDelayed(ctx context.Context, queue string) (int, error) { return 0, nil }

func (f *fakeBroker) QueueDepth(ctx context.Context, queue string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.depthErr != nil {
		return 0, f.depthErr
	}
	if f.depth != 0 {
		return f.depth, nil
	}
	return int64(len(f.queues[queue])), nil
}

func (f *fakeBroker) Health(ctx context.Context) (bool, int64) { return !f.down, 1 }
func (f *fakeBroker) Close() error                             { return nil }

var _ broker.Broker = (*fakeBroker)(nil)
