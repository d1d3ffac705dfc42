package pipeline

import (
	"context"
	"strconv"
	"testing"
	"time"

	"doccatalog-go/internal/broker"
	"doccatalog-go/internal/config"
	"doccatalog-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPool(repo *fakeDocumentRepository, b *fakeBroker) *WorkerPool {
	cfg := config.PipelineConfig{RetryBaseS: 1, RetryCapS: 8, RetryMaxAttempts: 3}
	return &WorkerPool{repo: repo, broker: b, preview: noopPreview{}, cfg: cfg}
}

func TestBackoffForDoublesUntilCap(t *testing.T) {
	p := testPool(nil, nil)
	assert.Equal(t, 1*time.Second, p.backoffFor(0))
	assert.Equal(t, 2*time.Second, p.backoffFor(1))
	assert.Equal(t, 4*time.Second, p.backoffFor(2))
	assert.Equal(t, 8*time.Second, p.backoffFor(3))
	assert.Equal(t, 8*time.Second, p.backoffFor(10))
}

func TestDedupeUintsPreservesFirstOccurrenceOrder(t *testing.T) {
	assert.Equal(t, []uint{1, 2, 3}, dedupeUints([]uint{1, 2, 1, 3, 2}))
	assert.Equal(t, []uint{}, dedupeUints(nil))
}

func TestProcessDiscardsMalformedPayloadWithoutPanicking(t *testing.T) {
	repo := newFakeDocumentRepository()
	b := newFakeBroker()
	p := testPool(repo, b)

	job := &broker.Job{ID: "j1", Queue: documentQueue, Payload: []byte("not json")}
	assert.NotPanics(t, func() { p.process(context.Background(), job) })
}

func TestProcessSkipsDocumentThatCannotTransitionToProcessing(t *testing.T) {
	repo := newFakeDocumentRepository()
	b := newFakeBroker()
	p := testPool(repo, b)

	doc, err := repo.CreateDocument("f.pdf", "blob/1", nil)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateStatus(doc.ID, model.StatusQueued, nil, nil, false))
	require.NoError(t, repo.UpdateStatus(doc.ID, model.StatusProcessing, nil, nil, false))
	require.NoError(t, repo.UpdateStatus(doc.ID, model.StatusCompleted, nil, nil, false))

	job := &broker.Job{ID: "j2", Queue: documentQueue, Payload: []byte(`{"doc_id":` + strconv.Itoa(int(doc.ID)) + `}`)}
	p.process(context.Background(), job)

	reloaded, err := repo.Get(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, reloaded.Status)
}
