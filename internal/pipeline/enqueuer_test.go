package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"doccatalog-go/internal/apperr"
	"doccatalog-go/internal/config"
	"doccatalog-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{QueueDepthWatermark: 1000}
}

func TestUploadCreatesDocumentAndEnqueuesJob(t *testing.T) {
	repo := newFakeDocumentRepository()
	b := newFakeBroker()
	e := NewEnqueuer(repo, b, testPipelineConfig())

	id, err := e.Upload(context.Background(), "report.pdf", "blob/1", nil)
	require.NoError(t, err)
	assert.Equal(t, uint(1), id)

	doc, err := repo.Get(id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, doc.Status)

	assert.Len(t, b.queues[documentQueue], 1)
	var payload JobPayload
	require.NoError(t, json.Unmarshal(b.queues[documentQueue][0], &payload))
	assert.Equal(t, id, payload.DocumentID)
}

func TestCheckBackpressureRejectsOverWatermark(t *testing.T) {
	repo := newFakeDocumentRepository()
	b := newFakeBroker()
	b.depth = 5000
	e := NewEnqueuer(repo, b, testPipelineConfig())

	_, err := e.Upload(context.Background(), "report.pdf", "blob/1", nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindBackpressure))
}

func TestCheckBackpressureProceedsWhenDepthReadFails(t *testing.T) {
	repo := newFakeDocumentRepository()
	b := newFakeBroker()
	b.depthErr = apperr.New(apperr.KindCacheUnavailable, "redis down")
	e := NewEnqueuer(repo, b, testPipelineConfig())

	_, err := e.Upload(context.Background(), "report.pdf", "blob/1", nil)
	assert.NoError(t, err)
}

func TestUploadDelayedSchedulesEta(t *testing.T) {
	repo := newFakeDocumentRepository()
	b := newFakeBroker()
	e := NewEnqueuer(repo, b, testPipelineConfig())

	_, err := e.UploadDelayed(context.Background(), "report.pdf", "blob/1", nil, 30*time.Second)
	require.NoError(t, err)
	assert.Len(t, b.queues[documentQueue], 1)
}

func TestEnqueueJobIsNoOpWhenAlreadyInFlight(t *testing.T) {
	repo := newFakeDocumentRepository()
	b := newFakeBroker()
	e := NewEnqueuer(repo, b, testPipelineConfig())

	id, err := e.Upload(context.Background(), "report.pdf", "blob/1", nil)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateStatus(id, model.StatusProcessing, nil, nil, false))

	err = e.enqueueJob(context.Background(), id, 0, nil)
	assert.NoError(t, err)
}

func TestSweepStuckReEnqueuesOldDocuments(t *testing.T) {
	repo := newFakeDocumentRepository()
	b := newFakeBroker()
	e := NewEnqueuer(repo, b, testPipelineConfig())

	doc, err := repo.CreateDocument("old.pdf", "blob/2", nil)
	require.NoError(t, err)
	doc.UpdatedAt = time.Now().Add(-time.Hour)
	repo.docs[doc.ID] = doc

	swept, err := e.SweepStuck(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)
	assert.Len(t, b.queues[documentQueue], 1)
}

func TestRequeuePushesFreshJob(t *testing.T) {
	repo := newFakeDocumentRepository()
	b := newFakeBroker()
	e := NewEnqueuer(repo, b, testPipelineConfig())

	require.NoError(t, e.Requeue(context.Background(), 42))
	assert.Len(t, b.queues[documentQueue], 1)
}
