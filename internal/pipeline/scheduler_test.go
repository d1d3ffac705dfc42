package pipeline

import (
	"context"
	"testing"
	"time"

	"doccatalog-go/internal/config"
	"doccatalog-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerTickSweepsStuckAndReportsDepth(t *testing.T) {
	repo := newFakeDocumentRepository()
	b := newFakeBroker()
	enq := NewEnqueuer(repo, b, testPipelineConfig())
	s := NewScheduler(enq, b, config.PipelineConfig{StuckThresholdS: 60, QueueDepthWatermark: 1000})

	doc, err := repo.CreateDocument("stuck.pdf", "blob/9", nil)
	require.NoError(t, err)
	doc.UpdatedAt = time.Now().Add(-time.Hour)
	repo.docs[doc.ID] = doc

	s.tick(context.Background())

	reloaded, err := repo.Get(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, reloaded.Status)
	assert.Len(t, b.queues[documentQueue], 1)
}

func TestSchedulerTickToleratesBrokerErrors(t *testing.T) {
	repo := newFakeDocumentRepository()
	b := newFakeBroker()
	b.depthErr = assert.AnError
	enq := NewEnqueuer(repo, b, testPipelineConfig())
	s := NewScheduler(enq, b, config.PipelineConfig{StuckThresholdS: 60})

	assert.NotPanics(t, func() { s.tick(context.Background()) })
}
