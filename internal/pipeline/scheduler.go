package pipeline

import (
	"context"
	"time"

	"doccatalog-go/internal/broker"
	"doccatalog-go/internal/config"
	"doccatalog-go/pkg/log"
)

// Scheduler runs the periodic housekeeping pass: re-enqueue stuck jobs,
// drain the delayed-retry sorted set back onto Kafka, and log a warning when
// the queue depth is at or above the watermark. It does not touch the facet
// cache, whose entries expire through their Redis TTL.
type Scheduler struct {
	enqueuer *Enqueuer
	broker   broker.Broker
	cfg      config.PipelineConfig
}

// NewScheduler builds a Scheduler.
func NewScheduler(enqueuer *Enqueuer, b broker.Broker, cfg config.PipelineConfig) *Scheduler {
	return &Scheduler{enqueuer: enqueuer, broker: b, cfg: cfg}
}

// Run ticks every SchedulerIntervalS seconds until stop is closed.
func (s *Scheduler) Run(ctx context.Context, stop <-chan struct{}) {
	interval := time.Duration(s.cfg.SchedulerIntervalS) * time.Second
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-stop:
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	stuckThreshold := time.Duration(s.cfg.StuckThresholdS) * time.Second
	if _, err := s.enqueuer.SweepStuck(ctx, stuckThreshold); err != nil {
		log.Errorf("[Scheduler] stuck-document sweep failed: %v", err)
	}

	if moved, err := s.broker.PumpDelayed(ctx, documentQueue); err != nil {
		log.Errorf("[Scheduler] delayed-job pump failed: %v", err)
	} else if moved > 0 {
		log.Infof("[Scheduler] moved %d delayed job(s) back onto the live queue", moved)
	}

	depth, err := s.broker.QueueDepth(ctx, documentQueue)
	if err != nil {
		log.Errorf("[Scheduler] queue depth check failed: %v", err)
	} else if int(depth) >= s.cfg.QueueDepthWatermark && s.cfg.QueueDepthWatermark > 0 {
		log.Warnf("[Scheduler] queue depth %d at or above watermark %d", depth, s.cfg.QueueDepthWatermark)
	}
}
