package session

import (
	"context"
	"sync"
	"time"

	"doccatalog-go/internal/broker"
)

// fakeBroker is a minimal in-process stand-in for broker.Broker's keyed-store
// half, enough to exercise Store without a real Redis/Kafka connection.
type fakeBroker struct {
	mu      sync.Mutex
	entries map[string][]byte
	down    bool
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{entries: make(map[string][]byte)}
}

func (f *fakeBroker) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.entries[key]
	return v, ok, nil
}

func (f *fakeBroker) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = value
	return nil
}

func (f *fakeBroker) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key)
	return nil
}

func (f *fakeBroker) DeletePrefix(ctx context.Context, prefix string) error { return nil }

func (f *fakeBroker) Enqueue(ctx context.Context, queue string, payload []byte, eta *time.Time) (string, error) {
	return "", nil
}

func (f *fakeBroker) Reserve(ctx context.Context, queue string, visibilityTimeout time.Duration) (*broker.Job, error) {
	return nil, nil
}

func (f *fakeBroker) Ack(ctx context.Context, job *broker.Job) error { return nil }

func (f *fakeBroker) Nack(ctx context.Context, job *broker.Job, reason string, retryAfter time.Duration) error {
	return nil
}

func (f *fakeBroker) PumpDelayed(ctx context.Context, queue string) (int, error) { return 0, nil }

func (f *fakeBroker) QueueDepth(ctx context.Context, queue string) (int64, error) { return 0, nil }

func (f *fakeBroker) Health(ctx context.Context) (bool, int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.down, 1
}

func (f *fakeBroker) Close() error { return nil }

var _ broker.Broker = (*fakeBroker)(nil)
