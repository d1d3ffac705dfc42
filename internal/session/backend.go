package session

import (
	"context"
	"sync"
	"time"

	"doccatalog-go/internal/broker"
)

// Backend is the minimal keyed-storage contract the Session Core needs,
// satisfied by both the External (Redis-backed Cache/Broker) and InMemory
// fallback implementations.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Healthy(ctx context.Context) bool
}

// externalBackend delegates to the Cache/Broker's Redis connection.
type externalBackend struct {
	broker broker.Broker
}

func newExternalBackend(b broker.Broker) *externalBackend {
	return &externalBackend{broker: b}
}

func (e *externalBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return e.broker.Get(ctx, key)
}

func (e *externalBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return e.broker.Set(ctx, key, value, ttl)
}

func (e *externalBackend) Delete(ctx context.Context, key string) error {
	return e.broker.Delete(ctx, key)
}

func (e *externalBackend) Healthy(ctx context.Context) bool {
	ok, _ := e.broker.Health(ctx)
	return ok
}

// inMemoryBackend is the per-process fallback used when the Cache/Broker is
// unreachable. Sessions created here never survive a process restart and
// are invisible to other instances.
type inMemoryBackend struct {
	mu      sync.Mutex
	entries map[string]inMemoryEntry
}

type inMemoryEntry struct {
	value   []byte
	expires time.Time
}

func newInMemoryBackend() *inMemoryBackend {
	return &inMemoryBackend{entries: make(map[string]inMemoryEntry)}
}

func (m *inMemoryBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(e.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *inMemoryBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = inMemoryEntry{value: value, expires: time.Now().Add(ttl)}
	return nil
}

func (m *inMemoryBackend) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *inMemoryBackend) Healthy(ctx context.Context) bool {
	return true
}
