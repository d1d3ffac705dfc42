package session

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"doccatalog-go/internal/apperr"
	"doccatalog-go/internal/broker"
	"doccatalog-go/internal/config"
	"doccatalog-go/pkg/log"
)

const (
	lazyRewriteWindow = 60 * time.Second
	healthCheckPeriod = 10 * time.Second
)

// Payload is the attribute map carried by a session.
type Payload struct {
	Auth       bool           `json:"auth"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

type envelope struct {
	Payload        Payload   `json:"payload"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// Store is the Session Core's public surface.
type Store struct {
	secret  string
	ttl     time.Duration
	current atomic.Pointer[Backend]
	warning atomic.Bool
}

// NewStore builds a Store backed primarily by the Cache/Broker, with an
// automatic in-memory fallback and a background health-check goroutine that
// flips between them.
func NewStore(b broker.Broker, cfg config.SessionConfig) *Store {
	s := &Store{
		secret: cfg.EncryptionSecret,
		ttl:    time.Duration(cfg.TTLSeconds) * time.Second,
	}
	var external Backend = newExternalBackend(b)
	s.current.Store(&external)
	return s
}

// Run starts the background health-check goroutine that flips between the
// external and in-memory backends.
func (s *Store) Run(ctx context.Context, b broker.Broker, stop <-chan struct{}) {
	var fallback Backend = newInMemoryBackend()
	var external Backend = newExternalBackend(b)

	ticker := time.NewTicker(healthCheckPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if external.Healthy(ctx) {
				if s.warning.Load() {
					log.Infof("[Session] cache/broker backend recovered, switching back from in-memory fallback")
				}
				s.current.Store(&external)
				s.warning.Store(false)
			} else {
				if !s.warning.Load() {
					log.Warnf("[Session] cache/broker backend unreachable, falling back to in-memory sessions")
				}
				s.current.Store(&fallback)
				s.warning.Store(true)
			}
		case <-stop:
			return
		}
	}
}

// InFallback reports whether the Store is currently serving from the
// in-memory fallback backend, used to set the X-Session-Warning header.
func (s *Store) InFallback() bool {
	return s.warning.Load()
}

func (s *Store) backend() Backend {
	return *s.current.Load()
}

func key(sessionID string) string {
	return "session:" + sessionID
}

// Create generates a new session id and stores the encrypted payload.
func (s *Store) Create(ctx context.Context, payload Payload) (string, error) {
	id, err := newSessionID()
	if err != nil {
		return "", err
	}
	now := time.Now()
	if err := s.write(ctx, id, envelope{Payload: payload, CreatedAt: now, LastAccessedAt: now}); err != nil {
		return "", err
	}
	return id, nil
}

// Load validates TTL (implicit via backend expiry) and lazily rewrites
// last_accessed_at only if more than lazyRewriteWindow has elapsed, to
// avoid a write on every read.
func (s *Store) Load(ctx context.Context, sessionID string) (*Payload, error) {
	env, err := s.read(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if time.Since(env.LastAccessedAt) > lazyRewriteWindow {
		env.LastAccessedAt = time.Now()
		if err := s.write(ctx, sessionID, *env); err != nil {
			log.Warnf("[Session] failed to lazily rewrite last_accessed_at for session: %v", err)
		}
	}
	return &env.Payload, nil
}

// Update replaces the stored payload and rewrites the session with the full
// session TTL, so the remaining TTL is not preserved; extend additionally
// resets created_at.
func (s *Store) Update(ctx context.Context, sessionID string, payload Payload, extend bool) error {
	env, err := s.read(ctx, sessionID)
	if err != nil {
		return err
	}
	env.Payload = payload
	if extend {
		env.CreatedAt = time.Now()
	}
	return s.write(ctx, sessionID, *env)
}

// Destroy removes a session.
func (s *Store) Destroy(ctx context.Context, sessionID string) error {
	return s.backend().Delete(ctx, key(sessionID))
}

// Health reports backend reachability and whether decrypt round-trips.
func (s *Store) Health(ctx context.Context) (backendUp bool, encryptionOk bool) {
	backendUp = s.backend().Healthy(ctx)
	_, err := encrypt(s.secret, "healthcheck")
	encryptionOk = err == nil
	return backendUp, encryptionOk
}

func (s *Store) write(ctx context.Context, sessionID string, env envelope) error {
	plaintext, err := json.Marshal(env)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to marshal session envelope", err)
	}
	ciphertext, err := encrypt(s.secret, string(plaintext))
	if err != nil {
		return err
	}
	return s.backend().Set(ctx, key(sessionID), []byte(ciphertext), s.ttl)
}

func (s *Store) read(ctx context.Context, sessionID string) (*envelope, error) {
	raw, ok, err := s.backend().Get(ctx, key(sessionID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.KindAuth, "session_missing")
	}
	plaintext, err := decrypt(s.secret, string(raw))
	if err != nil {
		log.Warnf("[Session] failed to decrypt session envelope, treating as missing: %v", err)
		return nil, apperr.New(apperr.KindAuth, "session_missing")
	}
	var env envelope
	if err := json.Unmarshal([]byte(plaintext), &env); err != nil {
		return nil, apperr.Wrap(apperr.KindAuth, "session_missing", err)
	}
	return &env, nil
}
