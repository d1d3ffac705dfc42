package ai

import (
	"context"
	"io"
	"time"

	"doccatalog-go/internal/apperr"
	"doccatalog-go/internal/config"
	"doccatalog-go/internal/model"
	"doccatalog-go/pkg/log"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

const (
	breakerFailureThreshold = 5
	breakerCooldown         = 60 * time.Second
	retryMaxAttempts        = 3
	retryBaseInterval       = 1 * time.Second
	retryMaxInterval        = 15 * time.Second
	hardTimeout             = 120 * time.Second
)

// Gateway is the AI Gateway component: an ordered list of providers, each
// guarded by its own circuit breaker, selected per call by capability.
type Gateway struct {
	entries []gatewayEntry
}

type gatewayEntry struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker
}

// NewGateway builds a Gateway from the configured provider list plus the
// standalone Tika/embedding/LLM configs, each wrapped in its own breaker
// instance (one breaker per configured provider).
func NewGateway(providers []config.AIProviderConfig, tikaCfg config.TikaConfig, embeddingCfg config.EmbeddingConfig, llmCfg config.LLMConfig) *Gateway {
	g := &Gateway{}

	if len(providers) == 0 {
		// Fall back to the hardcoded tika/embedding/llm trio if no
		// ai_providers list is configured.
		g.register(newTikaProvider("tika", tikaCfg))
		g.register(newEmbeddingProvider("embedding", embeddingCfg))
		g.register(newLLMProvider("llm", llmCfg))
		return g
	}

	for _, p := range providers {
		switch {
		case Has(p.Capabilities, CapExtract):
			g.register(newTikaProvider(p.Name, config.TikaConfig{ServerURL: p.BaseURL}))
		case Has(p.Capabilities, CapEmbed):
			g.register(newEmbeddingProvider(p.Name, config.EmbeddingConfig{
				APIKey: p.APIKey, BaseURL: p.BaseURL, Model: p.Model, Dimensions: 0,
			}))
		case Has(p.Capabilities, CapAnalyze):
			g.register(newLLMProvider(p.Name, config.LLMConfig{
				APIKey: p.APIKey, BaseURL: p.BaseURL, Model: p.Model,
			}))
		default:
			log.Warnf("[AIGateway] provider %q declares no recognized capability, skipping", p.Name)
		}
	}
	return g
}

func (g *Gateway) register(p Provider) {
	st := gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: 1, // half-open permits a single probe
		Interval:    0,
		Timeout:     breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("[AIGateway] provider %q breaker %s -> %s", name, from, to)
		},
	}
	g.entries = append(g.entries, gatewayEntry{provider: p, breaker: gobreaker.NewCircuitBreaker(st)})
}

// CircuitStates reports each registered provider's breaker state, keyed by
// provider name, for the admin stats surface.
func (g *Gateway) CircuitStates() map[string]string {
	states := make(map[string]string, len(g.entries))
	for _, e := range g.entries {
		states[e.provider.Name()] = e.breaker.State().String()
	}
	return states
}

func (g *Gateway) providersFor(capability string) []gatewayEntry {
	var out []gatewayEntry
	for _, e := range g.entries {
		if Has(e.provider.Capabilities(), capability) {
			out = append(out, e)
		}
	}
	return out
}

// forceOpen trips a provider's breaker immediately, used for quota-exhausted
// responses that should short-circuit the remainder of the cooldown window
// without waiting for K consecutive failures.
func forceOpen(e gatewayEntry) {
	for i := 0; i < breakerFailureThreshold; i++ {
		_, _ = e.breaker.Execute(func() (interface{}, error) { return nil, apperr.New(apperr.KindProviderUnavailable, "forced open") })
	}
}

// Extract runs text extraction through the first closed-circuit provider
// that supports it, retrying transient failures with jittered exponential
// backoff before advancing to the next provider.
func (g *Gateway) Extract(ctx context.Context, r io.Reader, filename string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, hardTimeout)
	defer cancel()

	var lastErr error
	for _, e := range g.providersFor(CapExtract) {
		text, err := callWithRetry(ctx, e, func() (string, error) {
			return e.provider.Extract(ctx, newResettableReader(r, data), filename)
		})
		if err == nil {
			return text, nil
		}
		lastErr = err
		log.Errorf("[AIGateway] provider %q extract failed: %v", e.provider.Name(), err)
		if apperr.Is(err, apperr.KindQuotaExhausted) {
			forceOpen(e)
		}
	}
	if lastErr == nil {
		lastErr = apperr.New(apperr.KindProviderUnavailable, "no provider configured for extract")
	}
	return "", lastErr
}

// Analyze runs structured analysis through the provider chain. Malformed
// JSON triggers a single stricter re-ask before the gateway gives up on that
// provider and advances to the next.
func (g *Gateway) Analyze(ctx context.Context, text string, promptTemplate string, taxonomyTerms []string) (model.AIAnalysis, error) {
	ctx, cancel := context.WithTimeout(ctx, hardTimeout)
	defer cancel()

	var lastErr error
	for _, e := range g.providersFor(CapAnalyze) {
		analysis, err := callWithRetry(ctx, e, func() (model.AIAnalysis, error) {
			return e.provider.Analyze(ctx, text, promptTemplate, taxonomyTerms)
		})
		if err == nil {
			return analysis, nil
		}
		if apperr.Is(err, apperr.KindMalformedAIResponse) {
			stricter := promptTemplate
			if stricter == "" {
				stricter = defaultAnalysisPromptTemplate
			}
			stricter += "\n\nIMPORTANT: your previous response was not valid JSON. Respond with ONLY a single JSON object and nothing else."
			analysis, err2 := callWithRetry(ctx, e, func() (model.AIAnalysis, error) {
				return e.provider.Analyze(ctx, text, stricter, taxonomyTerms)
			})
			if err2 == nil {
				return analysis, nil
			}
			err = err2
		}
		lastErr = err
		log.Errorf("[AIGateway] provider %q analyze failed: %v", e.provider.Name(), err)
		if apperr.Is(err, apperr.KindQuotaExhausted) {
			forceOpen(e)
		}
	}
	if lastErr == nil {
		lastErr = apperr.New(apperr.KindProviderUnavailable, "no provider configured for analyze")
	}
	return model.AIAnalysis{}, lastErr
}

// Embed runs embedding generation through the provider chain.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, hardTimeout)
	defer cancel()

	var lastErr error
	for _, e := range g.providersFor(CapEmbed) {
		vec, err := callWithRetry(ctx, e, func() ([]float32, error) {
			return e.provider.Embed(ctx, text)
		})
		if err == nil {
			return vec, nil
		}
		lastErr = err
		log.Errorf("[AIGateway] provider %q embed failed: %v", e.provider.Name(), err)
		if apperr.Is(err, apperr.KindQuotaExhausted) {
			forceOpen(e)
		}
	}
	if lastErr == nil {
		lastErr = apperr.New(apperr.KindProviderUnavailable, "no provider configured for embed")
	}
	return nil, lastErr
}

// callWithRetry executes fn through the provider's circuit breaker, retrying
// retriable apperr kinds with jittered exponential backoff (grounded on
// mike-a-ellis-eino-docs-mcp's embedBatchWithRetry: backoff.Permanent for
// non-retryable errors, backoff.NewExponentialBackOff otherwise).
func callWithRetry[T any](ctx context.Context, e gatewayEntry, fn func() (T, error)) (T, error) {
	var result T
	var callErr error

	operation := func() error {
		v, err := e.breaker.Execute(func() (interface{}, error) {
			return fn()
		})
		if err != nil {
			if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
				callErr = apperr.Wrap(apperr.KindProviderUnavailable, "provider circuit open", err)
				return backoff.Permanent(callErr)
			}
			callErr = err
			if apperr.Retriable(apperr.KindOf(err)) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = v.(T)
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = retryBaseInterval
	b.MaxInterval = retryMaxInterval
	b.MaxElapsedTime = 0
	bounded := backoff.WithMaxRetries(b, retryMaxAttempts-1)

	if err := backoff.Retry(operation, backoff.WithContext(bounded, ctx)); err != nil {
		return result, callErr
	}
	return result, nil
}

// resettableReader lets the gateway retry Extract against the same bytes
// across providers/attempts without requiring callers to re-open a file.
type resettableReader struct {
	data []byte
	pos  int
}

func newResettableReader(r io.Reader, data []byte) io.Reader {
	if data != nil {
		return &resettableReader{data: data}
	}
	return r
}

func (r *resettableReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}
