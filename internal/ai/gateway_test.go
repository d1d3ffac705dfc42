package ai

import (
	"context"
	"io"
	"testing"

	"doccatalog-go/internal/apperr"
	"doccatalog-go/internal/model"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is a scriptable Provider used to exercise Gateway routing and
// retry/breaker behavior without a real Tika/embedding/LLM backend.
type fakeProvider struct {
	name  string
	caps  []string
	calls int

	extractErr error
	extractOut string

	analyzeErr error
	analyzeOut model.AIAnalysis

	embedErr error
	embedOut []float32
}

func (p *fakeProvider) Name() string           { return p.name }
func (p *fakeProvider) Capabilities() []string { return p.caps }

func (p *fakeProvider) Extract(ctx context.Context, r io.Reader, filename string) (string, error) {
	p.calls++
	return p.extractOut, p.extractErr
}

func (p *fakeProvider) Analyze(ctx context.Context, text string, promptTemplate string, taxonomyTerms []string) (model.AIAnalysis, error) {
	p.calls++
	return p.analyzeOut, p.analyzeErr
}

func (p *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.calls++
	return p.embedOut, p.embedErr
}

func newTestGateway(providers ...Provider) *Gateway {
	g := &Gateway{}
	for _, p := range providers {
		g.register(p)
	}
	return g
}

func TestExtractUsesFirstCapableProvider(t *testing.T) {
	p := &fakeProvider{name: "tika", caps: []string{CapExtract}, extractOut: "hello world"}
	g := newTestGateway(p)

	text, err := g.Extract(context.Background(), nil, "f.txt", []byte("data"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestExtractFallsThroughToSecondProviderOnPermanentFailure(t *testing.T) {
	bad := &fakeProvider{name: "bad", caps: []string{CapExtract}, extractErr: apperr.New(apperr.KindValidation, "unsupported file type")}
	good := &fakeProvider{name: "good", caps: []string{CapExtract}, extractOut: "recovered"}
	g := newTestGateway(bad, good)

	text, err := g.Extract(context.Background(), nil, "f.txt", []byte("data"))
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, 1, bad.calls)
}

func TestExtractReturnsErrorWhenNoProviderConfigured(t *testing.T) {
	g := newTestGateway()
	_, err := g.Extract(context.Background(), nil, "f.txt", nil)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindProviderUnavailable))
}

func TestAnalyzeSkipsProvidersWithoutAnalyzeCapability(t *testing.T) {
	embedOnly := &fakeProvider{name: "embed", caps: []string{CapEmbed}}
	analyzer := &fakeProvider{name: "llm", caps: []string{CapAnalyze}, analyzeOut: model.AIAnalysis{Summary: "ok"}}
	g := newTestGateway(embedOnly, analyzer)

	got, err := g.Analyze(context.Background(), "some text", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Summary)
	assert.Equal(t, 0, embedOnly.calls)
}

func TestEmbedRoutesThroughEmbedCapableProvider(t *testing.T) {
	p := &fakeProvider{name: "embedding", caps: []string{CapEmbed}, embedOut: []float32{0.1, 0.2}}
	g := newTestGateway(p)

	vec, err := g.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
}

func TestCircuitStatesReportsClosedByDefault(t *testing.T) {
	p := &fakeProvider{name: "tika", caps: []string{CapExtract}}
	g := newTestGateway(p)

	states := g.CircuitStates()
	assert.Equal(t, gobreaker.StateClosed.String(), states["tika"])
}

func TestCircuitStatesReportsOpenAfterForceOpen(t *testing.T) {
	p := &fakeProvider{name: "llm", caps: []string{CapAnalyze}}
	g := newTestGateway(p)

	forceOpen(g.entries[0])

	states := g.CircuitStates()
	assert.Equal(t, gobreaker.StateOpen.String(), states["llm"])
}

func TestHasDetectsCapability(t *testing.T) {
	assert.True(t, Has([]string{CapExtract, CapEmbed}, CapEmbed))
	assert.False(t, Has([]string{CapExtract}, CapAnalyze))
}
