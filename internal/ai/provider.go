// Package ai implements the AI Gateway: a provider-agnostic facade over text
// extraction, structured analysis, and embedding generation, unifying the
// standalone tika/embedding/llm clients behind one Provider interface.
package ai

import (
	"context"
	"io"

	"doccatalog-go/internal/config"
	"doccatalog-go/internal/model"
	"doccatalog-go/pkg/embedding"
	"doccatalog-go/pkg/llm"
	"doccatalog-go/pkg/tika"
)

// Capability names as they appear in config.AIProviderConfig.Capabilities.
const (
	CapExtract = "extract"
	CapAnalyze = "analyze"
	CapEmbed   = "embed"
)

// Provider is one backing service capable of zero or more of extract/
// analyze/embed.
type Provider interface {
	Name() string
	Capabilities() []string
	Extract(ctx context.Context, r io.Reader, filename string) (string, error)
	Analyze(ctx context.Context, text string, promptTemplate string, taxonomyTerms []string) (model.AIAnalysis, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// tikaProvider wraps an Apache Tika client; extract only.
type tikaProvider struct {
	name   string
	client *tika.Client
}

func newTikaProvider(name string, cfg config.TikaConfig) *tikaProvider {
	return &tikaProvider{name: name, client: tika.NewClient(cfg)}
}

func (p *tikaProvider) Name() string           { return p.name }
func (p *tikaProvider) Capabilities() []string { return []string{CapExtract} }

func (p *tikaProvider) Extract(ctx context.Context, r io.Reader, filename string) (string, error) {
	return p.client.ExtractText(r, filename)
}

func (p *tikaProvider) Analyze(ctx context.Context, text, promptTemplate string, taxonomyTerms []string) (model.AIAnalysis, error) {
	return model.AIAnalysis{}, errUnsupportedCapability(p.name, CapAnalyze)
}

func (p *tikaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errUnsupportedCapability(p.name, CapEmbed)
}

// embeddingProvider wraps an OpenAI-compatible embedding client; embed
// only.
type embeddingProvider struct {
	name   string
	client embedding.Client
	dim    int
}

func newEmbeddingProvider(name string, cfg config.EmbeddingConfig) *embeddingProvider {
	return &embeddingProvider{name: name, client: embedding.NewClient(cfg), dim: cfg.Dimensions}
}

func (p *embeddingProvider) Name() string           { return p.name }
func (p *embeddingProvider) Capabilities() []string { return []string{CapEmbed} }

func (p *embeddingProvider) Extract(ctx context.Context, r io.Reader, filename string) (string, error) {
	return "", errUnsupportedCapability(p.name, CapExtract)
}

func (p *embeddingProvider) Analyze(ctx context.Context, text, promptTemplate string, taxonomyTerms []string) (model.AIAnalysis, error) {
	return model.AIAnalysis{}, errUnsupportedCapability(p.name, CapAnalyze)
}

func (p *embeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.client.CreateEmbedding(ctx, text)
}

// llmProvider wraps a chat-completions client, adapted from streaming-only
// to a non-streaming structured call for Analyze; it never streams within
// the Gateway (see DESIGN.md on the dropped chat feature).
type llmProvider struct {
	name   string
	client llm.Client
	model  string
}

func newLLMProvider(name string, cfg config.LLMConfig) *llmProvider {
	return &llmProvider{name: name, client: llm.NewClient(cfg), model: cfg.Model}
}

func (p *llmProvider) Name() string           { return p.name }
func (p *llmProvider) Capabilities() []string { return []string{CapAnalyze} }

func (p *llmProvider) Extract(ctx context.Context, r io.Reader, filename string) (string, error) {
	return "", errUnsupportedCapability(p.name, CapExtract)
}

func (p *llmProvider) Analyze(ctx context.Context, text, promptTemplate string, taxonomyTerms []string) (model.AIAnalysis, error) {
	prompt := buildAnalysisPrompt(promptTemplate, text, taxonomyTerms)
	collector := &bufferingWriter{}
	if err := p.client.StreamChat(ctx, prompt, collector); err != nil {
		return model.AIAnalysis{}, err
	}
	return parseAnalysis(collector.String())
}

func (p *llmProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errUnsupportedCapability(p.name, CapEmbed)
}

// Has reports whether capabilities contains cap.
func Has(capabilities []string, cap string) bool {
	for _, c := range capabilities {
		if c == cap {
			return true
		}
	}
	return false
}
