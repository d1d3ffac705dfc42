package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"doccatalog-go/internal/apperr"
	"doccatalog-go/internal/model"
)

// bufferingWriter adapts llm.Client's streaming MessageWriter contract to a
// single accumulated string, since the Gateway's Analyze call is
// non-streaming from the caller's perspective.
type bufferingWriter struct {
	sb strings.Builder
}

func (w *bufferingWriter) WriteMessage(messageType int, data []byte) error {
	w.sb.Write(data)
	return nil
}

func (w *bufferingWriter) String() string {
	return w.sb.String()
}

const defaultAnalysisPromptTemplate = `You are a document classification assistant. Given the document text below and the list of known canonical taxonomy terms, respond with a single JSON object with exactly these fields: "summary" (string), "document_type" (string), "campaign_type" (string), "document_tone" (string), "categories" (array of strings), "keyword_mappings" (array of {"verbatim_term": string, "mapped_canonical_term": string}). Use only terms from the known taxonomy when mapping keywords; leave mapped_canonical_term empty if no term fits. Respond with JSON only, no other text.

Known taxonomy terms: %s

Document text:
%s`

func buildAnalysisPrompt(template string, text string, taxonomyTerms []string) string {
	if template == "" {
		template = defaultAnalysisPromptTemplate
	}
	truncated := text
	const maxChars = 20000
	if len(truncated) > maxChars {
		truncated = truncated[:maxChars]
	}
	return fmt.Sprintf(template, strings.Join(taxonomyTerms, ", "), truncated)
}

type analysisPayload struct {
	Summary         string                  `json:"summary"`
	DocumentType    string                  `json:"document_type"`
	CampaignType    string                  `json:"campaign_type"`
	DocumentTone    string                  `json:"document_tone"`
	Categories      []string                `json:"categories"`
	KeywordMappings []model.KeywordMapping  `json:"keyword_mappings"`
}

// parseAnalysis extracts the first brace-balanced JSON object from raw
// provider output and unmarshals it, tolerating leading/trailing prose that
// some chat-completion providers emit despite instructions.
func parseAnalysis(raw string) (model.AIAnalysis, error) {
	jsonSlice, ok := extractJSONObject(raw)
	if !ok {
		return model.AIAnalysis{}, apperr.New(apperr.KindMalformedAIResponse, "provider response did not contain a JSON object")
	}

	var payload analysisPayload
	if err := json.Unmarshal([]byte(jsonSlice), &payload); err != nil {
		return model.AIAnalysis{}, apperr.Wrap(apperr.KindMalformedAIResponse, "provider response was not valid JSON", err)
	}

	return model.AIAnalysis{
		Summary:         payload.Summary,
		DocumentType:    payload.DocumentType,
		CampaignType:    payload.CampaignType,
		DocumentTone:    payload.DocumentTone,
		Categories:      payload.Categories,
		KeywordMappings: payload.KeywordMappings,
	}, nil
}

// extractJSONObject returns the substring spanning the first '{' and its
// matching closing '}', tracking string-literal escaping so braces inside
// quoted values don't throw off the balance count.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func errUnsupportedCapability(provider, capability string) error {
	return apperr.New(apperr.KindProviderUnavailable, fmt.Sprintf("provider %q does not support capability %q", provider, capability))
}
