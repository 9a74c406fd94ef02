package openrouter

import (
	"strings"

	"github.com/ebaldwin/chorus-llm-go"
)

// ReasoningDetail is one entry of the reasoning_details extension. Thinking
// models stream their actual chain-of-thought here; the plain reasoning
// field is often a placeholder.
type ReasoningDetail struct {
	Type    string `json:"type"` // "reasoning.text", "reasoning.summary", "reasoning.encrypted"
	Text    string `json:"text,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// Annotation is a content annotation on :online models; url_citation
// entries carry web search results.
type Annotation struct {
	Type        string       `json:"type"` // "url_citation"
	URLCitation *URLCitation `json:"url_citation,omitempty"`
}

type URLCitation struct {
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
}

// extractReasoningText returns the delta's reasoning text, preferring
// reasoning_details over the plain reasoning field. Encrypted details are
// opaque and skipped.
func extractReasoningText(delta Delta) string {
	if len(delta.ReasoningDetails) > 0 {
		var b strings.Builder
		for _, detail := range delta.ReasoningDetails {
			switch detail.Type {
			case "reasoning.text":
				b.WriteString(detail.Text)
			case "reasoning.summary":
				b.WriteString(detail.Summary)
			}
		}
		return b.String()
	}
	if delta.Reasoning != nil {
		return *delta.Reasoning
	}
	return ""
}

// convertAnnotations maps url_citation annotations to grounding sources.
func convertAnnotations(annotations []Annotation) []llmstream.GroundingSource {
	var sources []llmstream.GroundingSource
	for _, a := range annotations {
		if a.Type != "url_citation" || a.URLCitation == nil {
			continue
		}
		source := llmstream.GroundingSource{
			URL:   a.URLCitation.URL,
			Title: a.URLCitation.Title,
		}
		if a.URLCitation.Content != "" {
			snippet := a.URLCitation.Content
			source.Snippet = &snippet
		}
		sources = append(sources, source)
	}
	return sources
}
