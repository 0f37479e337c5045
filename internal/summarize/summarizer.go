// Package summarize condenses long assistant responses into key points.
package summarize

import (
	"context"
	"fmt"
	"strings"
)

// DefaultMaxChars bounds how much of the response is sent to the model.
const DefaultMaxChars = 8000

// Backend is the completion endpoint used for model-driven
// summarization. *ollama.Client satisfies it.
type Backend interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// Summarizer produces a short key-point summary of a response.
// With a nil backend it falls back to extractive summarization (the
// leading sentences of the text).
type Summarizer struct {
	backend  Backend
	model    string
	maxChars int
}

// New creates a summarizer. maxChars <= 0 selects DefaultMaxChars.
func New(backend Backend, model string, maxChars int) *Summarizer {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Summarizer{backend: backend, model: model, maxChars: maxChars}
}

// Summarize condenses text into key points.
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("nothing to summarize")
	}
	if s.backend == nil || s.model == "" {
		return extractiveSummary(text, 3), nil
	}

	truncated := text
	if len(truncated) > s.maxChars {
		truncated = truncated[:s.maxChars]
	}
	prompt := fmt.Sprintf(
		"Condense the following answer into 3-5 short key points, one per line, keeping important keywords.\n\n%s",
		truncated,
	)
	summary, err := s.backend.Generate(ctx, s.model, prompt)
	if err != nil {
		return "", fmt.Errorf("summarize response: %w", err)
	}
	if strings.TrimSpace(summary) == "" {
		return "", fmt.Errorf("summarize response: empty reply")
	}
	return strings.TrimSpace(summary), nil
}

// extractiveSummary returns the first n sentences of text.
func extractiveSummary(text string, n int) string {
	var sentences []string
	remaining := strings.TrimSpace(text)
	for len(sentences) < n && remaining != "" {
		idx := strings.IndexAny(remaining, ".!?")
		if idx < 0 {
			sentences = append(sentences, remaining)
			break
		}
		sentences = append(sentences, strings.TrimSpace(remaining[:idx+1]))
		remaining = strings.TrimSpace(remaining[idx+1:])
	}
	return strings.Join(sentences, " ")
}
