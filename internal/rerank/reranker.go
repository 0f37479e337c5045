// Package rerank reorders retrieved documents by a secondary relevance
// signal. Reranking is pure reordering: it never adds or drops results.
package rerank

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/bull/rag-agent/internal/storage"
)

// Scorer rescores one document against the query. Model-driven
// implementations wrap an LLM; a nil scorer selects the keyword-overlap
// strategy.
type Scorer interface {
	Score(ctx context.Context, query, text string) (float64, error)
}

// Reranker reorders search results.
type Reranker struct {
	scorer Scorer
	logger *slog.Logger
}

// New creates a reranker. scorer may be nil for keyword-overlap mode.
func New(scorer Scorer, logger *slog.Logger) *Reranker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{scorer: scorer, logger: logger}
}

// Rerank returns the results reordered by descending adjusted score.
// The input slice is not modified.
func (r *Reranker) Rerank(ctx context.Context, query string, results []storage.SearchResult) ([]storage.SearchResult, error) {
	if len(results) < 2 {
		out := make([]storage.SearchResult, len(results))
		copy(out, results)
		return out, nil
	}

	type scored struct {
		res   storage.SearchResult
		score float64
	}
	pairs := make([]scored, len(results))
	for i, res := range results {
		var score float64
		if r.scorer != nil {
			s, err := r.scorer.Score(ctx, query, res.Text)
			if err != nil {
				return nil, fmt.Errorf("rescore document %s: %w", res.ID, err)
			}
			score = s
		} else {
			score = res.Score + keywordOverlap(query, res.Text)
		}
		pairs[i] = scored{res: res, score: score}
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].score > pairs[j].score
	})

	out := make([]storage.SearchResult, len(pairs))
	for i, p := range pairs {
		out[i] = p.res
	}
	return out, nil
}

// keywordOverlap counts query tokens present in the text, the boost
// added to the existing similarity score.
func keywordOverlap(query, text string) float64 {
	lower := strings.ToLower(text)
	var count float64
	for _, token := range strings.Fields(strings.ToLower(query)) {
		if strings.Contains(lower, token) {
			count++
		}
	}
	return count
}

// Backend is the completion endpoint used for model-driven rescoring.
// *ollama.Client satisfies it.
type Backend interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// ModelScorer rescores documents with a generation model, asking for a
// single numeric relevance rating.
type ModelScorer struct {
	backend Backend
	model   string
}

// NewModelScorer creates a scorer using the given reranking model.
func NewModelScorer(backend Backend, model string) *ModelScorer {
	return &ModelScorer{backend: backend, model: model}
}

// Score asks the model to rate relevance from 0 to 10 and parses the
// first number in the reply.
func (m *ModelScorer) Score(ctx context.Context, query, text string) (float64, error) {
	prompt := fmt.Sprintf(
		"Rate the relevance of the following document to the query on a scale from 0 to 10. Reply with only the number.\n\nQuery: %s\n\nDocument:\n%s",
		query, text,
	)
	reply, err := m.backend.Generate(ctx, m.model, prompt)
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(strings.TrimSpace(reply))
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty rerank reply")
	}
	score, err := strconv.ParseFloat(strings.TrimRight(fields[0], ".,"), 64)
	if err != nil {
		return 0, fmt.Errorf("parse rerank score %q: %w", fields[0], err)
	}
	return score, nil
}
