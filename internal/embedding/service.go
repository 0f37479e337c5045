// Package embedding turns text into vectors via the Ollama embeddings
// endpoint, with an LRU cache in front and a deterministic degraded-mode
// fallback behind it.
package embedding

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultModel is the embedding model used when none is configured.
	DefaultModel = "nomic-embed-text"

	// DefaultCacheSize bounds the number of cached embeddings.
	DefaultCacheSize = 1000

	// CacheTTL is how long a cached embedding stays valid.
	CacheTTL = 24 * time.Hour

	// FallbackDimension is the vector size of the degraded-mode
	// fallback embedding. Kept small; fallback vectors only need to be
	// deterministic and length-stable, not high quality.
	FallbackDimension = 384
)

// Backend is the embedding endpoint. *ollama.Client satisfies it.
type Backend interface {
	Embed(ctx context.Context, model, prompt string) ([]float32, error)
}

// Service generates embeddings with caching and fallback.
//
// Cache entries are keyed by model:text with a 24-hour TTL; hits refresh
// recency. When the backend fails after retries, a deterministic vector
// derived from character codes is returned instead of an error so the
// pipeline can continue in degraded mode. Fallbacks are logged at Warn
// and counted so they are distinguishable from genuine embeddings.
type Service struct {
	backend       Backend
	model         string
	cache         *expirable.LRU[string, []float32]
	logger        *slog.Logger
	hits          atomic.Int64
	misses        atomic.Int64
	fallbackCount atomic.Int64
}

// Stats is a snapshot of cache and fallback counters.
type Stats struct {
	CacheHits     int64
	CacheMisses   int64
	FallbackCount int64
	CacheEntries  int
}

// NewService creates an embedding service over the given backend.
// If model is empty, DefaultModel is used. cacheSize <= 0 selects
// DefaultCacheSize.
func NewService(backend Backend, model string, cacheSize int, logger *slog.Logger) *Service {
	if model == "" {
		model = DefaultModel
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		backend: backend,
		model:   model,
		cache:   expirable.NewLRU[string, []float32](cacheSize, nil, CacheTTL),
		logger:  logger,
	}
}

// Model returns the configured embedding model name.
// Used by callers that key their own caches on the model.
func (s *Service) Model() string {
	return s.model
}

// Embed returns an embedding for text.
// Never returns an error: backend failure degrades to the deterministic
// fallback vector.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	key := s.model + ":" + text
	if cached, ok := s.cache.Get(key); ok {
		s.hits.Add(1)
		return cached, nil
	}
	s.misses.Add(1)

	vec, err := s.backend.Embed(ctx, s.model, text)
	if err != nil {
		s.fallbackCount.Add(1)
		s.logger.Warn("embedding backend failed, using fallback vector",
			"model", s.model, "error", err)
		return fallbackEmbedding(text), nil
	}

	s.cache.Add(key, vec)
	return vec, nil
}

// EmbedBatch embeds each text in order. Output is index-aligned with
// the input.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := s.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Stats returns current counters.
func (s *Service) Stats() Stats {
	return Stats{
		CacheHits:     s.hits.Load(),
		CacheMisses:   s.misses.Load(),
		FallbackCount: s.fallbackCount.Load(),
		CacheEntries:  s.cache.Len(),
	}
}

// fallbackEmbedding derives a low-quality but deterministic vector from
// character codes. Same input always yields the same vector, and the
// dimension is fixed regardless of input length.
func fallbackEmbedding(text string) []float32 {
	vec := make([]float32, FallbackDimension)
	for i, r := range text {
		idx := (i*31 + int(r)) % FallbackDimension
		if idx < 0 {
			idx += FallbackDimension
		}
		vec[idx] += float32(r%97) / 97.0
	}

	// L2-normalize so scores stay comparable with real embeddings.
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}
