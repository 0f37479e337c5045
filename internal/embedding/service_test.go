package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend records calls and can be switched into failure mode.
type fakeBackend struct {
	calls int
	fail  bool
}

func (f *fakeBackend) Embed(ctx context.Context, model, prompt string) ([]float32, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("connection refused")
	}
	return []float32{1, 2, 3}, nil
}

func TestEmbedCachesResults(t *testing.T) {
	backend := &fakeBackend{}
	svc := NewService(backend, "test-model", 10, nil)

	first, err := svc.Embed(context.Background(), "hello")
	require.NoError(t, err)

	second, err := svc.Embed(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, backend.calls, "second call should hit the cache")

	stats := svc.Stats()
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(1), stats.CacheMisses)
}

func TestEmbedFallbackNeverFails(t *testing.T) {
	backend := &fakeBackend{fail: true}
	svc := NewService(backend, "", 10, nil)

	vec1, err := svc.Embed(context.Background(), "some query text")
	require.NoError(t, err, "backend failure must degrade, not error")
	assert.Len(t, vec1, FallbackDimension)

	vec2, err := svc.Embed(context.Background(), "some query text")
	require.NoError(t, err)
	assert.Equal(t, vec1, vec2, "fallback must be deterministic")

	assert.Equal(t, int64(2), svc.Stats().FallbackCount,
		"fallbacks must be counted, not cached as genuine embeddings")
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	backend := &fakeBackend{}
	svc := NewService(backend, "test-model", 10, nil)

	vecs, err := svc.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.Equal(t, []float32{1, 2, 3}, v)
	}
	assert.Equal(t, 3, backend.calls)
}

func TestFallbackEmbeddingStableDimension(t *testing.T) {
	short := fallbackEmbedding("a")
	long := fallbackEmbedding("a much longer piece of text with many more characters")

	assert.Len(t, short, FallbackDimension)
	assert.Len(t, long, FallbackDimension)
	assert.NotEqual(t, short, long)
}
