package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTool lets selection and metrics be tested without network access.
type stubTool struct {
	name   string
	output string
	err    error
}

func (s stubTool) Name() string        { return s.name }
func (s stubTool) Description() string { return "stub" }
func (s stubTool) Search(ctx context.Context, query string) (string, error) {
	return s.output, s.err
}

func registryWith(names ...string) *Registry {
	r := NewRegistry(nil)
	for _, n := range names {
		r.Register(stubTool{name: n, output: "ok"})
	}
	return r
}

func TestSelectBestToolByKeywords(t *testing.T) {
	r := registryWith(NameWebSearch, NameWikipedia, NameNews)

	name, ok := r.SelectBestTool("latest breaking news about Go")
	require.True(t, ok)
	assert.Equal(t, NameNews, name)

	name, ok = r.SelectBestTool("who is the history of Ada Lovelace")
	require.True(t, ok)
	assert.Equal(t, NameWikipedia, name)

	name, ok = r.SelectBestTool("how to write a tutorial guide")
	require.True(t, ok)
	assert.Equal(t, NameWebSearch, name)
}

func TestSelectBestToolFallbackPreference(t *testing.T) {
	// A query with no category keywords falls back to the preference
	// order: web search > wikipedia > news.
	r := registryWith(NameNews, NameWikipedia, NameWebSearch)
	name, ok := r.SelectBestTool("xylophone quantum entanglement")
	require.True(t, ok)
	assert.Equal(t, NameWebSearch, name)

	r = registryWith(NameNews, NameWikipedia)
	name, ok = r.SelectBestTool("xylophone quantum entanglement")
	require.True(t, ok)
	assert.Equal(t, NameWikipedia, name)

	r = registryWith(NameNews)
	name, ok = r.SelectBestTool("xylophone quantum entanglement")
	require.True(t, ok)
	assert.Equal(t, NameNews, name)
}

func TestSelectBestToolNoneRegistered(t *testing.T) {
	r := NewRegistry(nil)
	_, ok := r.SelectBestTool("anything")
	assert.False(t, ok)
}

func TestSelectBestToolIgnoresUnregisteredCategories(t *testing.T) {
	r := registryWith(NameNews)
	name, ok := r.SelectBestTool("who is Ada Lovelace") // wikipedia keywords, not registered
	require.True(t, ok)
	assert.Equal(t, NameNews, name)
}

func TestKeywordScoreCapsAtOne(t *testing.T) {
	score := keywordScore("news latest today breaking headlines recent current events", categoryKeywords[NameNews])
	assert.Equal(t, 1.0, score)
}

func TestExecuteRecordsMetrics(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(stubTool{name: "good", output: "result"})
	r.Register(stubTool{name: "bad", err: errors.New("boom")})

	out, err := r.Execute(context.Background(), "good", "query")
	require.NoError(t, err)
	assert.Equal(t, "result", out)

	_, err = r.Execute(context.Background(), "bad", "query")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool bad")

	good := r.MetricsFor("good")
	assert.Equal(t, 1, good.Executions)
	assert.Equal(t, 0, good.Failures)
	require.Len(t, good.History, 1)
	assert.True(t, good.History[0].Success)

	bad := r.MetricsFor("bad")
	assert.Equal(t, 1, bad.Executions)
	assert.Equal(t, 1, bad.Failures)
}

func TestExecuteUnknownTool(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Execute(context.Background(), "missing", "query")
	assert.Error(t, err)
}

func TestHistoryRollsOverAtLimit(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(stubTool{name: "busy", output: "ok"})

	for i := 0; i < historyLimit+20; i++ {
		_, err := r.Execute(context.Background(), "busy", "query")
		require.NoError(t, err)
	}

	m := r.MetricsFor("busy")
	assert.Equal(t, historyLimit+20, m.Executions)
	assert.Len(t, m.History, historyLimit)
}

func TestWikipediaSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "opensearch", r.URL.Query().Get("action"))
		fmt.Fprintln(w, `["go",["Go (programming language)"],["A compiled language designed at Google"],["https://en.wikipedia.org/wiki/Go_(programming_language)"]]`)
	}))
	defer server.Close()

	wiki := NewWikipedia(server.URL, nil)
	out, err := wiki.Search(context.Background(), "go")
	require.NoError(t, err)
	assert.Contains(t, out, "Go (programming language)")
	assert.Contains(t, out, "compiled language")
}

func TestNewsSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "story", r.URL.Query().Get("tags"))
		fmt.Fprintln(w, `{"hits":[{"title":"Go 1.24 released","url":"https://go.dev","points":512,"created_at":"2026-08-01"}]}`)
	}))
	defer server.Close()

	news := NewNews(server.URL, nil)
	out, err := news.Search(context.Background(), "go release")
	require.NoError(t, err)
	assert.Contains(t, out, "Go 1.24 released")
	assert.Contains(t, out, "512 points")
}

func TestWebSearchParsesResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `<html><body>
			<div class="result"><a class="result__title">First hit</a><div class="result__snippet">snippet one</div></div>
			<div class="result"><a class="result__title">Second hit</a><div class="result__snippet">snippet two</div></div>
		</body></html>`)
	}))
	defer server.Close()

	web := NewWebSearch(server.URL, nil)
	out, err := web.Search(context.Background(), "query")
	require.NoError(t, err)
	assert.Contains(t, out, "First hit")
	assert.Contains(t, out, "snippet two")
}
