package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/rag-agent/internal/chat"
	"github.com/bull/rag-agent/internal/storage"
)

type stubEmbedder struct {
	err error
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type stubRetriever struct {
	docs    []storage.SearchResult
	err     error
	queries []string
}

func (r *stubRetriever) Retrieve(ctx context.Context, query string) ([]storage.SearchResult, error) {
	r.queries = append(r.queries, query)
	if r.err != nil {
		return nil, r.err
	}
	return r.docs, nil
}

type stubStream struct {
	chunks []string
	pos    int
	err    error
}

func (s *stubStream) Next() (string, error) {
	if s.pos < len(s.chunks) {
		chunk := s.chunks[s.pos]
		s.pos++
		return chunk, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *stubStream) Close() error { return nil }

type stubChatter struct {
	chunks  []string
	err     error
	prompts []string
}

func (c *stubChatter) Chat(ctx context.Context, prompt string) (ChatStream, error) {
	c.prompts = append(c.prompts, prompt)
	if c.err != nil {
		return nil, c.err
	}
	return &stubStream{chunks: c.chunks}, nil
}

type stubReranker struct {
	err    error
	called bool
}

func (r *stubReranker) Rerank(ctx context.Context, query string, results []storage.SearchResult) ([]storage.SearchResult, error) {
	r.called = true
	if r.err != nil {
		return nil, r.err
	}
	// Reverse so tests can tell reranked output from retrieval order.
	out := make([]storage.SearchResult, len(results))
	for i, res := range results {
		out[len(results)-1-i] = res
	}
	return out, nil
}

type stubRewriter struct{}

func (stubRewriter) Rewrite(query string) string {
	return strings.ReplaceAll(query, "JS", "JavaScript")
}

type emptyRewriter struct{}

func (emptyRewriter) Rewrite(query string) string { return "  " }

type stubTools struct {
	names   []string
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func (t *stubTools) Names() []string { return t.names }

func (t *stubTools) Execute(ctx context.Context, name, input string) (string, error) {
	t.calls = append(t.calls, name)
	if err := t.errs[name]; err != nil {
		return "", err
	}
	return t.outputs[name], nil
}

type stubPersister struct {
	mu     sync.Mutex
	groups []string
	err    error
}

func (p *stubPersister) AddConversation(ctx context.Context, groupID string, docs []storage.Document) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.groups = append(p.groups, groupID)
	return nil
}

type memLog struct {
	exchanges []Exchange
}

func (l *memLog) Append(ex Exchange) error {
	l.exchanges = append(l.exchanges, ex)
	return nil
}

func docs(texts ...string) []storage.SearchResult {
	out := make([]storage.SearchResult, len(texts))
	for i, text := range texts {
		out[i] = storage.SearchResult{
			ID:    text,
			Text:  text,
			Score: 1.0 - float64(i)*0.1,
		}
	}
	return out
}

func userMessages(contents ...string) []chat.Message {
	out := make([]chat.Message, len(contents))
	for i, content := range contents {
		out[i] = chat.New(chat.RoleUser, content)
	}
	return out
}

func collect(ch <-chan Event) []Event {
	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func eventsOfType(events []Event, t EventType) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func fullResponse(events []Event) string {
	var b strings.Builder
	for _, ev := range eventsOfType(events, EventChat) {
		b.WriteString(ev.Chunk)
	}
	return b.String()
}

func TestRunEmitsStatusBeforeChat(t *testing.T) {
	p := New(Config{}, Components{
		Embedder:  &stubEmbedder{},
		Retriever: &stubRetriever{docs: docs("alpha")},
		Chatter:   &stubChatter{chunks: []string{"ok"}},
	}, nil)

	events := collect(p.Run(context.Background(), userMessages("hello")))

	firstChat, firstStatus := -1, -1
	for i, ev := range events {
		if ev.Type == EventChat && firstChat == -1 {
			firstChat = i
		}
		if ev.Type == EventStatus && firstStatus == -1 {
			firstStatus = i
		}
	}
	require.NotEqual(t, -1, firstChat)
	require.NotEqual(t, -1, firstStatus)
	assert.Less(t, firstStatus, firstChat)
}

func TestRunAccumulatesChunks(t *testing.T) {
	chatter := &stubChatter{chunks: []string{"hel", "lo"}}
	log := &memLog{}
	p := New(Config{CachingEnabled: true}, Components{
		Embedder:  &stubEmbedder{},
		Retriever: &stubRetriever{docs: docs("alpha")},
		Chatter:   chatter,
		Log:       log,
	}, nil)

	events := collect(p.Run(context.Background(), userMessages("hello")))

	assert.Equal(t, "hello", fullResponse(events))
	require.Len(t, log.exchanges, 1)
	assert.Equal(t, "hello", log.exchanges[0].Response)
}

func TestRunClampsRetrievedDocs(t *testing.T) {
	p := New(Config{MaxRetrievalDocs: 2}, Components{
		Embedder:  &stubEmbedder{},
		Retriever: &stubRetriever{docs: docs("a", "b", "c", "d")},
		Chatter:   &stubChatter{chunks: []string{"ok"}},
	}, nil)

	events := collect(p.Run(context.Background(), userMessages("hello")))

	docEvents := eventsOfType(events, EventDocs)
	require.Len(t, docEvents, 1)
	assert.Len(t, docEvents[0].Docs, 2)

	truncated := false
	for _, ev := range eventsOfType(events, EventStatus) {
		if strings.Contains(ev.Message, "truncated") {
			truncated = true
		}
	}
	assert.True(t, truncated, "expected a truncation status event")
}

func TestRunQueryRewriting(t *testing.T) {
	retriever := &stubRetriever{docs: docs("alpha")}
	p := New(Config{EnableQueryRewriting: true}, Components{
		Embedder:  &stubEmbedder{},
		Retriever: retriever,
		Chatter:   &stubChatter{chunks: []string{"ok"}},
		Rewriter:  stubRewriter{},
	}, nil)

	collect(p.Run(context.Background(), userMessages("learn JS")))

	require.Len(t, retriever.queries, 1)
	assert.Equal(t, "learn JavaScript", retriever.queries[0])
}

func TestRunRewritingDisabled(t *testing.T) {
	retriever := &stubRetriever{docs: docs("alpha")}
	p := New(Config{EnableQueryRewriting: false}, Components{
		Embedder:  &stubEmbedder{},
		Retriever: retriever,
		Chatter:   &stubChatter{chunks: []string{"ok"}},
		Rewriter:  stubRewriter{},
	}, nil)

	collect(p.Run(context.Background(), userMessages("learn JS")))

	require.Len(t, retriever.queries, 1)
	assert.Equal(t, "learn JS", retriever.queries[0])
}

func TestRunEmptyAfterRewriteFails(t *testing.T) {
	p := New(Config{EnableQueryRewriting: true}, Components{
		Embedder:  &stubEmbedder{},
		Retriever: &stubRetriever{},
		Chatter:   &stubChatter{chunks: []string{"ok"}},
		Rewriter:  emptyRewriter{},
	}, nil)

	events := collect(p.Run(context.Background(), userMessages("hello")))

	require.NotEmpty(t, eventsOfType(events, EventError))
	assert.Empty(t, eventsOfType(events, EventChat))
}

func TestRunNoDocsStillCompletes(t *testing.T) {
	p := New(Config{}, Components{
		Embedder:  &stubEmbedder{},
		Retriever: &stubRetriever{},
		Chatter:   &stubChatter{chunks: []string{"ok"}},
	}, nil)

	events := collect(p.Run(context.Background(), userMessages("hello")))

	assert.Equal(t, "ok", fullResponse(events))
	metricsEvents := eventsOfType(events, EventMetrics)
	require.Len(t, metricsEvents, 1)
	assert.Equal(t, 0, metricsEvents[0].Metrics.DocsRetrieved)
	assert.Zero(t, metricsEvents[0].Metrics.Efficiency)
}

func TestRunEmptyQuery(t *testing.T) {
	p := New(Config{}, Components{
		Embedder:  &stubEmbedder{},
		Retriever: &stubRetriever{},
		Chatter:   &stubChatter{chunks: []string{"ok"}},
	}, nil)

	events := collect(p.Run(context.Background(), userMessages("   ")))

	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
}

func TestRunNoMessages(t *testing.T) {
	p := New(Config{}, Components{
		Embedder:  &stubEmbedder{},
		Retriever: &stubRetriever{},
		Chatter:   &stubChatter{chunks: []string{"ok"}},
	}, nil)

	events := collect(p.Run(context.Background(), nil))

	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
}

func TestRunRerankFailureDegrades(t *testing.T) {
	reranker := &stubReranker{err: errors.New("model offline")}
	p := New(Config{RerankingModel: "scorer"}, Components{
		Embedder:  &stubEmbedder{},
		Retriever: &stubRetriever{docs: docs("first", "second")},
		Chatter:   &stubChatter{chunks: []string{"ok"}},
		Reranker:  reranker,
	}, nil)

	events := collect(p.Run(context.Background(), userMessages("hello")))

	assert.True(t, reranker.called)
	assert.Equal(t, "ok", fullResponse(events))
	assert.Empty(t, eventsOfType(events, EventError))
}

func TestRunRerankAppliedWhenConfigured(t *testing.T) {
	reranker := &stubReranker{}
	p := New(Config{RerankingModel: "scorer"}, Components{
		Embedder:  &stubEmbedder{},
		Retriever: &stubRetriever{docs: docs("first", "second")},
		Chatter:   &stubChatter{chunks: []string{"ok"}},
		Reranker:  reranker,
	}, nil)

	collect(p.Run(context.Background(), userMessages("hello")))
	assert.True(t, reranker.called)
}

func TestRunRerankSkippedWithoutModel(t *testing.T) {
	reranker := &stubReranker{}
	p := New(Config{}, Components{
		Embedder:  &stubEmbedder{},
		Retriever: &stubRetriever{docs: docs("first", "second")},
		Chatter:   &stubChatter{chunks: []string{"ok"}},
		Reranker:  reranker,
	}, nil)

	collect(p.Run(context.Background(), userMessages("hello")))
	assert.False(t, reranker.called)
}

func TestRunHistoryLimit(t *testing.T) {
	chatter := &stubChatter{chunks: []string{"ok"}}
	p := New(Config{HistoryLimit: 2}, Components{
		Embedder:  &stubEmbedder{},
		Retriever: &stubRetriever{},
		Chatter:   chatter,
	}, nil)

	collect(p.Run(context.Background(), userMessages("one", "two", "three", "four", "five")))

	require.Len(t, chatter.prompts, 1)
	built := chatter.prompts[0]
	assert.Contains(t, built, "four")
	assert.Contains(t, built, "five")
	assert.NotContains(t, built, "one")
	assert.NotContains(t, built, "two")
	assert.NotContains(t, built, "three")
}

func TestRunToolFailureIsolated(t *testing.T) {
	tools := &stubTools{
		names:   []string{"web_search", "wikipedia"},
		outputs: map[string]string{"wikipedia": "article"},
		errs:    map[string]error{"web_search": errors.New("timeout")},
	}
	p := New(Config{}, Components{
		Embedder:  &stubEmbedder{},
		Retriever: &stubRetriever{docs: docs("alpha")},
		Chatter:   &stubChatter{chunks: []string{"ok"}},
		Tools:     tools,
	}, nil)

	events := collect(p.Run(context.Background(), userMessages("hello")))

	assert.Equal(t, []string{"web_search", "wikipedia"}, tools.calls)

	toolEvents := eventsOfType(events, EventTool)
	require.Len(t, toolEvents, 1)
	assert.Equal(t, "wikipedia", toolEvents[0].Tool)
	assert.Equal(t, "article", toolEvents[0].ToolOutput)

	require.NotEmpty(t, eventsOfType(events, EventError))
	assert.Equal(t, "ok", fullResponse(events))
}

func TestRunEmbedFailureFatal(t *testing.T) {
	p := New(Config{}, Components{
		Embedder:  &stubEmbedder{err: errors.New("backend down")},
		Retriever: &stubRetriever{},
		Chatter:   &stubChatter{chunks: []string{"ok"}},
	}, nil)

	events := collect(p.Run(context.Background(), userMessages("hello")))

	require.NotEmpty(t, eventsOfType(events, EventError))
	assert.Empty(t, eventsOfType(events, EventChat))
}

func TestRunRetrieveFailureFatal(t *testing.T) {
	p := New(Config{}, Components{
		Embedder:  &stubEmbedder{},
		Retriever: &stubRetriever{err: errors.New("store closed")},
		Chatter:   &stubChatter{chunks: []string{"ok"}},
	}, nil)

	events := collect(p.Run(context.Background(), userMessages("hello")))

	require.NotEmpty(t, eventsOfType(events, EventError))
	assert.Empty(t, eventsOfType(events, EventChat))
}

func TestRunChatFailureFatal(t *testing.T) {
	p := New(Config{}, Components{
		Embedder:  &stubEmbedder{},
		Retriever: &stubRetriever{docs: docs("alpha")},
		Chatter:   &stubChatter{err: errors.New("connection refused")},
	}, nil)

	events := collect(p.Run(context.Background(), userMessages("hello")))

	require.NotEmpty(t, eventsOfType(events, EventError))
	assert.Empty(t, eventsOfType(events, EventMetrics))
}

func TestRunPersistsExchange(t *testing.T) {
	persister := &stubPersister{}
	p := New(Config{CachingEnabled: true, Model: "llama3"}, Components{
		Embedder:  &stubEmbedder{},
		Retriever: &stubRetriever{docs: docs("alpha")},
		Chatter:   &stubChatter{chunks: []string{"answer"}},
		Persister: persister,
	}, nil)

	collect(p.Run(context.Background(), userMessages("hello")))

	assert.Len(t, persister.groups, 1)
}

func TestRunPersistenceDisabled(t *testing.T) {
	persister := &stubPersister{}
	p := New(Config{CachingEnabled: false}, Components{
		Embedder:  &stubEmbedder{},
		Retriever: &stubRetriever{docs: docs("alpha")},
		Chatter:   &stubChatter{chunks: []string{"answer"}},
		Persister: persister,
	}, nil)

	collect(p.Run(context.Background(), userMessages("hello")))

	assert.Empty(t, persister.groups)
}

func TestRunPersistFailureNonFatal(t *testing.T) {
	persister := &stubPersister{err: errors.New("disk full")}
	p := New(Config{CachingEnabled: true}, Components{
		Embedder:  &stubEmbedder{},
		Retriever: &stubRetriever{docs: docs("alpha")},
		Chatter:   &stubChatter{chunks: []string{"answer"}},
		Persister: persister,
	}, nil)

	events := collect(p.Run(context.Background(), userMessages("hello")))

	assert.Equal(t, "answer", fullResponse(events))
	require.NotEmpty(t, eventsOfType(events, EventMetrics))
	assert.Empty(t, eventsOfType(events, EventError))
}

func TestRunSummarizesLongResponse(t *testing.T) {
	long := strings.Repeat("word ", 300) // well past the threshold
	p := New(Config{EnableResponseSummarization: true}, Components{
		Embedder:   &stubEmbedder{},
		Retriever:  &stubRetriever{docs: docs("alpha")},
		Chatter:    &stubChatter{chunks: []string{long}},
		Summarizer: summarizerFunc(func(ctx context.Context, text string) (string, error) {
			return "short version", nil
		}),
	}, nil)

	events := collect(p.Run(context.Background(), userMessages("hello")))

	summaries := eventsOfType(events, EventSummary)
	require.Len(t, summaries, 1)
	assert.Equal(t, "short version", summaries[0].Summary)
}

func TestRunSkipsSummaryForShortResponse(t *testing.T) {
	p := New(Config{EnableResponseSummarization: true}, Components{
		Embedder:   &stubEmbedder{},
		Retriever:  &stubRetriever{docs: docs("alpha")},
		Chatter:    &stubChatter{chunks: []string{"short"}},
		Summarizer: summarizerFunc(func(ctx context.Context, text string) (string, error) {
			t.Error("summarizer should not run for short responses")
			return "", nil
		}),
	}, nil)

	events := collect(p.Run(context.Background(), userMessages("hello")))
	assert.Empty(t, eventsOfType(events, EventSummary))
}

type summarizerFunc func(ctx context.Context, text string) (string, error)

func (f summarizerFunc) Summarize(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(Config{}, Components{
		Embedder:  &stubEmbedder{},
		Retriever: &stubRetriever{docs: docs("alpha")},
		Chatter:   &stubChatter{chunks: []string{"ok"}},
	}, nil)

	done := make(chan struct{})
	var events []Event
	go func() {
		events = collect(p.Run(ctx, userMessages("hello")))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pipeline did not stop after cancellation")
	}
	assert.Empty(t, eventsOfType(events, EventMetrics))
}

func TestRunMetricsPopulated(t *testing.T) {
	p := New(Config{}, Components{
		Embedder:  &stubEmbedder{},
		Retriever: &stubRetriever{docs: docs("alpha", "beta")},
		Chatter:   &stubChatter{chunks: []string{"answer"}},
	}, nil)

	events := collect(p.Run(context.Background(), userMessages("hello")))

	metricsEvents := eventsOfType(events, EventMetrics)
	require.Len(t, metricsEvents, 1)
	m := metricsEvents[0].Metrics
	assert.Equal(t, 2, m.DocsRetrieved)
	assert.Positive(t, m.TokensEstimated)
	assert.Positive(t, m.TotalTime)
	assert.Positive(t, m.Efficiency)
}

func TestRunTokenEstimateEmitted(t *testing.T) {
	p := New(Config{}, Components{
		Embedder:  &stubEmbedder{},
		Retriever: &stubRetriever{docs: docs("alpha")},
		Chatter:   &stubChatter{chunks: []string{"ok"}},
	}, nil)

	events := collect(p.Run(context.Background(), userMessages("hello")))

	tokenEvents := eventsOfType(events, EventTokens)
	require.Len(t, tokenEvents, 1)
	assert.Positive(t, tokenEvents[0].Tokens)

	thinking := eventsOfType(events, EventThinking)
	require.Len(t, thinking, 1)
	assert.Contains(t, thinking[0].Message, "documents retrieved")
}
