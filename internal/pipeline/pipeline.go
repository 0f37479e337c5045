// Package pipeline orchestrates the agentic RAG flow: query rewriting,
// embedding, retrieval, reranking, context assembly, tool calls,
// streaming chat, summarization, and post-run persistence.
//
// Each Run produces a lazy stream of tagged events consumed by exactly
// one reader. Runs are independent: the pipeline holds no cross-run
// state beyond the shared store its collaborators wrap.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bull/rag-agent/internal/chat"
	"github.com/bull/rag-agent/internal/prompt"
	"github.com/bull/rag-agent/internal/storage"
)

// Components are the pipeline collaborators. Embedder, Retriever and
// Chatter are required; the rest are optional and their stages are
// skipped when nil.
type Components struct {
	Embedder   Embedder
	Retriever  Retriever
	Chatter    Chatter
	Rewriter   Rewriter
	Reranker   Reranker
	Summarizer Summarizer
	Tools      ToolRunner
	Persister  Persister
	Log        ExchangeLog
}

// Pipeline runs the staged RAG flow. Safe to reuse across runs; each
// Run call creates fresh per-run state.
type Pipeline struct {
	cfg    Config
	comps  Components
	logger *slog.Logger
}

// New creates a pipeline with the given configuration and components.
func New(cfg Config, comps Components, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:    cfg.withDefaults(),
		comps:  comps,
		logger: logger,
	}
}

// Run executes the pipeline for the given conversation and returns the
// event stream. The channel is closed when the run completes, fails
// fatally, or ctx is canceled. Cancellation is cooperative: it is
// polled at stage boundaries, and chunk-by-chunk during the chat
// stream.
func (p *Pipeline) Run(ctx context.Context, messages []chat.Message) <-chan Event {
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		p.run(ctx, messages, out)
	}()
	return out
}

// emit sends an event unless the run has been canceled. Returns false
// once canceled so stages can stop early.
func (p *Pipeline) emit(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}

// canceled reports whether the run should stop at a stage boundary.
func canceled(ctx context.Context) bool {
	return ctx.Err() != nil
}

func (p *Pipeline) run(ctx context.Context, messages []chat.Message, out chan<- Event) {
	metrics := &Metrics{StartTime: time.Now()}

	// Stage 1: extract the query from the last message.
	if len(messages) == 0 || strings.TrimSpace(messages[len(messages)-1].Content) == "" {
		p.emit(ctx, out, errorEvent("query is empty"))
		return
	}
	query := messages[len(messages)-1].Content

	if !p.emit(ctx, out, statusEvent("processing query")) {
		return
	}

	// Stage 2: query rewriting.
	if p.cfg.EnableQueryRewriting && p.comps.Rewriter != nil {
		if canceled(ctx) {
			return
		}
		start := time.Now()
		rewritten := p.comps.Rewriter.Rewrite(query)
		metrics.QueryRewriteTime = time.Since(start)
		if strings.TrimSpace(rewritten) == "" {
			// Deliberately an error rather than a silent fallback to
			// the original query; see DESIGN.md.
			p.emit(ctx, out, errorEvent("query rewriting produced an empty query"))
			return
		}
		if rewritten != query {
			query = rewritten
			if !p.emit(ctx, out, statusEvent("query rewritten: "+query)) {
				return
			}
		}
	}

	// Stage 3: embed the query. Fatal: nothing downstream works
	// without a query vector. This also warms the embedding cache for
	// the retriever's own embedding call.
	if canceled(ctx) {
		return
	}
	start := time.Now()
	vec, err := p.comps.Embedder.Embed(ctx, query)
	metrics.EmbeddingTime = time.Since(start)
	if err != nil {
		p.logger.Error("embedding stage failed", "error", err)
		p.emit(ctx, out, errorEvent("embedding failed: "+err.Error()))
		return
	}
	p.logger.Debug("query embedded", "dimensions", len(vec))

	// Stage 4: retrieve. Fatal: no retrieval fallback exists.
	if canceled(ctx) {
		return
	}
	start = time.Now()
	docs, err := p.comps.Retriever.Retrieve(ctx, query)
	metrics.RetrievalTime = time.Since(start)
	if err != nil {
		p.logger.Error("retrieval stage failed", "error", err)
		p.emit(ctx, out, errorEvent("retrieval failed: "+err.Error()))
		return
	}

	// Stage 5: clamp to the configured document budget.
	if len(docs) > p.cfg.MaxRetrievalDocs {
		if !p.emit(ctx, out, statusEvent(fmt.Sprintf(
			"truncated retrieval from %d to %d documents", len(docs), p.cfg.MaxRetrievalDocs))) {
			return
		}
		docs = docs[:p.cfg.MaxRetrievalDocs]
	}
	metrics.DocsRetrieved = len(docs)
	if !p.emit(ctx, out, Event{Type: EventDocs, Docs: docs}) {
		return
	}

	// Stage 6: rerank. Degrades to the original order on failure.
	if p.cfg.RerankingModel != "" && p.comps.Reranker != nil && len(docs) > 1 {
		if canceled(ctx) {
			return
		}
		start = time.Now()
		reranked, err := p.comps.Reranker.Rerank(ctx, query, docs)
		metrics.RerankingTime = time.Since(start)
		if err != nil {
			p.logger.Warn("reranking failed, keeping retrieval order", "error", err)
			if !p.emit(ctx, out, statusEvent("reranking unavailable, using retrieval order")) {
				return
			}
		} else {
			docs = reranked
		}
	}

	// Stages 7-10: trim history, summarize context, assemble, build.
	if canceled(ctx) {
		return
	}
	start = time.Now()
	history := prompt.TrimHistory(messages, p.cfg.HistoryLimit)
	contexts, err := prompt.SummarizeContext(docs, p.cfg.SummaryLength)
	if err != nil {
		p.logger.Error("context summarization failed", "error", err)
		p.emit(ctx, out, errorEvent("context summarization failed: "+err.Error()))
		return
	}
	assembled := prompt.Assemble(history, contexts)
	built := prompt.Build(assembled, prompt.BuildOptions{SystemPrompt: p.cfg.SystemPrompt})
	metrics.ContextTime = time.Since(start)

	// Stage 11: token estimate and diagnostics.
	metrics.TokensEstimated = prompt.EstimateTokens(built)
	if !p.emit(ctx, out, thinkingEvent(fmt.Sprintf(
		"%d documents retrieved in %s, ~%d prompt tokens",
		len(docs), metrics.RetrievalTime.Round(time.Millisecond), metrics.TokensEstimated))) {
		return
	}
	if !p.emit(ctx, out, Event{Type: EventTokens, Tokens: metrics.TokensEstimated}) {
		return
	}

	// Stage 12: tools, sequentially, each failure isolated.
	if p.comps.Tools != nil {
		for _, name := range p.comps.Tools.Names() {
			if canceled(ctx) {
				return
			}
			output, err := p.comps.Tools.Execute(ctx, name, built)
			if err != nil {
				p.logger.Warn("tool execution failed", "tool", name, "error", err)
				if !p.emit(ctx, out, errorEvent(fmt.Sprintf("tool %s failed: %v", name, err))) {
					return
				}
				continue
			}
			if !p.emit(ctx, out, Event{Type: EventTool, Tool: name, ToolOutput: output}) {
				return
			}
		}
	}

	// Stage 13: stream the chat completion. Fatal on failure.
	if canceled(ctx) {
		return
	}
	start = time.Now()
	response, ok := p.streamChat(ctx, built, out)
	metrics.ResponseTime = time.Since(start)
	if !ok {
		return
	}

	// Stage 14: optional response summarization. Non-fatal.
	if p.cfg.EnableResponseSummarization && p.comps.Summarizer != nil && len(response) > summarizeThreshold {
		if canceled(ctx) {
			return
		}
		summary, err := p.comps.Summarizer.Summarize(ctx, response)
		if err != nil {
			p.logger.Warn("response summarization failed", "error", err)
		} else if !p.emit(ctx, out, Event{Type: EventSummary, Summary: summary}) {
			return
		}
	}

	// Stage 15: final status and metrics.
	metrics.finalize()
	if !p.emit(ctx, out, statusEvent(fmt.Sprintf("completed in %s", metrics.TotalTime.Round(time.Millisecond)))) {
		return
	}
	if !p.emit(ctx, out, Event{Type: EventMetrics, Metrics: metrics}) {
		return
	}

	// Stage 16: best-effort persistence after the result is committed
	// to the stream. Each side effect fails independently.
	if p.cfg.CachingEnabled {
		p.persistExchange(ctx, out, query, response, docs)
	}
}

// streamChat consumes the completion stream, forwarding each chunk and
// accumulating the full response. Returns ok=false when the run should
// terminate (fatal error or cancellation).
func (p *Pipeline) streamChat(ctx context.Context, built string, out chan<- Event) (string, bool) {
	stream, err := p.comps.Chatter.Chat(ctx, built)
	if err != nil {
		p.logger.Error("chat invocation failed", "error", err)
		p.emit(ctx, out, errorEvent("chat failed: "+err.Error()))
		return "", false
	}
	defer stream.Close()

	var response strings.Builder
	for {
		if canceled(ctx) {
			return response.String(), false
		}
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			p.logger.Error("chat stream failed", "error", err)
			p.emit(ctx, out, errorEvent("chat stream failed: "+err.Error()))
			return response.String(), false
		}
		response.WriteString(chunk)
		if !p.emit(ctx, out, Event{Type: EventChat, Chunk: chunk}) {
			return response.String(), false
		}
	}
	return response.String(), true
}

// persistExchange writes the completed exchange back into the vector
// store and the exchange log. Failures degrade to a status note or a
// log line; the run has already succeeded by the time this executes.
func (p *Pipeline) persistExchange(ctx context.Context, out chan<- Event, query, response string, docs []storage.SearchResult) {
	exchangeID := uuid.New().String()

	if p.comps.Persister != nil {
		doc := storage.Document{
			ID:   exchangeID,
			Text: fmt.Sprintf("Q: %s\nA: %s", query, response),
			Metadata: map[string]any{
				"type":  "conversation",
				"model": p.cfg.Model,
			},
		}
		if err := p.comps.Persister.AddConversation(ctx, exchangeID, []storage.Document{doc}); err != nil {
			p.logger.Warn("failed to persist exchange", "error", err)
			p.emit(ctx, out, statusEvent("exchange not persisted"))
		}
	}

	if p.comps.Log != nil {
		err := p.comps.Log.Append(Exchange{
			ID:        exchangeID,
			Timestamp: time.Now().UTC(),
			Query:     query,
			Response:  response,
			DocsUsed:  len(docs),
			Model:     p.cfg.Model,
		})
		if err != nil {
			p.logger.Warn("failed to append exchange log", "error", err)
		}
	}
}
