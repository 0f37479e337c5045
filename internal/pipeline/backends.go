package pipeline

import (
	"context"
	"io"

	"github.com/bull/rag-agent/internal/chat"
	"github.com/bull/rag-agent/internal/ollama"
	"github.com/bull/rag-agent/internal/storage"
)

// Embedder produces the query embedding. embedding.Service satisfies
// it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever returns candidate documents for a query. The store decides
// how many; the pipeline clamps afterwards.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]storage.SearchResult, error)
}

// Rewriter normalizes the query before retrieval.
type Rewriter interface {
	Rewrite(query string) string
}

// Reranker reorders retrieved documents. rerank.Reranker satisfies it.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []storage.SearchResult) ([]storage.SearchResult, error)
}

// ChatStream yields response chunks until io.EOF.
type ChatStream interface {
	Next() (string, error)
	Close() error
}

// Chatter streams a completion for the built prompt.
type Chatter interface {
	Chat(ctx context.Context, prompt string) (ChatStream, error)
}

// Summarizer condenses a long response. summarize.Summarizer satisfies
// it.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// ToolRunner is the slice of the tool registry the pipeline uses.
// tools.Registry satisfies it.
type ToolRunner interface {
	Names() []string
	Execute(ctx context.Context, name, input string) (string, error)
}

// Persister stores the completed exchange back into the vector store.
// storage.Store satisfies it.
type Persister interface {
	AddConversation(ctx context.Context, groupID string, docs []storage.Document) error
}

// StoreRetriever adapts storage.Store to the Retriever interface with
// a fixed per-query candidate budget.
type StoreRetriever struct {
	Store *storage.Store

	// TopK is how many candidates to request per query; zero lets the
	// store use its own default.
	TopK int
}

// Retrieve runs an unfiltered store search.
func (r *StoreRetriever) Retrieve(ctx context.Context, query string) ([]storage.SearchResult, error) {
	return r.Store.Search(ctx, query, storage.SearchOptions{TopK: r.TopK})
}

// OllamaChatter adapts ollama.Client to the Chatter interface, turning
// the single prompt string into a one-message chat request.
type OllamaChatter struct {
	Client      *ollama.Client
	Model       string
	Temperature float64
	MaxTokens   int
}

// Chat starts a streaming completion.
func (c *OllamaChatter) Chat(ctx context.Context, prompt string) (ChatStream, error) {
	options := map[string]any{}
	if c.Temperature > 0 {
		options["temperature"] = c.Temperature
	}
	if c.MaxTokens > 0 {
		options["num_predict"] = c.MaxTokens
	}
	stream, err := c.Client.Chat(ctx, ollama.ChatRequest{
		Model:    c.Model,
		Messages: []ollama.Message{{Role: chat.RoleUser, Content: prompt}},
		Options:  options,
	})
	if err != nil {
		return nil, err
	}
	return &ollamaStream{stream: stream}, nil
}

type ollamaStream struct {
	stream *ollama.ChatStream
}

func (s *ollamaStream) Next() (string, error) {
	chunk, err := s.stream.Next()
	if err == io.EOF {
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}
	return chunk.Message.Content, nil
}

func (s *ollamaStream) Close() error {
	return s.stream.Close()
}
