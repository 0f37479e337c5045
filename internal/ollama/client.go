// Package ollama is a thin HTTP client for a local Ollama server.
// It covers the three endpoints the pipeline consumes: streaming chat
// completions, embeddings, and model listing.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultBaseURL is the standard local Ollama address.
const DefaultBaseURL = "http://localhost:11434"

// Client talks to an Ollama server over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the given base URL.
// An empty baseURL falls back to DefaultBaseURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// Message is a wire-level chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

// ChatChunk is one decoded line of the NDJSON chat stream.
type ChatChunk struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

// ChatStream reads chat chunks from an in-flight streaming response.
// Next returns io.EOF after the terminal {done:true} object or end of
// body. Callers must Close the stream when finished.
type ChatStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
}

// Next returns the next chunk of the stream.
// Partial lines are buffered until a newline arrives; lines that fail
// to decode as JSON are skipped rather than aborting the stream.
func (s *ChatStream) Next() (ChatChunk, error) {
	for {
		line, err := s.reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) == 0 {
			if err != nil {
				return ChatChunk{}, io.EOF
			}
			continue
		}
		var chunk ChatChunk
		if jsonErr := json.Unmarshal(bytes.TrimSpace(line), &chunk); jsonErr != nil {
			if err != nil {
				return ChatChunk{}, io.EOF
			}
			continue // malformed line, keep reading
		}
		if chunk.Done {
			return ChatChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Close releases the underlying response body.
func (s *ChatStream) Close() error {
	return s.body.Close()
}

// Chat starts a streaming chat completion.
// The returned stream delivers chunks until the server signals done.
// Cancellation of ctx aborts the underlying request.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatStream, error) {
	req.Stream = true
	resp, err := c.post(ctx, "/api/chat", req)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, fmt.Errorf("chat request: %s", readErrorBody(resp))
	}
	return &ChatStream{
		body:   resp.Body,
		reader: bufio.NewReader(resp.Body),
	}, nil
}

// Embed generates an embedding for prompt using the given model.
// Transient server errors are retried with exponential backoff
// (500ms initial, 10s max interval, 30s max elapsed).
func (c *Client) Embed(ctx context.Context, model, prompt string) ([]float32, error) {
	type embedRequest struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}
	type embedResponse struct {
		Embedding []float64 `json:"embedding"`
	}

	var out embedResponse
	operation := func() error {
		resp, err := c.post(ctx, "/api/embeddings", embedRequest{Model: model, Prompt: prompt})
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("embeddings: %s", readErrorBody(resp))
		}
		if resp.StatusCode != http.StatusOK {
			// Client errors (bad model name etc.) will not heal on retry.
			return backoff.Permanent(fmt.Errorf("embeddings: %s", readErrorBody(resp)))
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode embeddings response: %w", err))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}

	embedding := make([]float32, len(out.Embedding))
	for i, v := range out.Embedding {
		embedding[i] = float32(v)
	}
	return embedding, nil
}

// Generate runs a non-streaming completion against /api/generate.
// Used for model-driven reranking and response summarization where a
// single short answer is wanted.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	type generateRequest struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
		Stream bool   `json:"stream"`
	}
	type generateResponse struct {
		Response string `json:"response"`
	}

	resp, err := c.post(ctx, "/api/generate", generateRequest{Model: model, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("generate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generate request: %s", readErrorBody(resp))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	return out.Response, nil
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.httpClient.Do(req)
}

// readErrorBody extracts a short diagnostic from a non-200 response.
func readErrorBody(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if len(bytes.TrimSpace(body)) == 0 {
		return resp.Status
	}
	return fmt.Sprintf("%s: %s", resp.Status, bytes.TrimSpace(body))
}
