//go:build integration

package ollama

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests need a running Ollama server with the models below
// pulled. Run with: go test -tags integration ./internal/ollama
func liveClient(t *testing.T) *Client {
	base := os.Getenv("OLLAMA_HOST")
	if base == "" {
		t.Skip("OLLAMA_HOST not set, skipping integration test")
	}
	return NewClient(base)
}

func TestChat_Integration(t *testing.T) {
	client := liveClient(t)

	stream, err := client.Chat(context.Background(), ChatRequest{
		Model:    "llama3.2",
		Messages: []Message{{Role: "user", Content: "Reply with the single word: pong"}},
	})
	require.NoError(t, err)
	defer stream.Close()

	var full string
	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		full += chunk.Message.Content
	}
	assert.NotEmpty(t, full)
}

func TestEmbed_Integration(t *testing.T) {
	client := liveClient(t)

	vec, err := client.Embed(context.Background(), "nomic-embed-text", "hello world")
	require.NoError(t, err)
	assert.NotEmpty(t, vec)
}

func TestListModels_Integration(t *testing.T) {
	client := liveClient(t)

	models, err := client.ListModels(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, models)
}
