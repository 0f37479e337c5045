// Package chat defines the conversation message model shared by the
// pipeline, prompt assembly, and the Ollama client.
package chat

import "github.com/google/uuid"

// Message roles. Synthetic context messages injected by the pipeline
// use RoleSystem.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single conversation turn. Messages are immutable once
// created; the streaming accumulator builds a new assistant message
// rather than mutating an existing one.
type Message struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// New creates a message with a fresh UUID.
func New(role, content string) Message {
	return Message{
		ID:      uuid.New().String(),
		Role:    role,
		Content: content,
	}
}
