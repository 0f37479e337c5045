// Package prompt assembles conversation history and retrieved context
// into the final prompt text sent to the model.
package prompt

import (
	"fmt"
	"strings"

	"github.com/bull/rag-agent/internal/chat"
	"github.com/bull/rag-agent/internal/storage"
)

// DefaultSystemPrompt is used when no system prompt is configured.
const DefaultSystemPrompt = "You are a helpful assistant. Use the provided context when it is relevant, and say so when it is not."

// TrimHistory bounds messages to the last limit entries. Idempotent:
// trimming an already-trimmed history is a no-op. limit <= 0 returns
// the input unchanged.
func TrimHistory(messages []chat.Message, limit int) []chat.Message {
	if limit <= 0 || len(messages) <= limit {
		return messages
	}
	return messages[len(messages)-limit:]
}

// SummarizeContext truncates each retrieved document to at most maxLen
// characters, cutting at a word boundary where possible.
func SummarizeContext(docs []storage.SearchResult, maxLen int) ([]string, error) {
	if maxLen <= 0 {
		return nil, fmt.Errorf("context summary length must be positive, got %d", maxLen)
	}
	summaries := make([]string, len(docs))
	for i, doc := range docs {
		summaries[i] = truncateAtWord(doc.Text, maxLen)
	}
	return summaries, nil
}

// truncateAtWord cuts text to maxLen characters, preferring the last
// space inside the window, and marks the cut with an ellipsis.
// Slicing is rune-based so a multi-byte character at the boundary is
// never split into invalid UTF-8.
func truncateAtWord(text string, maxLen int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	cutAt := maxLen
	for i := maxLen - 1; i > maxLen/2; i-- {
		if runes[i] == ' ' {
			cutAt = i
			break
		}
	}
	return strings.TrimSpace(string(runes[:cutAt])) + "..."
}

// Assemble merges trimmed history with summarized context documents.
// Context entries are appended after the history as synthetic
// system-role messages, so the model sees them as grounding rather than
// dialogue.
func Assemble(history []chat.Message, contexts []string) []chat.Message {
	out := make([]chat.Message, 0, len(history)+len(contexts))
	out = append(out, history...)
	for _, ctx := range contexts {
		out = append(out, chat.New(chat.RoleSystem, "Relevant context:\n"+ctx))
	}
	return out
}

// BuildOptions configures prompt rendering.
type BuildOptions struct {
	// SystemPrompt heads the prompt. Empty selects DefaultSystemPrompt.
	SystemPrompt string
}

// Build renders the assembled messages into a single prompt string:
// the system prompt, the transcript with role labels, and a trailing
// assistant cue.
func Build(messages []chat.Message, opts BuildOptions) string {
	system := opts.SystemPrompt
	if system == "" {
		system = DefaultSystemPrompt
	}

	var b strings.Builder
	b.WriteString(system)
	b.WriteString("\n\n")
	for _, msg := range messages {
		b.WriteString(roleLabel(msg.Role))
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	b.WriteString("Assistant:")
	return b.String()
}

func roleLabel(role string) string {
	switch role {
	case chat.RoleUser:
		return "User"
	case chat.RoleAssistant:
		return "Assistant"
	case chat.RoleSystem:
		return "System"
	default:
		return role
	}
}

// EstimateTokens approximates the token count of text as its
// whitespace-delimited word count.
func EstimateTokens(text string) int {
	return len(strings.Fields(text))
}
