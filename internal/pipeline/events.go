package pipeline

import "github.com/bull/rag-agent/internal/storage"

// EventType tags a pipeline event. Consumers must switch on the tag
// and ignore types they do not recognize; new kinds are always added as
// new tags, never by overloading an existing one.
type EventType string

const (
	EventStatus   EventType = "status"
	EventThinking EventType = "thinking"
	EventTokens   EventType = "tokens"
	EventDocs     EventType = "docs"
	EventTool     EventType = "tool"
	EventChat     EventType = "chat"
	EventSummary  EventType = "summary"
	EventError    EventType = "error"
	EventMetrics  EventType = "metrics"
)

// Event is one element of the pipeline output stream. Only the fields
// relevant to its Type are populated.
type Event struct {
	Type EventType `json:"type"`

	// Message carries status, thinking and error text.
	Message string `json:"message,omitempty"`

	// Tokens is the prompt token estimate (EventTokens).
	Tokens int `json:"tokens,omitempty"`

	// Docs are the retrieved documents (EventDocs).
	Docs []storage.SearchResult `json:"docs,omitempty"`

	// Tool and ToolOutput describe a tool invocation (EventTool).
	Tool       string `json:"tool,omitempty"`
	ToolOutput string `json:"toolOutput,omitempty"`

	// Chunk is one streamed piece of the assistant response (EventChat).
	Chunk string `json:"chunk,omitempty"`

	// Summary is the condensed response (EventSummary).
	Summary string `json:"summary,omitempty"`

	// Metrics is the final run accounting (EventMetrics).
	Metrics *Metrics `json:"metrics,omitempty"`
}

func statusEvent(msg string) Event   { return Event{Type: EventStatus, Message: msg} }
func thinkingEvent(msg string) Event { return Event{Type: EventThinking, Message: msg} }
func errorEvent(msg string) Event    { return Event{Type: EventError, Message: msg} }
