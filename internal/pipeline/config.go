package pipeline

// Defaults applied by Config.withDefaults.
const (
	DefaultMaxRetrievalDocs = 5
	DefaultHistoryLimit     = 10
	DefaultSummaryLength    = 200

	// summarizeThreshold is the response length above which the
	// optional response summarization step kicks in.
	summarizeThreshold = 1000
)

// Config holds the recognized per-run options. It is constructed once
// per invocation and never mutated afterwards.
type Config struct {
	Model          string
	EmbeddingModel string

	// RerankingModel enables the rerank stage when non-empty.
	RerankingModel string

	SummaryLength    int
	HistoryLimit     int
	MaxRetrievalDocs int

	EnableQueryRewriting        bool
	EnableResponseSummarization bool

	// CachingEnabled also gates the post-run persistence of the
	// exchange into the vector store.
	CachingEnabled bool

	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

func (c Config) withDefaults() Config {
	if c.MaxRetrievalDocs <= 0 {
		c.MaxRetrievalDocs = DefaultMaxRetrievalDocs
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.SummaryLength <= 0 {
		c.SummaryLength = DefaultSummaryLength
	}
	return c
}
