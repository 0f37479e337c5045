package pipeline

import "time"

// Metrics accumulates per-stage timings for one run. Created at run
// start, written by each stage, emitted once in the final metrics
// event.
type Metrics struct {
	StartTime time.Time `json:"startTime"`

	QueryRewriteTime time.Duration `json:"queryRewriteTime,omitempty"`
	EmbeddingTime    time.Duration `json:"embeddingTime,omitempty"`
	RetrievalTime    time.Duration `json:"retrievalTime,omitempty"`
	RerankingTime    time.Duration `json:"rerankingTime,omitempty"`
	ContextTime      time.Duration `json:"contextTime,omitempty"`
	ResponseTime     time.Duration `json:"responseTime,omitempty"`
	TotalTime        time.Duration `json:"totalTime"`

	DocsRetrieved   int `json:"docsRetrieved"`
	TokensEstimated int `json:"tokensEstimated"`

	// Efficiency is TotalTime divided by DocsRetrieved, in
	// milliseconds per document; 0 when nothing was retrieved.
	Efficiency float64 `json:"efficiency"`

	// TokensPerSecond is TokensEstimated over ResponseTime; 0 when no
	// response time was recorded.
	TokensPerSecond float64 `json:"tokensPerSecond"`
}

// finalize computes TotalTime and the derived rates.
func (m *Metrics) finalize() {
	m.TotalTime = time.Since(m.StartTime)

	if m.DocsRetrieved > 0 {
		m.Efficiency = float64(m.TotalTime.Milliseconds()) / float64(m.DocsRetrieved)
	}
	if m.ResponseTime > 0 {
		m.TokensPerSecond = float64(m.TokensEstimated) / m.ResponseTime.Seconds()
	}
}
