// Package tools holds the optional side-effecting search tools (web,
// Wikipedia, news) and the registry that scores, selects and executes
// them with per-tool metrics.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Tool names used for registration and selection.
const (
	NameWebSearch = "web_search"
	NameWikipedia = "wikipedia"
	NameNews      = "news"
)

// selectionThreshold is the minimum keyword score required before a
// tool is picked over the fallback preference order.
const selectionThreshold = 0.3

// historyLimit bounds the rolling per-tool execution history.
const historyLimit = 100

// Tool is a side-effecting lookup invoked with the pipeline's prompt.
type Tool interface {
	Name() string
	Description() string
	Search(ctx context.Context, query string) (string, error)
}

// Execution records one tool invocation for the rolling history.
type Execution struct {
	At       time.Time
	Duration time.Duration
	Success  bool
}

// Metrics aggregates per-tool accounting.
type Metrics struct {
	Executions int
	Failures   int
	TotalTime  time.Duration
	History    []Execution // most recent last, capped at historyLimit
}

// Registry holds registered tools in registration order and tracks
// their execution metrics.
type Registry struct {
	mu      sync.Mutex
	tools   []Tool
	metrics map[string]*Metrics
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		metrics: make(map[string]*Metrics),
		logger:  logger,
	}
}

// Register adds a tool. Registering the same name twice replaces the
// earlier tool.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.tools {
		if existing.Name() == tool.Name() {
			r.tools[i] = tool
			return
		}
	}
	r.tools = append(r.tools, tool)
	r.metrics[tool.Name()] = &Metrics{}
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.tools))
	for i, t := range r.tools {
		names[i] = t.Name()
	}
	return names
}

// categoryKeywords drive tool selection. Multi-word phrases count more
// than single-token overlap.
var categoryKeywords = map[string][]string{
	NameNews:      {"news", "latest", "today", "breaking", "current events", "headlines", "recent"},
	NameWikipedia: {"who is", "what is", "history of", "define", "definition", "wikipedia", "biography", "meaning of"},
	NameWebSearch: {"how to", "tutorial", "guide", "search", "find", "example", "documentation"},
}

// fallbackOrder is the enabled-tool preference when no category clears
// the threshold.
var fallbackOrder = []string{NameWebSearch, NameWikipedia, NameNews}

// SelectBestTool scores each registered tool's category against the
// query and returns the best name. An exact phrase match contributes
// more than partial token overlap; scores cap at 1.0. Below the 0.3
// threshold the fixed preference order applies. Returns false when no
// tool is registered.
func (r *Registry) SelectBestTool(query string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.tools) == 0 {
		return "", false
	}

	registered := make(map[string]bool, len(r.tools))
	for _, t := range r.tools {
		registered[t.Name()] = true
	}

	bestName, bestScore := "", 0.0
	for name, keywords := range categoryKeywords {
		if !registered[name] {
			continue
		}
		score := keywordScore(query, keywords)
		if score > bestScore {
			bestName, bestScore = name, score
		}
	}
	if bestScore > selectionThreshold {
		return bestName, true
	}

	for _, name := range fallbackOrder {
		if registered[name] {
			return name, true
		}
	}
	// Registered tools outside the known categories: first registered wins.
	return r.tools[0].Name(), true
}

// keywordScore computes a weighted match score in [0, 1].
func keywordScore(query string, keywords []string) float64 {
	lower := strings.ToLower(query)
	queryTokens := strings.Fields(lower)

	var score float64
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			if strings.Contains(kw, " ") {
				score += 0.4 // exact phrase
			} else {
				score += 0.25
			}
			continue
		}
		// Partial token overlap for multi-word keywords.
		if strings.Contains(kw, " ") {
			for _, part := range strings.Fields(kw) {
				if containsToken(queryTokens, part) {
					score += 0.1
					break
				}
			}
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func containsToken(tokens []string, want string) bool {
	for _, t := range tokens {
		if t == want {
			return true
		}
	}
	return false
}

// Execute runs the named tool, recording duration and outcome.
func (r *Registry) Execute(ctx context.Context, name, input string) (string, error) {
	r.mu.Lock()
	var tool Tool
	for _, t := range r.tools {
		if t.Name() == name {
			tool = t
			break
		}
	}
	r.mu.Unlock()

	if tool == nil {
		return "", fmt.Errorf("tool %q is not registered", name)
	}

	start := time.Now()
	output, err := tool.Search(ctx, input)
	r.record(name, time.Since(start), err == nil)

	if err != nil {
		return "", fmt.Errorf("tool %s: %w", name, err)
	}
	return output, nil
}

func (r *Registry) record(name string, d time.Duration, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.metrics[name]
	if m == nil {
		m = &Metrics{}
		r.metrics[name] = m
	}
	m.Executions++
	if !success {
		m.Failures++
	}
	m.TotalTime += d
	m.History = append(m.History, Execution{At: time.Now(), Duration: d, Success: success})
	if len(m.History) > historyLimit {
		m.History = m.History[len(m.History)-historyLimit:]
	}
}

// MetricsFor returns a copy of the named tool's metrics.
func (r *Registry) MetricsFor(name string) Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.metrics[name]
	if m == nil {
		return Metrics{}
	}
	out := *m
	out.History = append([]Execution(nil), m.History...)
	return out
}
