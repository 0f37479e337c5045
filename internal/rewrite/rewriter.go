// Package rewrite normalizes user queries before retrieval.
package rewrite

import "strings"

// defaultExpansions maps common abbreviations to retrieval-friendly
// phrases. Matching is case-insensitive on whole tokens.
var defaultExpansions = map[string]string{
	"js":   "JavaScript",
	"ts":   "TypeScript",
	"py":   "Python",
	"ml":   "machine learning",
	"ai":   "artificial intelligence",
	"db":   "database",
	"k8s":  "Kubernetes",
	"llm":  "large language model",
	"rag":  "retrieval-augmented generation",
	"repo": "repository",
}

// Rewriter expands abbreviations within a query.
type Rewriter struct {
	expansions map[string]string
}

// NewRewriter creates a rewriter with the default expansion table.
func NewRewriter() *Rewriter {
	return &Rewriter{expansions: defaultExpansions}
}

// NewRewriterWithTable creates a rewriter with a custom table. Keys
// must be lowercase.
func NewRewriterWithTable(table map[string]string) *Rewriter {
	return &Rewriter{expansions: table}
}

// Rewrite expands known abbreviations token by token, preserving all
// other tokens and their order. Trailing punctuation on a token does
// not block expansion.
func (r *Rewriter) Rewrite(query string) string {
	tokens := strings.Fields(query)
	for i, token := range tokens {
		trimmed := strings.TrimRight(token, ".,!?;:")
		expansion, ok := r.expansions[strings.ToLower(trimmed)]
		if !ok {
			continue
		}
		tokens[i] = expansion + token[len(trimmed):]
	}
	return strings.Join(tokens, " ")
}
