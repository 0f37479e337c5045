package rewrite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewriteExpandsAbbreviations(t *testing.T) {
	r := NewRewriter()

	assert.Equal(t, "learn JavaScript", r.Rewrite("learn JS"))
	assert.Equal(t, "what is machine learning?", r.Rewrite("what is ML?"))
	assert.Equal(t, "deploy to Kubernetes", r.Rewrite("deploy to k8s"))
}

func TestRewritePreservesUnknownTokens(t *testing.T) {
	r := NewRewriter()
	assert.Equal(t, "how does the pipeline work", r.Rewrite("how does the pipeline work"))
}

func TestRewriteEmptyQuery(t *testing.T) {
	r := NewRewriter()
	assert.Equal(t, "", r.Rewrite(""))
	assert.Equal(t, "", r.Rewrite("   "))
}

func TestRewriteCustomTable(t *testing.T) {
	r := NewRewriterWithTable(map[string]string{"gc": "garbage collection"})
	assert.Equal(t, "tune garbage collection settings", r.Rewrite("tune GC settings"))
	assert.Equal(t, "learn JS", r.Rewrite("learn JS"), "default table not applied")
}
