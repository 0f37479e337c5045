// Package markdown splits documents into retrieval-sized sections for
// ingestion. Markdown is split at H1/H2 boundaries with the heading
// hierarchy preserved as context; plain text falls back to blank-line
// paragraph grouping.
package markdown

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// Section is one retrievable unit of a source document.
type Section struct {
	Index   int    // position within the document
	Heading string // heading hierarchy, e.g. "Install > Prerequisites"; empty for plain text
	Text    string // section body, heading context included for markdown
}

// Splitter parses and splits source documents.
type Splitter struct {
	md goldmark.Markdown
}

// NewSplitter creates a splitter with heading-ID support enabled, which
// the TOC walk relies on.
func NewSplitter() *Splitter {
	return &Splitter{
		md: goldmark.New(
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
	}
}

// SplitMarkdown splits markdown source at H1 and H2 boundaries.
// A document without headings comes back as a single section.
func (s *Splitter) SplitMarkdown(source []byte) ([]Section, error) {
	doc := s.md.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(2),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect headings: %w", err)
	}

	if len(tree.Items) == 0 {
		body := strings.TrimSpace(string(source))
		if body == "" {
			return nil, nil
		}
		return []Section{{Index: 0, Text: body}}, nil
	}

	var sections []Section
	s.walk(doc, source, tree.Items, nil, &sections)
	return sections, nil
}

// walk visits TOC items depth-first, emitting one section per heading.
func (s *Splitter) walk(doc ast.Node, source []byte, items toc.Items, parents []string, sections *[]Section) {
	for i, item := range items {
		trail := append(append([]string(nil), parents...), string(item.Title))
		heading := strings.Join(trail, " > ")

		node := headingByID(doc, string(item.ID))
		if node == nil {
			continue
		}

		start := node.Lines().At(0).Start
		stop := len(source)
		if i+1 < len(items) {
			if next := headingByID(doc, string(items[i+1].ID)); next != nil {
				stop = next.Lines().At(0).Start
			}
		} else if next := nextHeadingAtOrAbove(doc, node, node.(*ast.Heading).Level); next != nil {
			stop = next.Lines().At(0).Start
		}

		body := strings.TrimSpace(string(source[start:stop]))
		*sections = append(*sections, Section{
			Index:   len(*sections),
			Heading: heading,
			Text:    fmt.Sprintf("%s\n\n%s", heading, body),
		})

		if len(item.Items) > 0 {
			s.walk(doc, source, item.Items, trail, sections)
		}
	}
}

// headingByID finds the heading node carrying the auto-generated ID.
func headingByID(root ast.Node, id string) ast.Node {
	var found ast.Node
	ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindHeading {
			return ast.WalkContinue, nil
		}
		if attr, ok := n.AttributeString("id"); ok {
			if b, ok := attr.([]byte); ok && string(b) == id {
				found = n
				return ast.WalkStop, nil
			}
		}
		return ast.WalkContinue, nil
	})
	return found
}

// nextHeadingAtOrAbove returns the first heading after current whose
// level is the same or higher (numerically lower or equal).
func nextHeadingAtOrAbove(root, current ast.Node, level int) ast.Node {
	var next ast.Node
	passed := false
	ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindHeading {
			return ast.WalkContinue, nil
		}
		if !passed {
			if n == current {
				passed = true
			}
			return ast.WalkContinue, nil
		}
		if n.(*ast.Heading).Level <= level {
			next = n
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return next
}

// SplitText splits plain text into paragraph groups of roughly
// maxLen characters. maxLen <= 0 selects 1000.
func SplitText(source string, maxLen int) []Section {
	if maxLen <= 0 {
		maxLen = 1000
	}

	paragraphs := strings.Split(strings.ReplaceAll(source, "\r\n", "\n"), "\n\n")
	var sections []Section
	var current strings.Builder

	flush := func() {
		body := strings.TrimSpace(current.String())
		current.Reset()
		if body == "" {
			return
		}
		sections = append(sections, Section{Index: len(sections), Text: body})
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(p) > maxLen {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	flush()
	return sections
}
