// Package ingest feeds local files and raw text into the vector store.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bull/rag-agent/internal/markdown"
	"github.com/bull/rag-agent/internal/storage"
)

// Result contains statistics about one ingestion run.
type Result struct {
	TotalFiles      int
	SuccessfulFiles int
	TotalSections   int
	Failed          []FailedFile
	Duration        time.Duration
}

// FailedFile records a file that could not be ingested.
type FailedFile struct {
	Path   string
	Reason string
}

// Ingestor splits source files into sections and stores them.
type Ingestor struct {
	store    *storage.Store
	splitter *markdown.Splitter
	logger   *slog.Logger
}

// NewIngestor creates an ingestor over the given store.
func NewIngestor(store *storage.Store, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{
		store:    store,
		splitter: markdown.NewSplitter(),
		logger:   logger,
	}
}

// IngestFiles processes each path, isolating failures per file: an
// unreadable or unparseable file is recorded and skipped, the rest
// continue.
func (in *Ingestor) IngestFiles(ctx context.Context, paths []string) (*Result, error) {
	start := time.Now()
	result := &Result{TotalFiles: len(paths)}

	for _, path := range paths {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		sections, err := in.ingestFile(ctx, path)
		if err != nil {
			in.logger.Warn("failed to ingest file", "path", path, "error", err)
			result.Failed = append(result.Failed, FailedFile{Path: path, Reason: err.Error()})
			continue
		}
		result.SuccessfulFiles++
		result.TotalSections += sections
	}

	result.Duration = time.Since(start)
	in.logger.Info("ingestion complete",
		"successful", result.SuccessfulFiles,
		"failed", len(result.Failed),
		"sections", result.TotalSections,
		"duration", result.Duration,
	)
	return result, nil
}

// ingestFile reads, splits and stores a single file.
func (in *Ingestor) ingestFile(ctx context.Context, path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read: %w", err)
	}

	var sections []markdown.Section
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		sections, err = in.splitter.SplitMarkdown(content)
		if err != nil {
			return 0, fmt.Errorf("split: %w", err)
		}
	default:
		sections = markdown.SplitText(string(content), 0)
	}
	if len(sections) == 0 {
		return 0, fmt.Errorf("no ingestable content")
	}

	if err := in.storeSections(ctx, filepath.Base(path), sections); err != nil {
		return 0, err
	}

	in.logger.Info("ingested file", "path", path, "sections", len(sections))
	return len(sections), nil
}

// IngestText stores raw pasted text under the given source name.
func (in *Ingestor) IngestText(ctx context.Context, source, text string) (int, error) {
	sections := markdown.SplitText(text, 0)
	if len(sections) == 0 {
		return 0, fmt.Errorf("no ingestable content")
	}
	if err := in.storeSections(ctx, source, sections); err != nil {
		return 0, err
	}
	return len(sections), nil
}

// storeSections converts sections to documents and adds them as one
// group.
func (in *Ingestor) storeSections(ctx context.Context, source string, sections []markdown.Section) error {
	groupID := uuid.New().String()
	docs := make([]storage.Document, len(sections))
	for i, section := range sections {
		docs[i] = storage.Document{
			ID:   uuid.New().String(),
			Text: section.Text,
			Metadata: map[string]any{
				"source":  source,
				"section": section.Heading,
				"index":   section.Index,
				"type":    "ingested",
			},
		}
	}
	if err := in.store.AddConversation(ctx, groupID, docs); err != nil {
		return fmt.Errorf("store sections: %w", err)
	}
	return nil
}
