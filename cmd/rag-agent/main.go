// Package main provides the rag-agent CLI: an interactive retrieval
// augmented chat agent backed by a local Ollama server.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/rag-agent/internal/chat"
	"github.com/bull/rag-agent/internal/config"
	"github.com/bull/rag-agent/internal/embedding"
	"github.com/bull/rag-agent/internal/ingest"
	"github.com/bull/rag-agent/internal/ollama"
	"github.com/bull/rag-agent/internal/pipeline"
	"github.com/bull/rag-agent/internal/rerank"
	"github.com/bull/rag-agent/internal/rewrite"
	"github.com/bull/rag-agent/internal/storage"
	"github.com/bull/rag-agent/internal/summarize"
	"github.com/bull/rag-agent/internal/tools"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "rag-agent",
	Short: "Retrieval augmented chat agent for local Ollama models",
	Long: `rag-agent answers questions over your own documents.

Ingested files are split into sections, embedded, and stored in a
local vector database. Each chat turn retrieves the most relevant
sections, optionally reranks them, and streams a completion from an
Ollama chat model with that context in the prompt.

Environment variables:
  OLLAMA_HOST  Ollama base URL (default: http://localhost:11434)
  RAG_*        Override any config key, e.g. RAG_MODELS_CHAT`,
}

var chatCmd = &cobra.Command{
	Use:   "chat [question]",
	Short: "Chat with the agent (interactive without arguments)",
	RunE:  runChat,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest documents into the vector store",
	Long:  "Ingest the given files. Pass \"-\" to read pasted text from stdin instead.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngest,
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models available on the Ollama server",
	RunE:  runModels,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show vector store and cache statistics",
	RunE:  runStats,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all stored documents and embeddings",
	RunE:  runClear,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show pipeline diagnostics")
	rootCmd.AddCommand(chatCmd, ingestCmd, modelsCmd, statsCmd, clearCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles the wired components shared by the subcommands.
type app struct {
	cfg      *config.Config
	client   *ollama.Client
	embedder *embedding.Service
	store    *storage.Store
	registry *tools.Registry
	logger   *slog.Logger
}

func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	client := ollama.NewClient(cfg.Ollama.BaseURL)
	embedder := embedding.NewService(client, cfg.Models.Embedding, 0, logger)

	store, err := storage.NewStore(embedder, storage.Options{
		Path:         cfg.Store.Path,
		TopK:         cfg.Store.TopK,
		CacheSize:    cfg.Store.CacheSize,
		DisableCache: cfg.Store.DisableCache,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	registry := tools.NewRegistry(logger)
	for _, name := range cfg.Tools.Enabled {
		switch name {
		case tools.NameWebSearch:
			registry.Register(tools.NewWebSearch("", nil))
		case tools.NameWikipedia:
			registry.Register(tools.NewWikipedia("", nil))
		case tools.NameNews:
			registry.Register(tools.NewNews("", nil))
		}
	}

	return &app{
		cfg:      cfg,
		client:   client,
		embedder: embedder,
		store:    store,
		registry: registry,
		logger:   logger,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store", "error", err)
	}
}

// pipelineConfig translates file configuration into per-run pipeline
// options.
func (a *app) pipelineConfig() pipeline.Config {
	return pipeline.Config{
		Model:                       a.cfg.Models.Chat,
		EmbeddingModel:              a.cfg.Models.Embedding,
		RerankingModel:              a.cfg.Models.Reranking,
		SummaryLength:               a.cfg.Pipeline.SummaryLength,
		HistoryLimit:                a.cfg.Pipeline.HistoryLimit,
		MaxRetrievalDocs:            a.cfg.Pipeline.MaxRetrievalDocs,
		EnableQueryRewriting:        a.cfg.Pipeline.QueryRewriting,
		EnableResponseSummarization: a.cfg.Pipeline.ResponseSummarization,
		CachingEnabled:              a.cfg.Pipeline.Caching,
		Temperature:                 a.cfg.Pipeline.Temperature,
		MaxTokens:                   a.cfg.Pipeline.MaxTokens,
		SystemPrompt:                a.cfg.Pipeline.SystemPrompt,
	}
}

// components wires the collaborators for one chat turn. The tool
// runner narrows the registry to the best tool for this query, so at
// most one external lookup runs per turn.
func (a *app) components(query string) pipeline.Components {
	comps := pipeline.Components{
		Embedder:  a.embedder,
		Retriever: &pipeline.StoreRetriever{Store: a.store},
		Chatter: &pipeline.OllamaChatter{
			Client:      a.client,
			Model:       a.cfg.Models.Chat,
			Temperature: a.cfg.Pipeline.Temperature,
			MaxTokens:   a.cfg.Pipeline.MaxTokens,
		},
		Rewriter:  rewrite.NewRewriter(),
		Persister: a.store,
	}
	if a.cfg.Models.Reranking != "" {
		comps.Reranker = rerank.New(rerank.NewModelScorer(a.client, a.cfg.Models.Reranking), a.logger)
	}
	if a.cfg.Pipeline.ResponseSummarization {
		comps.Summarizer = summarize.New(a.client, a.cfg.Models.Chat, 0)
	}
	if name, ok := a.registry.SelectBestTool(query); ok {
		comps.Tools = &selectedTool{registry: a.registry, name: name}
	}
	if a.cfg.Store.ExchangeLog != "" {
		comps.Log = pipeline.NewFileExchangeLog(a.cfg.Store.ExchangeLog)
	}
	return comps
}

// selectedTool exposes a single registry tool as a ToolRunner.
type selectedTool struct {
	registry *tools.Registry
	name     string
}

func (s *selectedTool) Names() []string { return []string{s.name} }

func (s *selectedTool) Execute(ctx context.Context, name, input string) (string, error) {
	return s.registry.Execute(ctx, name, input)
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if len(args) > 0 {
		question := strings.Join(args, " ")
		history := []chat.Message{chat.New(chat.RoleUser, question)}
		_, err := a.runTurn(ctx, history, question)
		return err
	}

	fmt.Println("rag-agent interactive chat. Empty line or Ctrl-D to exit.")
	var history []chat.Message
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			break
		}

		history = append(history, chat.New(chat.RoleUser, question))
		response, err := a.runTurn(ctx, history, question)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			// Drop the failed turn so it does not pollute the history.
			history = history[:len(history)-1]
			continue
		}
		history = append(history, chat.New(chat.RoleAssistant, response))
	}
	return scanner.Err()
}

// runTurn executes one pipeline run and renders its event stream.
// Returns the accumulated assistant response.
func (a *app) runTurn(ctx context.Context, history []chat.Message, query string) (string, error) {
	p := pipeline.New(a.pipelineConfig(), a.components(query), a.logger)

	var response strings.Builder
	var runErr error
	streaming := false

	for ev := range p.Run(ctx, history) {
		switch ev.Type {
		case pipeline.EventStatus, pipeline.EventThinking:
			if verbose {
				fmt.Fprintf(os.Stderr, "  [%s] %s\n", ev.Type, ev.Message)
			}
		case pipeline.EventTokens:
			if verbose {
				fmt.Fprintf(os.Stderr, "  [tokens] ~%d\n", ev.Tokens)
			}
		case pipeline.EventDocs:
			if verbose {
				for _, doc := range ev.Docs {
					fmt.Fprintf(os.Stderr, "  [doc] %.3f %s\n", doc.Score, firstLine(doc.Text))
				}
			}
		case pipeline.EventTool:
			fmt.Printf("[%s]\n%s\n\n", ev.Tool, ev.ToolOutput)
		case pipeline.EventChat:
			streaming = true
			fmt.Print(ev.Chunk)
			response.WriteString(ev.Chunk)
		case pipeline.EventSummary:
			fmt.Printf("\n\nSummary: %s", ev.Summary)
		case pipeline.EventError:
			runErr = fmt.Errorf("%s", ev.Message)
		case pipeline.EventMetrics:
			if verbose && ev.Metrics != nil {
				fmt.Fprintf(os.Stderr, "\n  [metrics] total=%s docs=%d tokens=%d\n",
					ev.Metrics.TotalTime.Round(time.Millisecond),
					ev.Metrics.DocsRetrieved, ev.Metrics.TokensEstimated)
			}
		}
	}
	if streaming {
		fmt.Println()
	}
	return response.String(), runErr
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 80 {
		s = s[:80] + "..."
	}
	return s
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	ingestor := ingest.NewIngestor(a.store, a.logger)

	if len(args) == 1 && args[0] == "-" {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		n, err := ingestor.IngestText(ctx, "stdin", string(content))
		if err != nil {
			return fmt.Errorf("ingestion failed: %w", err)
		}
		fmt.Printf("Ingested %d section(s) from stdin\n", n)
		return nil
	}

	fmt.Printf("Ingesting %d file(s)...\n", len(args))
	result, err := ingestor.IngestFiles(ctx, args)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Println()
	fmt.Println("Ingestion complete")
	fmt.Printf("  Files: %d/%d\n", result.SuccessfulFiles, result.TotalFiles)
	fmt.Printf("  Sections: %d\n", result.TotalSections)
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Millisecond))

	if len(result.Failed) > 0 {
		fmt.Println()
		fmt.Println("Failed files:")
		for _, failed := range result.Failed {
			fmt.Printf("  - %s: %s\n", failed.Path, failed.Reason)
		}
	}
	return nil
}

func runModels(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	models, err := a.client.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	if len(models) == 0 {
		fmt.Println("No models installed. Pull one with: ollama pull llama3.2")
		return nil
	}

	for _, m := range models {
		fmt.Printf("%-40s %10s  %-9s %s\n", m.Name, m.Size, m.Performance, strings.Join(m.Capabilities, ", "))
		if m.Description != "" {
			fmt.Printf("  %s\n", m.Description)
		}
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	stats := a.store.Stats()
	fmt.Println("Vector store:")
	fmt.Printf("  Documents: %d\n", stats.DocumentCount)
	fmt.Printf("  Dimension: %d\n", stats.Dimension)
	fmt.Printf("  Search cache entries: %d\n", stats.CacheEntries)
	if !stats.Created.IsZero() {
		fmt.Printf("  Created: %s\n", stats.Created.Format(time.RFC3339))
		fmt.Printf("  Last modified: %s\n", stats.LastModified.Format(time.RFC3339))
	}

	embStats := a.embedder.Stats()
	fmt.Println("Embedding cache:")
	fmt.Printf("  Hits: %d\n", embStats.CacheHits)
	fmt.Printf("  Misses: %d\n", embStats.CacheMisses)
	fmt.Printf("  Entries: %d\n", embStats.CacheEntries)
	if embStats.FallbackCount > 0 {
		fmt.Printf("  Fallback embeddings: %d\n", embStats.FallbackCount)
	}
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	before := a.store.Stats().DocumentCount
	if err := a.store.ClearAll(context.Background()); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	fmt.Printf("Cleared %d document(s)\n", before)
	return nil
}
