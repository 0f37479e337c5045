// Package storage implements the vector store backing retrieval: an
// in-memory document/embedding table scored by a linear dot-product
// scan, persisted as a single record in BadgerDB.
//
// The linear scan is a deliberate algorithmic choice: at local-use
// document counts (up to a few thousand) it beats the complexity of a
// real index. See DESIGN.md for the scaling note.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultTopK is the result count when a search does not specify one.
	DefaultTopK = 5

	// SearchCacheTTL bounds how long cached search results stay valid.
	SearchCacheTTL = 5 * time.Minute

	// DefaultSearchCacheSize bounds the search-result cache.
	DefaultSearchCacheSize = 128
)

// Embedder provides query and document embeddings. embedding.Service
// satisfies it; Model is part of the interface because search cache
// keys include the embedding model.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Options configures a Store.
type Options struct {
	// Path is the badger directory. Empty selects an in-memory database
	// (used by tests and ephemeral sessions).
	Path string

	// TopK is the default result count for Search. Zero means DefaultTopK.
	TopK int

	// CacheSize bounds the search-result cache. Zero means
	// DefaultSearchCacheSize.
	CacheSize int

	// DisableCache bypasses the search-result cache entirely.
	DisableCache bool

	Logger *slog.Logger
}

// Store owns the document and embedding arrays and their durable
// serialization. documents[i] and embeddings[i] always refer to the
// same logical item; adds append to both and persist before returning.
type Store struct {
	mu       sync.RWMutex
	db       *badger.DB
	embedder Embedder
	logger   *slog.Logger

	docs       []Document
	embeddings [][]float32
	meta       recordMetadata

	cache        *expirable.LRU[string, []SearchResult]
	cacheEnabled bool
	topK         int
}

// NewStore opens (or creates) the store at opts.Path and loads any
// previously persisted record into memory.
func NewStore(embedder Embedder, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	cacheSize := opts.CacheSize
	if cacheSize <= 0 {
		cacheSize = DefaultSearchCacheSize
	}

	badgerOpts := badger.DefaultOptions(opts.Path).WithLogger(nil)
	if opts.Path == "" {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open vector database: %w", err)
	}

	s := &Store{
		db:           db,
		embedder:     embedder,
		logger:       logger,
		cache:        expirable.NewLRU[string, []SearchResult](cacheSize, nil, SearchCacheTTL),
		cacheEnabled: !opts.DisableCache,
		topK:         topK,
		meta: recordMetadata{
			Version: RecordVersion,
			Created: time.Now().UTC(),
		},
	}

	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("vector store loaded", "documents", len(s.docs), "path", opts.Path)
	return s, nil
}

// load reads the persisted record, if any, into memory.
func (s *Store) load() error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(RecordKey))
		if err == badger.ErrKeyNotFound {
			return nil // fresh store
		}
		if err != nil {
			return fmt.Errorf("read vector record: %w", err)
		}
		return item.Value(func(val []byte) error {
			var rec record
			if err := json.Unmarshal(val, &rec); err != nil {
				return fmt.Errorf("%w: %v", ErrCorruptRecord, err)
			}
			if len(rec.Documents) != len(rec.Embeddings) {
				return fmt.Errorf("%w: %d documents vs %d embeddings",
					ErrCorruptRecord, len(rec.Documents), len(rec.Embeddings))
			}
			s.docs = rec.Documents
			s.embeddings = rec.Embeddings
			s.meta = rec.Metadata
			return nil
		})
	})
}

// persist writes the full record in one transaction. Callers must hold
// the write lock.
func (s *Store) persist() error {
	s.meta.Version = RecordVersion
	s.meta.LastModified = time.Now().UTC()
	payload, err := json.Marshal(record{
		Documents:  s.docs,
		Embeddings: s.embeddings,
		Metadata:   s.meta,
	})
	if err != nil {
		return fmt.Errorf("encode vector record: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(RecordKey), payload)
	}); err != nil {
		return fmt.Errorf("write vector record: %w", err)
	}
	return nil
}

// AddConversation embeds and stores a group of documents.
// The in-memory append and the durable write both complete before the
// call returns, so readers never observe a partial add. Documents with
// no metadata get a group tag so conversations stay traceable.
func (s *Store) AddConversation(ctx context.Context, groupID string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range docs {
		doc := docs[i]
		if doc.Metadata == nil {
			doc.Metadata = map[string]any{}
		}
		if _, ok := doc.Metadata["group"]; !ok && groupID != "" {
			doc.Metadata["group"] = groupID
		}
		s.docs = append(s.docs, doc)
		s.embeddings = append(s.embeddings, vectors[i])
	}

	if err := s.persist(); err != nil {
		// Roll back the in-memory append so memory and disk stay aligned.
		s.docs = s.docs[:len(s.docs)-len(docs)]
		s.embeddings = s.embeddings[:len(s.embeddings)-len(docs)]
		return err
	}

	s.cache.Purge()
	s.logger.Debug("documents added", "group", groupID, "count", len(docs), "total", len(s.docs))
	return nil
}

// SearchOptions narrows a search.
type SearchOptions struct {
	// TopK overrides the store default when > 0.
	TopK int

	// Filters are metadata equality constraints; a document must match
	// all of them.
	Filters map[string]string
}

// Search scores every stored document against the query embedding and
// returns the top K results, highest score first. Results are cached
// for SearchCacheTTL keyed by query, filters and embedding model.
func (s *Store) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = s.topK
	}

	key := s.cacheKey(query, topK, opts.Filters)
	if s.cacheEnabled {
		if cached, ok := s.cache.Get(key); ok {
			s.logger.Debug("search cache hit", "query", query)
			return cloneResults(cached), nil
		}
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	s.mu.RLock()
	results := make([]SearchResult, 0, len(s.docs))
	for i, doc := range s.docs {
		if !matchesFilters(doc, opts.Filters) {
			continue
		}
		results = append(results, SearchResult{
			ID:       doc.ID,
			Text:     doc.Text,
			Metadata: doc.Metadata,
			Score:    dotProduct(queryVec, s.embeddings[i]),
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}

	if s.cacheEnabled {
		s.cache.Add(key, cloneResults(results))
	}
	return results, nil
}

// ClearAll removes every document and the durable record.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(RecordKey))
	}); err != nil {
		return fmt.Errorf("clear vector record: %w", err)
	}

	s.docs = nil
	s.embeddings = nil
	s.meta = recordMetadata{Version: RecordVersion, Created: time.Now().UTC()}
	s.cache.Purge()
	return nil
}

// Stats returns a snapshot of the store.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dimension := 0
	if len(s.embeddings) > 0 {
		dimension = len(s.embeddings[0])
	}
	return Stats{
		DocumentCount: len(s.docs),
		Dimension:     dimension,
		CacheEntries:  s.cache.Len(),
		Version:       s.meta.Version,
		Created:       s.meta.Created,
		LastModified:  s.meta.LastModified,
	}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// cacheKey builds a composite cache key from query, limit, filters and
// embedding model. Filters are sorted so key construction is stable.
func (s *Store) cacheKey(query string, topK int, filters map[string]string) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "%s|%d|%s", query, topK, s.embedder.Model())
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%s", k, filters[k])
	}
	return b.String()
}

func matchesFilters(doc Document, filters map[string]string) bool {
	for k, want := range filters {
		got, ok := doc.Metadata[k]
		if !ok || fmt.Sprint(got) != want {
			return false
		}
	}
	return true
}

// dotProduct truncates to the shorter vector so a dimension mismatch
// between embedding models cannot index out of range.
func dotProduct(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func cloneResults(results []SearchResult) []SearchResult {
	out := make([]SearchResult, len(results))
	copy(out, results)
	return out
}
