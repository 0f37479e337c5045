package storage

import "time"

// Document is a unit of retrievable text. Once added, the store owns it
// exclusively; documents are never mutated, only superseded or deleted.
type Document struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SearchResult is a document plus its similarity score. Produced fresh
// per search call, never persisted.
type SearchResult struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Score    float64        `json:"score"`
}

// Stats describes the current state of the store.
type Stats struct {
	DocumentCount int       `json:"documentCount"`
	Dimension     int       `json:"dimension"`
	CacheEntries  int       `json:"cacheEntries"`
	Version       int       `json:"version"`
	Created       time.Time `json:"created"`
	LastModified  time.Time `json:"lastModified"`
}

// record is the single durable value stored under RecordKey.
// Documents and embeddings are index-aligned: record.Embeddings[i] is
// the vector for record.Documents[i].
type record struct {
	Documents  []Document     `json:"documents"`
	Embeddings [][]float32    `json:"embeddings"`
	Metadata   recordMetadata `json:"metadata"`
}

type recordMetadata struct {
	Version      int       `json:"version"`
	Created      time.Time `json:"created"`
	LastModified time.Time `json:"lastModified"`
}

// RecordKey is the badger key holding the full serialized store.
const RecordKey = "vector-data"

// RecordVersion is the current serialization version.
const RecordVersion = 1
