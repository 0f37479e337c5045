package storage

import "errors"

var (
	ErrEmptyQuery    = errors.New("search query is empty")
	ErrCorruptRecord = errors.New("stored vector record is corrupt")
	ErrEmbedding     = errors.New("embedding generation failed")
)
