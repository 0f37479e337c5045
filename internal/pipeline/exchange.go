package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Exchange is one completed question/answer pair written to the
// exchange log after a run finishes.
type Exchange struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	DocsUsed  int       `json:"docsUsed"`
	Model     string    `json:"model"`
}

// ExchangeLog appends completed exchanges somewhere durable.
// Appending is best-effort from the pipeline's point of view: failures
// are logged, never surfaced to the consumer.
type ExchangeLog interface {
	Append(ex Exchange) error
}

// FileExchangeLog appends exchanges as JSON lines to a file.
type FileExchangeLog struct {
	mu   sync.Mutex
	path string
}

// NewFileExchangeLog creates a JSONL exchange log at path.
func NewFileExchangeLog(path string) *FileExchangeLog {
	return &FileExchangeLog{path: path}
}

// Append writes one exchange as a single JSON line.
func (l *FileExchangeLog) Append(ex Exchange) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open exchange log: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("encode exchange: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write exchange: %w", err)
	}
	return nil
}
