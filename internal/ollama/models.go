package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ModelInfo describes one installed model as reported by /api/tags.
type ModelInfo struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Size         string   `json:"size"` // human-readable, formatted from bytes
	Performance  string   `json:"performance,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// tagEntry matches one element of the /api/tags response.
type tagEntry struct {
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	Details struct {
		Family            string   `json:"family"`
		Families          []string `json:"families"`
		ParameterSize     string   `json:"parameter_size"`
		QuantizationLevel string   `json:"quantization_level"`
	} `json:"details"`
}

// ListModels returns the models installed on the server.
// The endpoint has shipped both {"models":[...]} and a bare array over
// time; both shapes are accepted.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list models: %s", readErrorBody(resp))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read models response: %w", err)
	}

	var entries []tagEntry
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("decode models response: %w", err)
		}
	} else {
		var wrapped struct {
			Models []tagEntry `json:"models"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("decode models response: %w", err)
		}
		entries = wrapped.Models
	}

	models := make([]ModelInfo, 0, len(entries))
	for _, e := range entries {
		models = append(models, ModelInfo{
			ID:           e.Name,
			Name:         e.Name,
			Description:  describeModel(e),
			Size:         FormatBytes(e.Size),
			Performance:  performanceClass(e.Size),
			Capabilities: e.Details.Families,
		})
	}
	return models, nil
}

// describeModel builds a short description from model details.
func describeModel(e tagEntry) string {
	if e.Details.ParameterSize == "" {
		return e.Details.Family
	}
	if e.Details.Family == "" {
		return e.Details.ParameterSize
	}
	return fmt.Sprintf("%s, %s parameters (%s)", e.Details.Family, e.Details.ParameterSize, e.Details.QuantizationLevel)
}

// performanceClass gives a rough speed hint from the model's on-disk
// size. Smaller models answer faster on the same hardware.
func performanceClass(size int64) string {
	const gb = 1 << 30
	switch {
	case size < 3*gb:
		return "fast"
	case size < 10*gb:
		return "balanced"
	default:
		return "quality"
	}
}

// FormatBytes renders a byte count in a human-readable unit.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
