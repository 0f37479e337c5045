package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// defaultWikipediaURL is the MediaWiki action API.
const defaultWikipediaURL = "https://en.wikipedia.org/w/api.php"

// Wikipedia looks up encyclopedic summaries via the opensearch API.
type Wikipedia struct {
	baseURL    string
	httpClient *http.Client
}

// NewWikipedia creates the tool. Empty baseURL selects the English
// Wikipedia API.
func NewWikipedia(baseURL string, httpClient *http.Client) *Wikipedia {
	if baseURL == "" {
		baseURL = defaultWikipediaURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Wikipedia{baseURL: baseURL, httpClient: httpClient}
}

func (w *Wikipedia) Name() string        { return NameWikipedia }
func (w *Wikipedia) Description() string { return "Wikipedia article lookup" }

// Search runs an opensearch query and formats the top matches.
// The opensearch response is a four-element array:
// [query, [titles], [descriptions], [urls]].
func (w *Wikipedia) Search(ctx context.Context, query string) (string, error) {
	params := url.Values{
		"action": {"opensearch"},
		"search": {query},
		"limit":  {"3"},
		"format": {"json"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		w.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "rag-agent/1.0")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("wikipedia request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("wikipedia request: %s", resp.Status)
	}

	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", fmt.Errorf("decode wikipedia response: %w", err)
	}
	if len(raw) < 4 {
		return "", fmt.Errorf("unexpected wikipedia response shape")
	}

	var titles, descriptions, urls []string
	if err := json.Unmarshal(raw[1], &titles); err != nil {
		return "", fmt.Errorf("decode wikipedia titles: %w", err)
	}
	_ = json.Unmarshal(raw[2], &descriptions)
	_ = json.Unmarshal(raw[3], &urls)

	if len(titles) == 0 {
		return "No Wikipedia articles found.", nil
	}

	var lines []string
	for i, title := range titles {
		line := title
		if i < len(descriptions) && descriptions[i] != "" {
			line += ": " + descriptions[i]
		}
		if i < len(urls) && urls[i] != "" {
			line += " (" + urls[i] + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}
