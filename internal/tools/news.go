package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// defaultNewsURL is the Algolia Hacker News search API, which needs no
// API key.
const defaultNewsURL = "https://hn.algolia.com/api/v1/search"

// News searches recent stories via the Hacker News Algolia API.
type News struct {
	baseURL    string
	httpClient *http.Client
}

// NewNews creates the tool. Empty baseURL selects the public API.
func NewNews(baseURL string, httpClient *http.Client) *News {
	if baseURL == "" {
		baseURL = defaultNewsURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &News{baseURL: baseURL, httpClient: httpClient}
}

func (n *News) Name() string        { return NameNews }
func (n *News) Description() string { return "Hacker News story search" }

// Search queries for matching stories and formats the top hits.
func (n *News) Search(ctx context.Context, query string) (string, error) {
	params := url.Values{
		"query":       {query},
		"tags":        {"story"},
		"hitsPerPage": {"3"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		n.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("news request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("news request: %s", resp.Status)
	}

	var out struct {
		Hits []struct {
			Title     string `json:"title"`
			URL       string `json:"url"`
			Points    int    `json:"points"`
			CreatedAt string `json:"created_at"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode news response: %w", err)
	}

	if len(out.Hits) == 0 {
		return "No news stories found.", nil
	}

	var lines []string
	for _, hit := range out.Hits {
		line := fmt.Sprintf("%s (%d points)", hit.Title, hit.Points)
		if hit.URL != "" {
			line += " " + hit.URL
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}
