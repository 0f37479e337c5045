package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// defaultDuckDuckGoURL is the HTML (non-JS) result page, which is the
// only variant that can be scraped without a browser.
const defaultDuckDuckGoURL = "https://html.duckduckgo.com/html/"

// maxWebResults bounds how many results go into the tool output.
const maxWebResults = 3

// WebSearch queries DuckDuckGo's HTML endpoint and scrapes the result
// list.
type WebSearch struct {
	baseURL    string
	httpClient *http.Client
}

// NewWebSearch creates the tool. Empty baseURL selects the public
// DuckDuckGo HTML endpoint.
func NewWebSearch(baseURL string, httpClient *http.Client) *WebSearch {
	if baseURL == "" {
		baseURL = defaultDuckDuckGoURL
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &WebSearch{baseURL: baseURL, httpClient: httpClient}
}

func (w *WebSearch) Name() string        { return NameWebSearch }
func (w *WebSearch) Description() string { return "DuckDuckGo web search" }

// Search fetches the result page and extracts title/snippet pairs.
func (w *WebSearch) Search(ctx context.Context, query string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		w.baseURL+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "rag-agent/1.0")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("web search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("web search request: %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse search results: %w", err)
	}

	var lines []string
	doc.Find(".result").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		title := strings.TrimSpace(sel.Find(".result__title").Text())
		snippet := strings.TrimSpace(sel.Find(".result__snippet").Text())
		if title == "" {
			return true
		}
		lines = append(lines, fmt.Sprintf("%d. %s - %s", len(lines)+1, title, snippet))
		return len(lines) < maxWebResults
	})

	if len(lines) == 0 {
		return "No web results found.", nil
	}
	return strings.Join(lines, "\n"), nil
}
