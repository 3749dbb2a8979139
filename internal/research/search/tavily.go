package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/classgrade/internal/research"
)

const tavilyEndpoint = "https://api.tavily.com/search"

// maxTavilyBackoff bounds the total 429 backoff so the agent's own retry
// policy stays in charge of longer outages.
const maxTavilyBackoff = 4 * time.Second

// Tavily calls the Tavily search API.
type Tavily struct {
	APIKey string
	// Depth controls Tavily's search_depth parameter (basic or advanced).
	Depth    string
	Endpoint string
	client   *http.Client
}

// NewTavily constructs a Tavily search provider.
func NewTavily(apiKey, depth string) *Tavily {
	return NewTavilyWithClient(apiKey, depth, &http.Client{Timeout: 10 * time.Second})
}

// NewTavilyWithClient constructs a Tavily search provider using the supplied HTTP client.
func NewTavilyWithClient(apiKey, depth string, client *http.Client) *Tavily {
	if depth == "" {
		depth = "basic"
	}
	return &Tavily{APIKey: apiKey, Depth: depth, Endpoint: tavilyEndpoint, client: client}
}

// Search posts a query to Tavily.
func (t *Tavily) Search(ctx context.Context, query string) iter.Seq2[research.Snippet, error] {
	return func(yield func(research.Snippet, error) bool) {
		results, err := t.search(ctx, query)
		sequence(results, err)(yield)
	}
}

func (t *Tavily) search(ctx context.Context, query string) ([]research.Snippet, error) {
	if strings.TrimSpace(t.APIKey) == "" {
		return nil, errors.New("tavily: API key is missing")
	}

	payload, err := json.Marshal(map[string]any{
		"query":        query,
		"api_key":      t.APIKey,
		"search_depth": t.Depth,
		"max_results":  MaxResults,
	})
	if err != nil {
		return nil, err
	}

	var resp *http.Response
	delay := 500 * time.Millisecond
	waited := time.Duration(0)
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err = t.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("tavily: %w", err)
		}
		if resp.StatusCode != http.StatusTooManyRequests || waited >= maxTavilyBackoff {
			break
		}
		_ = resp.Body.Close()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		waited += delay
		delay *= 2
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily http %d", resp.StatusCode)
	}

	var response struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("tavily: decode response: %w", err)
	}

	results := make([]research.Snippet, 0, len(response.Results))
	for _, r := range response.Results {
		results = append(results, research.Snippet{Title: r.Title, Text: r.Content, Source: r.URL})
		if len(results) >= MaxResults {
			break
		}
	}
	return results, nil
}
