package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/classgrade/internal/research"
)

const braveEndpoint = "https://api.search.brave.com/res/v1/web/search"

// braveKeyGate serializes requests per API key and holds the earliest time
// the next request may fire. Brave's free tier allows one request per second.
type braveKeyGate struct {
	mu      sync.Mutex
	readyAt time.Time
}

var (
	braveGatesMu sync.Mutex
	braveGates   = map[string]*braveKeyGate{}
)

func braveGateFor(apiKey string) *braveKeyGate {
	braveGatesMu.Lock()
	defer braveGatesMu.Unlock()
	g, ok := braveGates[apiKey]
	if !ok {
		g = &braveKeyGate{}
		braveGates[apiKey] = g
	}
	return g
}

// waitAndLock blocks until the caller may issue a request and returns with
// the gate locked. The caller must call unlock after the response arrives.
func (g *braveKeyGate) waitAndLock(ctx context.Context) error {
	g.mu.Lock()
	if wait := time.Until(g.readyAt); wait > 0 {
		g.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		g.mu.Lock()
	}
	return nil
}

func (g *braveKeyGate) unlock(delay time.Duration) {
	g.readyAt = time.Now().Add(delay)
	g.mu.Unlock()
}

// Brave uses the Brave Search API. An API key is sent via X-Subscription-Token.
type Brave struct {
	APIKey   string
	Endpoint string
	client   *http.Client
}

// NewBrave constructs a Brave search provider.
func NewBrave(apiKey string) *Brave {
	return NewBraveWithClient(apiKey, &http.Client{Timeout: 10 * time.Second})
}

// NewBraveWithClient constructs a Brave search provider using the supplied HTTP client.
func NewBraveWithClient(apiKey string, client *http.Client) *Brave {
	return &Brave{APIKey: apiKey, Endpoint: braveEndpoint, client: client}
}

// Search executes a Brave query.
func (b *Brave) Search(ctx context.Context, query string) iter.Seq2[research.Snippet, error] {
	return func(yield func(research.Snippet, error) bool) {
		results, err := b.search(ctx, query)
		sequence(results, err)(yield)
	}
}

func (b *Brave) search(ctx context.Context, query string) ([]research.Snippet, error) {
	if strings.TrimSpace(b.APIKey) == "" {
		return nil, errors.New("brave: API key is missing")
	}
	endpoint := b.Endpoint + "?q=" + url.QueryEscape(query) + "&count=" + strconv.Itoa(MaxResults)

	gate := braveGateFor(b.APIKey)
	if err := gate.waitAndLock(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		gate.unlock(0)
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.APIKey)

	resp, err := b.client.Do(req)
	if err != nil {
		gate.unlock(time.Second)
		return nil, fmt.Errorf("brave: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		gate.unlock(braveRetryDelay(resp.Header))
		return nil, errors.New("brave: rate limited")
	}
	gate.unlock(braveNextDelay(resp.Header))

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave http %d", resp.StatusCode)
	}

	var payload struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("brave: decode response: %w", err)
	}

	results := make([]research.Snippet, 0, len(payload.Web.Results))
	for _, r := range payload.Web.Results {
		results = append(results, research.Snippet{Title: r.Title, Text: r.Description, Source: r.URL})
		if len(results) >= MaxResults {
			break
		}
	}
	return results, nil
}

// braveRetryDelay reads the smallest reset time from X-RateLimit-Reset,
// falling back to one second.
func braveRetryDelay(h http.Header) time.Duration {
	minReset := -1
	for _, part := range strings.Split(h.Get("X-RateLimit-Reset"), ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			continue
		}
		if minReset < 0 || n < minReset {
			minReset = n
		}
	}
	if minReset <= 0 {
		return time.Second
	}
	return time.Duration(minReset) * time.Second
}

// braveNextDelay holds the gate for a second when the per-second bucket in
// X-RateLimit-Remaining is exhausted or missing.
func braveNextDelay(h http.Header) time.Duration {
	raw := h.Get("X-RateLimit-Remaining")
	if raw == "" {
		return time.Second
	}
	perSecond, err := strconv.Atoi(strings.TrimSpace(strings.SplitN(raw, ",", 2)[0]))
	if err != nil || perSecond <= 0 {
		return time.Second
	}
	return 0
}
