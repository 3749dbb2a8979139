package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/classgrade/internal/research"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, s research.Searcher, query string) ([]research.Snippet, error) {
	t.Helper()
	var out []research.Snippet
	for snip, err := range s.Search(context.Background(), query) {
		if err != nil {
			return nil, err
		}
		out = append(out, snip)
	}
	return out, nil
}

func TestTavilySearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "CSE 2331 reviews", body["query"])
		assert.Equal(t, "tv-key", body["api_key"])
		assert.Equal(t, "advanced", body["search_depth"])

		results := make([]map[string]string, 0, 7)
		for i := range 7 {
			results = append(results, map[string]string{
				"title":   fmt.Sprintf("r%d", i),
				"url":     fmt.Sprintf("https://example.com/%d", i),
				"content": "content",
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"results": results})
	}))
	defer srv.Close()

	tv := NewTavilyWithClient("tv-key", "advanced", srv.Client())
	tv.Endpoint = srv.URL

	got, err := drain(t, tv, "CSE 2331 reviews")
	require.NoError(t, err)
	require.Len(t, got, MaxResults)
	assert.Equal(t, "https://example.com/0", got[0].Source)
	assert.Equal(t, "content", got[0].Text)
}

func TestTavilyBacksOffOn429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"title":"t","url":"u","content":"c"}]}`))
	}))
	defer srv.Close()

	tv := NewTavilyWithClient("k", "", srv.Client())
	tv.Endpoint = srv.URL

	got, err := drain(t, tv, "q")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTavilyErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tv := NewTavilyWithClient("k", "", srv.Client())
	tv.Endpoint = srv.URL
	_, err := drain(t, tv, "q")
	require.ErrorContains(t, err, "tavily http 502")

	_, err = drain(t, NewTavily("", ""), "q")
	require.ErrorContains(t, err, "API key is missing")
}

func TestBraveSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "br-key", r.Header.Get("X-Subscription-Token"))
		assert.Equal(t, "CSE 2331", r.URL.Query().Get("q"))
		w.Header().Set("X-RateLimit-Remaining", "5, 1000")
		_, _ = w.Write([]byte(`{"web":{"results":[{"title":"Catalog","url":"https://osu.edu","description":"Design/analysis of algorithms"}]}}`))
	}))
	defer srv.Close()

	b := NewBraveWithClient("br-key", srv.Client())
	b.Endpoint = srv.URL

	got, err := drain(t, b, "CSE 2331")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, research.Snippet{Title: "Catalog", Text: "Design/analysis of algorithms", Source: "https://osu.edu"}, got[0])
}

func TestBraveRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	b := NewBraveWithClient("br-limited", srv.Client())
	b.Endpoint = srv.URL

	_, err := drain(t, b, "q")
	require.ErrorContains(t, err, "rate limited")
}

func TestBraveDelays(t *testing.T) {
	h := http.Header{}
	assert.Equal(t, time.Second, braveRetryDelay(h))
	h.Set("X-RateLimit-Reset", "3, 1419704")
	assert.Equal(t, 3*time.Second, braveRetryDelay(h))

	h = http.Header{}
	assert.Equal(t, time.Second, braveNextDelay(h))
	h.Set("X-RateLimit-Remaining", "0, 100")
	assert.Equal(t, time.Second, braveNextDelay(h))
	h.Set("X-RateLimit-Remaining", "1, 100")
	assert.Equal(t, time.Duration(0), braveNextDelay(h))
}
