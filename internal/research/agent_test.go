package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/classgrade/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validAnswer = `{"score": 73, "creditHours": 3, "summary": "Rigorous algorithms course.", "timeLoadHours": 6, "rigor": 75, "tags": ["algorithms"], "confidence": 0.75}`

// scriptedProvider replays completions in order and records every request.
type scriptedProvider struct {
	mu       sync.Mutex
	script   []func(req CompletionRequest) (*Completion, error)
	requests []CompletionRequest
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	p.mu.Lock()
	idx := len(p.requests)
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if idx >= len(p.script) {
		return nil, fmt.Errorf("scripted provider exhausted at call %d", idx)
	}
	return p.script[idx](req)
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func answer(text string) func(CompletionRequest) (*Completion, error) {
	return func(CompletionRequest) (*Completion, error) {
		return &Completion{Content: text, Usage: Usage{PromptTokens: 10, CompletionTokens: 5}}, nil
	}
}

func searchCalls(queries ...string) func(CompletionRequest) (*Completion, error) {
	return func(CompletionRequest) (*Completion, error) {
		c := &Completion{}
		for i, q := range queries {
			args, _ := json.Marshal(map[string]string{"query": q})
			c.ToolCalls = append(c.ToolCalls, ToolCall{ID: fmt.Sprintf("call_%d", i), Name: SearchToolName, Arguments: args})
		}
		return c, nil
	}
}

// fakeSearch returns canned snippets and can fail a number of times first.
type fakeSearch struct {
	failures atomic.Int32
	calls    atomic.Int32
	results  []Snippet
	err      error
}

func (f *fakeSearch) search(_ context.Context, _ string) ([]Snippet, error) {
	f.calls.Add(1)
	if f.failures.Load() > 0 {
		f.failures.Add(-1)
		return nil, errors.New("search backend 503")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func fastPolicy() Policy {
	return Policy{
		MaxRounds:           4,
		Timeout:             2 * time.Second,
		SearchRetries:       2,
		SearchBackoff:       time.Millisecond,
		MaxSearchesPerRound: 3,
	}
}

type recorder struct {
	mu       sync.Mutex
	sessions []*Session
}

func (r *recorder) Record(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, s)
}

func TestResearchSearchThenAnswer(t *testing.T) {
	provider := &scriptedProvider{script: []func(CompletionRequest) (*Completion, error){
		searchCalls("CSE 2331 OSU syllabus", "CSE 2331 reddit"),
		answer("```json\n" + validAnswer + "\n```"),
	}}
	search := &fakeSearch{results: []Snippet{{Title: "Syllabus", Text: "Design/analysis of algorithms", Source: "https://cse.osu.edu"}}}
	rec := &recorder{}

	agent := NewAgent(provider, SearcherFunc(search.search), fastPolicy(), WithTranscripts(rec))
	report, err := agent.Research(context.Background(), Request{CourseID: "CSE2331"})
	require.NoError(t, err)

	assert.Equal(t, 73, report.Assessment.Score)
	assert.Equal(t, domain.DefaultPace, report.Assessment.Pace)
	assert.Equal(t, int32(2), search.calls.Load())
	assert.Equal(t, 2, report.Session.Rounds)
	assert.Len(t, report.Session.ToolInvocations, 2)
	assert.Equal(t, Usage{PromptTokens: 10, CompletionTokens: 5}, report.Session.Usage)

	// The second request carries the tool results in call order.
	require.Equal(t, 2, provider.calls())
	second := provider.requests[1]
	require.Len(t, second.Messages, 4)
	assert.Equal(t, "Evaluate the class CSE2331", second.Messages[0].Content)
	assert.Equal(t, RoleTool, second.Messages[2].Role)
	assert.Equal(t, "call_0", second.Messages[2].ToolCallID)
	assert.Contains(t, second.Messages[2].Content, "https://cse.osu.edu")
	assert.Equal(t, "call_1", second.Messages[3].ToolCallID)

	require.Len(t, rec.sessions, 1)
	assert.Empty(t, rec.sessions[0].Error)
}

func TestResearchRoundLimit(t *testing.T) {
	provider := &scriptedProvider{script: []func(CompletionRequest) (*Completion, error){
		searchCalls("q1"), searchCalls("q2"), searchCalls("q3"), searchCalls("q4"),
	}}
	search := &fakeSearch{}
	rec := &recorder{}

	agent := NewAgent(provider, SearcherFunc(search.search), fastPolicy(), WithTranscripts(rec))
	_, err := agent.Research(context.Background(), Request{CourseID: "XYZ999"})
	require.ErrorIs(t, err, ErrResearchIncomplete)

	assert.Equal(t, 4, provider.calls())
	last := provider.requests[3]
	assert.Nil(t, last.Tools, "final round must withhold tools")
	assert.Equal(t, finalAnswerNudge, last.Messages[len(last.Messages)-1].Content)
	assert.Equal(t, int32(3), search.calls.Load())

	require.Len(t, rec.sessions, 1)
	assert.NotEmpty(t, rec.sessions[0].Error)
}

func TestResearchLowConfidenceWithoutEvidence(t *testing.T) {
	provider := &scriptedProvider{script: []func(CompletionRequest) (*Completion, error){
		searchCalls("XYZ999 course"),
		answer(`{"score": 50, "creditHours": 3, "summary": "No reliable information found.", "timeLoadHours": 3, "confidence": 0.2}`),
	}}
	search := &fakeSearch{}

	agent := NewAgent(provider, SearcherFunc(search.search), fastPolicy())
	report, err := agent.Research(context.Background(), Request{CourseID: "XYZ999"})
	require.NoError(t, err)
	assert.LessOrEqual(t, report.Assessment.Confidence, 0.4)
	assert.Contains(t, provider.requests[1].Messages[2].Content, "No results found")
}

func TestResearchSchemaValidationFailed(t *testing.T) {
	cases := map[string]string{
		"score zero":       `{"score": 0, "creditHours": 3, "summary": "x", "timeLoadHours": 2}`,
		"score 101":        `{"score": 101, "creditHours": 3, "summary": "x", "timeLoadHours": 2}`,
		"missing summary":  `{"score": 50, "creditHours": 3, "timeLoadHours": 2}`,
		"time load high":   `{"score": 50, "creditHours": 3, "summary": "x", "timeLoadHours": 9}`,
		"not json":         `I could not find anything about this course.`,
		"fractional score": `{"score": 50.5, "creditHours": 3, "summary": "x", "timeLoadHours": 2}`,
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			provider := &scriptedProvider{script: []func(CompletionRequest) (*Completion, error){answer(text)}}
			agent := NewAgent(provider, SearcherFunc((&fakeSearch{}).search), fastPolicy())

			_, err := agent.Research(context.Background(), Request{CourseID: "CSE2331"})
			require.ErrorIs(t, err, ErrSchemaValidation)
			assert.Equal(t, 1, provider.calls(), "schema failures are not retried")
		})
	}
}

func TestResearchSearchRetriesThenSucceeds(t *testing.T) {
	provider := &scriptedProvider{script: []func(CompletionRequest) (*Completion, error){
		searchCalls("q"),
		answer(validAnswer),
	}}
	search := &fakeSearch{results: []Snippet{{Text: "t", Source: "s"}}}
	search.failures.Store(2)

	agent := NewAgent(provider, SearcherFunc(search.search), fastPolicy())
	report, err := agent.Research(context.Background(), Request{CourseID: "CSE2331"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), search.calls.Load())
	assert.Equal(t, 3, report.Session.ToolInvocations[0].Attempts)
}

func TestResearchCapabilityUnavailableEscalates(t *testing.T) {
	provider := &scriptedProvider{script: []func(CompletionRequest) (*Completion, error){
		searchCalls("q"),
		answer(validAnswer),
	}}
	search := &fakeSearch{err: errors.New("connection refused")}

	agent := NewAgent(provider, SearcherFunc(search.search), fastPolicy())
	_, err := agent.Research(context.Background(), Request{CourseID: "CSE2331"})
	require.ErrorIs(t, err, ErrResearchIncomplete)
	require.ErrorIs(t, err, ErrCapabilityUnavailable)
	assert.Equal(t, int32(3), search.calls.Load(), "one attempt plus two retries")
	assert.Equal(t, 1, provider.calls())
}

func TestResearchTimeout(t *testing.T) {
	provider := &scriptedProvider{script: []func(CompletionRequest) (*Completion, error){
		searchCalls("slow"),
	}}
	slow := func(ctx context.Context, _ string) ([]Snippet, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	policy := fastPolicy()
	policy.Timeout = 50 * time.Millisecond

	agent := NewAgent(provider, SearcherFunc(slow), policy)
	start := time.Now()
	_, err := agent.Research(context.Background(), Request{CourseID: "CSE2331"})
	require.ErrorIs(t, err, ErrResearchIncomplete)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestResearchToolCallHandling(t *testing.T) {
	provider := &scriptedProvider{script: []func(CompletionRequest) (*Completion, error){
		func(CompletionRequest) (*Completion, error) {
			return &Completion{ToolCalls: []ToolCall{
				{ID: "a", Name: "browse", Arguments: json.RawMessage(`{"url":"x"}`)},
				{ID: "b", Name: SearchToolName, Arguments: json.RawMessage(`{"query":""}`)},
				{ID: "c", Name: SearchToolName, Arguments: json.RawMessage(`{"query":"ok"}`)},
				{ID: "d", Name: SearchToolName, Arguments: json.RawMessage(`{"query":"over limit"}`)},
			}}, nil
		},
		answer(validAnswer),
	}}
	search := &fakeSearch{results: []Snippet{{Text: "t", Source: "s"}}}

	agent := NewAgent(provider, SearcherFunc(search.search), fastPolicy())
	_, err := agent.Research(context.Background(), Request{CourseID: "CSE2331"})
	require.NoError(t, err)

	msgs := provider.requests[1].Messages
	require.Len(t, msgs, 6)
	assert.Contains(t, msgs[2].Content, "unknown tool")
	assert.Contains(t, msgs[3].Content, "query must not be empty")
	assert.Contains(t, msgs[4].Content, "[1]")
	assert.Contains(t, msgs[5].Content, "Skipped")
	assert.Equal(t, int32(1), search.calls.Load())
}

func TestResearchProviderError(t *testing.T) {
	provider := &scriptedProvider{script: []func(CompletionRequest) (*Completion, error){
		func(CompletionRequest) (*Completion, error) { return nil, errors.New("401 unauthorized") },
	}}
	agent := NewAgent(provider, SearcherFunc((&fakeSearch{}).search), fastPolicy())
	_, err := agent.Research(context.Background(), Request{CourseID: "CSE2331"})
	require.ErrorIs(t, err, ErrResearchIncomplete)
}

func TestResearchEmitsEvents(t *testing.T) {
	provider := &scriptedProvider{script: []func(CompletionRequest) (*Completion, error){
		searchCalls("q"),
		answer(validAnswer),
	}}
	agent := NewAgent(provider, SearcherFunc((&fakeSearch{}).search), fastPolicy())

	var mu sync.Mutex
	var types []EventType
	ctx := WithObserver(context.Background(), func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		types = append(types, ev.Type)
	})

	_, err := agent.Research(ctx, Request{CourseID: "CSE2331"})
	require.NoError(t, err)
	assert.Equal(t, []EventType{EventRound, EventSearch, EventSearchResult, EventRound, EventFinal}, types)
}

func TestPolicyClamped(t *testing.T) {
	agent := NewAgent(&scriptedProvider{}, SearcherFunc((&fakeSearch{}).search), Policy{MaxRounds: 99})
	p := agent.Policy()
	assert.Equal(t, 20, p.MaxRounds)
	assert.Equal(t, DefaultPolicy().Timeout, p.Timeout)
	assert.Equal(t, DefaultPolicy().MaxSearchesPerRound, p.MaxSearchesPerRound)
}
