package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
)

// Policy bounds one research run.
type Policy struct {
	MaxRounds           int           // model turns, including the final forced answer
	Timeout             time.Duration // wall clock for the whole run
	SearchRetries       int           // retries after the first failed search
	SearchBackoff       time.Duration // base delay, doubled per retry
	MaxSearchesPerRound int           // tool calls executed per round; the rest are skipped
}

// DefaultPolicy returns the default research bounds.
func DefaultPolicy() Policy {
	return Policy{
		MaxRounds:           8,
		Timeout:             45 * time.Second,
		SearchRetries:       2,
		SearchBackoff:       250 * time.Millisecond,
		MaxSearchesPerRound: 3,
	}
}

func (p Policy) clamped(logger *slog.Logger) Policy {
	def := DefaultPolicy()
	if p.MaxRounds < 1 {
		logger.Warn("MaxRounds clamped to minimum of 1", "max_rounds", p.MaxRounds)
		p.MaxRounds = 1
	}
	if p.MaxRounds > 20 {
		logger.Warn("MaxRounds clamped to maximum of 20", "max_rounds", p.MaxRounds)
		p.MaxRounds = 20
	}
	if p.Timeout <= 0 {
		p.Timeout = def.Timeout
	}
	if p.SearchRetries < 0 {
		p.SearchRetries = 0
	}
	if p.SearchBackoff <= 0 {
		p.SearchBackoff = def.SearchBackoff
	}
	if p.MaxSearchesPerRound < 1 {
		p.MaxSearchesPerRound = def.MaxSearchesPerRound
	}
	return p
}

// Agent runs the research loop. It holds no per-run state and is safe for
// concurrent use.
type Agent struct {
	provider    Provider
	searcher    Searcher
	policy      Policy
	tracer      Tracer
	transcripts TranscriptRecorder
	logger      *slog.Logger
	system      string
}

// Option configures an Agent.
type Option func(*Agent)

// WithTracer sets the span tracer.
func WithTracer(t Tracer) Option {
	return func(a *Agent) { a.tracer = t }
}

// WithTranscripts sets the recorder that receives finished sessions.
func WithTranscripts(r TranscriptRecorder) Option {
	return func(a *Agent) { a.transcripts = r }
}

// WithLogger sets the agent logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// NewAgent creates a research agent.
func NewAgent(provider Provider, searcher Searcher, policy Policy, opts ...Option) *Agent {
	a := &Agent{
		provider:    provider,
		searcher:    searcher,
		tracer:      noopTracer{},
		transcripts: noopRecorder{},
		logger:      slog.Default(),
		system:      buildSystemPrompt(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.policy = policy.clamped(a.logger)
	return a
}

// Policy returns the effective policy after clamping.
func (a *Agent) Policy() Policy {
	return a.policy
}

// Research runs one bounded research session for the course.
func (a *Agent) Research(ctx context.Context, req Request) (*Report, error) {
	instruction := strings.TrimSpace(req.Instruction)
	if instruction == "" {
		instruction = DefaultInstruction(req.CourseID)
	}

	ctx, cancel := context.WithTimeout(ctx, a.policy.Timeout)
	defer cancel()

	sess := &Session{
		ID:        uuid.NewString(),
		CourseID:  req.CourseID,
		Provider:  a.provider.Name(),
		StartedAt: time.Now(),
	}

	ctx, finish := a.tracer.StartSpan(ctx, "research", map[string]any{
		"course_id":  req.CourseID,
		"session_id": sess.ID,
	})

	report, err := a.run(ctx, sess, instruction)
	if err != nil && ctx.Err() != nil && !errors.Is(err, ErrResearchIncomplete) && !errors.Is(err, ErrSchemaValidation) {
		err = fmt.Errorf("%w: interrupted after %d rounds: %w", ErrResearchIncomplete, sess.Rounds, ctx.Err())
	}

	sess.FinishedAt = time.Now()
	if err != nil {
		sess.Error = err.Error()
	}
	finish(err)
	a.transcripts.Record(sess)

	if err != nil {
		a.logger.Warn("Research failed",
			"course_id", req.CourseID,
			"session_id", sess.ID,
			"rounds", sess.Rounds,
			"error", err)
		return nil, err
	}

	a.logger.Info("Research complete",
		"course_id", req.CourseID,
		"session_id", sess.ID,
		"rounds", sess.Rounds,
		"searches", len(sess.ToolInvocations),
		"score", report.Assessment.Score,
		"confidence", report.Assessment.Confidence)
	return report, nil
}

func (a *Agent) run(ctx context.Context, sess *Session, instruction string) (*Report, error) {
	sess.Messages = []Message{{Role: RoleUser, Content: instruction}}

	for round := 1; round <= a.policy.MaxRounds; round++ {
		sess.Rounds = round
		Emit(ctx, Event{Type: EventRound, CourseID: sess.CourseID, Round: round})

		last := round == a.policy.MaxRounds
		req := CompletionRequest{System: a.system, Tools: []ToolSpec{searchTool}}
		if last {
			req.Tools = nil
			sess.Messages = append(sess.Messages, Message{Role: RoleUser, Content: finalAnswerNudge})
		}
		req.Messages = sess.Messages

		spanCtx, spanFinish := a.tracer.StartSpan(ctx, "provider_call", map[string]any{"round": round})
		completion, err := a.provider.Complete(spanCtx, req)
		spanFinish(err)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: model call failed in round %d: %w", ErrResearchIncomplete, round, err)
		}
		sess.Usage.Add(completion.Usage)

		if len(completion.ToolCalls) == 0 {
			sess.Messages = append(sess.Messages, Message{Role: RoleAssistant, Content: completion.Content})
			assessment, err := ParseAssessment([]byte(completion.Content))
			if err != nil {
				a.tracer.Event(ctx, "final_answer_rejected", map[string]any{"round": round, "error": err.Error()})
				return nil, err
			}
			Emit(ctx, Event{Type: EventFinal, CourseID: sess.CourseID, Round: round})
			return &Report{Assessment: assessment, Session: sess}, nil
		}

		if last {
			// Tools were withheld; a model that still asks for them has no answer.
			break
		}

		sess.Messages = append(sess.Messages, Message{
			Role:      RoleAssistant,
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
		})
		toolMsgs, err := a.executeTools(ctx, sess, round, completion.ToolCalls)
		if err != nil {
			return nil, err
		}
		sess.Messages = append(sess.Messages, toolMsgs...)
	}

	return nil, fmt.Errorf("%w: no valid final answer within %d rounds", ErrResearchIncomplete, a.policy.MaxRounds)
}

// executeTools runs the round's searches in parallel and returns one tool
// message per call, in call order.
func (a *Agent) executeTools(ctx context.Context, sess *Session, round int, calls []ToolCall) ([]Message, error) {
	out := make([]Message, len(calls))
	var mu sync.Mutex

	p := pool.New().
		WithErrors().
		WithContext(ctx).
		WithCancelOnError().
		WithMaxGoroutines(a.policy.MaxSearchesPerRound)

	for i, call := range calls {
		if i >= a.policy.MaxSearchesPerRound {
			out[i] = toolMessage(call, fmt.Sprintf("Skipped: at most %d searches run per round.", a.policy.MaxSearchesPerRound))
			continue
		}
		if call.Name != SearchToolName {
			out[i] = toolMessage(call, fmt.Sprintf("Error: unknown tool %q. The only tool is %q.", call.Name, SearchToolName))
			continue
		}
		query, err := parseQuery(call.Arguments)
		if err != nil {
			out[i] = toolMessage(call, "Error: "+err.Error())
			continue
		}

		p.Go(func(ctx context.Context) error {
			Emit(ctx, Event{Type: EventSearch, CourseID: sess.CourseID, Round: round, Query: query})
			start := time.Now()
			snippets, attempts, err := a.search(ctx, query)

			inv := ToolInvocation{
				Round:    round,
				CallID:   call.ID,
				Query:    query,
				Results:  snippets,
				Attempts: attempts,
				Duration: time.Since(start),
			}
			if err != nil {
				inv.Error = err.Error()
			}
			mu.Lock()
			sess.ToolInvocations = append(sess.ToolInvocations, inv)
			mu.Unlock()

			if err != nil {
				return err
			}
			Emit(ctx, Event{Type: EventSearchResult, CourseID: sess.CourseID, Round: round, Query: query, Results: len(snippets)})
			out[i] = toolMessage(call, formatSnippets(snippets))
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		if errors.Is(err, ErrCapabilityUnavailable) {
			return nil, fmt.Errorf("%w: %w", ErrResearchIncomplete, err)
		}
		return nil, err
	}
	return out, nil
}

// search runs one query with bounded retries and exponential backoff.
func (a *Agent) search(ctx context.Context, query string) ([]Snippet, int, error) {
	var lastErr error
	attempts := 0
	for i := 0; i <= a.policy.SearchRetries; i++ {
		if i > 0 {
			delay := a.policy.SearchBackoff * time.Duration(1<<(i-1))
			select {
			case <-ctx.Done():
				return nil, attempts, ctx.Err()
			case <-time.After(delay):
			}
		}

		attempts++
		snippets, err := collect(a.searcher.Search(ctx, query))
		if err == nil {
			return snippets, attempts, nil
		}
		if ctx.Err() != nil {
			return nil, attempts, ctx.Err()
		}
		lastErr = err
		a.logger.Debug("Search failed, retrying",
			"query", query,
			"attempt", attempts,
			"error", err)
	}
	return nil, attempts, fmt.Errorf("%w: search %q failed after %d attempts: %w", ErrCapabilityUnavailable, query, attempts, lastErr)
}

func collect(seq iter.Seq2[Snippet, error]) ([]Snippet, error) {
	var out []Snippet
	for s, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func parseQuery(args json.RawMessage) (string, error) {
	var in struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("arguments must be a JSON object with a %q field", "query")
	}
	q := strings.TrimSpace(in.Query)
	if q == "" {
		return "", errors.New("query must not be empty")
	}
	return q, nil
}

func toolMessage(call ToolCall, content string) Message {
	return Message{Role: RoleTool, ToolCallID: call.ID, Name: call.Name, Content: content}
}

func formatSnippets(snippets []Snippet) string {
	if len(snippets) == 0 {
		return "No results found for this query."
	}
	var b strings.Builder
	for i, s := range snippets {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] ", i+1)
		if s.Title != "" {
			b.WriteString(s.Title)
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "(%s)\n%s", s.Source, s.Text)
	}
	return b.String()
}
