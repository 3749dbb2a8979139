// Package research implements the bounded tool-calling agent that turns a
// course identifier into a validated assessment.
package research

import (
	"context"
	"encoding/json"
	"iter"
	"time"

	"github.com/ashureev/classgrade/internal/domain"
)

// Role tags a conversation message.
type Role string

// Conversation roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the research conversation.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a capability invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolParam declares one string-or-scalar parameter of a tool.
type ToolParam struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// ToolSpec declares a tool the model may call.
type ToolSpec struct {
	Name        string
	Description string
	Params      []ToolParam
}

// Usage counts tokens reported by the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Add accumulates u2 into u.
func (u *Usage) Add(u2 Usage) {
	u.PromptTokens += u2.PromptTokens
	u.CompletionTokens += u2.CompletionTokens
}

// CompletionRequest is one model turn.
type CompletionRequest struct {
	System   string
	Messages []Message
	Tools    []ToolSpec
}

// Completion is the model's reply: either tool calls or a final text answer.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

// Provider performs a single chat completion with tool declarations.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// Snippet is one search excerpt with its provenance.
type Snippet struct {
	Title  string `json:"title,omitempty"`
	Text   string `json:"text"`
	Source string `json:"source"`
}

// Searcher is the text search capability. The returned sequence is finite
// and can be ranged over once; a new call issues a new query.
type Searcher interface {
	Search(ctx context.Context, query string) iter.Seq2[Snippet, error]
}

// SearcherFunc adapts a slice-returning function to Searcher.
type SearcherFunc func(ctx context.Context, query string) ([]Snippet, error)

// Search implements Searcher.
func (f SearcherFunc) Search(ctx context.Context, query string) iter.Seq2[Snippet, error] {
	return func(yield func(Snippet, error) bool) {
		results, err := f(ctx, query)
		if err != nil {
			yield(Snippet{}, err)
			return
		}
		for _, r := range results {
			if !yield(r, nil) {
				return
			}
		}
	}
}

// Request is the input to one research run.
type Request struct {
	CourseID    string
	Instruction string
}

// ToolInvocation records one search executed during a session.
type ToolInvocation struct {
	Round    int           `json:"round"`
	CallID   string        `json:"call_id"`
	Query    string        `json:"query"`
	Results  []Snippet     `json:"results,omitempty"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Session is the ephemeral state of one research run.
type Session struct {
	ID              string           `json:"id"`
	CourseID        string           `json:"course_id"`
	Provider        string           `json:"provider"`
	StartedAt       time.Time        `json:"started_at"`
	FinishedAt      time.Time        `json:"finished_at"`
	Rounds          int              `json:"rounds"`
	Messages        []Message        `json:"messages"`
	ToolInvocations []ToolInvocation `json:"tool_invocations"`
	Usage           Usage            `json:"usage"`
	Error           string           `json:"error,omitempty"`
}

// Report is a successful research result.
type Report struct {
	Assessment domain.Assessment
	Session    *Session
}
