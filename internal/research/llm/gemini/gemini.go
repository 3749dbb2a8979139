// Package gemini implements the research provider on Google's Generative AI
// SDK with function declarations.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/classgrade/internal/research"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const maxAttempts = 3

// Engine wraps a genai client bound to one model.
type Engine struct {
	Model  string
	client *genai.Client
}

// New creates a Gemini engine. Close releases the underlying client.
func New(ctx context.Context, apiKey, model string) (*Engine, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Engine{Model: strings.TrimSpace(model), client: cl}, nil
}

// Close releases the client.
func (e *Engine) Close() error {
	return e.client.Close()
}

// Name implements research.Provider.
func (e *Engine) Name() string { return "gemini:" + e.Model }

// Complete implements research.Provider.
func (e *Engine) Complete(ctx context.Context, req research.CompletionRequest) (*research.Completion, error) {
	m := e.client.GenerativeModel(e.Model)
	m.GenerationConfig = genai.GenerationConfig{Temperature: ptrFloat32(0.2)}
	if req.System != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}
	if len(req.Tools) > 0 {
		m.Tools = []*genai.Tool{{FunctionDeclarations: toDeclarations(req.Tools)}}
	}

	contents, err := toContents(req.Messages)
	if err != nil {
		return nil, err
	}
	if len(contents) == 0 {
		return nil, errors.New("gemini: no messages")
	}

	history := contents[:len(contents)-1]
	last := contents[len(contents)-1].Parts

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		// A fresh session per attempt keeps a failed send out of the history.
		cs := m.StartChat()
		cs.History = append([]*genai.Content(nil), history...)
		resp, err := cs.SendMessage(ctx, last...)
		if err == nil {
			return fromResponse(resp)
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("gemini: %w", lastErr)
}

// toContents converts the research conversation to genai contents, merging
// consecutive messages from the same side into one content.
func toContents(msgs []research.Message) ([]*genai.Content, error) {
	var out []*genai.Content
	appendParts := func(role string, parts ...genai.Part) {
		if len(parts) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Parts = append(out[n-1].Parts, parts...)
			return
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}

	for _, m := range msgs {
		switch m.Role {
		case research.RoleUser:
			appendParts("user", genai.Text(m.Content))
		case research.RoleAssistant:
			var parts []genai.Part
			if m.Content != "" {
				parts = append(parts, genai.Text(m.Content))
			}
			for _, tc := range m.ToolCalls {
				args := map[string]any{}
				if len(tc.Arguments) > 0 {
					if err := json.Unmarshal(tc.Arguments, &args); err != nil {
						return nil, fmt.Errorf("gemini: tool call %s arguments: %w", tc.ID, err)
					}
				}
				parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: args})
			}
			appendParts("model", parts...)
		case research.RoleTool:
			appendParts("user", genai.FunctionResponse{
				Name:     m.Name,
				Response: map[string]any{"content": m.Content},
			})
		default:
			return nil, fmt.Errorf("gemini: unsupported role %q", m.Role)
		}
	}
	return out, nil
}

func toDeclarations(tools []research.ToolSpec) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		schema := &genai.Schema{Type: genai.TypeObject, Properties: map[string]*genai.Schema{}}
		for _, p := range t.Params {
			schema.Properties[p.Name] = &genai.Schema{Type: schemaType(p.Type), Description: p.Description}
			if p.Required {
				schema.Required = append(schema.Required, p.Name)
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schema,
		})
	}
	return decls
}

func schemaType(t string) genai.Type {
	switch t {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}

func fromResponse(resp *genai.GenerateContentResponse) (*research.Completion, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("gemini: empty response")
	}

	out := &research.Completion{}
	if resp.UsageMetadata != nil {
		out.Usage = research.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	var text strings.Builder
	for i, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			text.WriteString(string(p))
		case genai.FunctionCall:
			args, err := json.Marshal(p.Args)
			if err != nil {
				return nil, fmt.Errorf("gemini: encode function args: %w", err)
			}
			out.ToolCalls = append(out.ToolCalls, research.ToolCall{
				ID:        fmt.Sprintf("gemini_call_%d", i),
				Name:      p.Name,
				Arguments: args,
			})
		}
	}
	out.Content = text.String()
	return out, nil
}

func ptrFloat32(v float32) *float32 { return &v }
