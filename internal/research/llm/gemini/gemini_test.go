package gemini

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ashureev/classgrade/internal/research"
	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToContentsMergesToolResponses(t *testing.T) {
	contents, err := toContents([]research.Message{
		{Role: research.RoleUser, Content: "Evaluate the class CSE2331"},
		{Role: research.RoleAssistant, ToolCalls: []research.ToolCall{
			{ID: "a", Name: "search", Arguments: json.RawMessage(`{"query":"syllabus"}`)},
			{ID: "b", Name: "search", Arguments: json.RawMessage(`{"query":"reddit"}`)},
		}},
		{Role: research.RoleTool, ToolCallID: "a", Name: "search", Content: "[1] syllabus"},
		{Role: research.RoleTool, ToolCallID: "b", Name: "search", Content: "[1] reddit"},
	})
	require.NoError(t, err)
	require.Len(t, contents, 3)

	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	require.Len(t, contents[1].Parts, 2)
	call, ok := contents[1].Parts[0].(genai.FunctionCall)
	require.True(t, ok)
	assert.Equal(t, "syllabus", call.Args["query"])

	assert.Equal(t, "user", contents[2].Role)
	require.Len(t, contents[2].Parts, 2)
	fr, ok := contents[2].Parts[1].(genai.FunctionResponse)
	require.True(t, ok)
	assert.Equal(t, "[1] reddit", fr.Response["content"])
}

func TestToContentsRejectsBadArguments(t *testing.T) {
	_, err := toContents([]research.Message{
		{Role: research.RoleAssistant, ToolCalls: []research.ToolCall{{ID: "a", Name: "search", Arguments: json.RawMessage(`not json`)}}},
	})
	require.Error(t, err)
}

func TestFromResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{
				genai.Text("thinking "),
				genai.FunctionCall{Name: "search", Args: map[string]any{"query": "CSE 2331"}},
			}},
		}},
		UsageMetadata: &genai.UsageMetadata{PromptTokenCount: 40, CandidatesTokenCount: 8},
	}

	out, err := fromResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, "thinking ", out.Content)
	require.Len(t, out.ToolCalls, 1)
	assert.JSONEq(t, `{"query":"CSE 2331"}`, string(out.ToolCalls[0].Arguments))
	assert.Equal(t, research.Usage{PromptTokens: 40, CompletionTokens: 8}, out.Usage)

	_, err = fromResponse(&genai.GenerateContentResponse{})
	require.Error(t, err)
}

func TestToDeclarations(t *testing.T) {
	decls := toDeclarations([]research.ToolSpec{{
		Name:   "search",
		Params: []research.ToolParam{{Name: "query", Type: "string", Required: true}},
	}})
	require.Len(t, decls, 1)
	assert.Equal(t, genai.TypeObject, decls[0].Parameters.Type)
	assert.Equal(t, []string{"query"}, decls[0].Parameters.Required)
	assert.Equal(t, genai.TypeString, decls[0].Parameters.Properties["query"].Type)
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(context.Background(), " ", "gemini-2.5-flash")
	require.Error(t, err)
}
