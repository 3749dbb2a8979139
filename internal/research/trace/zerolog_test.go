package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestSpanAndEvent(t *testing.T) {
	var buf bytes.Buffer
	tr := NewZerologTracer(zerolog.New(&buf).Level(zerolog.DebugLevel))

	ctx, finish := tr.StartSpan(context.Background(), "research", map[string]any{"course_id": "CSE2331"})
	tr.Event(ctx, "final_answer_rejected", map[string]any{"round": 2})
	finish(errors.New("boom"))

	got := lines(t, &buf)
	require.Len(t, got, 3)
	assert.Equal(t, "span_start", got[0]["event"])
	assert.Equal(t, "CSE2331", got[1]["course_id"])
	assert.Equal(t, "final_answer_rejected", got[1]["event"])
	assert.Equal(t, "error", got[2]["level"])
	assert.Equal(t, "boom", got[2]["error"])
}

func TestNestedSpanInheritsFields(t *testing.T) {
	var buf bytes.Buffer
	tr := NewZerologTracer(zerolog.New(&buf).Level(zerolog.InfoLevel))

	ctx, finishOuter := tr.StartSpan(context.Background(), "research", map[string]any{"session_id": "s1"})
	_, finishInner := tr.StartSpan(ctx, "provider_call", map[string]any{"round": 1})
	finishInner(nil)
	finishOuter(nil)

	got := lines(t, &buf)
	require.Len(t, got, 2)
	assert.Equal(t, "provider_call", got[0]["span"])
	assert.Equal(t, "s1", got[0]["session_id"])
	assert.Equal(t, "research", got[1]["span"])
}
