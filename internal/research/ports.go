package research

import "context"

// Tracer emits spans and events for research runs.
type Tracer interface {
	StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error))
	Event(ctx context.Context, name string, attrs map[string]any)
}

// TranscriptRecorder receives every finished session, successful or not.
type TranscriptRecorder interface {
	Record(s *Session)
}

type noopTracer struct{}

func (noopTracer) StartSpan(ctx context.Context, _ string, _ map[string]any) (context.Context, func(error)) {
	return ctx, func(error) {}
}

func (noopTracer) Event(context.Context, string, map[string]any) {}

type noopRecorder struct{}

func (noopRecorder) Record(*Session) {}
