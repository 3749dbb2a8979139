// Package trace provides a zerolog-backed research tracer.
package trace

import (
	"context"
	"io"
	"time"

	"github.com/ashureev/classgrade/internal/research"
	"github.com/rs/zerolog"
)

type spanLoggerKey struct{}

// ZerologTracer writes span and event records as zerolog lines.
type ZerologTracer struct {
	logger zerolog.Logger
}

// NewZerologTracer creates a tracer that writes to the given logger.
func NewZerologTracer(logger zerolog.Logger) *ZerologTracer {
	return &ZerologTracer{logger: logger}
}

// NewWriterTracer creates a tracer writing JSON lines to w.
func NewWriterTracer(w io.Writer) *ZerologTracer {
	return NewZerologTracer(zerolog.New(w).With().Timestamp().Str("component", "research").Logger())
}

// StartSpan starts a span. Nested spans inherit the parent's fields.
func (t *ZerologTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	parent := t.logger
	if l, ok := ctx.Value(spanLoggerKey{}).(zerolog.Logger); ok {
		parent = l
	}

	lc := parent.With().Str("span", name)
	for k, v := range attrs {
		lc = lc.Interface(k, v)
	}
	spanLogger := lc.Logger()
	ctx = context.WithValue(ctx, spanLoggerKey{}, spanLogger)

	start := time.Now()
	spanLogger.Debug().Str("event", "span_start").Msg("span started")

	return ctx, func(err error) {
		ev := spanLogger.Info()
		if err != nil {
			ev = spanLogger.Error().Err(err)
		}
		ev.Str("event", "span_end").Dur("duration", time.Since(start)).Msg("span ended")
	}
}

// Event records a point-in-time event inside the current span.
func (t *ZerologTracer) Event(ctx context.Context, name string, attrs map[string]any) {
	logger := t.logger
	if l, ok := ctx.Value(spanLoggerKey{}).(zerolog.Logger); ok {
		logger = l
	}
	ev := logger.Info()
	for k, v := range attrs {
		ev = ev.Interface(k, v)
	}
	ev.Str("event", name).Msg("trace event")
}

var _ research.Tracer = (*ZerologTracer)(nil)
