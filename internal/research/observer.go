package research

import (
	"context"
	"time"
)

// EventType classifies a progress event.
type EventType string

// Progress event types.
const (
	EventState        EventType = "state"
	EventRound        EventType = "round"
	EventSearch       EventType = "search"
	EventSearchResult EventType = "search_result"
	EventFinal        EventType = "final"
)

// Event reports research progress to an observer attached to the context.
type Event struct {
	Type     EventType `json:"type"`
	CourseID string    `json:"courseId,omitempty"`
	State    string    `json:"state,omitempty"`
	Round    int       `json:"round,omitempty"`
	Query    string    `json:"query,omitempty"`
	Results  int       `json:"results,omitempty"`
	Message  string    `json:"message,omitempty"`
	Time     time.Time `json:"time"`
}

// Observer receives progress events. It may be called from several
// goroutines at once.
type Observer func(Event)

type observerKey struct{}

// WithObserver attaches an observer to ctx.
func WithObserver(ctx context.Context, obs Observer) context.Context {
	return context.WithValue(ctx, observerKey{}, obs)
}

// Emit delivers ev to the observer attached to ctx, if any.
func Emit(ctx context.Context, ev Event) {
	obs, ok := ctx.Value(observerKey{}).(Observer)
	if !ok || obs == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	obs(ev)
}
