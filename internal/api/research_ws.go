package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/classgrade/internal/research"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
)

const (
	wsEventBuffer  = 64
	wsWriteTimeout = 5 * time.Second
)

// streamMessage is one websocket frame. Progress events carry Event; the
// final frame carries either Result or Error.
type streamMessage struct {
	Type   string          `json:"type"`
	Event  *research.Event `json:"event,omitempty"`
	Result *RatingResponse `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
	Status int             `json:"status,omitempty"`
}

// ResearchStreamHandler streams research progress for one course over a
// websocket and finishes with the assessment or the error.
type ResearchStreamHandler struct {
	courses        *CourseHandler
	originPatterns []string
}

// NewResearchStreamHandler creates the websocket handler. originPatterns
// follow websocket.AcceptOptions; nil allows same-origin only.
func NewResearchStreamHandler(courses *CourseHandler, originPatterns []string) *ResearchStreamHandler {
	return &ResearchStreamHandler{courses: courses, originPatterns: originPatterns}
}

// RegisterRoutes mounts the websocket route.
func (h *ResearchStreamHandler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/courses/{courseId}/research", h.ServeHTTP)
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *ResearchStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := h.courses.parseAssessRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "course_id", req.CourseID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "research finished"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "course_id", req.CourseID)
		}
	}()

	// Reads are only needed to notice a client close.
	ctx := ws.CloseRead(r.Context())

	// The observer may outlive this handler when research is shared with
	// other callers, so the channel is never closed and sends never block.
	events := make(chan research.Event, wsEventBuffer)
	observer := func(ev research.Event) {
		select {
		case events <- ev:
		default:
		}
	}

	done := make(chan struct{})
	var (
		res       = make(chan streamMessage, 1)
		assessCtx = research.WithObserver(ctx, observer)
	)
	go func() {
		defer close(done)
		out, err := h.courses.assessor.Assess(assessCtx, req)
		if err != nil {
			res <- streamMessage{Type: "error", Error: err.Error(), Status: StatusFor(err)}
			return
		}
		payload := newRatingResponse(out, h.courses.now())
		res <- streamMessage{Type: "result", Result: &payload}
	}()

	for {
		select {
		case ev := <-events:
			if err := h.write(ctx, ws, streamMessage{Type: "event", Event: &ev}); err != nil {
				return
			}
		case <-done:
			// Flush what the observer queued before the result.
			for {
				select {
				case ev := <-events:
					if err := h.write(ctx, ws, streamMessage{Type: "event", Event: &ev}); err != nil {
						return
					}
					continue
				default:
				}
				break
			}
			_ = h.write(ctx, ws, <-res)
			return
		case <-ctx.Done():
			slog.Debug("Research stream client went away", "course_id", req.CourseID)
			return
		}
	}
}

func (h *ResearchStreamHandler) write(ctx context.Context, ws *websocket.Conn, msg streamMessage) error {
	wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := wsjson.Write(wctx, ws, msg); err != nil {
		slog.Debug("WebSocket write error", "error", err)
		return err
	}
	return nil
}
