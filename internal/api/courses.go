package api

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/ashureev/classgrade/internal/domain"
	"github.com/ashureev/classgrade/internal/identity"
	"github.com/ashureev/classgrade/internal/orchestrator"
	"github.com/ashureev/classgrade/internal/planner"
	"github.com/go-chi/chi/v5"
)

// CacheInfo describes where a served assessment came from.
type CacheInfo struct {
	Status     orchestrator.Status `json:"status"`
	StoredAt   time.Time           `json:"storedAt"`
	AgeSeconds int64               `json:"ageSeconds"`
}

// RatingResponse is the body of GET /courses/ratings/{courseId}.
type RatingResponse struct {
	CourseID   string              `json:"courseId"`
	Assessment domain.Assessment   `json:"assessment"`
	Rating     domain.CourseRating `json:"rating"`
	Cache      CacheInfo           `json:"cache"`
	SessionID  string              `json:"sessionId,omitempty"`
}

func newRatingResponse(res orchestrator.Result, now time.Time) RatingResponse {
	age := now.Sub(res.Entry.StoredAt)
	return RatingResponse{
		CourseID:   res.Entry.CourseID,
		Assessment: res.Entry.Assessment,
		Rating:     res.Entry.Assessment.Rating(),
		Cache: CacheInfo{
			Status:     res.Status,
			StoredAt:   res.Entry.StoredAt,
			AgeSeconds: int64(math.Max(0, age.Seconds())),
		},
		SessionID: res.SessionID,
	}
}

// CourseHandler serves course ratings and the planner endpoints.
type CourseHandler struct {
	assessor planner.Assessor
	planner  *planner.Planner
	limiter  *RateLimiter
	now      func() time.Time
}

// NewCourseHandler creates a course handler. limiter may be nil to disable
// fresh-request throttling.
func NewCourseHandler(assessor planner.Assessor, p *planner.Planner, limiter *RateLimiter) *CourseHandler {
	return &CourseHandler{assessor: assessor, planner: p, limiter: limiter, now: time.Now}
}

// RegisterRoutes mounts the course routes.
func (h *CourseHandler) RegisterRoutes(r chi.Router) {
	r.Route("/courses", func(r chi.Router) {
		r.Get("/ratings/{courseId}", h.Rating)
		r.Post("/compare", h.Compare)
		r.Post("/schedule-load", h.ScheduleLoad)
	})
}

// parseAssessRequest validates the course and fresh flag and applies the
// fresh-request quota.
func (h *CourseHandler) parseAssessRequest(r *http.Request) (orchestrator.Request, error) {
	courseID, err := domain.NormalizeCourseID(chi.URLParam(r, "courseId"))
	if err != nil {
		return orchestrator.Request{}, err
	}
	fresh, err := parseBool(r.URL.Query().Get("fresh"))
	if err != nil {
		return orchestrator.Request{}, err
	}
	requester := identity.RequesterFromContext(r.Context())
	if fresh && h.limiter != nil && !h.limiter.Allow(requester) {
		slog.Warn("Fresh research rate limited", "requester", requester, "course_id", courseID)
		return orchestrator.Request{}, errRateLimited
	}
	return orchestrator.Request{CourseID: courseID, Fresh: fresh, Requester: requester}, nil
}

// Rating returns the assessment and derived rating for one course.
func (h *CourseHandler) Rating(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseAssessRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.assessor.Assess(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("X-Cache", string(res.Status))
	JSON(w, http.StatusOK, newRatingResponse(res, h.now()))
}

// Compare ranks several courses by weighted lightness.
func (h *CourseHandler) Compare(w http.ResponseWriter, r *http.Request) {
	var req planner.CompareRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Requester = identity.RequesterFromContext(r.Context())

	resp, err := h.planner.Compare(r.Context(), req)
	if err != nil {
		writeError(w, r, fmt.Errorf("compare: %w", err))
		return
	}
	JSON(w, http.StatusOK, resp)
}

// ScheduleLoad estimates the weekly hours of a set of courses.
func (h *CourseHandler) ScheduleLoad(w http.ResponseWriter, r *http.Request) {
	var req planner.ScheduleLoadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Requester = identity.RequesterFromContext(r.Context())

	resp, err := h.planner.ScheduleLoad(r.Context(), req)
	if err != nil {
		writeError(w, r, fmt.Errorf("schedule load: %w", err))
		return
	}
	JSON(w, http.StatusOK, resp)
}
