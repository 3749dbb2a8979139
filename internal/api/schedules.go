package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/ashureev/classgrade/internal/domain"
	"github.com/ashureev/classgrade/internal/store"
	"github.com/go-chi/chi/v5"
)

const (
	maxScheduleItems   = 40
	maxScheduleNameLen = 100
)

// SchedulePayload is the body of the save and add endpoints.
type SchedulePayload struct {
	Name     string                `json:"name"`
	Items    []domain.ScheduleItem `json:"items"`
	Favorite bool                  `json:"favorite"`
}

// ScheduleHandler manages saved schedules.
type ScheduleHandler struct {
	repo store.Repository
}

// NewScheduleHandler creates a schedule handler.
func NewScheduleHandler(repo store.Repository) *ScheduleHandler {
	return &ScheduleHandler{repo: repo}
}

// RegisterRoutes mounts the schedule routes.
func (h *ScheduleHandler) RegisterRoutes(r chi.Router) {
	r.Route("/schedule", func(r chi.Router) {
		r.Get("/{userId}", h.List)
		r.Get("/favorite/{userId}", h.Favorite)
		r.Post("/save/{userId}", h.Save)
		r.Post("/add/{userId}", h.Add)
		r.Delete("/{userId}/{scheduleId}", h.Delete)
	})
}

// List returns all schedules of a user.
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := parseID(chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.repo.GetUser(r.Context(), userID); err != nil {
		writeError(w, r, err)
		return
	}
	schedules, err := h.repo.ListSchedules(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if schedules == nil {
		schedules = []*domain.Schedule{}
	}
	JSON(w, http.StatusOK, schedules)
}

// Favorite returns the user's favorite schedule.
func (h *ScheduleHandler) Favorite(w http.ResponseWriter, r *http.Request) {
	userID, err := parseID(chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.repo.FavoriteSchedule(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, s)
}

// Save upserts a schedule by name.
func (h *ScheduleHandler) Save(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, h.repo.SaveSchedule)
}

// Add always creates a new schedule.
func (h *ScheduleHandler) Add(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, h.repo.AddSchedule)
}

func (h *ScheduleHandler) write(w http.ResponseWriter, r *http.Request, persist func(ctx context.Context, s *domain.Schedule) error) {
	userID, err := parseID(chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var payload SchedulePayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, r, err)
		return
	}
	s, err := payload.toSchedule(userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := persist(r.Context(), s); err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, s)
}

func (p SchedulePayload) toSchedule(userID int64) (*domain.Schedule, error) {
	name := strings.TrimSpace(p.Name)
	if len(name) > maxScheduleNameLen {
		return nil, fmt.Errorf("%w: schedule name exceeds %d characters", errBadRequest, maxScheduleNameLen)
	}
	if len(p.Items) > maxScheduleItems {
		return nil, fmt.Errorf("%w: at most %d items per schedule", errBadRequest, maxScheduleItems)
	}

	items := make([]domain.ScheduleItem, 0, len(p.Items))
	for _, item := range p.Items {
		id, err := domain.NormalizeCourseID(item.CourseID)
		if err != nil {
			return nil, err
		}
		items = append(items, domain.ScheduleItem{CourseID: id, SectionID: strings.TrimSpace(item.SectionID)})
	}
	return &domain.Schedule{UserID: userID, Name: name, Items: items, Favorite: p.Favorite}, nil
}

// Delete removes one schedule.
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := parseID(chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	scheduleID := chi.URLParam(r, "scheduleId")
	if err := h.repo.DeleteSchedule(r.Context(), userID, scheduleID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
