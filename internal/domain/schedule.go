package domain

import "time"

// DefaultScheduleName names schedules saved without one.
const DefaultScheduleName = "Untitled"

// ScheduleItem is one course in a schedule, optionally pinned to a section.
type ScheduleItem struct {
	CourseID  string `json:"courseId"`
	SectionID string `json:"sectionId,omitempty"`
}

// Schedule is a named set of courses a user is considering for a term.
// A user has at most one favorite schedule.
type Schedule struct {
	ID        string         `json:"scheduleId"`
	UserID    int64          `json:"userId"`
	Name      string         `json:"name"`
	Items     []ScheduleItem `json:"items"`
	Favorite  bool           `json:"favorite"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
