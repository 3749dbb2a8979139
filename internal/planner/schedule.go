package planner

import (
	"context"
	"fmt"
)

// Constraints limit a schedule. A nil MaxCredits means DefaultMaxCredits.
type Constraints struct {
	MaxCredits *int `json:"maxCredits,omitempty"`
	NoFri      bool `json:"noFri,omitempty"`
}

// ScheduleLoadRequest is the input to ScheduleLoad.
type ScheduleLoadRequest struct {
	CourseIDs   []string     `json:"courseIds"`
	Constraints *Constraints `json:"constraints,omitempty"`
	Requester   string       `json:"-"`
}

// CourseLoad is one course's share of the weekly load.
type CourseLoad struct {
	CourseID    string  `json:"courseId"`
	WeeklyHours float64 `json:"weeklyHours"`
	CreditHours int     `json:"creditHours"`
}

// ScheduleLoadResponse totals the weekly load of a set of courses.
type ScheduleLoadResponse struct {
	TotalWeeklyHours float64      `json:"totalWeeklyHours"`
	TotalCreditHours int          `json:"totalCreditHours"`
	MaxCredits       int          `json:"maxCredits"`
	Courses          []CourseLoad `json:"courses"`
	Warnings         []string     `json:"warnings"`
}

// ScheduleLoad estimates the weekly hours of the requested courses.
func (p *Planner) ScheduleLoad(ctx context.Context, req ScheduleLoadRequest) (*ScheduleLoadResponse, error) {
	maxCredits := DefaultMaxCredits
	noFri := false
	if c := req.Constraints; c != nil {
		if c.MaxCredits != nil {
			if *c.MaxCredits <= 0 {
				return nil, fmt.Errorf("%w: maxCredits must be positive", ErrInvalidRequest)
			}
			maxCredits = *c.MaxCredits
		}
		noFri = c.NoFri
	}

	ids, err := normalizeIDs(req.CourseIDs, MaxScheduleCourses)
	if err != nil {
		return nil, err
	}
	results, err := p.fetch(ctx, ids, req.Requester)
	if err != nil {
		return nil, err
	}

	resp := &ScheduleLoadResponse{
		MaxCredits: maxCredits,
		Courses:    make([]CourseLoad, 0, len(results)),
		Warnings:   []string{},
	}
	var total float64
	for _, r := range results {
		a := r.Entry.Assessment
		load := CourseLoad{
			CourseID:    r.Entry.CourseID,
			WeeklyHours: a.Rating().WorkloadHoursPerWeek,
			CreditHours: a.CreditHours,
		}
		total += load.WeeklyHours
		resp.TotalCreditHours += load.CreditHours
		resp.Courses = append(resp.Courses, load)
	}
	resp.TotalWeeklyHours = round(total, 2)

	if resp.TotalCreditHours > maxCredits {
		resp.Warnings = append(resp.Warnings,
			fmt.Sprintf("total credit hours %d exceed maxCredits %d", resp.TotalCreditHours, maxCredits))
	}
	if noFri {
		resp.Warnings = append(resp.Warnings,
			"noFri not checked: section meeting times are not available")
	}
	return resp, nil
}
