// Package domain contains core domain types for the classgrade service.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Default values applied to optional assessment fields that the research
// agent leaves out.
const (
	DefaultPace       = 50
	DefaultConfidence = 0.6
)

// Assessment bounds.
const (
	MinScore         = 1
	MaxScore         = 100
	MaxCreditHours   = 20
	MaxTimeLoadHours = 8.0
	MaxIntensity     = 100
)

// Assessment is the structured difficulty assessment of a single course.
type Assessment struct {
	Score               int      `json:"score"`
	CreditHours         int      `json:"creditHours"`
	Summary             string   `json:"summary"`
	TimeLoadHours       float64  `json:"timeLoadHours"`
	Rigor               int      `json:"rigor"`
	AssessmentIntensity int      `json:"assessmentIntensity"`
	ProjectIntensity    int      `json:"projectIntensity"`
	Pace                int      `json:"pace"`
	InstructorVibe      *int     `json:"instructorVibe,omitempty"`
	SupportVibe         *int     `json:"supportVibe,omitempty"`
	Prerequisites       []string `json:"prerequisites"`
	Corequisites        []string `json:"corequisites"`
	Tags                []string `json:"tags"`
	EvidenceSnippets    []string `json:"evidenceSnippets"`
	Confidence          float64  `json:"confidence"`
}

// NewAssessment returns an assessment carrying the defaults for every
// optional field.
func NewAssessment() Assessment {
	return Assessment{
		Pace:             DefaultPace,
		Confidence:       DefaultConfidence,
		Prerequisites:    []string{},
		Corequisites:     []string{},
		Tags:             []string{},
		EvidenceSnippets: []string{},
	}
}

// DecodeAssessment decodes raw JSON into an assessment, applying defaults
// for absent optional fields. It does not validate.
func DecodeAssessment(data []byte) (Assessment, error) {
	a := NewAssessment()
	if err := json.Unmarshal(data, &a); err != nil {
		return Assessment{}, fmt.Errorf("decode assessment: %w", err)
	}
	// An explicit null must not leave a nil slice behind.
	if a.Prerequisites == nil {
		a.Prerequisites = []string{}
	}
	if a.Corequisites == nil {
		a.Corequisites = []string{}
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
	if a.EvidenceSnippets == nil {
		a.EvidenceSnippets = []string{}
	}
	return a, nil
}

// FieldError describes one field that is out of its allowed range.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field violation found in an assessment.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid assessment: " + strings.Join(parts, "; ")
}

// Validate checks every bounded field of the assessment. It never modifies
// the assessment and returns a *ValidationError describing all violations.
func (a Assessment) Validate() error {
	var errs []FieldError
	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if a.Score < MinScore || a.Score > MaxScore {
		add("score", "must be between %d and %d, got %d", MinScore, MaxScore, a.Score)
	}
	if a.CreditHours < 0 || a.CreditHours > MaxCreditHours {
		add("creditHours", "must be between 0 and %d, got %d", MaxCreditHours, a.CreditHours)
	}
	if strings.TrimSpace(a.Summary) == "" {
		add("summary", "must not be empty")
	}
	if a.TimeLoadHours < 0 || a.TimeLoadHours > MaxTimeLoadHours {
		add("timeLoadHours", "must be between 0 and %g, got %g", MaxTimeLoadHours, a.TimeLoadHours)
	}

	bounded := []struct {
		name  string
		value int
	}{
		{"rigor", a.Rigor},
		{"assessmentIntensity", a.AssessmentIntensity},
		{"projectIntensity", a.ProjectIntensity},
		{"pace", a.Pace},
	}
	for _, b := range bounded {
		if b.value < 0 || b.value > MaxIntensity {
			add(b.name, "must be between 0 and %d, got %d", MaxIntensity, b.value)
		}
	}
	if a.InstructorVibe != nil && (*a.InstructorVibe < 0 || *a.InstructorVibe > MaxIntensity) {
		add("instructorVibe", "must be between 0 and %d, got %d", MaxIntensity, *a.InstructorVibe)
	}
	if a.SupportVibe != nil && (*a.SupportVibe < 0 || *a.SupportVibe > MaxIntensity) {
		add("supportVibe", "must be between 0 and %d, got %d", MaxIntensity, *a.SupportVibe)
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		add("confidence", "must be between 0 and 1, got %g", a.Confidence)
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// Normalized returns a copy with trimmed text fields and de-duplicated tags.
// Applying it twice yields the same value.
func (a Assessment) Normalized() Assessment {
	out := a
	out.Summary = strings.TrimSpace(a.Summary)
	out.Prerequisites = trimAll(a.Prerequisites)
	out.Corequisites = trimAll(a.Corequisites)
	out.EvidenceSnippets = trimAll(a.EvidenceSnippets)

	seen := make(map[string]struct{}, len(a.Tags))
	out.Tags = make([]string, 0, len(a.Tags))
	for _, tag := range a.Tags {
		tag = strings.TrimSpace(tag)
		key := strings.ToLower(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out.Tags = append(out.Tags, tag)
	}
	return out
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
