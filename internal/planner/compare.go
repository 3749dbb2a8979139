package planner

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/ashureev/classgrade/internal/domain"
)

// Compare dimensions. Each maps an assessment to a lightness in [0,1],
// where 1 is the lightest possible course.
var dimensions = map[string]func(a domain.Assessment) float64{
	"difficulty": func(a domain.Assessment) float64 { return 1 - float64(a.Score)/domain.MaxScore },
	"workload":   func(a domain.Assessment) float64 { return 1 - a.TimeLoadHours/domain.MaxTimeLoadHours },
	"rigor":      func(a domain.Assessment) float64 { return 1 - float64(a.Rigor)/domain.MaxIntensity },
	"assessment": func(a domain.Assessment) float64 { return 1 - float64(a.AssessmentIntensity)/domain.MaxIntensity },
	"project":    func(a domain.Assessment) float64 { return 1 - float64(a.ProjectIntensity)/domain.MaxIntensity },
	"pace":       func(a domain.Assessment) float64 { return 1 - float64(a.Pace)/domain.MaxIntensity },
}

// DefaultWeights is used when a compare request carries none.
func DefaultWeights() map[string]float64 {
	return map[string]float64{"difficulty": 0.5, "workload": 0.5}
}

// CompareItem names one course to compare.
type CompareItem struct {
	CourseID string `json:"courseId"`
	Term     string `json:"term,omitempty"`
}

// CompareRequest is the input to Compare.
type CompareRequest struct {
	Courses   []CompareItem      `json:"courses"`
	Weights   map[string]float64 `json:"weights,omitempty"`
	Requester string             `json:"-"`
}

// CompareResult is one ranked course.
type CompareResult struct {
	CourseID   string              `json:"courseId"`
	Composite  float64             `json:"composite"`
	Rating     domain.CourseRating `json:"rating"`
	Assessment domain.Assessment   `json:"assessment"`
}

// CompareResponse ranks courses from lightest to heaviest.
type CompareResponse struct {
	Ranking []string           `json:"ranking"`
	Results []CompareResult    `json:"results"`
	Weights map[string]float64 `json:"weights"`
}

func validateWeights(w map[string]float64) (map[string]float64, error) {
	if len(w) == 0 {
		return DefaultWeights(), nil
	}
	sum := 0.0
	out := make(map[string]float64, len(w))
	for k, v := range w {
		key := strings.ToLower(strings.TrimSpace(k))
		if _, ok := dimensions[key]; !ok {
			names := make([]string, 0, len(dimensions))
			for name := range dimensions {
				names = append(names, name)
			}
			slices.Sort(names)
			return nil, fmt.Errorf("%w: unknown weight %q (allowed: %s)", ErrInvalidRequest, k, strings.Join(names, ", "))
		}
		if v < 0 {
			return nil, fmt.Errorf("%w: weight %q must not be negative", ErrInvalidRequest, k)
		}
		out[key] += v
		sum += v
	}
	if sum == 0 {
		return nil, fmt.Errorf("%w: weights must not all be zero", ErrInvalidRequest)
	}
	return out, nil
}

// Composite scores a for the given validated weights.
func Composite(a domain.Assessment, weights map[string]float64) float64 {
	var num, den float64
	for k, w := range weights {
		num += w * dimensions[k](a)
		den += w
	}
	if den == 0 {
		return 0
	}
	return round(num/den, 4)
}

// Compare ranks the requested courses by weighted lightness.
func (p *Planner) Compare(ctx context.Context, req CompareRequest) (*CompareResponse, error) {
	weights, err := validateWeights(req.Weights)
	if err != nil {
		return nil, err
	}
	raw := make([]string, len(req.Courses))
	for i, c := range req.Courses {
		raw[i] = c.CourseID
	}
	ids, err := normalizeIDs(raw, MaxCompareCourses)
	if err != nil {
		return nil, err
	}

	results, err := p.fetch(ctx, ids, req.Requester)
	if err != nil {
		return nil, err
	}

	resp := &CompareResponse{
		Ranking: make([]string, 0, len(results)),
		Results: make([]CompareResult, 0, len(results)),
		Weights: weights,
	}
	for _, r := range results {
		a := r.Entry.Assessment
		resp.Results = append(resp.Results, CompareResult{
			CourseID:   r.Entry.CourseID,
			Composite:  Composite(a, weights),
			Rating:     a.Rating(),
			Assessment: a,
		})
	}
	sortRanked(resp.Results)
	for _, r := range resp.Results {
		resp.Ranking = append(resp.Ranking, r.CourseID)
	}
	return resp, nil
}
