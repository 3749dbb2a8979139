package domain

import "math"

// HoursPerCreditHour converts a perceived credit-hour load into weekly hours.
const HoursPerCreditHour = 3.0

// CourseRating is the coarse 0-5 view of an assessment served to clients
// alongside the full record.
type CourseRating struct {
	Overall              *float64 `json:"overall,omitempty"`
	Difficulty           float64  `json:"difficulty"`
	WorkloadHoursPerWeek float64  `json:"workloadHoursPerWeek"`
}

// Rating derives a CourseRating from the assessment.
func (a Assessment) Rating() CourseRating {
	r := CourseRating{
		Difficulty:           round2(float64(a.Score) / 20),
		WorkloadHoursPerWeek: round2(a.TimeLoadHours * HoursPerCreditHour),
	}

	var sum, n float64
	for _, v := range []*int{a.InstructorVibe, a.SupportVibe} {
		if v != nil {
			sum += float64(*v)
			n++
		}
	}
	if n > 0 {
		overall := round2(sum / n / 20)
		r.Overall = &overall
	}
	return r
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
