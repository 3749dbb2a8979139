package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cse2331JSON = `{
	"score": 73,
	"creditHours": 3,
	"summary": "A mid-level, conceptually rigorous data-structures and algorithms course.",
	"timeLoadHours": 6.0,
	"rigor": 75,
	"assessmentIntensity": 65,
	"projectIntensity": 65,
	"pace": 70,
	"prerequisites": ["CSE 2231", "CSE 2321", "STAT 3460 or STAT 3470"],
	"corequisites": ["Math 3345"],
	"tags": ["algorithms", "proofs", "core-course"],
	"evidenceSnippets": ["\"Design/analysis of algorithms and data structures\" - OSU course listing"],
	"confidence": 0.75
}`

func TestDecodeAssessmentAppliesDefaults(t *testing.T) {
	a, err := DecodeAssessment([]byte(`{"score": 40, "creditHours": 3, "summary": "ok", "timeLoadHours": 2}`))
	require.NoError(t, err)

	assert.Equal(t, DefaultPace, a.Pace)
	assert.InDelta(t, DefaultConfidence, a.Confidence, 1e-9)
	assert.Zero(t, a.Rigor)
	assert.NotNil(t, a.Tags)
	assert.NotNil(t, a.EvidenceSnippets)
	assert.NoError(t, a.Validate())
}

func TestDecodeAssessmentNullSlices(t *testing.T) {
	a, err := DecodeAssessment([]byte(`{"score": 40, "creditHours": 3, "summary": "ok", "timeLoadHours": 2, "tags": null}`))
	require.NoError(t, err)
	assert.Equal(t, []string{}, a.Tags)
}

func TestValidateIdempotent(t *testing.T) {
	a, err := DecodeAssessment([]byte(cse2331JSON))
	require.NoError(t, err)

	require.NoError(t, a.Validate())
	require.NoError(t, a.Validate())

	n := a.Normalized()
	require.NoError(t, n.Validate())
	assert.Equal(t, n, n.Normalized())
}

func TestValidateScoreBounds(t *testing.T) {
	for _, score := range []int{0, 101, -5} {
		a, err := DecodeAssessment([]byte(cse2331JSON))
		require.NoError(t, err)
		a.Score = score

		err = a.Validate()
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), "score %d should be rejected", score)
		assert.Equal(t, "score", verr.Fields[0].Field)
	}
	for _, score := range []int{1, 100} {
		a, _ := DecodeAssessment([]byte(cse2331JSON))
		a.Score = score
		assert.NoError(t, a.Validate(), "score %d should be accepted", score)
	}
}

func TestValidateCollectsAllViolations(t *testing.T) {
	vibe := 130
	a := NewAssessment()
	a.Score = 50
	a.CreditHours = -1
	a.TimeLoadHours = 8.5
	a.Pace = 101
	a.Confidence = 1.2
	a.InstructorVibe = &vibe

	err := a.Validate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	var fields []string
	for _, f := range verr.Fields {
		fields = append(fields, f.Field)
	}
	assert.ElementsMatch(t, []string{"creditHours", "summary", "timeLoadHours", "pace", "instructorVibe", "confidence"}, fields)
}

func TestValidateTimeLoadBoundaryInclusive(t *testing.T) {
	a, _ := DecodeAssessment([]byte(cse2331JSON))
	a.TimeLoadHours = 8
	assert.NoError(t, a.Validate())
	a.TimeLoadHours = 0
	assert.NoError(t, a.Validate())
}

func TestNormalizedDedupesTags(t *testing.T) {
	a := NewAssessment()
	a.Tags = []string{" proofs", "Proofs", "graphs", "", "graphs "}
	a.Summary = "  padded  "

	n := a.Normalized()
	assert.Equal(t, []string{"proofs", "graphs"}, n.Tags)
	assert.Equal(t, "padded", n.Summary)
}

func TestRating(t *testing.T) {
	a, _ := DecodeAssessment([]byte(cse2331JSON))

	r := a.Rating()
	assert.InDelta(t, 3.65, r.Difficulty, 1e-9)
	assert.InDelta(t, 18.0, r.WorkloadHoursPerWeek, 1e-9)
	assert.Nil(t, r.Overall)

	iv, sv := 80, 60
	a.InstructorVibe = &iv
	a.SupportVibe = &sv
	r = a.Rating()
	require.NotNil(t, r.Overall)
	assert.InDelta(t, 3.5, *r.Overall, 1e-9)
}

func TestNormalizeCourseID(t *testing.T) {
	cases := map[string]string{
		"CSE2331":    "CSE2331",
		"cse 2331":   "CSE2331",
		" Cse-2331 ": "CSE2331",
		"math_3345":  "MATH3345",
		"XYZ999":     "XYZ999",
	}
	for in, want := range cases {
		got, err := NormalizeCourseID(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "  ", "2331", "A", "CSE/2331", "DROP TABLE;"} {
		_, err := NormalizeCourseID(bad)
		assert.ErrorIs(t, err, ErrInvalidCourseID, bad)
	}
}
