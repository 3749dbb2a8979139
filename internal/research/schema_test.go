package research

import (
	"testing"

	"github.com/ashureev/classgrade/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAssessmentExtractsObject(t *testing.T) {
	answer := "Here is my assessment:\n```json\n" + validAnswer + "\n```\nLet me know if you need more."
	a, err := ParseAssessment([]byte(answer))
	require.NoError(t, err)
	assert.Equal(t, 73, a.Score)
	assert.Equal(t, []string{"algorithms"}, a.Tags)
}

func TestParseAssessmentRejectsValidationErrors(t *testing.T) {
	_, err := ParseAssessment([]byte(`{"score": 5, "creditHours": 3, "summary": "   ", "timeLoadHours": 1}`))
	require.ErrorIs(t, err, ErrSchemaValidation)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "summary", verr.Fields[0].Field)
}

func TestParseAssessmentRoundTripStaysValid(t *testing.T) {
	a, err := ParseAssessment([]byte(validAnswer))
	require.NoError(t, err)
	require.NoError(t, a.Validate())
	assert.Equal(t, a, a.Normalized())
}

func TestSystemPromptEmbedsSchema(t *testing.T) {
	prompt := buildSystemPrompt()
	assert.Contains(t, prompt, `"timeLoadHours"`)
	assert.Contains(t, prompt, "confidence to 0.4 or lower")
}
