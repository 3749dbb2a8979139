package research

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ashureev/classgrade/internal/domain"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed assessment.schema.json
var assessmentSchema []byte

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(assessmentSchema))
})

// AssessmentSchema returns the JSON Schema the final answer must satisfy.
func AssessmentSchema() []byte {
	return assessmentSchema
}

// ParseAssessment extracts the first JSON object from a model answer and
// validates it against the schema and the domain bounds. Every failure
// wraps ErrSchemaValidation.
func ParseAssessment(answer []byte) (domain.Assessment, error) {
	obj, err := extractJSONObject(answer)
	if err != nil {
		return domain.Assessment{}, fmt.Errorf("%w: %w", ErrSchemaValidation, err)
	}

	if err := validateSchema(obj); err != nil {
		return domain.Assessment{}, fmt.Errorf("%w: %w", ErrSchemaValidation, err)
	}

	a, err := domain.DecodeAssessment(obj)
	if err != nil {
		return domain.Assessment{}, fmt.Errorf("%w: %w", ErrSchemaValidation, err)
	}
	a = a.Normalized()
	if err := a.Validate(); err != nil {
		return domain.Assessment{}, fmt.Errorf("%w: %w", ErrSchemaValidation, err)
	}
	return a, nil
}

func validateSchema(doc []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("validate document: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.New(strings.Join(msgs, "; "))
}

// extractJSONObject returns the first complete JSON object in s, skipping
// any prose or code fences around it.
func extractJSONObject(s []byte) ([]byte, error) {
	start := bytes.IndexByte(s, '{')
	if start < 0 {
		return nil, errors.New("no JSON object in final answer")
	}

	var obj json.RawMessage
	if err := json.NewDecoder(bytes.NewReader(s[start:])).Decode(&obj); err != nil {
		return nil, fmt.Errorf("parse final answer: %w", err)
	}
	return obj, nil
}
