package research

import "errors"

// Research failure taxonomy. Callers match with errors.Is.
var (
	// ErrSchemaValidation means the final answer did not conform to the
	// assessment schema. It is not retried.
	ErrSchemaValidation = errors.New("schema validation failed")

	// ErrResearchIncomplete means no valid final answer was produced within
	// the round limit or the research timeout.
	ErrResearchIncomplete = errors.New("research incomplete")

	// ErrCapabilityUnavailable means the search capability kept failing after
	// bounded retries. The agent surfaces it wrapped in ErrResearchIncomplete.
	ErrCapabilityUnavailable = errors.New("capability unavailable")
)
