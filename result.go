package orchestra

import "time"

// ValidationResult is the outcome of validating one payload with one
// engine. It is immutable once produced.
type ValidationResult struct {
	// InitiatedAt and CompletedAt bracket the validation call.
	// CompletedAt is never before InitiatedAt.
	InitiatedAt time.Time `json:"initiatedAt"`
	CompletedAt time.Time `json:"completedAt"`

	// ProfileURL is the primary profile the payload was validated
	// against, empty when none was requested.
	ProfileURL string `json:"profileUrl,omitempty"`

	// Observability identifies the engine that produced this result.
	Observability Observability `json:"observability"`

	// Valid is the engine's overall verdict.
	Valid bool `json:"valid"`

	// OutcomeDocument is the backend-specific serialized outcome, such
	// as an OperationOutcome JSON document. May be empty.
	OutcomeDocument string `json:"outcomeDocument,omitempty"`

	// Issues lists the findings in the order the engine reported them.
	Issues []Issue `json:"issues"`
}

// ErrorCount returns the number of error or fatal issues.
func (r ValidationResult) ErrorCount() int {
	count := 0
	for _, issue := range r.Issues {
		if issue.IsError() {
			count++
		}
	}
	return count
}

// WarningCount returns the number of warning issues.
func (r ValidationResult) WarningCount() int {
	count := 0
	for _, issue := range r.Issues {
		if issue.IsWarning() {
			count++
		}
	}
	return count
}

// Duration returns how long the validation call took.
func (r ValidationResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.InitiatedAt)
}

// containedResult builds the result returned when an engine call is
// aborted by a failure: invalid, with exactly one FATAL issue naming
// the failure.
func containedResult(initiatedAt time.Time, profileURL string, obs Observability, message, typeName string) ValidationResult {
	return ValidationResult{
		InitiatedAt:   initiatedAt,
		CompletedAt:   time.Now(),
		ProfileURL:    profileURL,
		Observability: obs,
		Valid:         false,
		Issues:        []Issue{fatalIssue(message, typeName)},
	}
}
