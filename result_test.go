package orchestra

import (
	"testing"
	"time"
)

func TestValidationResult_Counts(t *testing.T) {
	result := ValidationResult{
		Issues: []Issue{
			NewIssue(SeverityFatal, "f"),
			NewIssue(SeverityError, "e"),
			NewIssue(IssueSeverity("error"), "remote e"),
			NewIssue(SeverityWarning, "w"),
			NewIssue(SeverityInformation, "i"),
		},
	}

	if got := result.ErrorCount(); got != 3 {
		t.Errorf("ErrorCount() = %d; want 3", got)
	}
	if got := result.WarningCount(); got != 1 {
		t.Errorf("WarningCount() = %d; want 1", got)
	}
}

func TestValidationResult_Duration(t *testing.T) {
	start := time.Now()
	result := ValidationResult{
		InitiatedAt: start,
		CompletedAt: start.Add(250 * time.Millisecond),
	}

	if got := result.Duration(); got != 250*time.Millisecond {
		t.Errorf("Duration() = %v; want 250ms", got)
	}
}

func TestContainedResult(t *testing.T) {
	initiated := time.Now()
	obs := Observability{Identity: "id", Name: "Local Rule Engine"}

	result := containedResult(initiated, "http://example.com/profile", obs, "boom", "*errors.errorString")

	if result.Valid {
		t.Error("Valid = true; want false")
	}
	if len(result.Issues) != 1 {
		t.Fatalf("issue count = %d; want exactly 1", len(result.Issues))
	}
	if !result.Issues[0].IsFatal() {
		t.Errorf("issue severity = %q; want FATAL", result.Issues[0].Severity)
	}
	if result.Issues[0].Message != "boom" {
		t.Errorf("issue message = %q; want boom", result.Issues[0].Message)
	}
	if result.CompletedAt.Before(result.InitiatedAt) {
		t.Error("CompletedAt is before InitiatedAt")
	}
	if result.Observability != obs {
		t.Error("observability was not propagated")
	}
	if result.ProfileURL != "http://example.com/profile" {
		t.Errorf("profile URL = %q", result.ProfileURL)
	}
}
