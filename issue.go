package orchestra

import "strings"

// IssueSeverity categorizes a validation issue.
//
// The set below covers everything local engines emit. Severities are
// free text on the wire: the remote validation service reports its own
// level strings verbatim, so consumers should compare case-insensitively
// (see IsError) rather than against the constants directly.
type IssueSeverity string

const (
	// SeverityFatal indicates validation aborted before completing.
	SeverityFatal IssueSeverity = "FATAL"
	// SeverityError indicates the payload failed a validation rule.
	SeverityError IssueSeverity = "ERROR"
	// SeverityWarning indicates a potential problem that should be reviewed.
	SeverityWarning IssueSeverity = "WARNING"
	// SeverityInformation indicates informational feedback.
	SeverityInformation IssueSeverity = "INFORMATION"
)

// SourceLocation pinpoints where in a payload an issue was found.
// Line and Column are nil when the backend did not report a position.
// Diagnostics carries backend-specific detail; for issues produced by
// failure containment it holds the failure's type name.
type SourceLocation struct {
	Line        *int   `json:"line"`
	Column      *int   `json:"column"`
	Diagnostics string `json:"diagnostics,omitempty"`
}

// Issue is a single validation finding reported by an engine.
type Issue struct {
	Message  string         `json:"message"`
	Location SourceLocation `json:"location"`
	Severity IssueSeverity  `json:"severity"`
}

// NewIssue creates an issue with no source position.
func NewIssue(severity IssueSeverity, message string) Issue {
	return Issue{Severity: severity, Message: message}
}

// At returns a copy of the issue with its source position set.
func (i Issue) At(line, column int) Issue {
	i.Location.Line = &line
	i.Location.Column = &column
	return i
}

// WithDiagnostics returns a copy of the issue with location diagnostics set.
func (i Issue) WithDiagnostics(diagnostics string) Issue {
	i.Location.Diagnostics = diagnostics
	return i
}

// IsError returns true for error or fatal issues. The comparison is
// case-insensitive so that severities reported verbatim by the remote
// validation service ("error") match as well.
func (i Issue) IsError() bool {
	return strings.EqualFold(string(i.Severity), string(SeverityError)) ||
		strings.EqualFold(string(i.Severity), string(SeverityFatal))
}

// IsFatal returns true if the issue was produced by failure containment.
func (i Issue) IsFatal() bool {
	return strings.EqualFold(string(i.Severity), string(SeverityFatal))
}

// IsWarning returns true for warning issues.
func (i Issue) IsWarning() bool {
	return strings.EqualFold(string(i.Severity), string(SeverityWarning))
}

// String returns a human-readable representation of the issue.
func (i Issue) String() string {
	var b strings.Builder
	b.WriteString(string(i.Severity))
	b.WriteString(": ")
	b.WriteString(i.Message)
	if i.Location.Diagnostics != "" {
		b.WriteString(" (")
		b.WriteString(i.Location.Diagnostics)
		b.WriteString(")")
	}
	return b.String()
}

// fatalIssue builds the single issue attached when an engine's validate
// call is aborted by a failure: no position, the failure's type name as
// location diagnostics.
func fatalIssue(message, typeName string) Issue {
	return Issue{
		Message:  message,
		Location: SourceLocation{Diagnostics: typeName},
		Severity: SeverityFatal,
	}
}
