// Package rules implements the local validation backend: bounded
// structural, cardinality, terminology, and FHIRPath invariant checks
// evaluated against a layered validation-support source. It produces a
// native Outcome that renders to an OperationOutcome JSON document.
package rules

import (
	"encoding/json"
	"strings"
)

// Message severities.
const (
	SeverityFatal       = "fatal"
	SeverityError       = "error"
	SeverityWarning     = "warning"
	SeverityInformation = "information"
)

// Issue codes used in the rendered OperationOutcome.
const (
	CodeStructure     = "structure"
	CodeRequired      = "required"
	CodeCodeInvalid   = "code-invalid"
	CodeInvariant     = "invariant"
	CodeInformational = "informational"
)

// Message is one validation finding.
type Message struct {
	Severity string // fatal, error, warning, information
	Code     string // OperationOutcome issue code
	Text     string
	Path     string // element path the finding applies to
	Key      string // constraint key, when the finding is an invariant
}

// Outcome is the native result of one local validation run.
type Outcome struct {
	Messages []Message
}

// add appends a message to the outcome.
func (o *Outcome) add(m Message) {
	o.Messages = append(o.Messages, m)
}

// Successful reports whether the outcome carries no error or fatal
// messages.
func (o *Outcome) Successful() bool {
	for _, m := range o.Messages {
		if m.Severity == SeverityError || m.Severity == SeverityFatal {
			return false
		}
	}
	return true
}

// ErrorCount returns the number of error and fatal messages.
func (o *Outcome) ErrorCount() int {
	count := 0
	for _, m := range o.Messages {
		if m.Severity == SeverityError || m.Severity == SeverityFatal {
			count++
		}
	}
	return count
}

// outcomeIssue is the wire shape of one OperationOutcome issue.
type outcomeIssue struct {
	Severity    string   `json:"severity"`
	Code        string   `json:"code"`
	Diagnostics string   `json:"diagnostics,omitempty"`
	Expression  []string `json:"expression,omitempty"`
}

// operationOutcome is the wire shape of the rendered document.
type operationOutcome struct {
	ResourceType string         `json:"resourceType"`
	Issue        []outcomeIssue `json:"issue"`
}

// Document renders the outcome as OperationOutcome JSON. An outcome
// without messages renders a single informational issue, so the
// document always carries at least one issue.
func (o *Outcome) Document() string {
	doc := operationOutcome{ResourceType: "OperationOutcome"}

	if len(o.Messages) == 0 {
		doc.Issue = []outcomeIssue{{
			Severity:    SeverityInformation,
			Code:        CodeInformational,
			Diagnostics: "All OK",
		}}
	} else {
		doc.Issue = make([]outcomeIssue, 0, len(o.Messages))
		for _, m := range o.Messages {
			issue := outcomeIssue{
				Severity:    m.Severity,
				Code:        m.Code,
				Diagnostics: m.Text,
			}
			if m.Path != "" {
				issue.Expression = []string{m.Path}
			}
			doc.Issue = append(doc.Issue, issue)
		}
	}

	rendered, err := json.Marshal(doc)
	if err != nil {
		// The document shape contains only strings; marshaling cannot
		// fail in practice.
		return `{"resourceType":"OperationOutcome","issue":[]}`
	}
	return string(rendered)
}

// String returns a compact human-readable summary.
func (o *Outcome) String() string {
	if len(o.Messages) == 0 {
		return "valid"
	}

	var b strings.Builder
	for i, m := range o.Messages {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(m.Severity)
		b.WriteString(": ")
		b.WriteString(m.Text)
	}
	return b.String()
}
