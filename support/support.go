// Package support defines the layered validation-support model used by
// the local rule engine: small sources that resolve profiles and
// terminology, a first-match-wins chain over ordered layers, and a
// caching wrapper.
package support

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a source does not know a resource.
var ErrNotFound = errors.New("resource not found")

// ErrNotSupported is returned when a source cannot answer a question.
var ErrNotSupported = errors.New("operation not supported")

// StructureDefinition is a simplified internal representation of a
// FHIR StructureDefinition.
type StructureDefinition struct {
	URL            string
	Name           string
	Type           string
	Kind           string
	Abstract       bool
	BaseDefinition string
	FHIRVersion    string
	Snapshot       []ElementDefinition
	Differential   []ElementDefinition
}

// ElementDefinition is a simplified internal representation of a FHIR
// ElementDefinition.
type ElementDefinition struct {
	ID          string
	Path        string
	Min         int
	Max         string
	Types       []TypeRef
	Binding     *Binding
	Constraints []Constraint
	MustSupport bool
	IsModifier  bool
}

// TypeRef represents a type reference in an ElementDefinition.
type TypeRef struct {
	Code          string
	Profile       []string
	TargetProfile []string
}

// Binding represents a terminology binding.
type Binding struct {
	Strength    string
	ValueSet    string
	Description string
}

// Constraint represents a FHIRPath invariant attached to an element.
type Constraint struct {
	Key        string
	Severity   string
	Human      string
	Expression string
}

// CodeValidation holds the result of validating a code against a
// terminology source.
type CodeValidation struct {
	Valid   bool
	Message string
	Display string
	Code    string
	System  string
}

// ProfileSource resolves profile URLs and base resource types to
// StructureDefinitions.
type ProfileSource interface {
	StructureDefinitionByURL(ctx context.Context, url string) (*StructureDefinition, error)
	StructureDefinitionByType(ctx context.Context, resourceType string) (*StructureDefinition, error)
}

// TerminologySource validates codes, optionally against a ValueSet.
type TerminologySource interface {
	ValidateCode(ctx context.Context, system, code, valueSetURL string) (*CodeValidation, error)
}

// Source is one full layer of the support chain. Layers that cover only
// one concern embed NullProfileSource or NullTerminologySource for the
// other.
type Source interface {
	ProfileSource
	TerminologySource
}
