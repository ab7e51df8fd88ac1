package support

import "context"

// NullProfileSource answers every profile question with ErrNotFound.
// Terminology-only layers embed it.
type NullProfileSource struct{}

// StructureDefinitionByURL always returns ErrNotFound.
func (NullProfileSource) StructureDefinitionByURL(_ context.Context, _ string) (*StructureDefinition, error) {
	return nil, ErrNotFound
}

// StructureDefinitionByType always returns ErrNotFound.
func (NullProfileSource) StructureDefinitionByType(_ context.Context, _ string) (*StructureDefinition, error) {
	return nil, ErrNotFound
}

// NullTerminologySource answers every terminology question with
// ErrNotSupported. Profile-only layers embed it.
type NullTerminologySource struct{}

// ValidateCode always returns ErrNotSupported.
func (NullTerminologySource) ValidateCode(_ context.Context, _, _, _ string) (*CodeValidation, error) {
	return nil, ErrNotSupported
}

// NullSource is a full no-op layer.
type NullSource struct {
	NullProfileSource
	NullTerminologySource
}

// Verify interface compliance
var _ Source = NullSource{}
