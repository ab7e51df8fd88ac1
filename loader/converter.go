package loader

import (
	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/orchestra/support"
)

// ConvertStructureDefinition converts a generated r4.StructureDefinition
// into the simplified support model.
func ConvertStructureDefinition(sd *r4.StructureDefinition) *support.StructureDefinition {
	if sd == nil {
		return nil
	}

	result := &support.StructureDefinition{
		URL:            derefString(sd.Url),
		Name:           derefString(sd.Name),
		Type:           derefString(sd.Type),
		Kind:           convertKind(sd.Kind),
		Abstract:       derefBool(sd.Abstract),
		BaseDefinition: derefString(sd.BaseDefinition),
		FHIRVersion:    convertFHIRVersion(sd.FhirVersion),
	}

	if sd.Snapshot != nil {
		result.Snapshot = convertElements(sd.Snapshot.Element)
	}
	if sd.Differential != nil {
		result.Differential = convertElements(sd.Differential.Element)
	}

	return result
}

func convertElements(elements []r4.ElementDefinition) []support.ElementDefinition {
	if len(elements) == 0 {
		return nil
	}

	result := make([]support.ElementDefinition, 0, len(elements))
	for i := range elements {
		result = append(result, convertElement(&elements[i]))
	}
	return result
}

func convertElement(ed *r4.ElementDefinition) support.ElementDefinition {
	return support.ElementDefinition{
		ID:          derefString(ed.Id),
		Path:        derefString(ed.Path),
		Min:         convertMin(ed.Min),
		Max:         derefString(ed.Max),
		Types:       convertTypes(ed.Type),
		Binding:     convertBinding(ed.Binding),
		Constraints: convertConstraints(ed.Constraint),
		MustSupport: derefBool(ed.MustSupport),
		IsModifier:  derefBool(ed.IsModifier),
	}
}

func convertTypes(types []r4.ElementDefinitionType) []support.TypeRef {
	if len(types) == 0 {
		return nil
	}

	result := make([]support.TypeRef, 0, len(types))
	for i := range types {
		t := &types[i]
		result = append(result, support.TypeRef{
			Code:          derefString(t.Code),
			Profile:       t.Profile,
			TargetProfile: t.TargetProfile,
		})
	}
	return result
}

func convertBinding(binding *r4.ElementDefinitionBinding) *support.Binding {
	if binding == nil {
		return nil
	}

	return &support.Binding{
		Strength:    convertBindingStrength(binding.Strength),
		ValueSet:    derefString(binding.ValueSet),
		Description: derefString(binding.Description),
	}
}

func convertConstraints(constraints []r4.ElementDefinitionConstraint) []support.Constraint {
	if len(constraints) == 0 {
		return nil
	}

	result := make([]support.Constraint, 0, len(constraints))
	for i := range constraints {
		con := &constraints[i]
		result = append(result, support.Constraint{
			Key:        derefString(con.Key),
			Severity:   convertConstraintSeverity(con.Severity),
			Human:      derefString(con.Human),
			Expression: derefString(con.Expression),
		})
	}
	return result
}

// Pointer deref helpers for the generated r4 structs.

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefBool(b *bool) bool {
	if b == nil {
		return false
	}
	return *b
}

func convertMin(minVal *uint32) int {
	if minVal == nil {
		return 0
	}
	return int(*minVal)
}

func convertKind(kind *r4.StructureDefinitionKind) string {
	if kind == nil {
		return ""
	}
	return string(*kind)
}

func convertFHIRVersion(version *r4.FHIRVersion) string {
	if version == nil {
		return ""
	}
	return string(*version)
}

func convertBindingStrength(strength *r4.BindingStrength) string {
	if strength == nil {
		return ""
	}
	return string(*strength)
}

func convertConstraintSeverity(severity *r4.ConstraintSeverity) string {
	if severity == nil {
		return ""
	}
	return string(*severity)
}
