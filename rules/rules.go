package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofhir/fhirpath"
	"github.com/gofhir/fhirpath/types"

	"github.com/gofhir/orchestra/cache"
	"github.com/gofhir/orchestra/support"
)

// defaultExpressionCacheSize bounds the compiled FHIRPath expression
// cache. Core invariants repeat heavily across resources, so a small
// cache covers most workloads.
const defaultExpressionCacheSize = 256

// Fields every resource may carry regardless of its definition.
var commonResourceFields = []string{
	"resourceType", "id", "meta", "implicitRules", "language",
	"text", "contained", "extension", "modifierExtension",
}

// Engine evaluates resources against the profiles and terminology
// exposed by a support source. It is safe for concurrent use.
type Engine struct {
	source      support.Source
	expressions *cache.Cache[string, *fhirpath.Expression]
}

// New creates an engine backed by the given support source.
func New(source support.Source) *Engine {
	return &Engine{
		source:      source,
		expressions: cache.New[string, *fhirpath.Expression](defaultExpressionCacheSize),
	}
}

// Validate checks a JSON resource against its base type definition and,
// when profileURL is not empty, against that profile. It returns an
// error only when the resource cannot be parsed or the requested
// profile cannot be resolved; validation findings are reported through
// the outcome.
func (e *Engine) Validate(ctx context.Context, resource []byte, profileURL string) (*Outcome, error) {
	var parsed map[string]any
	if err := json.Unmarshal(resource, &parsed); err != nil {
		return nil, fmt.Errorf("parse resource: %w", err)
	}

	var profile *support.StructureDefinition
	if profileURL != "" {
		sd, err := e.source.StructureDefinitionByURL(ctx, profileURL)
		if err != nil {
			return nil, fmt.Errorf("resolve profile %q: %w", profileURL, err)
		}
		profile = sd
	}

	out := &Outcome{}
	e.validateResource(ctx, out, parsed, "", profile)
	return out, nil
}

// CachedExpressions returns the number of compiled FHIRPath
// expressions currently cached.
func (e *Engine) CachedExpressions() int {
	return e.expressions.Len()
}

// validateResource runs every check against one resource object.
// pathPrefix is empty for the top-level resource and names the
// containing element for bundle entries.
func (e *Engine) validateResource(ctx context.Context, out *Outcome, resource map[string]any, pathPrefix string, profile *support.StructureDefinition) {
	resourceType, _ := resource["resourceType"].(string)
	if resourceType == "" {
		out.add(Message{
			Severity: SeverityError,
			Code:     CodeStructure,
			Text:     "resource has no resourceType",
			Path:     joinPath(pathPrefix, "resourceType"),
		})
		return
	}

	var defs []*support.StructureDefinition
	base, err := e.source.StructureDefinitionByType(ctx, resourceType)
	switch {
	case err == nil:
		defs = append(defs, base)
	case errors.Is(err, support.ErrNotFound), errors.Is(err, support.ErrNotSupported):
		out.add(Message{
			Severity: SeverityWarning,
			Code:     CodeStructure,
			Text:     fmt.Sprintf("no definition available for resource type %q", resourceType),
			Path:     rootPath(pathPrefix, resourceType),
		})
	default:
		out.add(Message{
			Severity: SeverityWarning,
			Code:     CodeStructure,
			Text:     fmt.Sprintf("definition lookup for resource type %q failed: %v", resourceType, err),
			Path:     rootPath(pathPrefix, resourceType),
		})
	}
	if profile != nil && (base == nil || profile.URL != base.URL) {
		defs = append(defs, profile)
	}

	known := make(map[string]bool, len(commonResourceFields))
	for _, field := range commonResourceFields {
		known[field] = true
	}
	for _, def := range defs {
		e.checkElements(ctx, out, def, resource, resourceType, pathPrefix, known)
	}

	// Unknown-element detection needs at least one definition to check
	// against, otherwise every field would be flagged.
	if len(defs) > 0 {
		for field := range resource {
			if !known[field] {
				out.add(Message{
					Severity: SeverityWarning,
					Code:     CodeStructure,
					Text:     fmt.Sprintf("unknown element %q", field),
					Path:     elementPath(pathPrefix, resourceType, resourceType+"."+field),
				})
			}
		}
	}

	if encoded, err := json.Marshal(resource); err == nil {
		for _, def := range defs {
			for _, el := range def.Snapshot {
				if el.Path != resourceType {
					continue
				}
				for _, c := range el.Constraints {
					e.checkConstraint(out, c, encoded, rootPath(pathPrefix, resourceType))
				}
			}
		}
	}

	if resourceType == "Bundle" {
		e.checkBundleEntries(ctx, out, resource, pathPrefix)
	}
}

// checkElements applies cardinality and terminology checks for the
// direct children of the resource root in one definition's snapshot.
func (e *Engine) checkElements(ctx context.Context, out *Outcome, def *support.StructureDefinition, resource map[string]any, resourceType, pathPrefix string, known map[string]bool) {
	for _, el := range def.Snapshot {
		field, ok := childField(el.Path, resourceType)
		if !ok {
			continue
		}

		value, present := resource[field]
		if choice := strings.TrimSuffix(field, "[x]"); choice != field {
			// Choice elements appear under a concrete type suffix,
			// e.g. value[x] as valueQuantity.
			value, present = choiceValue(resource, choice, known)
		} else {
			known[field] = true
		}

		path := elementPath(pathPrefix, resourceType, el.Path)

		if !present {
			if el.Min > 0 {
				out.add(Message{
					Severity: SeverityError,
					Code:     CodeRequired,
					Text:     fmt.Sprintf("element %s is required but missing", el.Path),
					Path:     path,
				})
			}
			continue
		}

		if _, repeats := value.([]any); repeats && el.Max == "1" {
			out.add(Message{
				Severity: SeverityError,
				Code:     CodeStructure,
				Text:     fmt.Sprintf("element %s has cardinality ..1 but repeats", el.Path),
				Path:     path,
			})
		}

		if el.Binding != nil && el.Binding.Strength == "required" {
			e.checkBinding(ctx, out, el.Binding, value, path)
		}
	}
}

// checkBinding validates coded values against a required binding.
// Sources that do not know the system or ValueSet are skipped rather
// than reported, so partial terminology coverage never fails a
// resource.
func (e *Engine) checkBinding(ctx context.Context, out *Outcome, binding *support.Binding, value any, path string) {
	switch v := value.(type) {
	case string:
		e.validateCode(ctx, out, binding, "", v, path)
	case []any:
		for _, item := range v {
			e.checkBinding(ctx, out, binding, item, path)
		}
	case map[string]any:
		if codings, ok := v["coding"].([]any); ok {
			for _, raw := range codings {
				coding, ok := raw.(map[string]any)
				if !ok {
					continue
				}
				system, _ := coding["system"].(string)
				code, _ := coding["code"].(string)
				e.validateCode(ctx, out, binding, system, code, path)
			}
			return
		}
		if code, ok := v["code"].(string); ok {
			system, _ := v["system"].(string)
			e.validateCode(ctx, out, binding, system, code, path)
		}
	}
}

func (e *Engine) validateCode(ctx context.Context, out *Outcome, binding *support.Binding, system, code, path string) {
	result, err := e.source.ValidateCode(ctx, system, code, binding.ValueSet)
	if err != nil {
		// Unknown systems and source failures leave the code unchecked.
		return
	}
	if result.Valid {
		return
	}

	text := result.Message
	if text == "" {
		text = fmt.Sprintf("code %q is not valid for ValueSet %s", code, binding.ValueSet)
	}
	out.add(Message{
		Severity: SeverityError,
		Code:     CodeCodeInvalid,
		Text:     text,
		Path:     path,
	})
}

// checkConstraint evaluates one FHIRPath invariant against the encoded
// resource. Expressions that fail to compile or evaluate degrade to a
// warning instead of failing the resource.
func (e *Engine) checkConstraint(out *Outcome, c support.Constraint, encoded []byte, path string) {
	compiled, err := e.compile(c.Expression)
	if err != nil {
		out.add(Message{
			Severity: SeverityWarning,
			Code:     CodeInvariant,
			Text:     fmt.Sprintf("constraint %s could not be evaluated: %v", c.Key, err),
			Path:     path,
			Key:      c.Key,
		})
		return
	}

	result, err := compiled.Evaluate(encoded)
	if err != nil {
		out.add(Message{
			Severity: SeverityWarning,
			Code:     CodeInvariant,
			Text:     fmt.Sprintf("constraint %s could not be evaluated: %v", c.Key, err),
			Path:     path,
			Key:      c.Key,
		})
		return
	}

	if constraintHolds(result) {
		return
	}

	severity := SeverityWarning
	if c.Severity == "error" {
		severity = SeverityError
	}
	out.add(Message{
		Severity: severity,
		Code:     CodeInvariant,
		Text:     fmt.Sprintf("%s: %s", c.Key, c.Human),
		Path:     path,
		Key:      c.Key,
	})
}

// checkBundleEntries validates each entry resource of a Bundle against
// its own base definition.
func (e *Engine) checkBundleEntries(ctx context.Context, out *Outcome, resource map[string]any, pathPrefix string) {
	entries, ok := resource["entry"].([]any)
	if !ok {
		return
	}

	for i, raw := range entries {
		entryPath := elementPath(pathPrefix, "Bundle", fmt.Sprintf("Bundle.entry[%d]", i))

		entry, ok := raw.(map[string]any)
		if !ok {
			out.add(Message{
				Severity: SeverityError,
				Code:     CodeStructure,
				Text:     fmt.Sprintf("bundle entry %d is not an object", i),
				Path:     entryPath,
			})
			continue
		}

		embedded, present := entry["resource"]
		if !present {
			continue
		}
		entryResource, ok := embedded.(map[string]any)
		if !ok {
			out.add(Message{
				Severity: SeverityError,
				Code:     CodeStructure,
				Text:     fmt.Sprintf("bundle entry %d resource is not an object", i),
				Path:     entryPath + ".resource",
			})
			continue
		}

		e.validateResource(ctx, out, entryResource, entryPath+".resource", nil)
	}
}

// compile returns a cached compiled expression or compiles and caches
// a new one.
func (e *Engine) compile(expression string) (*fhirpath.Expression, error) {
	if compiled, ok := e.expressions.Get(expression); ok {
		return compiled, nil
	}

	compiled, err := fhirpath.Compile(expression)
	if err != nil {
		return nil, err
	}

	e.expressions.Set(expression, compiled)
	return compiled, nil
}

// constraintHolds interprets a FHIRPath result as an invariant
// verdict. An invariant is violated only when the expression yields
// false; an empty collection means the invariant does not apply.
func constraintHolds(result types.Collection) bool {
	if len(result) == 0 {
		return true
	}
	if len(result) == 1 {
		if b, ok := result[0].(types.Boolean); ok {
			return b.Bool()
		}
	}
	return true
}

// childField extracts the field name when path is a direct child of
// resourceType, e.g. "Observation.status" yields "status".
func childField(path, resourceType string) (string, bool) {
	rest, ok := strings.CutPrefix(path, resourceType+".")
	if !ok || rest == "" || strings.Contains(rest, ".") {
		return "", false
	}
	return rest, true
}

// choiceValue locates the concrete field backing a choice element and
// records it as known.
func choiceValue(resource map[string]any, base string, known map[string]bool) (any, bool) {
	for field, value := range resource {
		if len(field) > len(base) && strings.HasPrefix(field, base) {
			known[field] = true
			return value, true
		}
	}
	return nil, false
}

func joinPath(prefix, path string) string {
	if prefix == "" {
		return path
	}
	return prefix + "." + path
}

// elementPath rewrites an element path relative to the containing
// element, so nested findings read Bundle.entry[0].resource.status
// instead of Observation.status.
func elementPath(prefix, resourceType, path string) string {
	if prefix == "" {
		return path
	}
	return prefix + strings.TrimPrefix(path, resourceType)
}

func rootPath(prefix, resourceType string) string {
	if prefix == "" {
		return resourceType
	}
	return prefix
}
