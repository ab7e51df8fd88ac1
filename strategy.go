package orchestra

import (
	"encoding/json"
	"fmt"
)

// Strategy descriptor engine identifiers, as supplied by external
// callers (e.g. a request header).
const (
	StrategyNameLocalRule         = "HAPI"
	StrategyNameRemoteAPI         = "HL7-Official-API"
	StrategyNameEmbeddedReference = "HL7-Official-Embedded"
)

var strategyEngineTypes = map[string]EngineType{
	StrategyNameLocalRule:         EngineLocalRule,
	StrategyNameRemoteAPI:         EngineRemoteAPI,
	StrategyNameEmbeddedReference: EngineEmbeddedReference,
}

// EngineTypeForName resolves a strategy descriptor identifier to its
// engine type.
func EngineTypeForName(name string) (EngineType, bool) {
	t, ok := strategyEngineTypes[name]
	return t, ok
}

// ParseStrategy interprets a strategy descriptor: JSON text shaped as
// {"engines": ["HAPI", "HL7-Official-API", "HL7-Official-Embedded"]}.
//
// Parsing never fails. Malformed input and unrecognized identifiers
// produce human-readable diagnostics instead of errors, and processing
// continues past each bad identifier. Non-string list items are skipped
// silently. listed reports whether the descriptor was a JSON object
// carrying an engines list at all, independent of whether any
// identifier in it resolved.
func ParseStrategy(raw string) (types []EngineType, diagnostics []string, listed bool) {
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, []string{fmt.Sprintf("validation strategy is not valid JSON: %q: %v", raw, err)}, false
	}

	descriptor, ok := parsed.(map[string]any)
	if !ok {
		return nil, []string{fmt.Sprintf("validation strategy is not a JSON object: %q", raw)}, false
	}

	engines, ok := descriptor["engines"]
	if !ok {
		return nil, []string{fmt.Sprintf("validation strategy has no engines list: %q", raw)}, false
	}
	list, ok := engines.([]any)
	if !ok {
		return nil, []string{fmt.Sprintf("validation strategy engines is not a list: %q", raw)}, false
	}

	for _, item := range list {
		name, ok := item.(string)
		if !ok {
			continue
		}
		t, ok := strategyEngineTypes[name]
		if !ok {
			diagnostics = append(diagnostics, fmt.Sprintf("unknown validation engine %q", name))
			continue
		}
		types = append(types, t)
	}

	return types, diagnostics, true
}
