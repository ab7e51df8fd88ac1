package terminology

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/orchestra/support"
)

// MemorySource is an in-memory terminology layer. It holds CodeSystems
// and ValueSets loaded from fetched resources and validates codes
// against them. It knows nothing about profiles.
type MemorySource struct {
	support.NullProfileSource

	mu          sync.RWMutex
	valueSets   map[string]*valueSetData
	codeSystems map[string]*codeSystemData
}

// valueSetData holds the expanded codes of one ValueSet.
type valueSetData struct {
	url   string
	codes map[string]map[string]codeEntry // system -> code -> entry
}

// codeSystemData holds the codes of one CodeSystem.
type codeSystemData struct {
	url   string
	codes map[string]codeEntry
}

// codeEntry is one code with its display text.
type codeEntry struct {
	code    string
	display string
	system  string
}

// NewMemorySource creates an empty in-memory terminology source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		valueSets:   make(map[string]*valueSetData),
		codeSystems: make(map[string]*codeSystemData),
	}
}

// LoadCodeSystem loads an R4 CodeSystem into the source.
func (s *MemorySource) LoadCodeSystem(cs *r4.CodeSystem) error {
	if cs == nil || cs.Url == nil {
		return fmt.Errorf("codesystem is nil or has no URL")
	}

	data := &codeSystemData{
		url:   *cs.Url,
		codes: make(map[string]codeEntry),
	}
	collectConcepts(cs.Concept, data)

	s.mu.Lock()
	s.codeSystems[*cs.Url] = data
	s.mu.Unlock()

	return nil
}

// LoadValueSet loads an R4 ValueSet into the source. Codes come from
// the expansion when present, otherwise from explicitly composed
// concepts; an include without concepts pulls every code of the named
// system that is already loaded.
func (s *MemorySource) LoadValueSet(vs *r4.ValueSet) error {
	if vs == nil || vs.Url == nil {
		return fmt.Errorf("valueset is nil or has no URL")
	}

	data := &valueSetData{
		url:   *vs.Url,
		codes: make(map[string]map[string]codeEntry),
	}

	if vs.Expansion != nil {
		collectExpansion(vs.Expansion.Contains, data)
	} else if vs.Compose != nil {
		s.collectCompose(vs.Compose, data)
	}

	s.mu.Lock()
	s.valueSets[*vs.Url] = data
	s.mu.Unlock()

	return nil
}

// LoadCodeSystemJSON parses and loads a CodeSystem JSON document.
func (s *MemorySource) LoadCodeSystemJSON(data []byte) error {
	var cs r4.CodeSystem
	if err := json.Unmarshal(data, &cs); err != nil {
		return fmt.Errorf("parse CodeSystem: %w", err)
	}
	return s.LoadCodeSystem(&cs)
}

// LoadValueSetJSON parses and loads a ValueSet JSON document.
func (s *MemorySource) LoadValueSetJSON(data []byte) error {
	var vs r4.ValueSet
	if err := json.Unmarshal(data, &vs); err != nil {
		return fmt.Errorf("parse ValueSet: %w", err)
	}
	return s.LoadValueSet(&vs)
}

// ValidateCode implements support.TerminologySource. A system that is
// not loaded answers ErrNotSupported so the next chain layer can try.
func (s *MemorySource) ValidateCode(ctx context.Context, system, code, valueSetURL string) (*support.CodeValidation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if code == "" {
		return &support.CodeValidation{Valid: false, Message: "code is empty"}, nil
	}

	// Canonical URLs may carry a version suffix ("url|4.0.1").
	valueSetURL = stripVersion(valueSetURL)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if valueSetURL != "" {
		vs, ok := s.valueSets[valueSetURL]
		if !ok {
			return nil, support.ErrNotSupported
		}

		if system != "" {
			if entry, ok := vs.codes[system][code]; ok {
				return &support.CodeValidation{Valid: true, Display: entry.display, Code: code, System: system}, nil
			}
		} else {
			for _, systemCodes := range vs.codes {
				if entry, ok := systemCodes[code]; ok {
					return &support.CodeValidation{Valid: true, Display: entry.display, Code: code, System: entry.system}, nil
				}
			}
		}

		return &support.CodeValidation{
			Valid:   false,
			Message: fmt.Sprintf("code %q not found in ValueSet %q", code, valueSetURL),
			Code:    code,
			System:  system,
		}, nil
	}

	if system == "" {
		return nil, support.ErrNotSupported
	}

	cs, ok := s.codeSystems[system]
	if !ok {
		return nil, support.ErrNotSupported
	}

	if entry, ok := cs.codes[code]; ok {
		return &support.CodeValidation{Valid: true, Display: entry.display, Code: code, System: system}, nil
	}

	return &support.CodeValidation{
		Valid:   false,
		Message: fmt.Sprintf("code %q not found in CodeSystem %q", code, system),
		Code:    code,
		System:  system,
	}, nil
}

// CountCodeSystems returns the number of loaded CodeSystems.
func (s *MemorySource) CountCodeSystems() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.codeSystems)
}

// CountValueSets returns the number of loaded ValueSets.
func (s *MemorySource) CountValueSets() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.valueSets)
}

func collectConcepts(concepts []r4.CodeSystemConcept, data *codeSystemData) {
	for i := range concepts {
		concept := &concepts[i]
		if concept.Code == nil {
			continue
		}

		display := ""
		if concept.Display != nil {
			display = *concept.Display
		}

		data.codes[*concept.Code] = codeEntry{
			code:    *concept.Code,
			display: display,
			system:  data.url,
		}

		if len(concept.Concept) > 0 {
			collectConcepts(concept.Concept, data)
		}
	}
}

func collectExpansion(contains []r4.ValueSetExpansionContains, data *valueSetData) {
	for i := range contains {
		c := &contains[i]
		if c.Code != nil && c.System != nil {
			system := *c.System
			if data.codes[system] == nil {
				data.codes[system] = make(map[string]codeEntry)
			}

			display := ""
			if c.Display != nil {
				display = *c.Display
			}

			data.codes[system][*c.Code] = codeEntry{
				code:    *c.Code,
				display: display,
				system:  system,
			}
		}

		if len(c.Contains) > 0 {
			collectExpansion(c.Contains, data)
		}
	}
}

// collectCompose must be called before the ValueSet is published; it
// reads loaded CodeSystems under the caller's lock-free window, so it
// takes the read lock itself.
func (s *MemorySource) collectCompose(compose *r4.ValueSetCompose, data *valueSetData) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range compose.Include {
		include := &compose.Include[i]
		if include.System == nil {
			continue
		}

		system := *include.System
		if data.codes[system] == nil {
			data.codes[system] = make(map[string]codeEntry)
		}

		for j := range include.Concept {
			concept := &include.Concept[j]
			if concept.Code == nil {
				continue
			}

			display := ""
			if concept.Display != nil {
				display = *concept.Display
			}

			data.codes[system][*concept.Code] = codeEntry{
				code:    *concept.Code,
				display: display,
				system:  system,
			}
		}

		// An include without concepts means the whole system.
		if len(include.Concept) == 0 {
			if cs, ok := s.codeSystems[system]; ok {
				for code, entry := range cs.codes {
					data.codes[system][code] = entry
				}
			}
		}
	}
}

// stripVersion removes the "|version" suffix from a canonical URL.
func stripVersion(url string) string {
	if idx := strings.LastIndex(url, "|"); idx != -1 {
		return url[:idx]
	}
	return url
}

// Verify interface compliance
var _ support.Source = (*MemorySource)(nil)
