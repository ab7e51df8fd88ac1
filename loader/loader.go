package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gofhir/fhir/r4"

	"github.com/gofhir/orchestra/support"
)

// Prepopulated is an in-memory profile layer indexed by canonical URL
// and by base resource type. It knows nothing about terminology.
type Prepopulated struct {
	support.NullTerminologySource

	mu     sync.RWMutex
	byURL  map[string]*support.StructureDefinition
	byType map[string]*support.StructureDefinition
}

// NewPrepopulated creates an empty pre-populated profile source.
func NewPrepopulated() *Prepopulated {
	return &Prepopulated{
		byURL:  make(map[string]*support.StructureDefinition),
		byType: make(map[string]*support.StructureDefinition),
	}
}

// Load converts and indexes an R4 StructureDefinition.
func (p *Prepopulated) Load(sd *r4.StructureDefinition) error {
	if sd == nil {
		return fmt.Errorf("structure definition is nil")
	}

	converted := ConvertStructureDefinition(sd)
	if converted == nil || converted.URL == "" {
		return fmt.Errorf("structure definition has no URL")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.byURL[converted.URL] = converted

	// Index by type only for THE base definition of the type, so that
	// profiles never shadow the base.
	if converted.Type != "" && isBaseTypeDefinition(converted.URL, converted.Type) {
		p.byType[converted.Type] = converted
	}

	return nil
}

// LoadJSON parses and loads StructureDefinition JSON. A Bundle loads
// every StructureDefinition entry; other resource types are rejected.
// Returns the number of definitions loaded.
func (p *Prepopulated) LoadJSON(data []byte) (int, error) {
	var probe struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0, fmt.Errorf("invalid JSON: %w", err)
	}

	switch probe.ResourceType {
	case "Bundle":
		return p.loadBundle(data)
	case "StructureDefinition":
		var sd r4.StructureDefinition
		if err := json.Unmarshal(data, &sd); err != nil {
			return 0, fmt.Errorf("parse StructureDefinition: %w", err)
		}
		if err := p.Load(&sd); err != nil {
			return 0, err
		}
		return 1, nil
	default:
		return 0, fmt.Errorf("unsupported resourceType: %q", probe.ResourceType)
	}
}

func (p *Prepopulated) loadBundle(data []byte) (int, error) {
	var bundle struct {
		Entry []struct {
			Resource json.RawMessage `json:"resource"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(data, &bundle); err != nil {
		return 0, fmt.Errorf("parse Bundle: %w", err)
	}

	count := 0
	for _, entry := range bundle.Entry {
		if entry.Resource == nil {
			continue
		}

		var probe struct {
			ResourceType string `json:"resourceType"`
		}
		if err := json.Unmarshal(entry.Resource, &probe); err != nil {
			continue
		}
		if probe.ResourceType != "StructureDefinition" {
			continue
		}

		var sd r4.StructureDefinition
		if err := json.Unmarshal(entry.Resource, &sd); err != nil {
			continue
		}
		if err := p.Load(&sd); err != nil {
			continue
		}
		count++
	}

	return count, nil
}

// StructureDefinitionByURL implements support.ProfileSource.
func (p *Prepopulated) StructureDefinitionByURL(ctx context.Context, url string) (*support.StructureDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if sd, ok := p.byURL[url]; ok {
		return sd, nil
	}
	return nil, support.ErrNotFound
}

// StructureDefinitionByType implements support.ProfileSource. Complex
// types not indexed by type fall back to the canonical core URL.
func (p *Prepopulated) StructureDefinitionByType(ctx context.Context, resourceType string) (*support.StructureDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if sd, ok := p.byType[resourceType]; ok {
		return sd, nil
	}
	if sd, ok := p.byURL[coreDefinitionPrefix+resourceType]; ok {
		return sd, nil
	}
	return nil, support.ErrNotFound
}

// Count returns the number of loaded StructureDefinitions.
func (p *Prepopulated) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byURL)
}

const coreDefinitionPrefix = "http://hl7.org/fhir/StructureDefinition/"

// isBaseTypeDefinition reports whether url is THE core definition for
// typeName, e.g. .../StructureDefinition/Patient for Patient.
func isBaseTypeDefinition(url, typeName string) bool {
	return typeName != "" && url == coreDefinitionPrefix+typeName
}

// Verify interface compliance
var _ support.Source = (*Prepopulated)(nil)
