package orchestra

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/gofhir/orchestra/specs"
)

// EngineKey identifies one cached engine instance. Two requests with
// the same type and profile URL name the identical engine, even when
// their reference-resource maps differ; the first build wins.
type EngineKey struct {
	Type       EngineType
	ProfileURL string
}

// String returns the key in "type|profileURL" form, used as the
// single-flight group key.
func (k EngineKey) String() string {
	return string(k.Type) + "|" + k.ProfileURL
}

// EngineRegistry memoizes engine instances by EngineKey. For a fixed
// key every caller observes the same instance for the process lifetime,
// including under concurrent first access: construction is serialized
// per key through a single-flight group, so racing callers share
// exactly one build.
type EngineRegistry struct {
	opts Options

	mu      sync.RWMutex
	engines map[EngineKey]ValidationEngine
	group   singleflight.Group
}

// NewEngineRegistry creates an empty registry.
func NewEngineRegistry(opts Options) *EngineRegistry {
	return &EngineRegistry{
		opts:    opts,
		engines: make(map[EngineKey]ValidationEngine),
	}
}

// GetOrCreate returns the engine for (engineType, profileURL), building
// it on first access. The reference-resource maps are captured by the
// Local Rule Engine at construction; later calls with different maps
// silently reuse the first instance. An unknown engine type returns a
// *ConfigurationError.
func (r *EngineRegistry) GetOrCreate(engineType EngineType, profileURL string, structureDefURLs, codeSystemURLs, valueSetURLs map[string]string) (ValidationEngine, error) {
	if !engineType.IsValid() {
		return nil, newConfigurationError("unknown validation engine type %q", engineType)
	}

	key := EngineKey{Type: engineType, ProfileURL: profileURL}

	r.mu.RLock()
	engine, ok := r.engines[key]
	r.mu.RUnlock()
	if ok {
		r.opts.Metrics.recordRegistryHit()
		return engine, nil
	}

	v, err, _ := r.group.Do(key.String(), func() (any, error) {
		// A racing caller may have completed construction between the
		// read above and entering the group.
		r.mu.RLock()
		engine, ok := r.engines[key]
		r.mu.RUnlock()
		if ok {
			r.opts.Metrics.recordRegistryHit()
			return engine, nil
		}

		built, err := r.build(engineType, profileURL, structureDefURLs, codeSystemURLs, valueSetURLs)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.engines[key] = built
		r.mu.Unlock()

		r.opts.Metrics.recordConstruction()
		return built, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(ValidationEngine), nil
}

func (r *EngineRegistry) build(engineType EngineType, profileURL string, structureDefURLs, codeSystemURLs, valueSetURLs map[string]string) (ValidationEngine, error) {
	switch engineType {
	case EngineLocalRule:
		// The local backend only carries embedded definitions for some
		// versions; surface that at construction instead of containing
		// every Validate call.
		if _, err := specs.Source(r.opts.FHIRVersion.String()); err != nil {
			return nil, newConfigurationError("local rule engine: %v", err)
		}
		return newLocalRuleEngine(r.opts, profileURL, structureDefURLs, codeSystemURLs, valueSetURLs), nil
	case EngineEmbeddedReference:
		return newEmbeddedReferenceEngine(r.opts), nil
	case EngineRemoteAPI:
		return newRemoteAPIEngine(r.opts, profileURL), nil
	default:
		return nil, newConfigurationError("unknown validation engine type %q", engineType)
	}
}

// Len returns the number of cached engine instances.
func (r *EngineRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.engines)
}
