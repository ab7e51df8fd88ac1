package orchestra

import (
	"context"
	"maps"
)

// Session is one batch of payloads validated against one chosen set of
// engines. Payload and engine lists are frozen at Build; only the
// result list grows, appended by the goroutine driving validation.
type Session struct {
	device     Device
	profileURL string
	payloads   []string
	engines    []ValidationEngine
	results    []ValidationResult

	structureDefinitionURLs map[string]string
	codeSystemURLs          map[string]string
	valueSetURLs            map[string]string
}

// Device returns the origin identity attached to the session.
func (s *Session) Device() Device {
	return s.device
}

// ProfileURL returns the primary profile URL, empty when none was set.
func (s *Session) ProfileURL() string {
	return s.profileURL
}

// Payloads returns a copy of the payload list.
func (s *Session) Payloads() []string {
	out := make([]string, len(s.payloads))
	copy(out, s.payloads)
	return out
}

// Engines returns a copy of the engine list in selection order.
func (s *Session) Engines() []ValidationEngine {
	out := make([]ValidationEngine, len(s.engines))
	copy(out, s.engines)
	return out
}

// Results returns a copy of the accumulated results in payload-major,
// engine-minor order.
func (s *Session) Results() []ValidationResult {
	out := make([]ValidationResult, len(s.results))
	copy(out, s.results)
	return out
}

// validate runs every payload through every engine sequentially and
// appends the results. Re-validating an already-validated session
// appends a second full pass rather than replacing earlier results.
func (s *Session) validate(ctx context.Context) {
	for _, payload := range s.payloads {
		for _, engine := range s.engines {
			s.results = append(s.results, engine.Validate(ctx, payload))
		}
	}
}

// SessionBuilder accumulates session state fluently. Builders are not
// safe for concurrent use; build one per session.
type SessionBuilder struct {
	orchestrator *Orchestrator

	device     Device
	profileURL string
	payloads   []string
	engines    []ValidationEngine

	structureDefinitionURLs map[string]string
	codeSystemURLs          map[string]string
	valueSetURLs            map[string]string

	diagnostics []string
	err         error
}

// WithPayloads appends payloads to the session.
func (b *SessionBuilder) WithPayloads(payloads ...string) *SessionBuilder {
	b.payloads = append(b.payloads, payloads...)
	return b
}

// OnDevice overrides the origin identity seeded from the orchestrator.
func (b *SessionBuilder) OnDevice(device Device) *SessionBuilder {
	b.device = device
	return b
}

// WithProfileURL sets the primary profile payloads are validated
// against.
func (b *SessionBuilder) WithProfileURL(url string) *SessionBuilder {
	b.profileURL = url
	return b
}

// WithStructureDefinitionURLs sets the name → URL map of supporting
// structure definitions.
func (b *SessionBuilder) WithStructureDefinitionURLs(urls map[string]string) *SessionBuilder {
	b.structureDefinitionURLs = maps.Clone(urls)
	return b
}

// WithCodeSystemURLs sets the name → URL map of supporting code
// systems.
func (b *SessionBuilder) WithCodeSystemURLs(urls map[string]string) *SessionBuilder {
	b.codeSystemURLs = maps.Clone(urls)
	return b
}

// WithValueSetURLs sets the name → URL map of supporting value sets.
func (b *SessionBuilder) WithValueSetURLs(urls map[string]string) *SessionBuilder {
	b.valueSetURLs = maps.Clone(urls)
	return b
}

// AddEngine appends an explicit engine instance.
func (b *SessionBuilder) AddEngine(engine ValidationEngine) *SessionBuilder {
	if engine != nil {
		b.engines = append(b.engines, engine)
	}
	return b
}

// AddEngineType resolves an engine through the orchestrator's registry
// using the builder's current profile URL and reference maps. A
// resolution failure is remembered and surfaced by Build.
func (b *SessionBuilder) AddEngineType(engineType EngineType) *SessionBuilder {
	engine, err := b.orchestrator.registry.GetOrCreate(
		engineType,
		b.profileURL,
		b.structureDefinitionURLs,
		b.codeSystemURLs,
		b.valueSetURLs,
	)
	if err != nil {
		if b.err == nil {
			b.err = err
		}
		return b
	}
	b.engines = append(b.engines, engine)
	return b
}

// AddLocalRuleEngine selects the local rule engine.
func (b *SessionBuilder) AddLocalRuleEngine() *SessionBuilder {
	return b.AddEngineType(EngineLocalRule)
}

// AddEmbeddedReferenceEngine selects the no-op baseline engine.
func (b *SessionBuilder) AddEmbeddedReferenceEngine() *SessionBuilder {
	return b.AddEngineType(EngineEmbeddedReference)
}

// AddRemoteAPIEngine selects the remote HTTP validation engine.
func (b *SessionBuilder) AddRemoteAPIEngine() *SessionBuilder {
	return b.AddEngineType(EngineRemoteAPI)
}

// WithValidationStrategy applies a strategy descriptor. Malformed input
// and unknown identifiers never fail the builder; they accumulate as
// diagnostics retrievable via StrategyDiagnostics, and the remaining
// identifiers are still applied. When clearExisting is set, previously
// added engines are discarded whenever the descriptor carries an
// engines list, even if no identifier in it resolves; a descriptor
// without a list leaves existing selections untouched.
func (b *SessionBuilder) WithValidationStrategy(raw string, clearExisting bool) *SessionBuilder {
	types, diagnostics, listed := ParseStrategy(raw)
	b.diagnostics = append(b.diagnostics, diagnostics...)

	if clearExisting && listed {
		b.engines = nil
	}
	for _, t := range types {
		b.AddEngineType(t)
	}
	return b
}

// StrategyDiagnostics returns the diagnostics accumulated while
// applying strategy descriptors.
func (b *SessionBuilder) StrategyDiagnostics() []string {
	out := make([]string, len(b.diagnostics))
	copy(out, b.diagnostics)
	return out
}

// Build freezes the accumulated state into an immutable Session. It
// fails only when an explicit engine selection failed earlier (unknown
// engine type).
func (b *SessionBuilder) Build() (*Session, error) {
	if b.err != nil {
		return nil, b.err
	}

	session := &Session{
		device:                  b.device,
		profileURL:              b.profileURL,
		payloads:                make([]string, len(b.payloads)),
		engines:                 make([]ValidationEngine, len(b.engines)),
		structureDefinitionURLs: maps.Clone(b.structureDefinitionURLs),
		codeSystemURLs:          maps.Clone(b.codeSystemURLs),
		valueSetURLs:            maps.Clone(b.valueSetURLs),
	}
	copy(session.payloads, b.payloads)
	copy(session.engines, b.engines)
	return session, nil
}
