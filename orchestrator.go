package orchestra

import (
	"context"
	"sync"

	"github.com/gofhir/orchestra/fetch"
)

// Orchestrator is the top-level entry point: it owns the engine
// registry, the process device identity, and the validation history.
// Sessions validate synchronously on the calling goroutine; the
// orchestrator itself is safe for concurrent use.
type Orchestrator struct {
	opts     Options
	registry *EngineRegistry
	device   Device

	mu       sync.Mutex
	sessions []*Session
}

// New creates an orchestrator. The process device identity is resolved
// once here unless overridden via WithDevice.
func New(opts ...Option) *Orchestrator {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.Metrics == nil {
		options.Metrics = NewMetrics()
	}
	if options.Fetcher == nil {
		options.Fetcher = fetch.New(fetch.WithLogger(options.Logger))
	}

	device := ResolveDevice()
	if options.Device != nil {
		device = *options.Device
	}

	return &Orchestrator{
		opts:     options,
		registry: NewEngineRegistry(options),
		device:   device,
	}
}

// NewSession returns a builder seeded with the orchestrator's device
// identity and bound to its engine registry.
func (o *Orchestrator) NewSession() *SessionBuilder {
	return &SessionBuilder{
		orchestrator: o,
		device:       o.device,
	}
}

// Orchestrate validates each session in order and appends it to the
// history. There is no rollback: a partially validated session keeps
// its completed results and still enters history. Each session's
// append is atomic relative to appends from other goroutines.
func (o *Orchestrator) Orchestrate(ctx context.Context, sessions ...*Session) {
	for _, session := range sessions {
		if session == nil {
			continue
		}
		session.validate(ctx)

		o.mu.Lock()
		o.sessions = append(o.sessions, session)
		o.mu.Unlock()
	}
}

// Sessions returns a copy of the validation history.
func (o *Orchestrator) Sessions() []*Session {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]*Session, len(o.sessions))
	copy(out, o.sessions)
	return out
}

// Registry exposes the engine registry, mainly for diagnostics.
func (o *Orchestrator) Registry() *EngineRegistry {
	return o.registry
}

// Device returns the resolved process identity.
func (o *Orchestrator) Device() Device {
	return o.device
}

// Metrics returns the orchestrator's metrics collector.
func (o *Orchestrator) Metrics() *Metrics {
	return o.opts.Metrics
}
