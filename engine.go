package orchestra

import (
	"context"
	"time"
)

// EngineType identifies a validation engine variant.
type EngineType string

// Supported engine variants.
const (
	// EngineLocalRule validates locally against a layered support chain
	// assembled from fetched reference resources.
	EngineLocalRule EngineType = "LOCAL_RULE"
	// EngineEmbeddedReference is the no-op baseline engine.
	EngineEmbeddedReference EngineType = "EMBEDDED_REFERENCE"
	// EngineRemoteAPI delegates validation to a remote HTTP service.
	EngineRemoteAPI EngineType = "REMOTE_API"
)

// String returns the engine type identifier.
func (t EngineType) String() string {
	return string(t)
}

// IsValid returns true for one of the three known variants.
func (t EngineType) IsValid() bool {
	switch t {
	case EngineLocalRule, EngineEmbeddedReference, EngineRemoteAPI:
		return true
	default:
		return false
	}
}

// Observability describes one engine instance for audit output. Every
// result produced by the engine carries a copy.
type Observability struct {
	// Identity is the stable engine identity, unique per registry entry.
	Identity string `json:"identity"`
	// Name is the human-readable engine description.
	Name string `json:"name"`
	// InitializedAt is when engine construction began.
	InitializedAt time.Time `json:"initializedAt"`
	// ConstructedAt is when the instance became ready for use.
	ConstructedAt time.Time `json:"constructedAt"`
}

// ValidationEngine is the contract shared by all engine variants.
// Validate is synchronous: it completes, successfully or not, before
// returning, and it never panics. Failures are surfaced as data on the
// returned result.
type ValidationEngine interface {
	Validate(ctx context.Context, payload string) ValidationResult
	Observability() Observability
}
