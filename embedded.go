package orchestra

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// embeddedReferenceEngine is the no-op baseline engine: every payload
// is reported valid with no issues and an empty outcome document. It
// exists for comparison and placeholder use and never fails.
type embeddedReferenceEngine struct {
	obs     Observability
	metrics *Metrics
}

func newEmbeddedReferenceEngine(opts Options) *embeddedReferenceEngine {
	now := time.Now()
	return &embeddedReferenceEngine{
		obs: Observability{
			Identity:      uuid.NewString(),
			Name:          "Embedded Reference Engine",
			InitializedAt: now,
			ConstructedAt: now,
		},
		metrics: opts.Metrics,
	}
}

func (e *embeddedReferenceEngine) Observability() Observability {
	return e.obs
}

func (e *embeddedReferenceEngine) Validate(_ context.Context, _ string) ValidationResult {
	now := time.Now()
	result := ValidationResult{
		InitiatedAt:   now,
		CompletedAt:   now,
		Observability: e.obs,
		Valid:         true,
		Issues:        []Issue{},
	}
	e.metrics.recordValidation(result)
	return result
}
