package orchestra

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gofhir/orchestra/fetch"
	"github.com/gofhir/orchestra/loader"
	"github.com/gofhir/orchestra/pkg/logger"
	"github.com/gofhir/orchestra/rules"
	"github.com/gofhir/orchestra/specs"
	"github.com/gofhir/orchestra/support"
	"github.com/gofhir/orchestra/terminology"
)

// localRuleEngine validates payloads locally against a layered support
// chain assembled from fetched reference resources. Only the engine
// instance is cached by the registry; the chain is rebuilt on every
// Validate call so reference resources are always re-fetched.
type localRuleEngine struct {
	obs        Observability
	profileURL string
	version    FHIRVersion
	cacheSizes support.CachingSizes
	fetcher    Fetcher
	log        *logger.Logger
	metrics    *Metrics
	sdURLs     map[string]string
	csURLs     map[string]string
	vsURLs     map[string]string
}

func newLocalRuleEngine(opts Options, profileURL string, structureDefURLs, codeSystemURLs, valueSetURLs map[string]string) *localRuleEngine {
	initializedAt := time.Now()

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = fetch.New(fetch.WithLogger(opts.Logger))
	}

	e := &localRuleEngine{
		profileURL: profileURL,
		version:    opts.FHIRVersion,
		cacheSizes: opts.CachingSizes,
		fetcher:    fetcher,
		log:        opts.Logger,
		metrics:    opts.Metrics,
		sdURLs:     maps.Clone(structureDefURLs),
		csURLs:     maps.Clone(codeSystemURLs),
		vsURLs:     maps.Clone(valueSetURLs),
	}

	e.obs = Observability{
		Identity:      uuid.NewString(),
		Name:          "Local Rule Engine",
		InitializedAt: initializedAt,
		ConstructedAt: time.Now(),
	}
	return e
}

func (e *localRuleEngine) Observability() Observability {
	return e.obs
}

// Validate never panics: any error or panic during chain assembly or
// rule evaluation is contained into an invalid result with a single
// FATAL issue naming the failure.
func (e *localRuleEngine) Validate(ctx context.Context, payload string) (result ValidationResult) {
	initiatedAt := time.Now()

	defer func() {
		if r := recover(); r != nil {
			e.log.Error("local validation panicked: %v", r)
			result = containedResult(initiatedAt, e.profileURL, e.obs, fmt.Sprint(r), fmt.Sprintf("%T", r))
		}
		e.metrics.recordValidation(result)
	}()

	outcome, err := e.runValidation(ctx, payload)
	if err != nil {
		e.log.Warn("local validation failed: %v", err)
		return containedResult(initiatedAt, e.profileURL, e.obs, err.Error(), fmt.Sprintf("%T", err))
	}

	issues := make([]Issue, 0, len(outcome.Messages))
	for _, m := range outcome.Messages {
		issues = append(issues, Issue{
			Message:  m.Text,
			Severity: IssueSeverity(strings.ToUpper(m.Severity)),
			Location: SourceLocation{Diagnostics: m.Path},
		})
	}

	return ValidationResult{
		InitiatedAt:     initiatedAt,
		CompletedAt:     time.Now(),
		ProfileURL:      e.profileURL,
		Observability:   e.obs,
		Valid:           outcome.Successful(),
		OutcomeDocument: outcome.Document(),
		Issues:          issues,
	}
}

// runValidation assembles the support chain from fetched reference
// resources and evaluates the payload against it.
func (e *localRuleEngine) runValidation(ctx context.Context, payload string) (*rules.Outcome, error) {
	defaults, err := specs.Source(e.version.String())
	if err != nil {
		return nil, fmt.Errorf("default rules: %w", err)
	}

	memory := terminology.NewMemorySource()
	for name, url := range e.csURLs {
		text := e.fetcher.FetchText(ctx, url)
		if text == "" {
			e.log.Warn("code system %s (%s) unavailable, skipping", name, url)
			continue
		}
		if err := memory.LoadCodeSystemJSON([]byte(text)); err != nil {
			return nil, fmt.Errorf("load code system %s: %w", name, err)
		}
	}
	for name, url := range e.vsURLs {
		text := e.fetcher.FetchText(ctx, url)
		if text == "" {
			e.log.Warn("value set %s (%s) unavailable, skipping", name, url)
			continue
		}
		if err := memory.LoadValueSetJSON([]byte(text)); err != nil {
			return nil, fmt.Errorf("load value set %s: %w", name, err)
		}
	}

	prepopulated := loader.NewPrepopulated()
	if e.profileURL != "" {
		text := e.fetcher.FetchText(ctx, e.profileURL)
		if _, err := prepopulated.LoadJSON([]byte(text)); err != nil {
			return nil, fmt.Errorf("load profile %s: %w", e.profileURL, err)
		}
	}
	for name, url := range e.sdURLs {
		text := e.fetcher.FetchText(ctx, url)
		if text == "" {
			e.log.Warn("structure definition %s (%s) unavailable, skipping", name, url)
			continue
		}
		if _, err := prepopulated.LoadJSON([]byte(text)); err != nil {
			return nil, fmt.Errorf("load structure definition %s: %w", name, err)
		}
	}

	chain := support.NewChain(
		defaults,
		terminology.NewCommonSource(),
		memory,
		prepopulated,
	)
	backend := rules.New(support.NewCaching(chain, e.cacheSizes))

	outcome, err := backend.Validate(ctx, []byte(payload), e.profileURL)
	if err != nil {
		return nil, err
	}
	return outcome, nil
}
