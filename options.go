package orchestra

import (
	"context"
	"net/http"

	"github.com/gofhir/orchestra/pkg/logger"
	"github.com/gofhir/orchestra/support"
)

// DefaultRemoteEndpoint is the remote validation service the Remote
// API Engine posts to when no other endpoint is configured.
const DefaultRemoteEndpoint = "https://validator.fhir.org/validate"

// Fetcher retrieves reference resources by URL. Failures degrade to
// empty text; FetchText never returns an error.
type Fetcher interface {
	FetchText(ctx context.Context, url string) string
}

// Options configures an Orchestrator and the engines it constructs.
type Options struct {
	// Device overrides the process identity. Nil resolves the local
	// host once during construction.
	Device *Device

	// FHIRVersion selects the specification version engines validate
	// against. Defaults to R4.
	FHIRVersion FHIRVersion

	// RemoteEndpoint is the remote validation service URL.
	RemoteEndpoint string

	// HTTPClient is used by the Remote API Engine. Nil builds a client
	// with the fixed 120-second connect and request timeouts.
	HTTPClient *http.Client

	// Fetcher retrieves reference resources for the Local Rule Engine.
	// Nil builds a fetch client with defaults.
	Fetcher Fetcher

	// Logger receives degraded-path diagnostics.
	Logger *logger.Logger

	// Metrics collects counters across the core.
	Metrics *Metrics

	// CachingSizes bounds the support-chain caches assembled per
	// local validation call.
	CachingSizes support.CachingSizes
}

// Option configures Options.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		FHIRVersion:    R4,
		RemoteEndpoint: DefaultRemoteEndpoint,
		Logger:         logger.Default(),
		Metrics:        NewMetrics(),
		CachingSizes:   support.DefaultCachingSizes(),
	}
}

// WithDevice overrides the resolved process identity.
func WithDevice(device Device) Option {
	return func(o *Options) {
		o.Device = &device
	}
}

// WithFHIRVersion sets the FHIR specification version. It drives the
// wire version sent to the remote validation service; the local rule
// engine only carries embedded R4 definitions, so requesting it under
// another version fails with a configuration error.
func WithFHIRVersion(version FHIRVersion) Option {
	return func(o *Options) {
		o.FHIRVersion = version
	}
}

// WithRemoteEndpoint sets the remote validation service URL.
func WithRemoteEndpoint(endpoint string) Option {
	return func(o *Options) {
		o.RemoteEndpoint = endpoint
	}
}

// WithHTTPClient sets the HTTP client used by the Remote API Engine.
func WithHTTPClient(client *http.Client) Option {
	return func(o *Options) {
		o.HTTPClient = client
	}
}

// WithFetcher sets the reference-resource fetch collaborator.
func WithFetcher(fetcher Fetcher) Option {
	return func(o *Options) {
		o.Fetcher = fetcher
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithCachingSizes bounds the per-validation support caches.
func WithCachingSizes(sizes support.CachingSizes) Option {
	return func(o *Options) {
		o.CachingSizes = sizes
	}
}
