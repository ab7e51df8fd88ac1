package orchestra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gofhir/orchestra/pkg/logger"
)

// remoteTimeout is the fixed connect and request timeout for the
// remote validation service, the only timeout pair in the system.
const remoteTimeout = 120 * time.Second

// operationOutcomeMarker decides remote validity: the response body
// must contain it for the payload to be considered valid.
const operationOutcomeMarker = "OperationOutcome"

// remoteAPIEngine delegates validation to an external HTTP service
// speaking the validator wire protocol.
type remoteAPIEngine struct {
	obs         Observability
	profileURL  string
	endpoint    string
	wireVersion string
	client      *http.Client
	log         *logger.Logger
	metrics     *Metrics
}

func newRemoteAPIEngine(opts Options, profileURL string) *remoteAPIEngine {
	initializedAt := time.Now()

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{
			Timeout: remoteTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: remoteTimeout}).DialContext,
			},
		}
	}

	endpoint := opts.RemoteEndpoint
	if endpoint == "" {
		endpoint = DefaultRemoteEndpoint
	}

	wireVersion := "4.0.1"
	if cfg, ok := getVersionConfig(opts.FHIRVersion); ok {
		wireVersion = cfg.WireVersion
	}

	e := &remoteAPIEngine{
		profileURL:  profileURL,
		endpoint:    endpoint,
		wireVersion: wireVersion,
		client:      client,
		log:         opts.Logger,
		metrics:     opts.Metrics,
	}

	e.obs = Observability{
		Identity:      uuid.NewString(),
		Name:          "Remote API Engine",
		InitializedAt: initializedAt,
		ConstructedAt: time.Now(),
	}
	return e
}

func (e *remoteAPIEngine) Observability() Observability {
	return e.obs
}

// Request body shapes of the remote validator wire protocol.
type remoteCLIContext struct {
	SV     string   `json:"sv"`
	IG     []string `json:"ig"`
	Locale string   `json:"locale"`
}

type remoteFile struct {
	FileName    string `json:"fileName"`
	FileContent string `json:"fileContent"`
	FileType    string `json:"fileType"`
}

type remoteRequest struct {
	CLIContext      remoteCLIContext `json:"cliContext"`
	FilesToValidate []remoteFile     `json:"filesToValidate"`
}

// Response shapes. Line and column arrive untyped; anything that is
// not an integer maps to a nil position.
type remoteIssue struct {
	Message string `json:"message"`
	Line    any    `json:"line"`
	Col     any    `json:"col"`
	Level   string `json:"level"`
}

type remoteOutcome struct {
	Issues []remoteIssue `json:"issues"`
}

type remoteResponse struct {
	Outcomes []remoteOutcome `json:"outcomes"`
}

// Validate posts the payload to the remote service and derives
// validity from the response body containing the OperationOutcome
// marker. Transport failures are contained into an invalid result with
// a single FATAL issue; response parse failures degrade to a partial
// or empty issue list with validity still taken from the marker.
func (e *remoteAPIEngine) Validate(ctx context.Context, payload string) ValidationResult {
	initiatedAt := time.Now()

	body, err := json.Marshal(remoteRequest{
		CLIContext: remoteCLIContext{
			SV:     e.wireVersion,
			IG:     igList(e.profileURL),
			Locale: "en",
		},
		FilesToValidate: []remoteFile{{
			FileName:    "input.json",
			FileContent: normalizeNewlines(payload),
			FileType:    "json",
		}},
	})
	if err != nil {
		result := containedResult(initiatedAt, e.profileURL, e.obs, err.Error(), fmt.Sprintf("%T", err))
		e.metrics.recordValidation(result)
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		result := containedResult(initiatedAt, e.profileURL, e.obs, err.Error(), fmt.Sprintf("%T", err))
		e.metrics.recordValidation(result)
		return result
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		e.log.Error("remote validation call failed: %v", err)
		e.metrics.recordRemoteCall(true)
		result := containedResult(initiatedAt, e.profileURL, e.obs, err.Error(), fmt.Sprintf("%T", err))
		e.metrics.recordValidation(result)
		return result
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		e.log.Error("remote validation response unreadable: %v", err)
		e.metrics.recordRemoteCall(true)
		result := containedResult(initiatedAt, e.profileURL, e.obs, err.Error(), fmt.Sprintf("%T", err))
		e.metrics.recordValidation(result)
		return result
	}
	e.metrics.recordRemoteCall(false)

	responseText := string(responseBody)
	result := ValidationResult{
		InitiatedAt:     initiatedAt,
		CompletedAt:     time.Now(),
		ProfileURL:      e.profileURL,
		Observability:   e.obs,
		Valid:           strings.Contains(responseText, operationOutcomeMarker),
		OutcomeDocument: responseText,
		Issues:          e.parseIssues(responseBody),
	}
	e.metrics.recordValidation(result)
	return result
}

// parseIssues walks outcomes[].issues[] of the response. A malformed
// response yields a partial or empty list, never a failure.
func (e *remoteAPIEngine) parseIssues(body []byte) []Issue {
	var parsed remoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		e.log.Warn("remote validation response not parseable: %v", err)
		return []Issue{}
	}

	issues := []Issue{}
	for _, outcome := range parsed.Outcomes {
		for _, ri := range outcome.Issues {
			issues = append(issues, Issue{
				Message:  ri.Message,
				Severity: IssueSeverity(ri.Level),
				Location: SourceLocation{
					Line:   intFromAny(ri.Line),
					Column: intFromAny(ri.Col),
				},
			})
		}
	}
	return issues
}

// igList builds the implementation-guide list for the request; an
// empty profile URL sends an empty list.
func igList(profileURL string) []string {
	if profileURL == "" {
		return []string{}
	}
	return []string{profileURL}
}

// normalizeNewlines collapses any newline convention in the payload to
// CRLF without doubling sequences that already are CRLF.
func normalizeNewlines(payload string) string {
	return strings.ReplaceAll(strings.ReplaceAll(payload, "\r\n", "\n"), "\n", "\r\n")
}

// intFromAny extracts an integer position from an untyped JSON value.
// Non-numeric values and non-integral numbers yield nil.
func intFromAny(v any) *int {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) {
		return nil
	}
	n := int(f)
	return &n
}
