// Package main implements the gofhir-orchestra CLI tool. It builds
// validation sessions from files on disk, runs them through the
// configured engines, and optionally persists the outcome.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/gofhir/orchestra"
	"github.com/gofhir/orchestra/pkg/logger"
	"github.com/gofhir/orchestra/storage"
	"github.com/gofhir/orchestra/storage/sqlite"
	"github.com/gofhir/orchestra/worker"
)

const (
	version = "0.1.0"
	usage   = `gofhir-orchestra - FHIR Validation Orchestrator

Usage:
  gofhir-orchestra [options] <file>...
  gofhir-orchestra [options] -           (read from stdin)
  cat resource.json | gofhir-orchestra - (pipe input)

Examples:
  gofhir-orchestra patient.json
  gofhir-orchestra -engines HAPI,HL7-Official-Embedded patient.json
  gofhir-orchestra -strategy '{"engines":["HAPI"]}' patient.json
  gofhir-orchestra -ig http://hl7.org/fhir/us/core/StructureDefinition/us-core-patient patient.json
  gofhir-orchestra -output json *.json
  gofhir-orchestra -store results.db -workers 4 *.json

Environment:
  ORCHESTRA_REMOTE_ENDPOINT  Remote validation service URL
  ORCHESTRA_STORE            SQLite store path (same as -store)
  ORCHESTRA_LOG_LEVEL        debug, info, warn, error, none

Options:
`
)

// OutputFormat specifies the output format.
type OutputFormat string

// Output format constants.
const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
)

// EnvConfig holds settings read from the environment. Flags take
// precedence when both are set.
type EnvConfig struct {
	RemoteEndpoint string `env:"ORCHESTRA_REMOTE_ENDPOINT"`
	StorePath      string `env:"ORCHESTRA_STORE"`
	LogLevel       string `env:"ORCHESTRA_LOG_LEVEL" envDefault:"info"`
}

// Config holds CLI configuration
type Config struct {
	Engines        []string
	Strategy       string
	ProfileURL     string
	RemoteEndpoint string
	StorePath      string
	LogLevel       string
	Output         OutputFormat
	Workers        int
	Quiet          bool
	ShowVersion    bool
	Help           bool
	Files          []string
}

// SessionOutput represents one session in JSON output.
type SessionOutput struct {
	Device     orchestra.Device `json:"device"`
	ProfileURL string           `json:"profileUrl,omitempty"`
	Payloads   int              `json:"payloads"`
	Engines    int              `json:"engines"`
	Results    []ResultOutput   `json:"results"`
}

// ResultOutput represents a single validation result in JSON output.
type ResultOutput struct {
	Engine   string            `json:"engine"`
	Profile  string            `json:"profile,omitempty"`
	Valid    bool              `json:"valid"`
	Errors   int               `json:"errors"`
	Warnings int               `json:"warnings"`
	Issues   []orchestra.Issue `json:"issues,omitempty"`
	Duration string            `json:"duration"`
}

func main() {
	config, err := parseConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if config.ShowVersion {
		fmt.Printf("gofhir-orchestra v%s\n", version)
		os.Exit(0)
	}

	if config.Help || len(config.Files) == 0 {
		flag.Usage()
		os.Exit(0)
	}

	os.Exit(run(config))
}

func parseConfig() (*Config, error) {
	var envCfg EnvConfig
	if err := env.Parse(&envCfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	config := &Config{Output: OutputText}

	var engines, output string

	flag.StringVar(&engines, "engines", "HAPI", "Engine strategy name(s) to run, comma-separated (HAPI, HL7-Official-API, HL7-Official-Embedded)")
	flag.StringVar(&config.Strategy, "strategy", "", `Validation strategy document, e.g. '{"engines":["HAPI"]}' (overrides -engines)`)
	flag.StringVar(&config.ProfileURL, "ig", "", "Profile URL to validate against")
	flag.StringVar(&config.RemoteEndpoint, "endpoint", envCfg.RemoteEndpoint, "Remote validation service URL")
	flag.StringVar(&config.StorePath, "store", envCfg.StorePath, "SQLite file to persist session results to")
	flag.StringVar(&config.LogLevel, "log-level", envCfg.LogLevel, "Log level: debug, info, warn, error, none")
	flag.StringVar(&output, "output", "text", "Output format: text, json")
	flag.IntVar(&config.Workers, "workers", 1, "Validate files concurrently with this many workers (one session per file)")
	flag.BoolVar(&config.Quiet, "quiet", false, "Only show errors and warnings")
	flag.BoolVar(&config.ShowVersion, "v", false, "Show version")
	flag.BoolVar(&config.Help, "help", false, "Show help")

	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}

	flag.Parse()

	if engines != "" {
		config.Engines = strings.Split(engines, ",")
	}

	switch strings.ToLower(output) {
	case "json":
		config.Output = OutputJSON
	default:
		config.Output = OutputText
	}

	config.Files = flag.Args()
	return config, nil
}

func run(config *Config) int {
	log := logger.New(os.Stderr, logger.ParseLevel(config.LogLevel))
	if config.Quiet {
		log.SetLevel(logger.LevelError)
	}

	opts := []orchestra.Option{orchestra.WithLogger(log)}
	if config.RemoteEndpoint != "" {
		opts = append(opts, orchestra.WithRemoteEndpoint(config.RemoteEndpoint))
	}
	o := orchestra.New(opts...)

	payloads, names, ok := readPayloads(config.Files)
	if !ok {
		return 1
	}
	if len(payloads) == 0 {
		fmt.Fprintln(os.Stderr, "No input to validate")
		return 1
	}

	var sessions []*orchestra.Session
	if config.Workers > 1 && len(payloads) > 1 {
		sessions = orchestrateConcurrently(o, config, payloads)
	} else {
		session, err := buildSession(o, config, payloads...)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		o.Orchestrate(context.Background(), session)
		sessions = []*orchestra.Session{session}
	}
	if sessions == nil {
		return 1
	}

	if config.StorePath != "" {
		if err := persistSessions(config.StorePath, sessions); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		log.Info("persisted %d session(s) to %s", len(sessions), config.StorePath)
	}

	hasInvalid := false
	outputs := make([]SessionOutput, 0, len(sessions))
	for _, session := range sessions {
		outputs = append(outputs, sessionOutput(session))
		for _, result := range session.Results() {
			if !result.Valid {
				hasInvalid = true
			}
		}
	}

	switch config.Output {
	case OutputJSON:
		encoded, _ := json.MarshalIndent(outputs, "", "  ")
		fmt.Println(string(encoded))
	default:
		printTextResults(sessions, names, config)
	}

	if hasInvalid {
		return 1
	}
	return 0
}

// readPayloads loads every input argument, expanding glob patterns and
// treating "-" as stdin.
func readPayloads(files []string) (payloads, names []string, ok bool) {
	ok = true
	for _, file := range files {
		if file == "-" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading stdin: %v\n", err)
				ok = false
				continue
			}
			payloads = append(payloads, string(data))
			names = append(names, "stdin")
			continue
		}

		matches, err := filepath.Glob(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error with pattern '%s': %v\n", file, err)
			ok = false
			continue
		}
		if len(matches) == 0 {
			fmt.Fprintf(os.Stderr, "No files match pattern: %s\n", file)
			ok = false
			continue
		}

		for _, match := range matches {
			data, err := os.ReadFile(match)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", match, err)
				ok = false
				continue
			}
			payloads = append(payloads, string(data))
			names = append(names, match)
		}
	}
	return payloads, names, ok
}

func buildSession(o *orchestra.Orchestrator, config *Config, payloads ...string) (*orchestra.Session, error) {
	builder := o.NewSession().
		WithPayloads(payloads...).
		WithProfileURL(config.ProfileURL)

	if config.Strategy != "" {
		builder = builder.WithValidationStrategy(config.Strategy, true)
	} else {
		for _, name := range config.Engines {
			engineType, ok := orchestra.EngineTypeForName(strings.TrimSpace(name))
			if !ok {
				return nil, fmt.Errorf("unknown engine %q", strings.TrimSpace(name))
			}
			builder = builder.AddEngineType(engineType)
		}
	}

	for _, diagnostic := range builder.StrategyDiagnostics() {
		fmt.Fprintf(os.Stderr, "Strategy: %s\n", diagnostic)
	}

	return builder.Build()
}

// orchestrateConcurrently runs one session per payload through a worker
// pool. Returns nil if any session fails to build.
func orchestrateConcurrently(o *orchestra.Orchestrator, config *Config, payloads []string) []*orchestra.Session {
	sessions := make([]*orchestra.Session, 0, len(payloads))
	for _, payload := range payloads {
		session, err := buildSession(o, config, payload)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return nil
		}
		sessions = append(sessions, session)
	}

	// Submit from a separate goroutine and drain results here, so a
	// long file list can never fill both queues and stall.
	pool := worker.NewPool(o, config.Workers)
	go func() {
		for i, session := range sessions {
			pool.Submit(worker.Job{ID: fmt.Sprintf("session-%d", i), Session: session})
		}
	}()
	for range sessions {
		<-pool.Results()
	}
	pool.CloseAndWait()

	return sessions
}

func persistSessions(path string, sessions []*orchestra.Session) error {
	store, err := sqlite.Open(path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	for _, session := range sessions {
		if err := store.SaveSession(ctx, storage.Snapshot(session)); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
	}
	return nil
}

func sessionOutput(session *orchestra.Session) SessionOutput {
	out := SessionOutput{
		Device:     session.Device(),
		ProfileURL: session.ProfileURL(),
		Payloads:   len(session.Payloads()),
		Engines:    len(session.Engines()),
	}
	for _, result := range session.Results() {
		out.Results = append(out.Results, ResultOutput{
			Engine:   result.Observability.Name,
			Profile:  result.ProfileURL,
			Valid:    result.Valid,
			Errors:   result.ErrorCount(),
			Warnings: result.WarningCount(),
			Issues:   result.Issues,
			Duration: result.Duration().Round(time.Microsecond).String(),
		})
	}
	return out
}

func printTextResults(sessions []*orchestra.Session, names []string, config *Config) {
	position := 0
	for _, session := range sessions {
		engineCount := len(session.Engines())
		if engineCount == 0 {
			continue
		}
		for i, result := range session.Results() {
			name := "payload"
			if position < len(names) {
				name = names[position]
			}
			if (i+1)%engineCount == 0 {
				position++
			}

			status := "VALID"
			if !result.Valid {
				status = "INVALID"
			}

			fmt.Printf("== %s / %s ==\n", name, result.Observability.Name)
			fmt.Printf("Status: %s\n", status)
			fmt.Printf("Errors: %d, Warnings: %d\n", result.ErrorCount(), result.WarningCount())
			if result.ProfileURL != "" {
				fmt.Printf("Profile: %s\n", result.ProfileURL)
			}
			fmt.Printf("Duration: %s\n", result.Duration().Round(time.Microsecond))

			if len(result.Issues) > 0 {
				fmt.Println("\nIssues:")
				for _, issue := range result.Issues {
					if config.Quiet && !issue.IsError() && !issue.IsWarning() {
						continue
					}
					fmt.Printf("  %s\n", issue.String())
				}
			}
			fmt.Println()
		}
	}
}
