package orchestra

import (
	"math"
	"sync/atomic"
	"time"
)

// Metrics collects counters across the orchestration core. All methods
// are safe for concurrent use; counting uses atomics only, so recording
// is cheap enough for hot paths.
type Metrics struct {
	engineConstructions atomic.Uint64
	registryHits        atomic.Uint64

	validations  atomic.Uint64
	validResults atomic.Uint64

	remoteCalls    atomic.Uint64
	remoteFailures atomic.Uint64

	totalDurationNs atomic.Int64
	minDurationNs   atomic.Int64
	maxDurationNs   atomic.Int64

	fatalIssues       atomic.Uint64
	errorIssues       atomic.Uint64
	warningIssues     atomic.Uint64
	informationIssues atomic.Uint64
}

// NewMetrics creates a metrics collector.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.minDurationNs.Store(math.MaxInt64)
	return m
}

func (m *Metrics) recordConstruction() {
	m.engineConstructions.Add(1)
}

func (m *Metrics) recordRegistryHit() {
	m.registryHits.Add(1)
}

func (m *Metrics) recordRemoteCall(failed bool) {
	m.remoteCalls.Add(1)
	if failed {
		m.remoteFailures.Add(1)
	}
}

func (m *Metrics) recordValidation(result ValidationResult) {
	m.validations.Add(1)
	if result.Valid {
		m.validResults.Add(1)
	}

	d := result.Duration().Nanoseconds()
	if d < 0 {
		d = 0
	}
	m.totalDurationNs.Add(d)

	for {
		current := m.minDurationNs.Load()
		if d >= current || m.minDurationNs.CompareAndSwap(current, d) {
			break
		}
	}
	for {
		current := m.maxDurationNs.Load()
		if d <= current || m.maxDurationNs.CompareAndSwap(current, d) {
			break
		}
	}

	for _, issue := range result.Issues {
		switch {
		case issue.IsFatal():
			m.fatalIssues.Add(1)
		case issue.IsError():
			m.errorIssues.Add(1)
		case issue.IsWarning():
			m.warningIssues.Add(1)
		default:
			m.informationIssues.Add(1)
		}
	}
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	EngineConstructions uint64
	RegistryHits        uint64

	Validations  uint64
	ValidResults uint64

	RemoteCalls    uint64
	RemoteFailures uint64

	MinValidationTime time.Duration
	AvgValidationTime time.Duration
	MaxValidationTime time.Duration

	FatalIssues       uint64
	ErrorIssues       uint64
	WarningIssues     uint64
	InformationIssues uint64
}

// Snapshot returns a point-in-time copy of the counters. Timing fields
// are zero until at least one validation has been recorded.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		EngineConstructions: m.engineConstructions.Load(),
		RegistryHits:        m.registryHits.Load(),
		Validations:         m.validations.Load(),
		ValidResults:        m.validResults.Load(),
		RemoteCalls:         m.remoteCalls.Load(),
		RemoteFailures:      m.remoteFailures.Load(),
		FatalIssues:         m.fatalIssues.Load(),
		ErrorIssues:         m.errorIssues.Load(),
		WarningIssues:       m.warningIssues.Load(),
		InformationIssues:   m.informationIssues.Load(),
	}

	if s.Validations > 0 {
		s.MinValidationTime = time.Duration(m.minDurationNs.Load())
		s.MaxValidationTime = time.Duration(m.maxDurationNs.Load())
		s.AvgValidationTime = time.Duration(m.totalDurationNs.Load() / int64(s.Validations))
	}

	return s
}
