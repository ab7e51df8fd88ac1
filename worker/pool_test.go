package worker

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"

	"github.com/gofhir/orchestra"
	"github.com/gofhir/orchestra/pkg/logger"
)

// countingRunner records which sessions it saw.
type countingRunner struct {
	mu       sync.Mutex
	sessions []*orchestra.Session
}

func (r *countingRunner) Orchestrate(_ context.Context, sessions ...*orchestra.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, sessions...)
}

var _ SessionRunner = (*countingRunner)(nil)

func newTestSession(t *testing.T, payloads ...string) *orchestra.Session {
	t.Helper()

	o := orchestra.New(
		orchestra.WithDevice(orchestra.Device{Address: "10.0.0.1", Hostname: "test"}),
		orchestra.WithLogger(logger.New(io.Discard, logger.LevelNone)),
	)
	session, err := o.NewSession().
		WithPayloads(payloads...).
		AddEmbeddedReferenceEngine().
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return session
}

func TestPool_RunsEverySubmittedJob(t *testing.T) {
	runner := &countingRunner{}
	pool := NewPool(runner, 4)

	const jobs = 20
	for i := 0; i < jobs; i++ {
		if !pool.Submit(Job{ID: string(rune('a' + i)), Session: newTestSession(t, "p")}) {
			t.Fatalf("Submit(%d) = false; want true", i)
		}
	}

	results := pool.CloseAndWait()
	if len(results) != jobs {
		t.Fatalf("result count = %d; want %d", len(results), jobs)
	}
	if len(runner.sessions) != jobs {
		t.Errorf("runner saw %d sessions; want %d", len(runner.sessions), jobs)
	}

	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	sort.Strings(ids)
	for i := 1; i < len(ids); i++ {
		if ids[i] == ids[i-1] {
			t.Errorf("duplicate result id %q", ids[i])
		}
	}

	stats := pool.Stats()
	if stats.JobsSubmitted != jobs || stats.JobsCompleted != jobs {
		t.Errorf("stats = %+v; want %d submitted and completed", stats, jobs)
	}
}

func TestPool_SessionOrderPreserved(t *testing.T) {
	o := orchestra.New(
		orchestra.WithDevice(orchestra.Device{Address: "10.0.0.1", Hostname: "test"}),
		orchestra.WithLogger(logger.New(io.Discard, logger.LevelNone)),
	)
	session, err := o.NewSession().
		WithPayloads("p1", "p2", "p3").
		AddEmbeddedReferenceEngine().
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	pool := NewPool(o, 2)
	if !pool.Submit(Job{ID: "only", Session: session}) {
		t.Fatal("Submit() = false; want true")
	}
	results := pool.CloseAndWait()

	if len(results) != 1 {
		t.Fatalf("result count = %d; want 1", len(results))
	}
	if got := len(results[0].Session.Results()); got != 3 {
		t.Errorf("session result count = %d; want 3", got)
	}
}

func TestPool_SubmitAfterClose(t *testing.T) {
	pool := NewPool(&countingRunner{}, 1)
	pool.CloseAndWait()

	if pool.Submit(Job{ID: "late", Session: newTestSession(t, "p")}) {
		t.Error("Submit() after close = true; want false")
	}
}

func TestPool_DefaultWorkerCount(t *testing.T) {
	pool := NewPool(&countingRunner{}, 0)
	defer pool.CloseAndWait()

	if pool.Stats().Workers <= 0 {
		t.Errorf("workers = %d; want > 0", pool.Stats().Workers)
	}
}
