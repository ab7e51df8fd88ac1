// Package worker provides a fixed-size pool of goroutines that drive
// independent validation sessions through a shared orchestrator. The
// pool adds cross-session concurrency only; within a session the
// orchestration core keeps its strictly sequential payload-major,
// engine-minor order.
package worker

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofhir/orchestra"
)

// SessionRunner validates sessions. *orchestra.Orchestrator satisfies
// this interface.
type SessionRunner interface {
	Orchestrate(ctx context.Context, sessions ...*orchestra.Session)
}

// Job is one session to validate.
type Job struct {
	// ID identifies the job in results, e.g. an input file name.
	ID string

	// Session is the built session to drive through validation.
	Session *orchestra.Session
}

// JobResult reports one completed job. The session carries the
// accumulated validation results.
type JobResult struct {
	ID       string
	Session  *orchestra.Session
	Duration time.Duration
}

// Pool runs sessions on a fixed set of worker goroutines.
type Pool struct {
	workers int
	runner  SessionRunner

	jobs    chan Job
	results chan JobResult
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  atomic.Bool

	jobsSubmitted   atomic.Uint64
	jobsCompleted   atomic.Uint64
	totalDurationNs atomic.Uint64
}

// NewPool creates a pool with the given number of workers. If workers
// <= 0, it defaults to runtime.NumCPU().
func NewPool(runner SessionRunner, workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		workers: workers,
		runner:  runner,
		jobs:    make(chan Job, workers*2),
		results: make(chan JobResult, workers*2),
		ctx:     ctx,
		cancel:  cancel,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}

	return p
}

// Submit queues a job, blocking while the queue is full. It returns
// false once the pool is closed.
func (p *Pool) Submit(job Job) bool {
	if p.closed.Load() {
		return false
	}

	select {
	case <-p.ctx.Done():
		return false
	case p.jobs <- job:
		p.jobsSubmitted.Add(1)
		return true
	}
}

// Results returns the channel completed jobs are delivered on.
func (p *Pool) Results() <-chan JobResult {
	return p.results
}

// CloseAndWait stops accepting jobs, waits for in-flight sessions to
// finish, and returns every pending result.
func (p *Pool) CloseAndWait() []JobResult {
	if p.closed.Swap(true) {
		return nil
	}

	close(p.jobs)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(p.results)
		close(done)
	}()

	results := make([]JobResult, 0, p.jobsSubmitted.Load())
	for result := range p.results {
		results = append(results, result)
	}
	<-done

	p.cancel()
	return results
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for job := range p.jobs {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		start := time.Now()
		p.runner.Orchestrate(p.ctx, job.Session)
		duration := time.Since(start)

		p.jobsCompleted.Add(1)
		p.totalDurationNs.Add(uint64(duration.Nanoseconds()))

		select {
		case <-p.ctx.Done():
			return
		case p.results <- JobResult{ID: job.ID, Session: job.Session, Duration: duration}:
		}
	}
}

// Stats contains pool counters.
type Stats struct {
	Workers       int
	JobsSubmitted uint64
	JobsCompleted uint64
	AvgDuration   time.Duration
}

// Stats returns current pool counters.
func (p *Pool) Stats() Stats {
	s := Stats{
		Workers:       p.workers,
		JobsSubmitted: p.jobsSubmitted.Load(),
		JobsCompleted: p.jobsCompleted.Load(),
	}
	if s.JobsCompleted > 0 {
		s.AvgDuration = time.Duration(p.totalDurationNs.Load() / s.JobsCompleted)
	}
	return s
}
