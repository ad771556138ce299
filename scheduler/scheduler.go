// Package scheduler replaces the source's single ad hoc ticker loop
// (SPEC_FULL §5/§9 Design Notes) with a small named-job runner: the main
// scanner, the position supervisor, the risk tick and the daily
// optimizer, among others, run as independent Jobs under one WaitGroup,
// mirroring the teacher's stopMonitorCh/monitorWg shutdown pattern in
// trader/auto_trader.go. The price-stream reader runs in its own
// goroutine outside the scheduler.
package scheduler

import (
	"context"
	"sync"
	"time"

	"ApexCore/internal/logger"
)

// Job is one named periodic task. Fn is invoked once immediately and then
// every Interval until the scheduler is stopped; a Fn that returns an
// error is logged but never stops the job.
type Job struct {
	Name     string
	Interval time.Duration
	Fn       func(ctx context.Context) error

	// RunAt, if set, gates Fn to firing only once per day at this
	// wall-clock "HH:MM" (the daily optimizer's schedule, spec.md §4.10).
	// Interval still governs how often the gate itself is checked.
	RunAt string
}

// Scheduler runs a fixed set of Jobs concurrently and stops them together.
type Scheduler struct {
	jobs []Job

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func New(jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs}
}

// Start launches every job in its own goroutine. Call Stop to shut them
// all down; Start must not be called twice without an intervening Stop.
func (s *Scheduler) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel

	for _, job := range s.jobs {
		job := job
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.run(ctx, job)
		}()
	}
}

// Stop cancels every job's context and waits for them to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	logger.Infof("scheduler: starting job %q (interval=%s)", job.Name, job.Interval)

	invoke := func() {
		if job.RunAt != "" && !dueNow(job.RunAt) {
			return
		}
		if err := job.Fn(ctx); err != nil {
			logger.Errorf("scheduler: job %q failed: %v", job.Name, err)
		}
	}

	invoke()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Infof("scheduler: job %q stopped", job.Name)
			return
		case <-ticker.C:
			invoke()
		}
	}
}

// dueNow reports whether the current UTC wall-clock minute matches
// "HH:MM", used by RunAt-gated jobs. A RunAt job polled every few minutes
// may fire more than once within its matching minute; callers (the daily
// optimizer) must be idempotent per calendar day if that matters — the
// Adaptive Optimizer's window is always "last 24h from now", so a second
// same-minute run just re-mines an overlapping window harmlessly.
func dueNow(runAt string) bool {
	return time.Now().UTC().Format("15:04") == runAt
}
