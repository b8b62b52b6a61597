// Package scheduler runs periodic jobs. Jobs share one run lock, so a job
// never starts while another is running; each job is rescheduled whatever
// its handler returns.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Schedule is a fixed-rate schedule with an initial delay.
type Schedule struct {
	First    time.Duration
	Interval time.Duration
}

// Every creates a schedule running first after the given delay, then every d.
func Every(d, first time.Duration) Schedule {
	return Schedule{First: first, Interval: d}
}

// next returns the run after scheduled. When the handler overran one or more
// slots, the missed slots are coalesced into one immediate run.
func (s Schedule) next(scheduled, now time.Time) time.Time {
	n := scheduled.Add(s.Interval)
	if n.Before(now) {
		return now
	}
	return n
}

// Job describes one periodic task.
type Job struct {
	Name        string
	Description string
	Schedule    Schedule
	Handler     func(ctx context.Context) error
	// Timeout bounds one run; zero means no timeout.
	Timeout time.Duration

	mu      sync.Mutex
	nextRun time.Time
	lastRun time.Time
	lastDur time.Duration
	lastErr error
	runs    int
	running bool
}

// Status returns a snapshot of the job state.
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	st := JobStatus{
		Name:        j.Name,
		Description: j.Description,
		Interval:    j.Schedule.Interval.String(),
		NextRun:     j.nextRun,
		LastRun:     j.lastRun,
		LastDurMs:   j.lastDur.Milliseconds(),
		Runs:        j.runs,
		Running:     j.running,
	}
	if j.lastErr != nil {
		st.LastErr = j.lastErr.Error()
	}
	return st
}

// JobStatus is a snapshot of a job.
type JobStatus struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Interval    string    `json:"interval"`
	NextRun     time.Time `json:"next_run"`
	LastRun     time.Time `json:"last_run"`
	LastDurMs   int64     `json:"last_duration_ms"`
	LastErr     string    `json:"last_error,omitempty"`
	Runs        int       `json:"runs"`
	Running     bool      `json:"running"`
}

// Scheduler drives registered jobs.
type Scheduler struct {
	log   *slog.Logger
	onRun func(job string, err error)

	mu      sync.RWMutex
	jobs    []*Job
	started bool

	runMu  sync.Mutex // held while any handler runs
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// OnRun registers a callback invoked after every job run (metrics).
func OnRun(fn func(job string, err error)) Option {
	return func(s *Scheduler) { s.onRun = fn }
}

// New creates a scheduler. A nil logger uses slog.Default.
func New(log *slog.Logger, opts ...Option) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	s := &Scheduler{log: log}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register adds a job. It must be called before Start.
func (s *Scheduler) Register(job *Job) error {
	if job.Handler == nil || job.Schedule.Interval <= 0 {
		return fmt.Errorf("scheduler: job %q needs a handler and a positive interval", job.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler: register %q after start", job.Name)
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// Start launches one goroutine per job. Jobs stop when ctx is cancelled or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)

	now := time.Now()
	for _, job := range s.jobs {
		job.mu.Lock()
		job.nextRun = now.Add(job.Schedule.First)
		job.mu.Unlock()

		s.log.Info("job registered", "job", job.Name,
			"first_run", job.nextRun.UTC().Format(time.RFC3339), "interval", job.Schedule.Interval.String())

		s.wg.Add(1)
		go func(j *Job) {
			defer s.wg.Done()
			s.loop(ctx, j)
		}(job)
	}
	s.log.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop cancels all jobs and waits for running handlers to return.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

// Jobs returns the status of all jobs in registration order.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.RLock()
	jobs := make([]*Job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.RUnlock()

	statuses := make([]JobStatus, len(jobs))
	for i, j := range jobs {
		statuses[i] = j.Status()
	}
	return statuses
}

func (s *Scheduler) loop(ctx context.Context, job *Job) {
	timer := time.NewTimer(job.Schedule.First)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		job.mu.Lock()
		scheduled := job.nextRun
		job.mu.Unlock()

		if !s.run(ctx, job) {
			return
		}

		now := time.Now()
		next := job.Schedule.next(scheduled, now)
		job.mu.Lock()
		job.nextRun = next
		job.mu.Unlock()
		timer.Reset(next.Sub(now))
	}
}

// run executes one job under the shared run lock. It returns false if ctx
// was cancelled while waiting for the lock.
func (s *Scheduler) run(ctx context.Context, job *Job) bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if ctx.Err() != nil {
		return false
	}

	runCtx := ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	job.mu.Lock()
	job.running = true
	job.mu.Unlock()

	start := time.Now()
	err := safeCall(runCtx, job.Handler)
	elapsed := time.Since(start)

	job.mu.Lock()
	job.running = false
	job.lastRun = start
	job.lastDur = elapsed
	job.lastErr = err
	job.runs++
	job.mu.Unlock()

	if err != nil {
		s.log.Error("job failed", "job", job.Name, "duration", elapsed.String(), "error", err)
	} else {
		s.log.Info("job finished", "job", job.Name, "duration", elapsed.String())
	}
	if s.onRun != nil {
		s.onRun(job.Name, err)
	}
	return true
}

func safeCall(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
