// Package sched runs periodic maintenance jobs (approval reminders) on
// cron expressions. A job that is still running when its next tick fires
// is skipped, never run in parallel with itself.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// JobFunc is the work executed on each tick.
type JobFunc func(ctx context.Context) error

type job struct {
	name string
	spec string
	run  JobFunc
	lock sync.Mutex
}

// Scheduler manages periodic job execution.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   []*job
	logger *slog.Logger
	cancel context.CancelFunc
}

// New creates a scheduler. Jobs must be added before Start.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{logger: logger.With("component", "sched")}
}

// Add registers a job under a unique name with a five-field cron spec.
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if j.name == name {
			return fmt.Errorf("sched: duplicate job name %q", name)
		}
	}
	s.jobs = append(s.jobs, &job{name: name, spec: spec, run: fn})
	return nil
}

// Start begins executing registered jobs. It fails if any job has an
// invalid cron expression.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	s.cron = cron.New(cron.WithParser(parser))

	for _, j := range s.jobs {
		j := j
		_, err := s.cron.AddFunc(j.spec, func() {
			// TryLock is atomic: if the previous tick is still running,
			// skip this one instead of piling up.
			if !j.lock.TryLock() {
				s.logger.Warn("job still running, skipping tick", "job", j.name)
				return
			}
			defer j.lock.Unlock()

			if err := j.run(ctx); err != nil {
				s.logger.Error("job failed", "job", j.name, "error", err)
			}
		})
		if err != nil {
			cancel()
			return fmt.Errorf("sched: invalid schedule for job %q: %w", j.name, err)
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop shuts the scheduler down, waiting for in-flight jobs.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.logger.Info("scheduler stopped")
	}
	return nil
}
