// Package scheduler implements C10: an in-process cron scheduler that
// triggers a daily incremental sync and a weekly full-validation sync.
// Grounded on the teacher's internal/core/api_scheduler.go singleton
// discipline (sync.Once-backed global, idempotent start, stop that waits
// for in-flight work) but retargeted from an API call-slot semaphore to
// wall-clock cron triggers, since the schedule here is time-based rather
// than concurrency-based.
package scheduler

import (
	"context"
	"math/rand"
	stdsync "sync"
	"time"

	"github.com/robfig/cron/v3"

	"starbase/internal/config"
	"starbase/internal/logging"
	"starbase/internal/model"
	"starbase/internal/sync"
)

const (
	// DefaultDailySchedule runs the incremental sync every day at 02:00 local time.
	DefaultDailySchedule = "0 2 * * *"
	// DefaultWeeklySchedule runs the full-validation sync every Sunday at 03:00 local time.
	DefaultWeeklySchedule = "0 3 * * 0"
)

// SyncRunner is the capability the scheduler triggers on each tick (C7).
type SyncRunner interface {
	Sync(ctx context.Context, mode model.SyncMode) (*sync.Result, error)
}

// Scheduler is the C10 capability: a singleton, idempotent wrapper around
// a robfig/cron instance.
type Scheduler struct {
	runner SyncRunner

	dailySchedule  string
	weeklySchedule string
	jitter         time.Duration

	mu      stdsync.Mutex
	cron    *cron.Cron
	running bool
	wg      stdsync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithDailySchedule overrides the default "0 2 * * *" incremental-sync cron expression.
func WithDailySchedule(expr string) Option {
	return func(s *Scheduler) { s.dailySchedule = expr }
}

// WithWeeklySchedule overrides the default "0 3 * * 0" full-validation-sync cron expression.
func WithWeeklySchedule(expr string) Option {
	return func(s *Scheduler) { s.weeklySchedule = expr }
}

// WithJitter overrides the default config.SyncJitter upper bound on the
// random delay applied before each triggered job runs.
func WithJitter(d time.Duration) Option {
	return func(s *Scheduler) { s.jitter = d }
}

// New builds a Scheduler bound to runner. Start must be called to begin
// firing triggers.
func New(runner SyncRunner, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:         runner,
		dailySchedule:  DefaultDailySchedule,
		weeklySchedule: DefaultWeeklySchedule,
		jitter:         config.SyncJitter,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the cron triggers and begins firing them. Calling Start
// on an already-running scheduler is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		logging.Scheduler("scheduler already running, ignoring duplicate start")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.dailySchedule, s.runTracked(model.SyncIncremental)); err != nil {
		return err
	}
	if _, err := c.AddFunc(s.weeklySchedule, s.runTracked(model.SyncFull)); err != nil {
		return err
	}

	c.Start()
	s.cron = c
	s.running = true
	logging.Scheduler("scheduler started (daily=%q weekly=%q)", s.dailySchedule, s.weeklySchedule)
	return nil
}

// Stop halts future triggers and waits for any in-flight job to finish.
// Calling Stop when not running is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	c := s.cron
	s.running = false
	s.mu.Unlock()

	ctx := c.Stop()
	<-ctx.Done()
	s.wg.Wait()
	logging.Scheduler("scheduler stopped")
}

// runTracked wraps a sync invocation so Stop can wait for an in-flight
// run, and so a panic or error in one tick never prevents future ticks.
// It sleeps a random delay bounded by s.jitter before triggering, so
// multiple starbase instances sharing the same cron schedule don't all
// hit the remote at the exact same second.
func (s *Scheduler) runTracked(mode model.SyncMode) func() {
	return func() {
		s.wg.Add(1)
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logging.Get(logging.CategoryScheduler).Error("scheduled %s sync panicked: %v", mode, r)
			}
		}()

		if s.jitter > 0 {
			delay := time.Duration(rand.Int63n(int64(s.jitter)))
			logging.Scheduler("delaying scheduled %s sync by %s", mode, delay)
			time.Sleep(delay)
		}

		logging.Scheduler("triggering scheduled %s sync", mode)
		if _, err := s.runner.Sync(context.Background(), mode); err != nil {
			logging.Get(logging.CategoryScheduler).Warn("scheduled %s sync failed: %v", mode, err)
		}
	}
}
