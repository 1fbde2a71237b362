// Package scheduler drives the daily background jobs: reminder dispatch,
// document retention sweep and refresh token cleanup. Jobs run at a fixed
// UTC hour, independent of request traffic.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one unit of scheduled work. Run must isolate per-item failures
// itself; the scheduler only guards against a job failing as a whole.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

type Scheduler struct {
	jobs    []Job
	hourUTC int
	logger  *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func New(hourUTC int, logger *zap.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs:    jobs,
		hourUTC: hourUTC,
		logger:  logger.With(zap.String("component", "scheduler")),
	}
}

// Start launches the timer goroutine. Call once at startup.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(runCtx)
	s.logger.Info("scheduler started", zap.Int("daily_hour_utc", s.hourUTC))
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	for {
		wait := time.Until(s.nextRun(time.Now()))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.RunAll(ctx)
		}
	}
}

// RunAll executes every job once, immediately. A panicking or failing job
// is logged and never crashes the process or skips the remaining jobs.
func (s *Scheduler) RunAll(ctx context.Context) {
	for _, job := range s.jobs {
		s.runOne(ctx, job)
	}
}

func (s *Scheduler) runOne(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked",
				zap.String("job", job.Name),
				zap.Any("panic", r))
		}
	}()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.Error("job failed",
			zap.String("job", job.Name),
			zap.Error(err))
		return
	}
	s.logger.Info("job completed",
		zap.String("job", job.Name),
		zap.Duration("duration", time.Since(start)))
}

func (s *Scheduler) nextRun(now time.Time) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
