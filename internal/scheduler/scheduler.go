// Package scheduler runs periodic jobs on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Siemens-Vr/fuzzy-parakeet-sub000/internal/service"
)

// DefaultJobTimeout bounds a single payout run.
const DefaultJobTimeout = 30 * time.Minute

// PayoutRunner pays out developer balances.
type PayoutRunner interface {
	RunPayouts(ctx context.Context) (*service.PayoutReport, error)
}

// Scheduler triggers payout runs on a cron schedule.
type Scheduler struct {
	cron       *cron.Cron
	runner     PayoutRunner
	logger     *slog.Logger
	schedule   string
	jobTimeout time.Duration
	started    atomic.Bool
	baseCtx    context.Context
}

// New creates a scheduler for a standard five-field cron spec or a
// descriptor such as "@monthly".
func New(schedule string, runner PayoutRunner, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:       cron.New(cron.WithLocation(time.UTC)),
		runner:     runner,
		logger:     logger.With("component", "scheduler"),
		schedule:   schedule,
		jobTimeout: DefaultJobTimeout,
		baseCtx:    context.Background(),
	}

	// A tick that arrives while a run is in flight is skipped.
	job := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(s.runPayouts))
	if _, err := s.cron.AddJob(schedule, job); err != nil {
		return nil, fmt.Errorf("parse payout schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Run starts the cron loop and blocks until ctx is cancelled. Jobs in
// flight are waited for before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("scheduler already started")
	}
	s.baseCtx = ctx

	s.cron.Start()
	s.logger.Info("scheduler started", "schedule", s.schedule, "next_run", s.Next())

	<-ctx.Done()
	s.logger.Info("scheduler stopping")
	<-s.cron.Stop().Done()
	return nil
}

// Next returns the next scheduled payout time.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 || entries[0].Next.IsZero() {
		return s.nextFromSpec(time.Now())
	}
	return entries[0].Next
}

func (s *Scheduler) nextFromSpec(from time.Time) time.Time {
	sched, err := cron.ParseStandard(s.schedule)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(from.UTC())
}

// SetJobTimeout overrides the default run timeout.
func (s *Scheduler) SetJobTimeout(d time.Duration) {
	if d > 0 {
		s.jobTimeout = d
	}
}

func (s *Scheduler) runPayouts() {
	// A cancelled scheduler still finishes a run it has started.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.baseCtx), s.jobTimeout)
	defer cancel()

	s.logger.Info("scheduled payout run starting")
	report, err := s.runner.RunPayouts(ctx)
	switch {
	case errors.Is(err, service.ErrPayoutInProgress):
		s.logger.Warn("scheduled payout run skipped", "reason", err)
	case err != nil:
		s.logger.Error("scheduled payout run failed", "error", err)
	default:
		s.logger.Info("scheduled payout run finished",
			"paid", report.Paid,
			"failed", report.Failed,
			"skipped", report.Skipped,
			"duration_ms", report.Duration.Milliseconds(),
		)
	}
}
