package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"morgonpodd/internal/config"
	"morgonpodd/internal/logging"
	"morgonpodd/internal/notifications"
	"morgonpodd/internal/services"
)

// NextRun returns the first occurrence of hhmm in loc strictly after now.
func NextRun(now time.Time, hhmm string, loc *time.Location) (time.Time, error) {
	at, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse generate time %q: %w", hhmm, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), at.Hour(), at.Minute(), 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, at.Hour(), at.Minute(), 0, 0, loc)
	}
	return next, nil
}

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context) (*Report, error)
}

// Scheduler runs the pipeline once a day at podcast.generate_time.
type Scheduler struct {
	cfg      *config.Config
	runner   Runner
	notifier notifications.Service
	logger   *slog.Logger
	clock    func() time.Time
	after    func(time.Duration) <-chan time.Time
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerClock overrides the clock and timer used between runs.
func WithSchedulerClock(clock func() time.Time, after func(time.Duration) <-chan time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
		if after != nil {
			s.after = after
		}
	}
}

// NewScheduler constructs a daily scheduler.
func NewScheduler(cfg *config.Config, runner Runner, notifier notifications.Service, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(&config.Config{})
	}
	s := &Scheduler{
		cfg:      cfg,
		runner:   runner,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "schedule"),
		clock:    time.Now,
		after:    time.After,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Loop blocks until ctx is cancelled, running the pipeline at every
// scheduled time. Run failures are logged and never stop the loop.
func (s *Scheduler) Loop(ctx context.Context) error {
	loc := s.cfg.Location()
	for {
		now := s.clock()
		next, err := NextRun(now, s.cfg.Podcast.GenerateTime, loc)
		if err != nil {
			return err
		}
		s.logger.Info("next run scheduled",
			logging.String(logging.FieldEventType, "schedule_next"),
			logging.String("at", next.Format(time.RFC3339)),
			logging.Duration("wait", next.Sub(now)))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.after(next.Sub(now)):
		}

		report, err := s.runner.Run(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil && report == nil {
			logging.ErrorWithContext(s.logger, "scheduled run did not start", "schedule_run_skipped",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "another run may still hold the lock"))
			label := "schedule"
			if errors.Is(err, services.ErrLocked) {
				label = "schedule (lock held)"
			}
			if nerr := s.notifier.Publish(ctx, notifications.EventError, notifications.Payload{"context": label, "error": err.Error()}); nerr != nil {
				s.logger.Warn("notification failed", logging.Error(nerr))
			}
			continue
		}
		if report != nil {
			s.logger.Info("scheduled run finished",
				logging.String("run_id", report.RunID),
				logging.String("status", string(report.Status)))
		}
	}
}
