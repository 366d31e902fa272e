// Package scheduler runs periodic due-review reminders.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"

	"github.com/example/boxtrainer/internal/clock"
	"github.com/example/boxtrainer/pkg/models"
)

// Default reminder window, in hours of the scheduler's location.
const (
	DefaultNotificationStartHour = 8
	DefaultNotificationEndHour   = 22
	DefaultInterval              = time.Hour
)

// DueCounter counts reviews that are due at now.
type DueCounter interface {
	CountDue(ctx context.Context, c models.PairingContext, now time.Time) (int, error)
}

// Notifier delivers reminders.
type Notifier interface {
	NotifyDue(ctx context.Context, scope models.PairingContext, count int) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, scope models.PairingContext, count int) error

func (f NotifierFunc) NotifyDue(ctx context.Context, scope models.PairingContext, count int) error {
	return f(ctx, scope, count)
}

// Options configure the reminder scheduler.
type Options struct {
	Interval  time.Duration
	StartHour int
	EndHour   int
	// Limit caps the reported count; zero means no cap.
	Limit    int
	Location *time.Location
	Clock    clock.Clock
	Logger   logrus.FieldLogger
}

// Scheduler manages scheduled tasks for the application
type Scheduler struct {
	scheduler *gocron.Scheduler
	reviews   DueCounter
	notifier  Notifier
	scopes    []models.PairingContext
	opts      Options
	log       logrus.FieldLogger
}

// New creates a scheduler that watches scopes.
func New(reviews DueCounter, notifier Notifier, scopes []models.PairingContext, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.StartHour == 0 && opts.EndHour == 0 {
		opts.StartHour = DefaultNotificationStartHour
		opts.EndHour = DefaultNotificationEndHour
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(opts.Location),
		reviews:   reviews,
		notifier:  notifier,
		scopes:    append([]models.PairingContext(nil), scopes...),
		opts:      opts,
		log:       opts.Logger.WithField("component", "reminders"),
	}
}

// Start begins running the reminder job in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.scheduler.Every(s.opts.Interval).Do(func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.WithError(err).Warn("reminder check failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule reminders: %w", err)
	}
	s.scheduler.StartAsync()
	return nil
}

// Stop terminates all scheduled tasks
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// InWindow reports whether reminders may be sent at t.
func (s *Scheduler) InWindow(t time.Time) bool {
	h := t.In(s.opts.Location).Hour()
	if s.opts.StartHour <= s.opts.EndHour {
		return h >= s.opts.StartHour && h <= s.opts.EndHour
	}
	// Window wraps midnight.
	return h >= s.opts.StartHour || h <= s.opts.EndHour
}

// RunOnce checks every watched scope and notifies those with due reviews.
// It returns the number of notifications sent.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	now := s.opts.Clock.Now()
	if !s.InWindow(now) {
		s.log.WithField("hour", now.In(s.opts.Location).Hour()).Debug("outside notification hours, skipping reminders")
		return 0, nil
	}
	sent := 0
	var firstErr error
	for _, scope := range s.scopes {
		n, err := s.Check(ctx, scope, now)
		if err != nil {
			s.log.WithError(err).WithField("scope", scope.ScopeID()).Warn("reminder failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if n > 0 {
			sent++
		}
	}
	return sent, firstErr
}

// Check notifies a single scope regardless of the window and returns the
// reported count.
func (s *Scheduler) Check(ctx context.Context, scope models.PairingContext, now time.Time) (int, error) {
	count, err := s.reviews.CountDue(ctx, scope, now)
	if err != nil {
		return 0, fmt.Errorf("count due reviews for %s: %w", scope.ScopeID(), err)
	}
	if count == 0 {
		return 0, nil
	}
	if s.opts.Limit > 0 && count > s.opts.Limit {
		count = s.opts.Limit
	}
	if err := s.notifier.NotifyDue(ctx, scope, count); err != nil {
		return 0, fmt.Errorf("notify %s: %w", scope.ScopeID(), err)
	}
	return count, nil
}

// LogNotifier writes reminders to a logger.
type LogNotifier struct {
	Log logrus.FieldLogger
}

func (n LogNotifier) NotifyDue(_ context.Context, scope models.PairingContext, count int) error {
	n.Log.WithFields(logrus.Fields{"scope": scope.ScopeID(), "due": count}).Info("reviews are due")
	return nil
}
