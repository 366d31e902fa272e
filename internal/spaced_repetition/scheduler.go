// Package spaced_repetition schedules graduated items for long-interval review.
package spaced_repetition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/boxtrainer/internal/clock"
	"github.com/example/boxtrainer/pkg/models"
)

var (
	ErrInvalidContext   = errors.New("spaced_repetition: invalid pairing context")
	ErrInvalidIntervals = errors.New("spaced_repetition: intervals must be non-empty and ascending")
)

// Store persists review records. Mutate runs fn inside a single
// read-modify-write transaction; current is nil when no record exists.
type Store interface {
	Mutate(ctx context.Context, itemID int64, c models.PairingContext, fn func(current *models.ReviewRecord) models.ReviewRecord) (models.ReviewRecord, error)
	Get(ctx context.Context, itemID int64, c models.PairingContext) (*models.ReviewRecord, error)
	Delete(ctx context.Context, itemID int64, c models.PairingContext) error
	DeleteAll(ctx context.Context, c models.PairingContext) error
	CountDue(ctx context.Context, c models.PairingContext, now time.Time) (int, error)
	ListDue(ctx context.Context, c models.PairingContext, now time.Time, limit int) ([]models.ReviewRecord, error)
}

// Scheduler owns the review ladder for graduated items.
type Scheduler struct {
	store     Store
	intervals Intervals
	clock     clock.Clock
	log       logrus.FieldLogger
}

// NewScheduler validates the interval table and returns a scheduler.
// A nil intervals table selects DefaultIntervals.
func NewScheduler(store Store, intervals Intervals, c clock.Clock, log logrus.FieldLogger) (*Scheduler, error) {
	if intervals == nil {
		intervals = DefaultIntervals
	}
	if len(intervals) == 0 || !intervals.Ascending() {
		return nil, ErrInvalidIntervals
	}
	if c == nil {
		c = clock.Real()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{
		store:     store,
		intervals: append(Intervals(nil), intervals...),
		clock:     c,
		log:       log.WithField("component", "review_scheduler"),
	}, nil
}

// ComputeNextReviewAt is a pure function of stage and now.
func (s *Scheduler) ComputeNextReviewAt(stage int, now time.Time) time.Time {
	return s.intervals.NextReviewAt(stage, now)
}

// Intervals returns a copy of the interval table.
func (s *Scheduler) Intervals() Intervals {
	return append(Intervals(nil), s.intervals...)
}

// Schedule upserts a record at stage. An existing record keeps its
// original learnedAt; stage and nextReviewAt are overwritten.
func (s *Scheduler) Schedule(ctx context.Context, itemID int64, c models.PairingContext, stage int) (models.ReviewRecord, error) {
	if err := validate(c); err != nil {
		return models.ReviewRecord{}, err
	}
	if stage < 0 {
		stage = 0
	}
	now := s.clock.Now()
	rec, err := s.store.Mutate(ctx, itemID, c, func(current *models.ReviewRecord) models.ReviewRecord {
		learnedAt := now
		if current != nil && !current.LearnedAt.IsZero() && current.LearnedAt.Before(now) {
			learnedAt = current.LearnedAt
		}
		return models.ReviewRecord{
			ItemID:       itemID,
			Context:      c,
			Stage:        stage,
			LearnedAt:    learnedAt,
			NextReviewAt: s.ComputeNextReviewAt(stage, now),
		}
	})
	if err != nil {
		return models.ReviewRecord{}, fmt.Errorf("schedule review for item %d: %w", itemID, err)
	}
	s.log.WithFields(logrus.Fields{"item_id": itemID, "scope": c.ScopeID(), "stage": rec.Stage}).Debug("review scheduled")
	return rec, nil
}

// Advance moves a record one stage up. A missing record is created as if it
// had been at stage 0.
func (s *Scheduler) Advance(ctx context.Context, itemID int64, c models.PairingContext) (models.ReviewRecord, error) {
	if err := validate(c); err != nil {
		return models.ReviewRecord{}, err
	}
	now := s.clock.Now()
	rec, err := s.store.Mutate(ctx, itemID, c, func(current *models.ReviewRecord) models.ReviewRecord {
		next := models.ReviewRecord{ItemID: itemID, Context: c, LearnedAt: now}
		if current != nil {
			next.Stage = current.Stage
			if !current.LearnedAt.IsZero() {
				next.LearnedAt = current.LearnedAt
			}
		}
		next.Stage++
		next.NextReviewAt = s.ComputeNextReviewAt(next.Stage, now)
		return next
	})
	if err != nil {
		return models.ReviewRecord{}, fmt.Errorf("advance review for item %d: %w", itemID, err)
	}
	return rec, nil
}

// Get returns the record for an item, or nil if there is none.
func (s *Scheduler) Get(ctx context.Context, itemID int64, c models.PairingContext) (*models.ReviewRecord, error) {
	if err := validate(c); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, itemID, c)
}

// Remove deletes the record for an item.
func (s *Scheduler) Remove(ctx context.Context, itemID int64, c models.PairingContext) error {
	if err := validate(c); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, itemID, c); err != nil {
		return fmt.Errorf("remove review for item %d: %w", itemID, err)
	}
	return nil
}

// Reset deletes every record of the context.
func (s *Scheduler) Reset(ctx context.Context, c models.PairingContext) error {
	if err := validate(c); err != nil {
		return err
	}
	if err := s.store.DeleteAll(ctx, c); err != nil {
		return fmt.Errorf("reset reviews for %s: %w", c.ScopeID(), err)
	}
	return nil
}

// CountDue counts records with nextReviewAt <= now.
func (s *Scheduler) CountDue(ctx context.Context, c models.PairingContext, now time.Time) (int, error) {
	if err := validate(c); err != nil {
		return 0, err
	}
	return s.store.CountDue(ctx, c, now)
}

// Due lists up to limit due records, earliest first.
func (s *Scheduler) Due(ctx context.Context, c models.PairingContext, now time.Time, limit int) ([]models.ReviewRecord, error) {
	if err := validate(c); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []models.ReviewRecord{}, nil
	}
	return s.store.ListDue(ctx, c, now, limit)
}

func validate(c models.PairingContext) error {
	if c.IsCourse() {
		return nil
	}
	if c.SourceLangID <= 0 || c.TargetLangID <= 0 {
		return ErrInvalidContext
	}
	return nil
}
