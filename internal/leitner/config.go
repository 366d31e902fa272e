// Package leitner implements the six-box learning engine: the box state,
// the answer and correction protocol, and the autoflow policy that picks
// the active box and asks for new items.
package leitner

import (
	"errors"
	"time"

	"github.com/samber/lo"

	"github.com/example/boxtrainer/pkg/models"
)

var (
	ErrUnknownBox = errors.New("leitner: unknown box")
	// ErrNothingToLoad is returned by a Replenisher when the catalog has no
	// unseen items left.
	ErrNothingToLoad = errors.New("leitner: nothing to load")
)

const (
	DefaultSettleDelay = 1500 * time.Millisecond
	DefaultFlashDelay  = 500 * time.Millisecond
)

// DefaultReversedBoxes are the boxes quizzed back-to-front.
var DefaultReversedBoxes = []models.BoxName{models.BoxTwo, models.BoxFour}

// Config holds the course and learner settings the engine consults.
type Config struct {
	// BoxZeroEnabled turns on the intro box where new items are copied once
	// before they are quizzed.
	BoxZeroEnabled bool
	// ReversedBoxes lists boxes whose flippable items are asked in reverse.
	ReversedBoxes []models.BoxName
	// FlipAllowed is false for courses that forbid reversing items the
	// learner does not own.
	FlipAllowed bool
	SettleDelay time.Duration
	FlashDelay  time.Duration
}

// DefaultConfig mirrors the stock course settings.
func DefaultConfig() Config {
	return Config{
		ReversedBoxes: DefaultReversedBoxes,
		FlipAllowed:   true,
		SettleDelay:   DefaultSettleDelay,
		FlashDelay:    DefaultFlashDelay,
	}
}

func (c Config) withDefaults() Config {
	if c.ReversedBoxes == nil {
		c.ReversedBoxes = DefaultReversedBoxes
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.FlashDelay <= 0 {
		c.FlashDelay = DefaultFlashDelay
	}
	return c
}

// EntryBox is where new items land: boxZero when enabled, otherwise boxOne.
func (c Config) EntryBox() models.BoxName {
	if c.BoxZeroEnabled {
		return models.BoxZero
	}
	return models.BoxOne
}

// ActiveBoxes returns the boxes in play, lowest tier first.
func (c Config) ActiveBoxes() []models.BoxName {
	if c.BoxZeroEnabled {
		return models.BoxOrder
	}
	return models.BoxOrder[1:]
}

// IsReversedBox reports whether box belongs to the reversed set.
func (c Config) IsReversedBox(box models.BoxName) bool {
	return lo.Contains(c.ReversedBoxes, box)
}

// IsReversed is the single predicate deciding quiz direction: the box must
// be in the reversed set, the item must be flippable and the course must
// allow flipping.
func (c Config) IsReversed(box models.BoxName, item models.LearningItem) bool {
	return c.IsReversedBox(box) && item.Flippable && c.FlipAllowed
}
