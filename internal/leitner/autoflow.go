package leitner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/boxtrainer/internal/clock"
	"github.com/example/boxtrainer/pkg/models"
)

const timerCooldown = "cooldown"

const (
	DefaultSwitchThreshold    = 10
	DefaultReplenishThreshold = 5
	DefaultSwitchCooldown     = 1500 * time.Millisecond
	DefaultEntryLimit         = 30
)

// Replenisher loads the next batch of unseen items into the engine. It
// returns ErrNothingToLoad when the catalog is exhausted.
type Replenisher interface {
	Replenish(ctx context.Context) (int, error)
}

// ReplenisherFunc adapts a function to Replenisher.
type ReplenisherFunc func(ctx context.Context) (int, error)

func (f ReplenisherFunc) Replenish(ctx context.Context) (int, error) {
	return f(ctx)
}

// AutoflowSettings tune the box switching and replenishment policy.
type AutoflowSettings struct {
	Enabled bool
	// SwitchThreshold is the box size that makes a box a switch candidate.
	SwitchThreshold int
	// ReplenishThreshold is the entry box size at or below which a new
	// batch is requested.
	ReplenishThreshold int
	Cooldown           time.Duration
	// EntryLimit caps the entry box; no batch is requested beyond it.
	EntryLimit int
	// ItemLimit caps distinct items a course may introduce. Zero means no
	// limit.
	ItemLimit int
}

// DefaultAutoflowSettings returns the stock policy.
func DefaultAutoflowSettings() AutoflowSettings {
	return AutoflowSettings{
		Enabled:            true,
		SwitchThreshold:    DefaultSwitchThreshold,
		ReplenishThreshold: DefaultReplenishThreshold,
		Cooldown:           DefaultSwitchCooldown,
		EntryLimit:         DefaultEntryLimit,
	}
}

func (s AutoflowSettings) withDefaults() AutoflowSettings {
	if s.SwitchThreshold <= 0 {
		s.SwitchThreshold = DefaultSwitchThreshold
	}
	if s.ReplenishThreshold < 0 {
		s.ReplenishThreshold = DefaultReplenishThreshold
	}
	if s.Cooldown <= 0 {
		s.Cooldown = DefaultSwitchCooldown
	}
	if s.EntryLimit <= 0 {
		s.EntryLimit = DefaultEntryLimit
	}
	return s
}

// AutoflowDeps are optional collaborators of the controller.
type AutoflowDeps struct {
	Clock    clock.Clock
	Logger   logrus.FieldLogger
	Dispatch func(func())
}

// ChooseBox picks the box autoflow wants active. Boxes are scanned from the
// top tier down and the first one holding at least threshold items wins.
// Without such a box the current box is kept while it has items, otherwise
// the lowest non-empty box is chosen. ok is false when every box is empty.
func ChooseBox(boxes models.BoxesState, active models.BoxName, boxZeroEnabled bool, threshold int) (models.BoxName, bool) {
	for i := len(models.BoxOrder) - 1; i >= 0; i-- {
		box := models.BoxOrder[i]
		if box == models.BoxZero && !boxZeroEnabled {
			continue
		}
		if len(boxes[box]) >= threshold {
			return box, true
		}
	}
	if active != "" && len(boxes[active]) > 0 && (active != models.BoxZero || boxZeroEnabled) {
		return active, true
	}
	for _, box := range models.BoxOrder {
		if box == models.BoxZero && !boxZeroEnabled {
			continue
		}
		if len(boxes[box]) > 0 {
			return box, true
		}
	}
	return "", false
}

// Autoflow drives box selection and replenishment for one engine. It only
// reads engine state and requests changes through engine operations.
type Autoflow struct {
	engine   *Engine
	repl     Replenisher
	settings AutoflowSettings
	clock    clock.Clock
	log      logrus.FieldLogger
	dispatch func(func())
	ctx      context.Context
	cancel   context.CancelFunc

	mu          sync.Mutex
	timers      *clock.Group
	lockedUntil time.Time
	inFlight    bool
	exhausted   bool
	ready       bool
	closed      bool
	unsubscribe func()
}

// NewAutoflow creates a controller. Call Start to begin reacting to engine
// updates.
func NewAutoflow(engine *Engine, repl Replenisher, settings AutoflowSettings, deps AutoflowDeps) *Autoflow {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Dispatch == nil {
		deps.Dispatch = func(f func()) { go f() }
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Autoflow{
		engine:   engine,
		repl:     repl,
		settings: settings.withDefaults(),
		clock:    deps.Clock,
		log:      deps.Logger.WithField("component", "autoflow"),
		dispatch: deps.Dispatch,
		ctx:      ctx,
		cancel:   cancel,
		timers:   clock.NewGroup(deps.Clock),
	}
}

// Start subscribes to engine updates and runs a first evaluation.
func (a *Autoflow) Start() {
	a.mu.Lock()
	if a.unsubscribe == nil && !a.closed {
		a.unsubscribe = a.engine.Subscribe(func(Update) { a.Evaluate() })
	}
	a.mu.Unlock()
	a.Evaluate()
}

// SetReady gates replenishment. It stays closed until the persisted boxes
// have been restored so the first batch does not race the load.
func (a *Autoflow) SetReady(ready bool) {
	a.mu.Lock()
	a.ready = ready
	a.mu.Unlock()
	if ready {
		a.Evaluate()
	}
}

// SetEnabled toggles the policy at runtime.
func (a *Autoflow) SetEnabled(enabled bool) {
	a.mu.Lock()
	a.settings.Enabled = enabled
	if !enabled {
		a.timers.Cancel(timerCooldown)
	}
	a.mu.Unlock()
	if enabled {
		a.Evaluate()
	}
}

// Exhausted reports whether the replenisher ran out of items.
func (a *Autoflow) Exhausted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.exhausted
}

// Replenishing reports whether a batch fetch is in flight.
func (a *Autoflow) Replenishing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inFlight
}

// ResetExhausted lets replenishment try again, e.g. after the catalog grew.
func (a *Autoflow) ResetExhausted() {
	a.mu.Lock()
	a.exhausted = false
	a.mu.Unlock()
	a.Evaluate()
}

// Evaluate applies the policy to the current engine state.
func (a *Autoflow) Evaluate() {
	st := a.engine.snapshotForAutoflow()

	a.mu.Lock()
	if a.closed || !a.settings.Enabled {
		a.mu.Unlock()
		return
	}
	var (
		switchTo  models.BoxName
		replenish bool
	)
	if target, ok := ChooseBox(st.boxes, st.active, st.cfg.BoxZeroEnabled, a.settings.SwitchThreshold); ok && st.canSwitch {
		if target != st.active || !st.selected {
			now := a.clock.Now()
			if now.Before(a.lockedUntil) {
				if !a.timers.Pending(timerCooldown) {
					a.timers.Schedule(timerCooldown, a.lockedUntil.Sub(now), a.onCooldown)
				}
			} else {
				switchTo = target
				if target != st.active {
					a.lockedUntil = now.Add(a.settings.Cooldown)
				}
			}
		}
	}
	if a.shouldReplenishLocked(st.boxes, st.cfg, st.used) {
		a.inFlight = true
		replenish = true
	}
	a.mu.Unlock()

	if switchTo != "" {
		a.log.WithFields(logrus.Fields{"from": st.active, "to": switchTo}).Debug("autoflow switching box")
		if err := a.engine.SelectBox(switchTo); err != nil {
			a.log.WithError(err).Warn("autoflow select box failed")
		}
	}
	if replenish {
		a.dispatch(a.runReplenish)
	}
}

func (a *Autoflow) shouldReplenishLocked(boxes models.BoxesState, cfg Config, used int) bool {
	if a.repl == nil || !a.ready || a.inFlight || a.exhausted {
		return false
	}
	entry := len(boxes[cfg.EntryBox()])
	if entry > a.settings.ReplenishThreshold || entry >= a.settings.EntryLimit {
		return false
	}
	if a.settings.ItemLimit > 0 && used >= a.settings.ItemLimit {
		return false
	}
	return true
}

func (a *Autoflow) runReplenish() {
	n, err := a.repl.Replenish(a.ctx)

	a.mu.Lock()
	a.inFlight = false
	switch {
	case errors.Is(err, ErrNothingToLoad):
		a.exhausted = true
		a.log.Info("catalog exhausted, nothing to load")
	case err != nil:
		a.log.WithError(err).Warn("replenish failed, will retry")
	default:
		a.log.WithField("items", n).Debug("replenished entry box")
	}
	a.mu.Unlock()
}

func (a *Autoflow) onCooldown(token uint64) {
	a.mu.Lock()
	ok := !a.closed && a.timers.Claim(timerCooldown, token)
	a.mu.Unlock()
	if ok {
		a.Evaluate()
	}
}

// Close stops reacting to the engine and cancels a pending fetch.
func (a *Autoflow) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.timers.Close()
	unsubscribe := a.unsubscribe
	a.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
	a.cancel()
}
