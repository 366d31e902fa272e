package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/boxtrainer/internal/clock"
	"github.com/example/boxtrainer/pkg/models"
)

const timerSave = "save"

// State is the adapter lifecycle.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "idle"
	}
}

// Source produces the content to persist. It is called when a write
// actually happens, so debounced saves always store the latest state.
type Source func() Content

// Options configure an Adapter.
type Options struct {
	Namespace string
	// Delay is the debounce window of Schedule.
	Delay  time.Duration
	Clock  clock.Clock
	Logger logrus.FieldLogger
}

// Adapter loads and saves the snapshot of a single scope.
type Adapter struct {
	store  Store
	scope  models.PairingContext
	key    string
	delay  time.Duration
	clock  clock.Clock
	log    logrus.FieldLogger
	source Source

	mu     sync.Mutex
	state  State
	timers *clock.Group
	saves  int
}

// NewAdapter creates an idle adapter for scope.
func NewAdapter(store Store, scope models.PairingContext, source Source, opts Options) *Adapter {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	key := Key(opts.Namespace, scope)
	return &Adapter{
		store:  store,
		scope:  scope,
		key:    key,
		delay:  opts.Delay,
		clock:  opts.Clock,
		log:    opts.Logger.WithFields(logrus.Fields{"component": "snapshot", "key": key}),
		source: source,
		timers: clock.NewGroup(opts.Clock),
	}
}

// Key returns the storage key of the adapter's scope.
func (a *Adapter) Key() string {
	return a.key
}

// State returns the lifecycle state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Saves returns the number of completed writes.
func (a *Adapter) Saves() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.saves
}

// Load reads the snapshot and hands it to apply while writes are still
// refused, then marks the adapter ready. apply receives found=false when
// nothing usable is stored. Read errors other than a missing snapshot are
// returned, but the adapter still becomes ready so the session can go on
// with fresh state.
func (a *Adapter) Load(ctx context.Context, apply func(p Payload, found bool)) error {
	a.mu.Lock()
	if a.state == StateLoading {
		a.mu.Unlock()
		return errors.New("snapshot: load already in progress")
	}
	a.state = StateLoading
	a.timers.Cancel(timerSave)
	a.mu.Unlock()

	p, err := a.read(ctx)
	found := err == nil
	if errors.Is(err, ErrNotFound) {
		a.log.WithError(err).Debug("no usable snapshot")
		err = nil
	}
	if apply != nil {
		apply(p, found)
	}

	a.mu.Lock()
	a.state = StateReady
	a.mu.Unlock()
	return err
}

func (a *Adapter) read(ctx context.Context) (Payload, error) {
	data, err := a.store.Get(ctx, a.key)
	if err != nil {
		return Payload{}, err
	}
	return Decode(data)
}

// Schedule (re)starts the debounce timer. Only the last call inside the
// window results in a write.
func (a *Adapter) Schedule() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateReady {
		return ErrNotReady
	}
	a.timers.Schedule(timerSave, a.delay, a.onTimer)
	return nil
}

// Pending reports whether a debounced write is waiting.
func (a *Adapter) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timers.Pending(timerSave)
}

func (a *Adapter) onTimer(token uint64) {
	a.mu.Lock()
	ok := a.state == StateReady && a.timers.Claim(timerSave, token)
	a.mu.Unlock()
	if !ok {
		return
	}
	if err := a.write(context.Background()); err != nil {
		a.log.WithError(err).Warn("autosave failed, next change retries")
	}
}

// SaveNow writes immediately and drops any pending debounced write.
func (a *Adapter) SaveNow(ctx context.Context) error {
	a.mu.Lock()
	if a.state != StateReady {
		a.mu.Unlock()
		return ErrNotReady
	}
	a.timers.Cancel(timerSave)
	a.mu.Unlock()
	return a.write(ctx)
}

func (a *Adapter) write(ctx context.Context) error {
	p := NewPayload(a.scope, a.source(), a.clock.Now())
	data, err := Encode(p)
	if err != nil {
		return err
	}
	if err := a.store.Set(ctx, a.key, data); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	a.mu.Lock()
	a.saves++
	a.mu.Unlock()
	a.log.WithFields(logrus.Fields{"items": p.Boxes.Total(), "batch_index": p.BatchIndex}).Debug("snapshot saved")
	return nil
}

// Reset deletes the stored snapshot and any pending write.
func (a *Adapter) Reset(ctx context.Context) error {
	a.mu.Lock()
	a.timers.Cancel(timerSave)
	a.mu.Unlock()
	if err := a.store.Delete(ctx, a.key); err != nil {
		return fmt.Errorf("reset snapshot: %w", err)
	}
	return nil
}

// Close drops pending writes. Call SaveNow first to keep them.
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.timers.Close()
	a.state = StateIdle
}
