// Package trainer wires a learning engine, its autoflow controller and the
// snapshot adapter into one session per learning scope.
package trainer

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/boxtrainer/internal/clock"
	"github.com/example/boxtrainer/internal/leitner"
	"github.com/example/boxtrainer/internal/snapshot"
	"github.com/example/boxtrainer/pkg/models"
)

const (
	DefaultBatchSize = 10
	DefaultSaveDelay = 800 * time.Millisecond
)

// Catalog supplies unseen items for a scope.
type Catalog interface {
	FetchBatch(ctx context.Context, c models.PairingContext, exclude []int64, limit int) ([]models.LearningItem, error)
}

// Options configure a session.
type Options struct {
	Scope     models.PairingContext
	Engine    leitner.Config
	Autoflow  leitner.AutoflowSettings
	BatchSize int
	// Namespace prefixes snapshot keys.
	Namespace string
	SaveDelay time.Duration
}

// Deps are the collaborators of a session. Catalog, Snapshots and
// Spellcheck are required.
type Deps struct {
	Catalog     Catalog
	Snapshots   snapshot.Store
	Spellcheck  leitner.Spellchecker
	Reviews     leitner.ReviewScheduler
	Analytics   leitner.Analytics
	OnMastered  func(itemID int64)
	OnGraduated func(item models.LearningItem)
	Clock       clock.Clock
	Logger      logrus.FieldLogger
	Rand        *rand.Rand
	Dispatch    func(func())
}

// Session is one learner working through one scope.
type Session struct {
	scope     models.PairingContext
	engine    *leitner.Engine
	autoflow  *leitner.Autoflow
	adapter   *snapshot.Adapter
	catalog   Catalog
	batchSize int
	itemLimit int
	log       logrus.FieldLogger

	mu          sync.Mutex
	batchIndex  int
	unsubscribe func()
}

// NewSession builds the session. Call Open to restore saved progress.
func NewSession(opts Options, deps Deps) *Session {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.SaveDelay <= 0 {
		opts.SaveDelay = DefaultSaveDelay
	}
	s := &Session{
		scope:     opts.Scope,
		catalog:   deps.Catalog,
		batchSize: opts.BatchSize,
		itemLimit: opts.Autoflow.ItemLimit,
		log:       deps.Logger.WithFields(logrus.Fields{"component": "session", "scope": opts.Scope.ScopeID()}),
	}
	s.engine = leitner.NewEngine(opts.Scope, opts.Engine, leitner.Deps{
		Spellcheck:  deps.Spellcheck,
		Analytics:   deps.Analytics,
		Reviews:     deps.Reviews,
		OnMastered:  deps.OnMastered,
		OnGraduated: deps.OnGraduated,
		Clock:       deps.Clock,
		Logger:      deps.Logger,
		Rand:        deps.Rand,
		Dispatch:    deps.Dispatch,
	})
	s.adapter = snapshot.NewAdapter(deps.Snapshots, opts.Scope, s.content, snapshot.Options{
		Namespace: opts.Namespace,
		Delay:     opts.SaveDelay,
		Clock:     deps.Clock,
		Logger:    deps.Logger,
	})
	s.autoflow = leitner.NewAutoflow(s.engine, leitner.ReplenisherFunc(s.Replenish), opts.Autoflow, leitner.AutoflowDeps{
		Clock:    deps.Clock,
		Logger:   deps.Logger,
		Dispatch: deps.Dispatch,
	})
	s.unsubscribe = s.engine.Subscribe(s.onUpdate)
	return s
}

// Engine returns the interaction engine.
func (s *Session) Engine() *leitner.Engine { return s.engine }

// Autoflow returns the box switching controller.
func (s *Session) Autoflow() *leitner.Autoflow { return s.autoflow }

// Snapshots returns the snapshot adapter.
func (s *Session) Snapshots() *snapshot.Adapter { return s.adapter }

// Scope returns the session's pairing context.
func (s *Session) Scope() models.PairingContext { return s.scope }

// BatchIndex is the number of batches loaded into this scope so far.
func (s *Session) BatchIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batchIndex
}

// Open restores the saved boxes, then lets autoflow run. A snapshot that
// cannot be read is logged and the session starts empty; only a cancelled
// ctx is reported.
func (s *Session) Open(ctx context.Context) error {
	err := s.adapter.Load(ctx, func(p snapshot.Payload, found bool) {
		if !found {
			return
		}
		s.mu.Lock()
		s.batchIndex = p.BatchIndex
		s.mu.Unlock()
		s.engine.Restore(p.Boxes, p.UsedItemIDs)
		s.log.WithFields(logrus.Fields{"items": p.Boxes.Total(), "batch_index": p.BatchIndex}).Info("progress restored")
	})
	if err != nil {
		s.log.WithError(err).Warn("could not read saved progress, starting fresh")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.autoflow.Start()
	s.autoflow.SetReady(true)
	return nil
}

// Replenish loads the next batch of unseen catalog items into the entry
// box and saves at once.
func (s *Session) Replenish(ctx context.Context) (int, error) {
	used := s.engine.UsedIDs()
	limit := s.batchSize
	if s.itemLimit > 0 {
		remaining := s.itemLimit - len(used)
		if remaining <= 0 {
			return 0, leitner.ErrNothingToLoad
		}
		limit = min(limit, remaining)
	}
	items, err := s.catalog.FetchBatch(ctx, s.scope, used, limit)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, leitner.ErrNothingToLoad
	}
	n := s.engine.AddItems(items)
	s.mu.Lock()
	s.batchIndex++
	s.mu.Unlock()
	if err := s.adapter.SaveNow(ctx); err != nil && !errors.Is(err, snapshot.ErrNotReady) {
		s.log.WithError(err).Warn("save after replenish failed")
	}
	return n, nil
}

// Reset forgets all progress of the scope and lets autoflow start over.
func (s *Session) Reset(ctx context.Context) error {
	s.autoflow.SetReady(false)
	defer s.autoflow.SetReady(true)

	s.engine.Deselect()
	s.engine.Restore(models.NewBoxesState(), nil)
	s.mu.Lock()
	s.batchIndex = 0
	s.mu.Unlock()
	if err := s.adapter.Reset(ctx); err != nil {
		return err
	}
	s.autoflow.ResetExhausted()
	return nil
}

// Close applies a settling answer, saves and stops every timer.
func (s *Session) Close(ctx context.Context) error {
	s.autoflow.Close()
	s.engine.Deselect()
	err := s.adapter.SaveNow(ctx)
	if errors.Is(err, snapshot.ErrNotReady) {
		err = nil
	}
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.engine.Close()
	s.adapter.Close()
	return err
}

func (s *Session) onUpdate(u leitner.Update) {
	if !u.BoxesChanged {
		return
	}
	// Writes are refused while a snapshot is being applied.
	if err := s.adapter.Schedule(); err != nil && !errors.Is(err, snapshot.ErrNotReady) {
		s.log.WithError(err).Warn("could not schedule save")
	}
}

func (s *Session) content() snapshot.Content {
	s.mu.Lock()
	batch := s.batchIndex
	s.mu.Unlock()
	return snapshot.Content{
		BatchIndex:  batch,
		Boxes:       s.engine.Boxes(),
		UsedItemIDs: s.engine.UsedIDs(),
	}
}
