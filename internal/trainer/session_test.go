package trainer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/boxtrainer/internal/clock/clocktest"
	"github.com/example/boxtrainer/internal/database"
	"github.com/example/boxtrainer/internal/leitner"
	"github.com/example/boxtrainer/internal/snapshot"
	"github.com/example/boxtrainer/internal/spaced_repetition"
	"github.com/example/boxtrainer/internal/spellcheck"
	"github.com/example/boxtrainer/pkg/models"
)

const ns = "boxes"

var (
	t0   = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	pair = models.LanguageContext(1, 2, "A1")
)

type fixture struct {
	clk     *clocktest.Manual
	store   *snapshot.MemoryStore
	words   *database.WordRepository
	reviews *database.ReviewRepository
	ids     []int64
}

func newFixture(t *testing.T, catalogSize int) *fixture {
	t.Helper()
	db, err := database.ConnectMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	f := &fixture{
		clk:     clocktest.New(t0),
		store:   snapshot.NewMemoryStore(),
		words:   database.NewWordRepository(db),
		reviews: database.NewReviewRepository(db),
	}
	for i := 0; i < catalogSize; i++ {
		item := &models.LearningItem{Text: fmt.Sprintf("word-%d", i), Translations: []string{fmt.Sprintf("translation-%d", i)}}
		require.NoError(t, f.words.Create(context.Background(), pair, item))
		f.ids = append(f.ids, item.ID)
	}
	return f
}

func (f *fixture) session(t *testing.T, catalog Catalog) *Session {
	t.Helper()
	logger, _ := test.NewNullLogger()
	reviews, err := spaced_repetition.NewScheduler(f.reviews, nil, f.clk, logger)
	require.NoError(t, err)
	if catalog == nil {
		catalog = f.words
	}
	s := NewSession(Options{
		Scope:     pair,
		Engine:    leitner.DefaultConfig(),
		Autoflow:  leitner.DefaultAutoflowSettings(),
		Namespace: ns,
	}, Deps{
		Catalog:    catalog,
		Snapshots:  f.store,
		Spellcheck: spellcheck.New(spellcheck.Options{Fuzzy: true}),
		Reviews:    reviews,
		Clock:      f.clk,
		Logger:     logger,
		Rand:       rand.New(rand.NewSource(1)),
		Dispatch:   func(fn func()) { fn() },
	})
	return s
}

func (f *fixture) saved(t *testing.T) snapshot.Payload {
	t.Helper()
	data, err := f.store.Get(context.Background(), snapshot.Key(ns, pair))
	require.NoError(t, err)
	p, err := snapshot.Decode(data)
	require.NoError(t, err)
	return p
}

func (f *fixture) seed(t *testing.T, c snapshot.Content) {
	t.Helper()
	data, err := snapshot.Encode(snapshot.NewPayload(pair, c, t0))
	require.NoError(t, err)
	require.NoError(t, f.store.Set(context.Background(), snapshot.Key(ns, pair), data))
}

func (f *fixture) item(t *testing.T, id int64) models.LearningItem {
	t.Helper()
	items, err := f.words.GetByIDs(context.Background(), []int64{id})
	require.NoError(t, err)
	require.Len(t, items, 1)
	return items[0]
}

func answer(t *testing.T, e *leitner.Engine) models.LearningItem {
	t.Helper()
	v := e.View()
	require.Equal(t, leitner.PhaseAwaitingAnswer, v.Phase)
	item := *v.Cursor.SelectedItem
	if v.Reversed {
		e.SetAnswer(item.Text)
	} else {
		e.SetAnswer(item.PrimaryTranslation())
	}
	e.Confirm()
	return item
}

func TestOpenFreshLoadsFirstBatch(t *testing.T) {
	f := newFixture(t, 25)
	s := f.session(t, nil)
	require.NoError(t, s.Open(context.Background()))
	defer s.Close(context.Background())

	boxes := s.Engine().Boxes()
	assert.Len(t, boxes[models.BoxOne], DefaultBatchSize)
	assert.Equal(t, 1, s.BatchIndex())
	assert.Equal(t, models.BoxOne, s.Engine().View().Cursor.ActiveBox)

	p := f.saved(t)
	assert.Equal(t, snapshot.Version, p.V)
	assert.Equal(t, 1, p.BatchIndex)
	assert.Len(t, p.UsedItemIDs, DefaultBatchSize)
	assert.Equal(t, "1-2-A1", p.ScopeID)
}

func TestOpenRestoresSavedBoxes(t *testing.T) {
	f := newFixture(t, 12)
	boxes := models.NewBoxesState()
	for _, id := range f.ids[:6] {
		boxes[models.BoxOne] = append(boxes[models.BoxOne], f.item(t, id))
	}
	boxes[models.BoxThree] = []models.LearningItem{f.item(t, f.ids[6])}
	f.seed(t, snapshot.Content{BatchIndex: 3, Boxes: boxes, UsedItemIDs: f.ids[:8]})

	s := f.session(t, nil)
	require.NoError(t, s.Open(context.Background()))
	defer s.Close(context.Background())

	got := s.Engine().Boxes()
	assert.Len(t, got[models.BoxOne], 6)
	assert.Len(t, got[models.BoxThree], 1)
	assert.Equal(t, 3, s.BatchIndex())
	assert.Equal(t, f.ids[:8], s.Engine().UsedIDs())
	assert.False(t, s.Autoflow().Exhausted())
}

func TestOldSnapshotStartsEmpty(t *testing.T) {
	f := newFixture(t, 4)
	legacy := `{"v":1,"boxes":{"boxThree":[{"id":1,"text":"x","translations":["y"]}]},"usedItemIds":[1]}`
	require.NoError(t, f.store.Set(context.Background(), snapshot.Key(ns, pair), []byte(legacy)))

	s := f.session(t, nil)
	require.NoError(t, s.Open(context.Background()))
	defer s.Close(context.Background())

	boxes := s.Engine().Boxes()
	assert.Empty(t, boxes[models.BoxThree])
	assert.Len(t, boxes[models.BoxOne], 4)
	assert.Equal(t, 1, f.saved(t).BatchIndex)
}

func TestGraduationSchedulesReview(t *testing.T) {
	f := newFixture(t, 3)
	top := f.item(t, f.ids[0])
	boxes := models.NewBoxesState()
	boxes[models.BoxFive] = []models.LearningItem{top}
	boxes[models.BoxOne] = []models.LearningItem{f.item(t, f.ids[1]), f.item(t, f.ids[2])}
	f.seed(t, snapshot.Content{BatchIndex: 1, Boxes: boxes, UsedItemIDs: f.ids})

	s := f.session(t, nil)
	ctx := context.Background()
	require.NoError(t, s.Open(ctx))
	defer s.Close(ctx)
	assert.True(t, s.Autoflow().Exhausted())

	require.NoError(t, s.Engine().SelectBox(models.BoxFive))
	answered := answer(t, s.Engine())
	assert.Equal(t, top.ID, answered.ID)

	f.clk.Advance(leitner.DefaultSettleDelay)
	_, stillBoxed := s.Engine().Boxes().Locate(top.ID)
	assert.False(t, stillBoxed)

	rec, err := f.reviews.Get(ctx, top.ID, pair)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 0, rec.Stage)
	assert.Equal(t, t0.Add(leitner.DefaultSettleDelay), rec.LearnedAt)

	f.clk.Advance(DefaultSaveDelay)
	p := f.saved(t)
	_, inSnapshot := p.Boxes.Locate(top.ID)
	assert.False(t, inSnapshot)
	assert.Contains(t, p.UsedItemIDs, top.ID)
}

func TestDebouncedSaveAfterAnswer(t *testing.T) {
	f := newFixture(t, 10)
	s := f.session(t, nil)
	ctx := context.Background()
	require.NoError(t, s.Open(ctx))
	defer s.Close(ctx)
	saves := s.Snapshots().Saves()

	item := answer(t, s.Engine())
	f.clk.Advance(leitner.DefaultSettleDelay)
	assert.True(t, s.Snapshots().Pending())
	assert.Equal(t, saves, s.Snapshots().Saves())

	f.clk.Advance(DefaultSaveDelay)
	assert.Equal(t, saves+1, s.Snapshots().Saves())
	assert.True(t, f.saved(t).Boxes.Contains(models.BoxTwo, item.ID))
}

func TestCloseKeepsSettlingAnswer(t *testing.T) {
	f := newFixture(t, 10)
	s := f.session(t, nil)
	ctx := context.Background()
	require.NoError(t, s.Open(ctx))

	item := answer(t, s.Engine())
	require.NoError(t, s.Close(ctx))

	assert.True(t, f.saved(t).Boxes.Contains(models.BoxTwo, item.ID))
	assert.Zero(t, f.clk.PendingTimers())
}

func TestEmptyCatalogIsExhausted(t *testing.T) {
	f := newFixture(t, 0)
	s := f.session(t, nil)
	require.NoError(t, s.Open(context.Background()))
	defer s.Close(context.Background())

	assert.True(t, s.Autoflow().Exhausted())
	assert.Zero(t, s.BatchIndex())
	assert.Zero(t, s.Engine().Boxes().Total())
}

func TestReplenishErrorIsRetried(t *testing.T) {
	f := newFixture(t, 5)
	calls := 0
	flaky := catalogFunc(func(ctx context.Context, c models.PairingContext, exclude []int64, limit int) ([]models.LearningItem, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("connection reset")
		}
		return f.words.FetchBatch(ctx, c, exclude, limit)
	})
	s := f.session(t, flaky)
	require.NoError(t, s.Open(context.Background()))
	defer s.Close(context.Background())

	assert.Zero(t, s.Engine().Boxes().Total())
	assert.False(t, s.Autoflow().Exhausted())

	s.Autoflow().Evaluate()
	assert.Len(t, s.Engine().Boxes()[models.BoxOne], 5)
}

func TestResetStartsOver(t *testing.T) {
	f := newFixture(t, 15)
	s := f.session(t, nil)
	ctx := context.Background()
	require.NoError(t, s.Open(ctx))
	defer s.Close(ctx)

	require.NoError(t, s.Reset(ctx))
	assert.Equal(t, 1, s.BatchIndex())
	assert.Len(t, s.Engine().Boxes()[models.BoxOne], DefaultBatchSize)
	assert.Equal(t, 1, f.saved(t).BatchIndex)
}

func TestOpenWithCancelledContext(t *testing.T) {
	f := newFixture(t, 3)
	s := f.session(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Open(ctx), context.Canceled)
	require.NoError(t, s.Close(context.Background()))
}

type catalogFunc func(ctx context.Context, c models.PairingContext, exclude []int64, limit int) ([]models.LearningItem, error)

func (f catalogFunc) FetchBatch(ctx context.Context, c models.PairingContext, exclude []int64, limit int) ([]models.LearningItem, error) {
	return f(ctx, c, exclude, limit)
}
