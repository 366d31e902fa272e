package leitner

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/boxtrainer/internal/clock/clocktest"
	"github.com/example/boxtrainer/internal/spellcheck"
	"github.com/example/boxtrainer/pkg/models"
)

var (
	t0   = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	pair = models.LanguageContext(1, 2, "A1")
)

type fakeAnalytics struct {
	mu     sync.Mutex
	events []models.LearningEvent
	moves  []models.BoxMove
}

func (f *fakeAnalytics) LogLearningEvent(_ context.Context, ev models.LearningEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeAnalytics) LogBoxMove(_ context.Context, mv models.BoxMove) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moves = append(f.moves, mv)
	return nil
}

type scheduled struct {
	itemID int64
	scope  models.PairingContext
	stage  int
}

type fakeReviews struct {
	mu    sync.Mutex
	calls []scheduled
}

func (f *fakeReviews) Schedule(_ context.Context, itemID int64, c models.PairingContext, stage int) (models.ReviewRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, scheduled{itemID: itemID, scope: c, stage: stage})
	return models.ReviewRecord{ItemID: itemID, Context: c, Stage: stage}, nil
}

type harness struct {
	eng       *Engine
	clk       *clocktest.Manual
	analytics *fakeAnalytics
	reviews   *fakeReviews
	mastered  []int64
	graduated []models.LearningItem
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		clk:       clocktest.New(t0),
		analytics: &fakeAnalytics{},
		reviews:   &fakeReviews{},
	}
	logger, _ := test.NewNullLogger()
	h.eng = NewEngine(pair, cfg, Deps{
		Spellcheck:  spellcheck.New(spellcheck.Options{Fuzzy: true}),
		Analytics:   h.analytics,
		Reviews:     h.reviews,
		OnMastered:  func(id int64) { h.mastered = append(h.mastered, id) },
		OnGraduated: func(item models.LearningItem) { h.graduated = append(h.graduated, item) },
		Clock:       h.clk,
		Logger:      logger,
		Rand:        rand.New(rand.NewSource(1)),
		Dispatch:    func(f func()) { f() },
	})
	t.Cleanup(h.eng.Close)
	return h
}

func makeItems(from, n int) []models.LearningItem {
	items := make([]models.LearningItem, 0, n)
	for i := from; i < from+n; i++ {
		items = append(items, models.LearningItem{
			ID:           int64(i),
			Text:         fmt.Sprintf("word-%d", i),
			Translations: []string{fmt.Sprintf("translation-%d", i)},
		})
	}
	return items
}

func boxesWith(box models.BoxName, items ...models.LearningItem) models.BoxesState {
	s := models.NewBoxesState()
	s[box] = items
	return s
}

func (h *harness) answerCorrectly(t *testing.T) int64 {
	t.Helper()
	v := h.eng.View()
	require.Equal(t, PhaseAwaitingAnswer, v.Phase)
	item := v.Cursor.SelectedItem
	if v.Reversed {
		h.eng.SetAnswer(item.Text)
	} else {
		h.eng.SetAnswer(item.PrimaryTranslation())
	}
	h.eng.Confirm()
	require.Equal(t, PhaseCorrectPending, h.eng.View().Phase)
	return item.ID
}

func assertSingleLocation(t *testing.T, boxes models.BoxesState) {
	t.Helper()
	seen := make(map[int64]models.BoxName)
	for _, box := range models.BoxOrder {
		for _, item := range boxes[box] {
			prev, dup := seen[item.ID]
			require.False(t, dup, "item %d in both %s and %s", item.ID, prev, box)
			seen[item.ID] = box
		}
	}
}

func TestSelectBoxUnknownName(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	assert.ErrorIs(t, h.eng.SelectBox("boxSeven"), ErrUnknownBox)
}

func TestSelectEmptyBoxIsIdle(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	require.NoError(t, h.eng.SelectBox(models.BoxThree))
	v := h.eng.View()
	assert.Equal(t, PhaseIdle, v.Phase)
	assert.Equal(t, models.BoxThree, v.Cursor.ActiveBox)
	assert.Nil(t, v.Cursor.SelectedItem)
}

func TestSelectDisabledBoxZeroClearsSelection(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.eng.Restore(boxesWith(models.BoxOne, makeItems(1, 3)...), nil)
	require.NoError(t, h.eng.SelectBox(models.BoxOne))
	require.NotNil(t, h.eng.View().Cursor.SelectedItem)

	require.NoError(t, h.eng.SelectBox(models.BoxZero))
	v := h.eng.View()
	assert.Equal(t, models.BoxName(""), v.Cursor.ActiveBox)
	assert.Nil(t, v.Cursor.SelectedItem)
	assert.Equal(t, PhaseIdle, v.Phase)
}

func TestConfirmWithoutSelectionIsNoop(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.eng.SetAnswer("anything")
	h.eng.Confirm()
	assert.Empty(t, h.analytics.events)
	assert.Zero(t, h.clk.PendingTimers())
}

func TestCorrectAnswerPromotesAfterSettleDelay(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.eng.Restore(boxesWith(models.BoxOne, makeItems(1, 1)...), nil)
	require.NoError(t, h.eng.SelectBox(models.BoxOne))

	h.clk.Advance(3 * time.Second)
	id := h.answerCorrectly(t)
	require.Len(t, h.analytics.events, 1)
	ev := h.analytics.events[0]
	assert.Equal(t, models.ResultOK, ev.Result)
	assert.Equal(t, 3*time.Second, ev.Duration)
	assert.Equal(t, models.BoxOne, ev.Box)

	h.clk.Advance(DefaultSettleDelay - time.Millisecond)
	assert.True(t, h.eng.Boxes().Contains(models.BoxOne, id))

	h.clk.Advance(time.Millisecond)
	boxes := h.eng.Boxes()
	assert.False(t, boxes.Contains(models.BoxOne, id))
	assert.Equal(t, id, boxes[models.BoxTwo][0].ID)
	assert.Equal(t, PhaseIdle, h.eng.View().Phase)

	require.Len(t, h.analytics.moves, 1)
	assert.Equal(t, models.BoxOne, h.analytics.moves[0].From)
	assert.Equal(t, models.BoxTwo, h.analytics.moves[0].To)
	assert.Equal(t, []int64{id}, h.eng.UsedIDs())
}

func TestPromotionMovesExactlyOneTier(t *testing.T) {
	for _, from := range []models.BoxName{models.BoxOne, models.BoxTwo, models.BoxThree, models.BoxFour} {
		t.Run(from.String(), func(t *testing.T) {
			h := newHarness(t, DefaultConfig())
			h.eng.Restore(boxesWith(from, makeItems(1, 2)...), nil)
			require.NoError(t, h.eng.SelectBox(from))
			id := h.answerCorrectly(t)
			h.clk.Advance(DefaultSettleDelay)

			want, _ := from.Next()
			got, ok := h.eng.Boxes().Locate(id)
			require.True(t, ok)
			assert.Equal(t, want, got)
		})
	}
}

func TestTopBoxGraduates(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.eng.Restore(boxesWith(models.BoxFive, makeItems(1, 1)...), nil)
	require.NoError(t, h.eng.SelectBox(models.BoxFive))

	id := h.answerCorrectly(t)
	assert.Equal(t, []int64{id}, h.mastered)

	h.clk.Advance(DefaultSettleDelay)
	_, present := h.eng.Boxes().Locate(id)
	assert.False(t, present)
	require.Len(t, h.reviews.calls, 1)
	assert.Equal(t, scheduled{itemID: id, scope: pair, stage: 0}, h.reviews.calls[0])
	require.Len(t, h.graduated, 1)
	assert.Equal(t, id, h.graduated[0].ID)
	require.Len(t, h.eng.Learned(), 1)

	require.Len(t, h.analytics.moves, 1)
	assert.Equal(t, models.BoxName(""), h.analytics.moves[0].To)
	assert.Contains(t, h.eng.UsedIDs(), id)
}

func TestWrongAnswerDemotesAfterExactRetype(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	item := models.LearningItem{ID: 7, Text: "dom", Translations: []string{"house", "home"}}
	h.eng.Restore(boxesWith(models.BoxThree, item), nil)
	require.NoError(t, h.eng.SelectBox(models.BoxThree))

	h.eng.SetAnswer("garden")
	h.eng.Confirm()
	v := h.eng.View()
	require.Equal(t, PhaseCorrection, v.Phase)
	require.NotNil(t, v.Result)
	assert.False(t, *v.Result)
	assert.Equal(t, CorrectionState{ExpectedFront: "dom", ExpectedBack: "house", Mode: CorrectionDemote}, *v.Correction)
	assert.True(t, v.Flash)
	assert.Equal(t, models.ResultWrong, h.analytics.events[0].Result)

	h.clk.Advance(DefaultFlashDelay)
	assert.False(t, h.eng.View().Flash)

	done, err := h.eng.UpdateCorrectionField(FieldFront, "dom")
	require.NoError(t, err)
	assert.False(t, done)
	// one edit away passes the fuzzy check but not the retype
	done, err = h.eng.UpdateCorrectionField(FieldBack, "hous")
	require.NoError(t, err)
	assert.False(t, done)
	assert.True(t, h.eng.Boxes().Contains(models.BoxThree, 7))

	// retyping is case sensitive
	done, err = h.eng.UpdateCorrectionField(FieldBack, "House")
	require.NoError(t, err)
	assert.False(t, done)

	done, err = h.eng.UpdateCorrectionField(FieldBack, " house ")
	require.NoError(t, err)
	assert.True(t, done)

	boxes := h.eng.Boxes()
	assert.Equal(t, int64(7), boxes[models.BoxOne][0].ID)
	assert.Empty(t, boxes[models.BoxThree])
	require.Len(t, h.analytics.moves, 1)
	assert.Equal(t, models.BoxThree, h.analytics.moves[0].From)
	assert.Equal(t, models.BoxOne, h.analytics.moves[0].To)
}

func TestDemoteTargetsBoxZeroWhenEnabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BoxZeroEnabled = true
	h := newHarness(t, cfg)
	item := models.LearningItem{ID: 3, Text: "kot", Translations: []string{"cat"}}
	h.eng.Restore(boxesWith(models.BoxTwo, item), nil)
	require.NoError(t, h.eng.SelectBox(models.BoxTwo))

	h.eng.SetAnswer("dog")
	h.eng.Confirm()
	_, _ = h.eng.UpdateCorrectionField(FieldFront, "kot")
	done, _ := h.eng.UpdateCorrectionField(FieldBack, "cat")
	require.True(t, done)
	assert.True(t, h.eng.Boxes().Contains(models.BoxZero, 3))
}

func TestRedrawDuringCorrectionKeepsDemotion(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	items := []models.LearningItem{
		{ID: 7, Text: "dom", Translations: []string{"house"}},
		{ID: 8, Text: "kot", Translations: []string{"cat"}},
	}
	h.eng.Restore(boxesWith(models.BoxThree, items...), nil)
	require.NoError(t, h.eng.SelectBox(models.BoxThree))
	missed := h.eng.View().Cursor.SelectedItem.ID

	h.eng.SetAnswer("garden")
	h.eng.Confirm()
	require.Equal(t, PhaseCorrection, h.eng.View().Phase)

	h.eng.Redraw()
	v := h.eng.View()
	assert.Equal(t, PhaseCorrection, v.Phase)
	require.NotNil(t, v.Correction)
	assert.Equal(t, CorrectionDemote, v.Correction.Mode)
	assert.Equal(t, missed, v.Cursor.SelectedItem.ID)
	assert.Empty(t, h.analytics.moves)

	_, _ = h.eng.UpdateCorrectionField(FieldFront, v.Correction.ExpectedFront)
	done, _ := h.eng.UpdateCorrectionField(FieldBack, v.Correction.ExpectedBack)
	require.True(t, done)
	assert.True(t, h.eng.Boxes().Contains(models.BoxOne, missed))
	assert.False(t, h.eng.Boxes().Contains(models.BoxThree, missed))
}

func TestDemotionFloor(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	item := models.LearningItem{ID: 1, Text: "pies", Translations: []string{"dog"}}
	h.eng.Restore(boxesWith(models.BoxOne, item), nil)
	require.NoError(t, h.eng.SelectBox(models.BoxOne))

	h.eng.SetAnswer("cat")
	h.eng.Confirm()
	_, _ = h.eng.UpdateCorrectionField(FieldFront, "pies")
	done, _ := h.eng.UpdateCorrectionField(FieldBack, "dog")
	require.True(t, done)

	boxes := h.eng.Boxes()
	assert.True(t, boxes.Contains(models.BoxOne, 1))
	assert.Equal(t, 1, boxes.Total())
	assert.Empty(t, h.analytics.moves)
	v := h.eng.View()
	assert.Equal(t, PhaseAwaitingAnswer, v.Phase)
	assert.Equal(t, int64(1), v.Cursor.SelectedItem.ID)
}

func TestBoxZeroIntroPromotes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BoxZeroEnabled = true
	h := newHarness(t, cfg)
	item := models.LearningItem{ID: 5, Text: "ryba", Translations: []string{"fish"}}
	h.eng.AddItems([]models.LearningItem{item})
	require.NoError(t, h.eng.SelectBox(models.BoxZero))

	v := h.eng.View()
	require.Equal(t, PhaseCorrection, v.Phase)
	assert.Equal(t, CorrectionIntro, v.Correction.Mode)
	assert.True(t, h.eng.CanSwitch())

	h.eng.SetAnswer("fish")
	h.eng.Confirm()
	assert.False(t, h.eng.CheckAnswer())
	assert.Empty(t, h.analytics.events)

	_, _ = h.eng.UpdateCorrectionField(FieldFront, "ryba")
	assert.False(t, h.eng.CanSwitch())
	done, _ := h.eng.UpdateCorrectionField(FieldBack, "fish")
	require.True(t, done)
	assert.True(t, h.eng.Boxes().Contains(models.BoxOne, 5))
}

func TestUnknownCorrectionField(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	_, err := h.eng.UpdateCorrectionField("middle", "x")
	assert.Error(t, err)
}

func TestMatchedTranslationMovesToFront(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	item := models.LearningItem{ID: 2, Text: "zamek", Translations: []string{"castle", "lock", "zipper"}}
	h.eng.Restore(boxesWith(models.BoxOne, item), nil)
	require.NoError(t, h.eng.SelectBox(models.BoxOne))

	h.eng.SetAnswer("lock")
	h.eng.Confirm()
	assert.Equal(t, []string{"lock", "castle", "zipper"}, h.eng.Boxes()[models.BoxOne][0].Translations)

	h.clk.Advance(DefaultSettleDelay)
	assert.Equal(t, []string{"lock", "castle", "zipper"}, h.eng.Boxes()[models.BoxTwo][0].Translations)
}

func TestReversedPredicateCombinations(t *testing.T) {
	for _, inSet := range []bool{false, true} {
		for _, flippable := range []bool{false, true} {
			for _, allowed := range []bool{false, true} {
				name := fmt.Sprintf("box=%v/flippable=%v/allowed=%v", inSet, flippable, allowed)
				t.Run(name, func(t *testing.T) {
					cfg := DefaultConfig()
					cfg.FlipAllowed = allowed
					box := models.BoxThree
					if inSet {
						box = models.BoxTwo
					}
					item := models.LearningItem{ID: 1, Text: "okno", Translations: []string{"window"}, Flippable: flippable}
					assert.Equal(t, inSet && flippable && allowed, cfg.IsReversed(box, item))
				})
			}
		}
	}
}

func TestReversedBoxExpectsItemText(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	item := models.LearningItem{ID: 4, Text: "okno", Translations: []string{"window"}, Flippable: true}
	h.eng.Restore(boxesWith(models.BoxTwo, item), nil)
	require.NoError(t, h.eng.SelectBox(models.BoxTwo))

	v := h.eng.View()
	assert.True(t, v.Reversed)
	assert.Equal(t, "window", v.Prompt())

	h.eng.SetAnswer("window")
	assert.False(t, h.eng.CheckAnswer())
	h.eng.SetAnswer("okno")
	assert.True(t, h.eng.CheckAnswer())
}

func TestAntiRepeat(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.eng.Restore(boxesWith(models.BoxOne, makeItems(1, 2)...), nil)
	require.NoError(t, h.eng.SelectBox(models.BoxOne))

	prev := h.eng.View().Cursor.SelectedItem.ID
	for i := 0; i < 50; i++ {
		h.eng.Redraw()
		cur := h.eng.View().Cursor.SelectedItem.ID
		require.NotEqual(t, prev, cur)
		prev = cur
	}
}

func TestTenItemsFiveCorrect(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	assert.Equal(t, 10, h.eng.AddItems(makeItems(1, 10)))
	require.NoError(t, h.eng.SelectBox(models.BoxOne))

	promoted := make(map[int64]struct{})
	for i := 0; i < 5; i++ {
		promoted[h.answerCorrectly(t)] = struct{}{}
		h.clk.Advance(DefaultSettleDelay)
	}
	boxes := h.eng.Boxes()
	assert.Len(t, promoted, 5)
	assert.Len(t, boxes[models.BoxTwo], 5)
	assert.Len(t, boxes[models.BoxOne], 5)
	for id := range promoted {
		assert.True(t, boxes.Contains(models.BoxTwo, id))
	}
	assert.Len(t, h.eng.UsedIDs(), 10)
}

func TestSwitchingBoxFlushesPendingPromotion(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.eng.Restore(boxesWith(models.BoxOne, makeItems(1, 3)...), nil)
	require.NoError(t, h.eng.SelectBox(models.BoxOne))
	id := h.answerCorrectly(t)

	require.NoError(t, h.eng.SelectBox(models.BoxTwo))
	assert.Zero(t, h.clk.PendingTimers())
	v := h.eng.View()
	assert.Equal(t, id, v.Cursor.SelectedItem.ID)
	assert.Equal(t, PhaseAwaitingAnswer, v.Phase)
	assert.True(t, h.eng.Boxes().Contains(models.BoxTwo, id))
}

func TestStaleSelectionRedraws(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.eng.Restore(boxesWith(models.BoxOne, makeItems(1, 3)...), nil)
	require.NoError(t, h.eng.SelectBox(models.BoxOne))
	selected := h.eng.View().Cursor.SelectedItem.ID

	assert.True(t, h.eng.RemoveItem(selected))
	v := h.eng.View()
	require.NotNil(t, v.Cursor.SelectedItem)
	assert.NotEqual(t, selected, v.Cursor.SelectedItem.ID)
	assert.NotContains(t, h.eng.UsedIDs(), selected)

	h.eng.Restore(boxesWith(models.BoxTwo, makeItems(10, 2)...), nil)
	v = h.eng.View()
	assert.Nil(t, v.Cursor.SelectedItem)
	assert.Equal(t, PhaseIdle, v.Phase)
}

func TestRestoreDropsBoxZeroWhenDisabled(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	boxes := models.NewBoxesState()
	boxes[models.BoxZero] = makeItems(1, 2)
	boxes[models.BoxOne] = makeItems(3, 1)
	h.eng.Restore(boxes, []int64{1, 2, 3, 99})

	got := h.eng.Boxes()
	assert.Empty(t, got[models.BoxZero])
	assert.Len(t, got[models.BoxOne], 1)
	assert.Equal(t, []int64{3, 99}, h.eng.UsedIDs())
}

func TestRestoreKeepsHighestDuplicate(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	boxes := models.NewBoxesState()
	boxes[models.BoxOne] = makeItems(1, 2)
	boxes[models.BoxFour] = makeItems(2, 1)
	h.eng.Restore(boxes, nil)

	got := h.eng.Boxes()
	assertSingleLocation(t, got)
	box, _ := got.Locate(2)
	assert.Equal(t, models.BoxFour, box)
}

func TestAddItemsSkipsPresentIDs(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.eng.Restore(boxesWith(models.BoxThree, makeItems(1, 1)...), nil)
	assert.Equal(t, 2, h.eng.AddItems(makeItems(1, 3)))
	got := h.eng.Boxes()
	assert.Equal(t, []int64{2, 3}, []int64{got[models.BoxOne][0].ID, got[models.BoxOne][1].ID})
	assertSingleLocation(t, got)
}

func TestSubscribersSeeBoxChanges(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	var updates []Update
	unsubscribe := h.eng.Subscribe(func(u Update) { updates = append(updates, u) })

	h.eng.AddItems(makeItems(1, 2))
	require.Len(t, updates, 1)
	assert.True(t, updates[0].BoxesChanged)
	assert.Len(t, updates[0].Boxes[models.BoxOne], 2)
	assert.Equal(t, []int64{1, 2}, updates[0].UsedIDs)

	unsubscribe()
	h.eng.AddItems(makeItems(3, 1))
	assert.Len(t, updates, 1)
}

func TestCloseCancelsTimers(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.eng.Restore(boxesWith(models.BoxOne, makeItems(1, 2)...), nil)
	require.NoError(t, h.eng.SelectBox(models.BoxOne))
	id := h.answerCorrectly(t)
	require.Equal(t, 1, h.clk.PendingTimers())

	h.eng.Close()
	assert.Zero(t, h.clk.PendingTimers())
	h.clk.Advance(time.Minute)
	assert.True(t, h.eng.Boxes().Contains(models.BoxOne, id))
}

func TestRandomSessionKeepsSingleLocation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BoxZeroEnabled = true
	h := newHarness(t, cfg)
	h.eng.AddItems(makeItems(1, 12))
	rng := rand.New(rand.NewSource(7))

	for step := 0; step < 300; step++ {
		box := models.BoxOrder[rng.Intn(len(models.BoxOrder))]
		require.NoError(t, h.eng.SelectBox(box))
		v := h.eng.View()
		switch v.Phase {
		case PhaseCorrection:
			_, _ = h.eng.UpdateCorrectionField(FieldFront, v.Correction.ExpectedFront)
			_, _ = h.eng.UpdateCorrectionField(FieldBack, v.Correction.ExpectedBack)
		case PhaseAwaitingAnswer:
			if rng.Intn(3) == 0 {
				h.eng.SetAnswer("definitely wrong")
			} else if v.Reversed {
				h.eng.SetAnswer(v.Cursor.SelectedItem.Text)
			} else {
				h.eng.SetAnswer(v.Cursor.SelectedItem.PrimaryTranslation())
			}
			h.eng.Confirm()
			if c := h.eng.View().Correction; c != nil {
				_, _ = h.eng.UpdateCorrectionField(FieldFront, c.ExpectedFront)
				_, _ = h.eng.UpdateCorrectionField(FieldBack, c.ExpectedBack)
			}
		}
		if rng.Intn(2) == 0 {
			h.clk.Advance(DefaultSettleDelay)
		}
		boxes := h.eng.Boxes()
		assertSingleLocation(t, boxes)
		assert.Equal(t, 12, boxes.Total()+len(h.eng.Learned()))
	}
}
