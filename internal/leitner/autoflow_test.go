package leitner

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/boxtrainer/pkg/models"
)

type fakeReplenisher struct {
	eng   *Engine
	calls int
	next  int
	batch int
	err   error
}

func (f *fakeReplenisher) Replenish(context.Context) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	if f.next == 0 {
		f.next = 100
	}
	n := f.eng.AddItems(makeItems(f.next, f.batch))
	f.next += f.batch
	return n, nil
}

func newAutoflow(t *testing.T, h *harness, repl Replenisher, settings AutoflowSettings, dispatch func(func())) *Autoflow {
	t.Helper()
	logger, _ := test.NewNullLogger()
	if dispatch == nil {
		dispatch = func(f func()) { f() }
	}
	a := NewAutoflow(h.eng, repl, settings, AutoflowDeps{Clock: h.clk, Logger: logger, Dispatch: dispatch})
	t.Cleanup(a.Close)
	return a
}

func TestChooseBox(t *testing.T) {
	fill := func(counts map[models.BoxName]int) models.BoxesState {
		s := models.NewBoxesState()
		next := 1
		for box, n := range counts {
			s[box] = makeItems(next, n)
			next += n
		}
		return s
	}
	tests := []struct {
		name    string
		boxes   models.BoxesState
		active  models.BoxName
		boxZero bool
		want    models.BoxName
		ok      bool
	}{
		{"highest full box wins", fill(map[models.BoxName]int{models.BoxOne: 12, models.BoxFour: 10}), models.BoxOne, false, models.BoxFour, true},
		{"below threshold keeps active", fill(map[models.BoxName]int{models.BoxOne: 9, models.BoxThree: 4}), models.BoxThree, false, models.BoxThree, true},
		{"empty active falls back to lowest", fill(map[models.BoxName]int{models.BoxTwo: 3, models.BoxFive: 2}), models.BoxOne, false, models.BoxTwo, true},
		{"disabled boxZero is skipped", fill(map[models.BoxName]int{models.BoxZero: 15, models.BoxOne: 2}), "", false, models.BoxOne, true},
		{"enabled boxZero counts", fill(map[models.BoxName]int{models.BoxZero: 15, models.BoxOne: 2}), models.BoxOne, true, models.BoxZero, true},
		{"nothing to do", models.NewBoxesState(), "", true, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ChooseBox(tt.boxes, tt.active, tt.boxZero, DefaultSwitchThreshold)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAutoflowSwitchesToFullBox(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	boxes := models.NewBoxesState()
	boxes[models.BoxOne] = makeItems(1, 3)
	boxes[models.BoxThree] = makeItems(10, 10)
	h.eng.Restore(boxes, nil)

	a := newAutoflow(t, h, nil, DefaultAutoflowSettings(), nil)
	a.Start()

	v := h.eng.View()
	assert.Equal(t, models.BoxThree, v.Cursor.ActiveBox)
	assert.NotNil(t, v.Cursor.SelectedItem)
}

func TestAutoflowCooldown(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	boxes := models.NewBoxesState()
	boxes[models.BoxThree] = makeItems(1, 10)
	h.eng.Restore(boxes, nil)
	a := newAutoflow(t, h, nil, DefaultAutoflowSettings(), nil)
	a.Start()
	require.Equal(t, models.BoxThree, h.eng.View().Cursor.ActiveBox)

	boxes[models.BoxFour] = makeItems(20, 10)
	h.eng.Restore(boxes, nil)
	assert.Equal(t, models.BoxThree, h.eng.View().Cursor.ActiveBox)

	h.clk.Advance(DefaultSwitchCooldown)
	assert.Equal(t, models.BoxFour, h.eng.View().Cursor.ActiveBox)
}

func TestAutoflowWaitsWhileTyping(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	boxes := models.NewBoxesState()
	boxes[models.BoxOne] = makeItems(1, 4)
	h.eng.Restore(boxes, nil)
	a := newAutoflow(t, h, nil, DefaultAutoflowSettings(), nil)
	a.Start()
	require.Equal(t, models.BoxOne, h.eng.View().Cursor.ActiveBox)
	h.clk.Advance(DefaultSwitchCooldown)

	h.eng.SetAnswer("half typed")
	boxes[models.BoxTwo] = makeItems(10, 10)
	h.eng.Restore(boxes, nil)
	assert.Equal(t, models.BoxOne, h.eng.View().Cursor.ActiveBox)

	h.eng.SetAnswer("")
	assert.Equal(t, models.BoxTwo, h.eng.View().Cursor.ActiveBox)
}

func TestAutoflowDisabled(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.eng.Restore(boxesWith(models.BoxTwo, makeItems(1, 10)...), nil)
	repl := &fakeReplenisher{eng: h.eng, batch: 10}
	settings := DefaultAutoflowSettings()
	settings.Enabled = false
	a := newAutoflow(t, h, repl, settings, nil)
	a.Start()
	a.SetReady(true)

	assert.Equal(t, models.BoxName(""), h.eng.View().Cursor.ActiveBox)
	assert.Zero(t, repl.calls)

	a.SetEnabled(true)
	assert.Equal(t, models.BoxTwo, h.eng.View().Cursor.ActiveBox)
	assert.Equal(t, 1, repl.calls)
}

func TestReplenishWaitsForReady(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	repl := &fakeReplenisher{eng: h.eng, batch: 10}
	a := newAutoflow(t, h, repl, DefaultAutoflowSettings(), nil)
	a.Start()
	assert.Zero(t, repl.calls)

	a.SetReady(true)
	assert.Equal(t, 1, repl.calls)
	assert.Len(t, h.eng.Boxes()[models.BoxOne], 10)
	assert.Equal(t, models.BoxOne, h.eng.View().Cursor.ActiveBox)
	assert.False(t, a.Replenishing())
}

func TestReplenishInFlightGuard(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	repl := &fakeReplenisher{eng: h.eng, batch: 2}
	var queued []func()
	a := newAutoflow(t, h, repl, DefaultAutoflowSettings(), func(f func()) { queued = append(queued, f) })
	a.Start()
	a.SetReady(true)
	a.Evaluate()
	a.Evaluate()
	require.Len(t, queued, 1)
	assert.True(t, a.Replenishing())

	queued[0]()
	assert.Equal(t, 1, repl.calls)
	assert.False(t, a.Replenishing())

	// entry box holds 2 items, still under the threshold
	a.Evaluate()
	assert.Len(t, queued, 2)
}

func TestReplenishFailureRetries(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	repl := &fakeReplenisher{eng: h.eng, batch: 10, err: errors.New("catalog offline")}
	a := newAutoflow(t, h, repl, DefaultAutoflowSettings(), nil)
	a.Start()
	a.SetReady(true)
	assert.Equal(t, 1, repl.calls)
	assert.False(t, a.Exhausted())

	repl.err = nil
	a.Evaluate()
	assert.Equal(t, 2, repl.calls)
	assert.Len(t, h.eng.Boxes()[models.BoxOne], 10)
}

func TestReplenishExhausted(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	repl := &fakeReplenisher{eng: h.eng, batch: 10, err: ErrNothingToLoad}
	a := newAutoflow(t, h, repl, DefaultAutoflowSettings(), nil)
	a.Start()
	a.SetReady(true)
	assert.True(t, a.Exhausted())

	a.Evaluate()
	assert.Equal(t, 1, repl.calls)

	repl.err = nil
	a.ResetExhausted()
	assert.Equal(t, 2, repl.calls)
	assert.False(t, a.Exhausted())
}

func TestReplenishRespectsItemLimit(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.eng.Restore(models.NewBoxesState(), []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	repl := &fakeReplenisher{eng: h.eng, batch: 10}
	settings := DefaultAutoflowSettings()
	settings.ItemLimit = 10
	a := newAutoflow(t, h, repl, settings, nil)
	a.Start()
	a.SetReady(true)
	assert.Zero(t, repl.calls)
}

func TestReplenishUsesBoxZeroAsEntry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BoxZeroEnabled = true
	h := newHarness(t, cfg)
	h.eng.Restore(boxesWith(models.BoxOne, makeItems(1, 3)...), nil)
	repl := &fakeReplenisher{eng: h.eng, batch: 4}
	a := newAutoflow(t, h, repl, DefaultAutoflowSettings(), nil)
	a.Start()
	a.SetReady(true)

	assert.Equal(t, 1, repl.calls)
	boxes := h.eng.Boxes()
	assert.Len(t, boxes[models.BoxZero], 4)
	assert.Len(t, boxes[models.BoxOne], 3)
}

func TestAutoflowStateIsReadUnderOneLock(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			h.eng.AddItems(makeItems(1+i*3, 3))
		}
	}()
	for i := 0; i < 200; i++ {
		st := h.eng.snapshotForAutoflow()
		total := 0
		for _, box := range models.BoxOrder {
			total += len(st.boxes[box])
		}
		require.Equal(t, st.used, total)
	}
	<-done

	require.NoError(t, h.eng.SelectBox(models.BoxOne))
	h.eng.SetAnswer("x")
	st := h.eng.snapshotForAutoflow()
	assert.Equal(t, models.BoxOne, st.active)
	assert.True(t, st.selected)
	assert.False(t, st.canSwitch)
	assert.Equal(t, 600, st.used)
}
