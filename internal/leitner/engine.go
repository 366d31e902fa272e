package leitner

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/boxtrainer/internal/clock"
	"github.com/example/boxtrainer/pkg/models"
)

const (
	timerSettle = "settle"
	timerFlash  = "flash"
)

// Phase is the interaction state of the engine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingAnswer
	PhaseCorrectPending
	PhaseCorrection
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingAnswer:
		return "awaiting_answer"
	case PhaseCorrectPending:
		return "correct_pending"
	case PhaseCorrection:
		return "correction"
	default:
		return "idle"
	}
}

// Spellchecker is the answer oracle. Check applies the fuzzy policy used for
// quiz answers, Exact the literal policy used for correction retyping.
type Spellchecker interface {
	Check(input, expected string) bool
	Exact(input, expected string) bool
}

// Analytics receives learning telemetry. Calls are fire-and-forget.
type Analytics interface {
	LogLearningEvent(ctx context.Context, ev models.LearningEvent) error
	LogBoxMove(ctx context.Context, mv models.BoxMove) error
}

// ReviewScheduler is handed items that graduate out of the top box.
type ReviewScheduler interface {
	Schedule(ctx context.Context, itemID int64, c models.PairingContext, stage int) (models.ReviewRecord, error)
}

// Deps are the collaborators of an Engine. Only Spellcheck is required.
type Deps struct {
	Spellcheck Spellchecker
	Analytics  Analytics
	Reviews    ReviewScheduler
	// OnMastered fires once per item, the first time it is answered
	// correctly in the top box.
	OnMastered func(itemID int64)
	// OnGraduated fires when an item leaves the boxes for good.
	OnGraduated func(item models.LearningItem)
	Clock       clock.Clock
	Logger      logrus.FieldLogger
	Rand        *rand.Rand
	// Dispatch runs fire-and-forget side effects. Defaults to a goroutine.
	Dispatch func(func())
}

// SessionCursor describes what the learner is looking at. It is rebuilt on
// every activation and never persisted.
type SessionCursor struct {
	ActiveBox    models.BoxName
	SelectedItem *models.LearningItem
	LastServedID *int64
	ShownAt      time.Time
}

// View is a read-only copy of the interaction state.
type View struct {
	Phase      Phase
	Cursor     SessionCursor
	Answer     string
	Result     *bool
	Correction *CorrectionState
	Reversed   bool
	Flash      bool
}

// Prompt is the side of the selected item shown to the learner.
func (v View) Prompt() string {
	item := v.Cursor.SelectedItem
	if item == nil {
		return ""
	}
	if v.Reversed {
		return strings.Join(item.Translations, ", ")
	}
	return item.Text
}

// Update is delivered to subscribers after every state change.
type Update struct {
	BoxesChanged bool
	Boxes        models.BoxesState
	UsedIDs      []int64
	View         View
}

// Engine owns the box state and the interaction state machine. All box
// mutations go through its methods.
type Engine struct {
	mu  sync.Mutex
	cfg Config
	ctx context.Context

	scope      models.PairingContext
	spell      Spellchecker
	analytics  Analytics
	reviews    ReviewScheduler
	onMastered func(int64)
	onGraduate func(models.LearningItem)
	clock      clock.Clock
	log        logrus.FieldLogger
	rng        *rand.Rand
	dispatch   func(func())
	cancel     context.CancelFunc

	boxes    models.BoxesState
	used     map[int64]struct{}
	learned  []models.LearningItem
	mastered map[int64]struct{}

	cursor     SessionCursor
	answer     string
	result     *bool
	correction *CorrectionState
	flash      bool

	timers      *clock.Group
	subscribers map[int]func(Update)
	nextSub     int
	closed      bool
}

// change collects what happened while the lock was held.
type change struct {
	boxes   bool
	view    bool
	effects []func()
}

func (c *change) effect(f func()) {
	c.effects = append(c.effects, f)
}

// NewEngine creates an engine for one learning scope with empty boxes.
func NewEngine(scope models.PairingContext, cfg Config, deps Deps) *Engine {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if deps.Dispatch == nil {
		deps.Dispatch = func(f func()) { go f() }
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:         cfg.withDefaults(),
		ctx:         ctx,
		cancel:      cancel,
		scope:       scope,
		spell:       deps.Spellcheck,
		analytics:   deps.Analytics,
		reviews:     deps.Reviews,
		onMastered:  deps.OnMastered,
		onGraduate:  deps.OnGraduated,
		clock:       deps.Clock,
		log:         deps.Logger.WithFields(logrus.Fields{"component": "engine", "scope": scope.ScopeID()}),
		rng:         deps.Rand,
		dispatch:    deps.Dispatch,
		boxes:       models.NewBoxesState(),
		used:        make(map[int64]struct{}),
		mastered:    make(map[int64]struct{}),
		timers:      clock.NewGroup(deps.Clock),
		subscribers: make(map[int]func(Update)),
	}
}

// Config returns the engine settings.
func (e *Engine) Config() Config {
	return e.cfg
}

// Scope returns the pairing context the engine works in.
func (e *Engine) Scope() models.PairingContext {
	return e.scope
}

// Subscribe registers fn for state updates and returns an unsubscribe func.
// fn runs outside the engine lock and may call back into the engine.
func (e *Engine) Subscribe(fn func(Update)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.subscribers[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subscribers, id)
	}
}

// Boxes returns a copy of the box state.
func (e *Engine) Boxes() models.BoxesState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.boxes.Clone()
}

// UsedIDs returns every id that has entered the boxes, ascending.
func (e *Engine) UsedIDs() []int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return sortedIDs(e.used)
}

// Learned returns the items graduated during this session, newest first.
func (e *Engine) Learned() []models.LearningItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.LearningItem, len(e.learned))
	copy(out, e.learned)
	return out
}

// View returns the current interaction state.
func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewLocked()
}

// CanSwitch reports whether autoflow may change the active box now: no
// answer is being typed, no result is settling and no correction is open.
func (e *Engine) CanSwitch() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.canSwitchLocked()
}

func (e *Engine) canSwitchLocked() bool {
	switch e.phaseLocked() {
	case PhaseCorrectPending:
		return false
	case PhaseCorrection:
		return e.correction != nil && e.correction.Mode == CorrectionIntro && e.correction.untouched()
	case PhaseAwaitingAnswer:
		return e.answer == ""
	}
	return true
}

// autoflowState is what one autoflow evaluation reads from the engine.
type autoflowState struct {
	boxes     models.BoxesState
	active    models.BoxName
	selected  bool
	canSwitch bool
	cfg       Config
	used      int
}

// snapshotForAutoflow reads the autoflow inputs under a single lock so an
// evaluation never mixes two engine states.
func (e *Engine) snapshotForAutoflow() autoflowState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return autoflowState{
		boxes:     e.boxes.Clone(),
		active:    e.cursor.ActiveBox,
		selected:  e.cursor.SelectedItem != nil,
		canSwitch: e.canSwitchLocked(),
		cfg:       e.cfg,
		used:      len(e.used),
	}
}

// Restore replaces the box state and used-id history, typically with a
// loaded snapshot. Items in boxZero are dropped when boxZero is disabled.
func (e *Engine) Restore(boxes models.BoxesState, used []int64) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	next := dedupeBoxes(boxes)
	usedSet := make(map[int64]struct{}, len(used))
	for _, id := range used {
		usedSet[id] = struct{}{}
	}
	if !e.cfg.BoxZeroEnabled && len(next[models.BoxZero]) > 0 {
		for _, item := range next[models.BoxZero] {
			delete(usedSet, item.ID)
		}
		e.log.WithField("items", len(next[models.BoxZero])).Info("boxZero disabled, dropping its items")
		next[models.BoxZero] = []models.LearningItem{}
	}
	for _, box := range models.BoxOrder {
		for _, item := range next[box] {
			usedSet[item.ID] = struct{}{}
		}
	}
	e.boxes = next
	e.used = usedSet
	ch := &change{boxes: true, view: true}
	e.guardSelectionLocked(ch)
	e.commit(ch)
}

// AddItems appends new items to the entry box, skipping ids already in the
// boxes. It returns how many were added.
func (e *Engine) AddItems(items []models.LearningItem) int {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return 0
	}
	entry := e.cfg.EntryBox()
	added := 0
	for _, item := range items {
		if _, present := e.boxes.Locate(item.ID); present {
			continue
		}
		e.boxes[entry] = append(e.boxes[entry], item.Clone())
		e.used[item.ID] = struct{}{}
		added++
	}
	ch := &change{boxes: added > 0}
	if added > 0 {
		e.guardSelectionLocked(ch)
	}
	e.commit(ch)
	return added
}

// RemoveItem deletes an item from every box and forgets it was ever used.
func (e *Engine) RemoveItem(id int64) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	removed := false
	for _, box := range models.BoxOrder {
		if _, ok := removeItem(e.boxes, box, id); ok {
			removed = true
		}
	}
	_, wasUsed := e.used[id]
	delete(e.used, id)
	ch := &change{boxes: removed || wasUsed}
	if removed {
		e.guardSelectionLocked(ch)
	}
	e.commit(ch)
	return removed
}

// SelectBox makes name the active box and draws an item from it. Selecting
// boxZero while it is disabled clears the selection.
func (e *Engine) SelectBox(name models.BoxName) error {
	if !name.Valid() {
		return ErrUnknownBox
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	ch := &change{view: true}
	e.flushSettleLocked(ch)
	e.timers.Cancel(timerFlash)
	e.flash = false
	if name == models.BoxZero && !e.cfg.BoxZeroEnabled {
		e.cursor.ActiveBox = ""
		e.clearSelectionLocked()
		e.commit(ch)
		return nil
	}
	e.cursor.ActiveBox = name
	e.drawRandomLocked(name)
	e.commit(ch)
	return nil
}

// Deselect leaves the active box.
func (e *Engine) Deselect() {
	e.mu.Lock()
	ch := &change{view: true}
	e.flushSettleLocked(ch)
	e.timers.Cancel(timerFlash)
	e.flash = false
	e.cursor.ActiveBox = ""
	e.clearSelectionLocked()
	e.commit(ch)
}

// Redraw draws a new item from the active box. It does nothing while a
// result is settling or a missed item still has to be retyped.
func (e *Engine) Redraw() {
	e.mu.Lock()
	ch := &change{view: true}
	if e.cursor.ActiveBox != "" && e.redrawAllowedLocked() {
		e.drawRandomLocked(e.cursor.ActiveBox)
	}
	e.commit(ch)
}

func (e *Engine) redrawAllowedLocked() bool {
	switch e.phaseLocked() {
	case PhaseCorrectPending:
		return false
	case PhaseCorrection:
		return e.correction == nil || e.correction.Mode != CorrectionDemote
	}
	return true
}

// SetAnswer replaces the answer buffer.
func (e *Engine) SetAnswer(answer string) {
	e.mu.Lock()
	ch := &change{}
	if e.phaseLocked() == PhaseAwaitingAnswer {
		e.answer = answer
		ch.view = true
	}
	e.commit(ch)
}

// CheckAnswer evaluates the answer buffer without changing state.
func (e *Engine) CheckAnswer() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ok, _ := e.evaluateLocked()
	return ok
}

// Confirm evaluates the answer buffer. A correct answer settles for the
// configured delay and then promotes the item; a wrong one opens a
// demotion correction. Without a selected item, or while a result or
// correction is open, it does nothing.
func (e *Engine) Confirm() {
	e.mu.Lock()
	if e.closed || e.phaseLocked() != PhaseAwaitingAnswer {
		e.mu.Unlock()
		return
	}
	ch := &change{view: true}
	item := *e.cursor.SelectedItem
	box := e.cursor.ActiveBox
	reversed := e.cfg.IsReversed(box, item)
	ok, matched := e.evaluateLocked()

	result := models.ResultWrong
	if ok {
		result = models.ResultOK
	}
	e.logAnswerLocked(ch, item.ID, box, result, e.clock.Now().Sub(e.cursor.ShownAt))

	if !ok {
		f := false
		e.result = &f
		e.correction = &CorrectionState{
			ExpectedFront: item.Text,
			ExpectedBack:  item.PrimaryTranslation(),
			Mode:          CorrectionDemote,
		}
		e.flash = true
		e.timers.Schedule(timerFlash, e.cfg.FlashDelay, e.onFlashTimer)
		e.commit(ch)
		return
	}

	if !reversed && matched > 0 {
		if updated, moved := promoteTranslation(e.boxes, box, item.ID, matched); moved {
			e.cursor.SelectedItem = &updated
			ch.boxes = true
		}
	}
	t := true
	e.result = &t
	if box == models.BoxFive {
		if _, seen := e.mastered[item.ID]; !seen {
			e.mastered[item.ID] = struct{}{}
			if e.onMastered != nil {
				id := item.ID
				ch.effect(func() { e.onMastered(id) })
			}
		}
	}
	id := item.ID
	e.timers.Schedule(timerSettle, e.cfg.SettleDelay, func(token uint64) {
		e.onSettleTimer(token, box, id)
	})
	e.commit(ch)
}

// Close cancels pending timers and in-flight side effects.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.timers.Close()
	e.cancel()
}

func (e *Engine) onSettleTimer(token uint64, box models.BoxName, id int64) {
	e.mu.Lock()
	if e.closed || !e.timers.Claim(timerSettle, token) {
		e.mu.Unlock()
		return
	}
	ch := &change{view: true}
	e.settleLocked(ch, box, id)
	e.commit(ch)
}

func (e *Engine) onFlashTimer(token uint64) {
	e.mu.Lock()
	if e.closed || !e.timers.Claim(timerFlash, token) {
		e.mu.Unlock()
		return
	}
	e.flash = false
	e.commit(&change{view: true})
}

// flushSettleLocked applies a pending promotion immediately so that a box
// switch never loses a correct answer.
func (e *Engine) flushSettleLocked(ch *change) {
	if !e.timers.Pending(timerSettle) || e.cursor.SelectedItem == nil {
		return
	}
	e.timers.Cancel(timerSettle)
	box, id := e.cursor.ActiveBox, e.cursor.SelectedItem.ID
	e.moveElementLocked(ch, box, id, true)
	e.answer = ""
	e.result = nil
}

func (e *Engine) settleLocked(ch *change, box models.BoxName, id int64) {
	e.answer = ""
	e.moveElementLocked(ch, box, id, true)
	e.result = nil
	if e.cursor.ActiveBox != "" {
		e.drawRandomLocked(e.cursor.ActiveBox)
	}
}

// MoveElement moves id out of the active box: one tier up when promoting,
// to the lowest active box when demoting.
func (e *Engine) MoveElement(id int64, promote bool) {
	e.mu.Lock()
	ch := &change{view: true}
	e.moveElementLocked(ch, e.cursor.ActiveBox, id, promote)
	e.guardSelectionLocked(ch)
	e.commit(ch)
}

func (e *Engine) moveElementLocked(ch *change, from models.BoxName, id int64, promote bool) {
	if from == "" {
		return
	}
	if !promote {
		if from == models.BoxZero || (from == models.BoxOne && !e.cfg.BoxZeroEnabled) {
			return
		}
	}
	var (
		target    models.BoxName
		hasTarget bool
	)
	if promote {
		target, hasTarget = from.Next()
	} else {
		target, hasTarget = e.cfg.EntryBox(), true
	}
	item, ok := removeItem(e.boxes, from, id)
	if !ok {
		return
	}
	ch.boxes = true
	if hasTarget {
		prependItem(e.boxes, target, item)
	} else {
		e.graduateLocked(ch, item)
	}
	e.used[id] = struct{}{}

	if e.analytics != nil {
		mv := models.BoxMove{ItemID: id, Context: e.scope, From: from, To: target, At: e.clock.Now()}
		ctx := e.ctx
		ch.effect(func() {
			if err := e.analytics.LogBoxMove(ctx, mv); err != nil {
				e.log.WithError(err).WithField("item_id", mv.ItemID).Warn("log box move failed")
			}
		})
	}
}

func (e *Engine) graduateLocked(ch *change, item models.LearningItem) {
	e.learned = append([]models.LearningItem{item}, e.learned...)
	e.log.WithField("item_id", item.ID).Info("item graduated")
	ctx := e.ctx
	if e.reviews != nil {
		scope := e.scope
		ch.effect(func() {
			if _, err := e.reviews.Schedule(ctx, item.ID, scope, 0); err != nil {
				e.log.WithError(err).WithField("item_id", item.ID).Error("schedule review failed")
			}
		})
	}
	if e.onGraduate != nil {
		graduated := item.Clone()
		ch.effect(func() { e.onGraduate(graduated) })
	}
}

func (e *Engine) drawRandomLocked(box models.BoxName) {
	e.answer = ""
	e.result = nil
	e.correction = nil
	list := e.boxes[box]
	if len(list) == 0 {
		e.cursor.SelectedItem = nil
		e.cursor.ShownAt = time.Time{}
		return
	}
	candidates := list
	if len(list) > 1 && e.cursor.LastServedID != nil {
		last := *e.cursor.LastServedID
		candidates = make([]models.LearningItem, 0, len(list))
		for _, item := range list {
			if item.ID != last {
				candidates = append(candidates, item)
			}
		}
		if len(candidates) == 0 {
			candidates = list
		}
	}
	picked := candidates[e.rng.Intn(len(candidates))].Clone()
	id := picked.ID
	e.cursor.SelectedItem = &picked
	e.cursor.LastServedID = &id
	e.cursor.ShownAt = e.clock.Now()
	if box == models.BoxZero && e.cfg.BoxZeroEnabled {
		e.correction = &CorrectionState{
			ExpectedFront: picked.Text,
			ExpectedBack:  picked.PrimaryTranslation(),
			Mode:          CorrectionIntro,
		}
	}
}

func (e *Engine) clearSelectionLocked() {
	e.cursor.SelectedItem = nil
	e.cursor.ShownAt = time.Time{}
	e.answer = ""
	e.result = nil
	e.correction = nil
}

// guardSelectionLocked redraws when the selected item left the active box
// and draws when the active box gained items while nothing was selected.
func (e *Engine) guardSelectionLocked(ch *change) {
	box := e.cursor.ActiveBox
	if box == "" || e.timers.Pending(timerSettle) {
		return
	}
	sel := e.cursor.SelectedItem
	if sel != nil && e.boxes.Contains(box, sel.ID) {
		return
	}
	if sel == nil && len(e.boxes[box]) == 0 {
		return
	}
	e.drawRandomLocked(box)
	ch.view = true
}

func (e *Engine) evaluateLocked() (bool, int) {
	item := e.cursor.SelectedItem
	box := e.cursor.ActiveBox
	if item == nil || box == models.BoxZero || e.spell == nil {
		return false, -1
	}
	if e.cfg.IsReversed(box, *item) {
		return e.spell.Check(e.answer, item.Text), -1
	}
	for i, t := range item.Translations {
		if e.spell.Check(e.answer, t) {
			return true, i
		}
	}
	return false, -1
}

func (e *Engine) logAnswerLocked(ch *change, id int64, box models.BoxName, result models.AnswerResult, d time.Duration) {
	if e.analytics == nil {
		return
	}
	ev := models.LearningEvent{ItemID: id, Context: e.scope, Box: box, Result: result, Duration: d, At: e.clock.Now()}
	ctx := e.ctx
	ch.effect(func() {
		if err := e.analytics.LogLearningEvent(ctx, ev); err != nil {
			e.log.WithError(err).WithField("item_id", ev.ItemID).Warn("log learning event failed")
		}
	})
}

func (e *Engine) phaseLocked() Phase {
	switch {
	case e.cursor.ActiveBox == "" || e.cursor.SelectedItem == nil:
		return PhaseIdle
	case e.result != nil && *e.result:
		return PhaseCorrectPending
	case e.correction != nil:
		return PhaseCorrection
	default:
		return PhaseAwaitingAnswer
	}
}

func (e *Engine) viewLocked() View {
	v := View{
		Phase:  e.phaseLocked(),
		Cursor: e.cursor,
		Answer: e.answer,
		Flash:  e.flash,
	}
	if e.cursor.SelectedItem != nil {
		item := e.cursor.SelectedItem.Clone()
		v.Cursor.SelectedItem = &item
		v.Reversed = e.cfg.IsReversed(e.cursor.ActiveBox, item)
	}
	if e.cursor.LastServedID != nil {
		id := *e.cursor.LastServedID
		v.Cursor.LastServedID = &id
	}
	if e.result != nil {
		r := *e.result
		v.Result = &r
	}
	if e.correction != nil {
		c := *e.correction
		v.Correction = &c
	}
	return v
}

// commit releases the lock, then notifies subscribers and dispatches side
// effects. It must be called with e.mu held.
func (e *Engine) commit(ch *change) {
	var (
		subs   []func(Update)
		update Update
	)
	if (ch.boxes || ch.view) && !e.closed {
		update = Update{BoxesChanged: ch.boxes, View: e.viewLocked()}
		if ch.boxes {
			update.Boxes = e.boxes.Clone()
			update.UsedIDs = sortedIDs(e.used)
		}
		for _, fn := range e.subscribers {
			subs = append(subs, fn)
		}
	}
	dispatch := e.dispatch
	e.mu.Unlock()

	for _, fn := range subs {
		fn(update)
	}
	for _, f := range ch.effects {
		dispatch(f)
	}
}
