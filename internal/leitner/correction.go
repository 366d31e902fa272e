package leitner

import "fmt"

// CorrectionMode tells what happens once the learner has retyped the pair.
type CorrectionMode string

const (
	// CorrectionDemote follows a wrong answer; the item moves down.
	CorrectionDemote CorrectionMode = "demote"
	// CorrectionIntro is the first showing in boxZero; the item moves up.
	CorrectionIntro CorrectionMode = "intro"
)

// CorrectionField names one of the two retyping inputs.
type CorrectionField string

const (
	FieldFront CorrectionField = "front"
	FieldBack  CorrectionField = "back"
)

// CorrectionState is the forced retyping step.
type CorrectionState struct {
	ExpectedFront string
	ExpectedBack  string
	TypedFront    string
	TypedBack     string
	Mode          CorrectionMode
}

func (c *CorrectionState) untouched() bool {
	return c.TypedFront == "" && c.TypedBack == ""
}

// UpdateCorrectionField stores a keystroke in the correction form. Once
// both fields match their expected values exactly, the item is moved (up
// for intro, down for demote), the correction closes and a new item is
// drawn. It reports whether the correction completed.
func (e *Engine) UpdateCorrectionField(field CorrectionField, value string) (bool, error) {
	if field != FieldFront && field != FieldBack {
		return false, fmt.Errorf("leitner: unknown correction field %q", field)
	}
	e.mu.Lock()
	if e.closed || e.correction == nil || e.cursor.SelectedItem == nil {
		e.mu.Unlock()
		return false, nil
	}
	ch := &change{view: true}
	c := e.correction
	if field == FieldFront {
		c.TypedFront = value
	} else {
		c.TypedBack = value
	}
	if !e.correctionMatchesLocked(c) {
		e.commit(ch)
		return false, nil
	}

	box, id := e.cursor.ActiveBox, e.cursor.SelectedItem.ID
	e.timers.Cancel(timerFlash)
	e.flash = false
	e.correction = nil
	e.moveElementLocked(ch, box, id, c.Mode == CorrectionIntro)
	e.drawRandomLocked(box)
	e.commit(ch)
	return true, nil
}

func (e *Engine) correctionMatchesLocked(c *CorrectionState) bool {
	return e.fieldMatches(c.TypedFront, c.ExpectedFront) && e.fieldMatches(c.TypedBack, c.ExpectedBack)
}

func (e *Engine) fieldMatches(typed, expected string) bool {
	if expected == "" {
		return typed == ""
	}
	if e.spell == nil {
		return typed == expected
	}
	return e.spell.Exact(typed, expected)
}
