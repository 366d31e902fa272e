package models

import "time"

// AnswerResult is the outcome of a single answer.
type AnswerResult string

const (
	ResultOK    AnswerResult = "ok"
	ResultWrong AnswerResult = "wrong"
)

// LearningEvent is logged for every confirmed answer.
type LearningEvent struct {
	ItemID   int64
	Context  PairingContext
	Box      BoxName
	Result   AnswerResult
	Duration time.Duration
	At       time.Time
}

// BoxMove is logged whenever an item changes box. An empty To means the
// item graduated out of the boxes.
type BoxMove struct {
	ItemID  int64
	Context PairingContext
	From    BoxName
	To      BoxName
	At      time.Time
}
