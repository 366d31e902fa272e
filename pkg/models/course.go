package models

import "time"

// Course is a custom flashcard collection. Items of a course the learner
// does not own may only be asked in reverse when the course allows it.
type Course struct {
	ID                int64     `json:"id" db:"id"`
	Name              string    `json:"name" db:"name"`
	Owned             bool      `json:"owned" db:"owned"`
	AllowFlipNonOwned bool      `json:"allow_flip_non_owned" db:"allow_flip_non_owned"`
	CreatedAt         time.Time `json:"created_at" db:"-"`
}

// FlipAllowed reports whether flippable items of the course may be
// reversed.
func (c Course) FlipAllowed() bool {
	return c.Owned || c.AllowFlipNonOwned
}
