package models

import (
	"fmt"
	"time"
)

// PairingContext scopes learning progress. A positive CourseID selects a
// custom course; otherwise the language pair and level apply.
type PairingContext struct {
	CourseID     int64  `json:"course_id,omitempty" db:"course_id"`
	SourceLangID int64  `json:"source_lang_id,omitempty" db:"source_lang_id"`
	TargetLangID int64  `json:"target_lang_id,omitempty" db:"target_lang_id"`
	Level        string `json:"level,omitempty" db:"level"`
}

// CourseContext builds a course scoped context.
func CourseContext(courseID int64) PairingContext {
	return PairingContext{CourseID: courseID}
}

// LanguageContext builds a language pair scoped context.
func LanguageContext(sourceLangID, targetLangID int64, level string) PairingContext {
	return PairingContext{SourceLangID: sourceLangID, TargetLangID: targetLangID, Level: level}
}

// IsCourse reports whether the context belongs to a custom course.
func (c PairingContext) IsCourse() bool {
	return c.CourseID > 0
}

// ScopeID renders the context the way snapshot keys use it:
// "<source>-<target>-<level>" or "course-<id>".
func (c PairingContext) ScopeID() string {
	if c.IsCourse() {
		return fmt.Sprintf("course-%d", c.CourseID)
	}
	return fmt.Sprintf("%d-%d-%s", c.SourceLangID, c.TargetLangID, c.Level)
}

func (c PairingContext) String() string {
	return c.ScopeID()
}

// ReviewRecord tracks the long-interval schedule of a graduated item.
type ReviewRecord struct {
	ItemID       int64          `json:"item_id" db:"item_id"`
	Context      PairingContext `json:"context"`
	Stage        int            `json:"stage" db:"stage"`
	LearnedAt    time.Time      `json:"learned_at"`
	NextReviewAt time.Time      `json:"next_review_at"`
}

// IsDue reports whether the record should be reviewed at now.
func (r ReviewRecord) IsDue(now time.Time) bool {
	return !r.NextReviewAt.After(now)
}
