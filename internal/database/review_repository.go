package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/boxtrainer/pkg/models"
)

// ReviewRepository stores review records. Language pair contexts live in
// reviews, course contexts in custom_reviews where a flashcard has at most
// one record regardless of the course it is attached to.
type ReviewRepository struct {
	db *sqlx.DB
}

// NewReviewRepository creates a new repository instance
func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

type reviewRow struct {
	ItemID       int64  `db:"item_id"`
	CourseID     int64  `db:"course_id"`
	SourceLangID int64  `db:"source_lang_id"`
	TargetLangID int64  `db:"target_lang_id"`
	Level        string `db:"level"`
	Stage        int    `db:"stage"`
	LearnedAt    int64  `db:"learned_at"`
	NextReview   int64  `db:"next_review"`
}

func (r reviewRow) record() models.ReviewRecord {
	c := models.LanguageContext(r.SourceLangID, r.TargetLangID, r.Level)
	if r.CourseID > 0 {
		c = models.CourseContext(r.CourseID)
	}
	return models.ReviewRecord{
		ItemID:       r.ItemID,
		Context:      c,
		Stage:        r.Stage,
		LearnedAt:    fromMillis(r.LearnedAt),
		NextReviewAt: fromMillis(r.NextReview),
	}
}

const (
	selectPairReviews = `
		SELECT word_id AS item_id, 0 AS course_id, source_lang_id, target_lang_id,
		       level, stage, learned_at, next_review
		FROM reviews`
	selectCourseReviews = `
		SELECT flashcard_id AS item_id, course_id, 0 AS source_lang_id, 0 AS target_lang_id,
		       '' AS level, stage, learned_at, next_review
		FROM custom_reviews`
)

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// scopeFilter returns the WHERE clause selecting every record of c.
func scopeFilter(c models.PairingContext) (string, []interface{}) {
	if c.IsCourse() {
		return "course_id = ?", []interface{}{c.CourseID}
	}
	if c.Level == "" {
		return "source_lang_id = ? AND target_lang_id = ?", []interface{}{c.SourceLangID, c.TargetLangID}
	}
	return "source_lang_id = ? AND target_lang_id = ? AND level = ?", []interface{}{c.SourceLangID, c.TargetLangID, c.Level}
}

func (r *ReviewRepository) get(ctx context.Context, q sqlx.QueryerContext, itemID int64, c models.PairingContext) (*models.ReviewRecord, error) {
	var (
		query string
		args  []interface{}
	)
	if c.IsCourse() {
		query = selectCourseReviews + " WHERE flashcard_id = ?"
		args = []interface{}{itemID}
	} else {
		query = selectPairReviews + " WHERE word_id = ? AND source_lang_id = ? AND target_lang_id = ?"
		args = []interface{}{itemID, c.SourceLangID, c.TargetLangID}
	}
	var row reviewRow
	err := sqlx.GetContext(ctx, q, &row, r.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get review: %w", err)
	}
	rec := row.record()
	return &rec, nil
}

// Get returns the record of an item, or nil when there is none.
func (r *ReviewRepository) Get(ctx context.Context, itemID int64, c models.PairingContext) (*models.ReviewRecord, error) {
	return r.get(ctx, r.db, itemID, c)
}

// Mutate reads the current record and writes fn's result in one
// transaction, so concurrent upserts cannot lose learnedAt.
func (r *ReviewRepository) Mutate(ctx context.Context, itemID int64, c models.PairingContext, fn func(current *models.ReviewRecord) models.ReviewRecord) (models.ReviewRecord, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.ReviewRecord{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if isPostgres(r.db) {
		// serialize writers of the same row
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", itemID); err != nil {
			return models.ReviewRecord{}, fmt.Errorf("failed to lock review: %w", err)
		}
	}

	current, err := r.get(ctx, tx, itemID, c)
	if err != nil {
		return models.ReviewRecord{}, err
	}
	next := fn(current)
	next.ItemID = itemID
	next.Context = c

	if err := r.upsert(ctx, tx, next); err != nil {
		return models.ReviewRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.ReviewRecord{}, fmt.Errorf("failed to commit review: %w", err)
	}
	next.LearnedAt = fromMillis(toMillis(next.LearnedAt))
	next.NextReviewAt = fromMillis(toMillis(next.NextReviewAt))
	return next, nil
}

func (r *ReviewRepository) upsert(ctx context.Context, tx *sqlx.Tx, rec models.ReviewRecord) error {
	var (
		query string
		args  []interface{}
	)
	if rec.Context.IsCourse() {
		query = `
			INSERT INTO custom_reviews (flashcard_id, course_id, stage, learned_at, next_review)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (flashcard_id) DO UPDATE SET
				course_id = excluded.course_id,
				stage = excluded.stage,
				learned_at = excluded.learned_at,
				next_review = excluded.next_review`
		args = []interface{}{rec.ItemID, rec.Context.CourseID, rec.Stage, toMillis(rec.LearnedAt), toMillis(rec.NextReviewAt)}
	} else {
		query = `
			INSERT INTO reviews (word_id, source_lang_id, target_lang_id, level, stage, learned_at, next_review)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (word_id, source_lang_id, target_lang_id) DO UPDATE SET
				level = excluded.level,
				stage = excluded.stage,
				learned_at = excluded.learned_at,
				next_review = excluded.next_review`
		args = []interface{}{rec.ItemID, rec.Context.SourceLangID, rec.Context.TargetLangID, rec.Context.Level,
			rec.Stage, toMillis(rec.LearnedAt), toMillis(rec.NextReviewAt)}
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to upsert review: %w", err)
	}
	return nil
}

// Delete removes the record of an item.
func (r *ReviewRepository) Delete(ctx context.Context, itemID int64, c models.PairingContext) error {
	var (
		query string
		args  []interface{}
	)
	if c.IsCourse() {
		query = "DELETE FROM custom_reviews WHERE flashcard_id = ?"
		args = []interface{}{itemID}
	} else {
		query = "DELETE FROM reviews WHERE word_id = ? AND source_lang_id = ? AND target_lang_id = ?"
		args = []interface{}{itemID, c.SourceLangID, c.TargetLangID}
	}
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to delete review: %w", err)
	}
	return nil
}

// DeleteAll removes every record of a context.
func (r *ReviewRepository) DeleteAll(ctx context.Context, c models.PairingContext) error {
	table := "reviews"
	if c.IsCourse() {
		table = "custom_reviews"
	}
	where, args := scopeFilter(c)
	if _, err := r.db.ExecContext(ctx, r.db.Rebind("DELETE FROM "+table+" WHERE "+where), args...); err != nil {
		return fmt.Errorf("failed to reset reviews: %w", err)
	}
	return nil
}

// CountDue counts records of a context with next_review <= now.
func (r *ReviewRepository) CountDue(ctx context.Context, c models.PairingContext, now time.Time) (int, error) {
	table := "reviews"
	if c.IsCourse() {
		table = "custom_reviews"
	}
	where, args := scopeFilter(c)
	query := "SELECT COUNT(*) FROM " + table + " WHERE " + where + " AND next_review <= ?"
	var n int
	if err := r.db.GetContext(ctx, &n, r.db.Rebind(query), append(args, toMillis(now))...); err != nil {
		return 0, fmt.Errorf("failed to count due reviews: %w", err)
	}
	return n, nil
}

// ListDue returns up to limit due records, earliest first.
func (r *ReviewRepository) ListDue(ctx context.Context, c models.PairingContext, now time.Time, limit int) ([]models.ReviewRecord, error) {
	where, args := scopeFilter(c)
	base := selectPairReviews
	if c.IsCourse() {
		base = selectCourseReviews
	}
	query := base + " WHERE " + where + " AND next_review <= ? ORDER BY next_review ASC LIMIT ?"
	args = append(args, toMillis(now), limit)
	return r.selectRecords(ctx, query, args...)
}

// List returns every record of a context ordered by next review.
func (r *ReviewRepository) List(ctx context.Context, c models.PairingContext) ([]models.ReviewRecord, error) {
	where, args := scopeFilter(c)
	base := selectPairReviews
	if c.IsCourse() {
		base = selectCourseReviews
	}
	return r.selectRecords(ctx, base+" WHERE "+where+" ORDER BY next_review ASC", args...)
}

func (r *ReviewRepository) selectRecords(ctx context.Context, query string, args ...interface{}) ([]models.ReviewRecord, error) {
	var rows []reviewRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get reviews: %w", err)
	}
	out := make([]models.ReviewRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record())
	}
	return out, nil
}

// CountDueByLevel counts due records of a language pair grouped by level.
func (r *ReviewRepository) CountDueByLevel(ctx context.Context, sourceLangID, targetLangID int64, now time.Time) (map[string]int, error) {
	query := `
		SELECT level, COUNT(*) AS due
		FROM reviews
		WHERE source_lang_id = ? AND target_lang_id = ? AND next_review <= ?
		GROUP BY level`
	var rows []struct {
		Level string `db:"level"`
		Due   int    `db:"due"`
	}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), sourceLangID, targetLangID, toMillis(now)); err != nil {
		return nil, fmt.Errorf("failed to count due reviews by level: %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Level] = row.Due
	}
	return out, nil
}
