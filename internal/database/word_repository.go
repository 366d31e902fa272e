package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"github.com/example/boxtrainer/pkg/models"
)

// WordRepository is the item catalog replenishment batches are drawn from.
type WordRepository struct {
	db *sqlx.DB
}

// NewWordRepository creates a new repository instance
func NewWordRepository(db *sqlx.DB) *WordRepository {
	return &WordRepository{db: db}
}

type wordRow struct {
	ID        int64  `db:"id"`
	Word      string `db:"word"`
	Flippable bool   `db:"flippable"`
}

// wordScope returns the WHERE clause selecting the catalog of c.
func wordScope(c models.PairingContext) (string, []interface{}) {
	if c.IsCourse() {
		return "course_id = ?", []interface{}{c.CourseID}
	}
	if c.Level == "" {
		return "course_id = 0 AND source_lang_id = ? AND target_lang_id = ?", []interface{}{c.SourceLangID, c.TargetLangID}
	}
	return "course_id = 0 AND source_lang_id = ? AND target_lang_id = ? AND level = ?",
		[]interface{}{c.SourceLangID, c.TargetLangID, c.Level}
}

// Create inserts a word with its translations and sets item.ID.
func (r *WordRepository) Create(ctx context.Context, c models.PairingContext, item *models.LearningItem) error {
	if strings.TrimSpace(item.Text) == "" {
		return fmt.Errorf("word cannot be empty")
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	args := []interface{}{item.Text, c.CourseID, c.SourceLangID, c.TargetLangID, c.Level, item.Flippable, toMillis(time.Now())}
	insert := `
		INSERT INTO words (word, course_id, source_lang_id, target_lang_id, level, flippable, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	if isPostgres(r.db) {
		if err := tx.QueryRowxContext(ctx, tx.Rebind(insert+" RETURNING id"), args...).Scan(&item.ID); err != nil {
			return fmt.Errorf("failed to create word: %w", err)
		}
	} else {
		result, err := tx.ExecContext(ctx, insert, args...)
		if err != nil {
			return fmt.Errorf("failed to create word: %w", err)
		}
		if item.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get last insert ID: %w", err)
		}
	}

	if err := insertTranslations(ctx, tx, item.ID, item.Translations); err != nil {
		return err
	}
	return tx.Commit()
}

func insertTranslations(ctx context.Context, tx *sqlx.Tx, wordID int64, translations []string) error {
	query := tx.Rebind("INSERT INTO translations (word_id, position, translation) VALUES (?, ?, ?)")
	for i, t := range translations {
		if _, err := tx.ExecContext(ctx, query, wordID, i, t); err != nil {
			return fmt.Errorf("failed to create translation: %w", err)
		}
	}
	return nil
}

// UpdateTranslations replaces the translations of a word.
func (r *WordRepository) UpdateTranslations(ctx context.Context, wordID int64, translations []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM translations WHERE word_id = ?"), wordID); err != nil {
		return fmt.Errorf("failed to clear translations: %w", err)
	}
	if err := insertTranslations(ctx, tx, wordID, translations); err != nil {
		return err
	}
	return tx.Commit()
}

// FindByText looks a word up case-insensitively inside a scope.
func (r *WordRepository) FindByText(ctx context.Context, c models.PairingContext, text string) (*models.LearningItem, error) {
	where, args := wordScope(c)
	query := "SELECT id, word, flippable FROM words WHERE " + where + " AND LOWER(word) = LOWER(?) ORDER BY id LIMIT 1"
	var row wordRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(query), append(args, strings.TrimSpace(text))...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find word: %w", err)
	}
	items, err := r.attachTranslations(ctx, []wordRow{row})
	if err != nil {
		return nil, err
	}
	return &items[0], nil
}

// GetByIDs returns the words with the given ids, ordered by id.
func (r *WordRepository) GetByIDs(ctx context.Context, ids []int64) ([]models.LearningItem, error) {
	if len(ids) == 0 {
		return []models.LearningItem{}, nil
	}
	query, args, err := sqlx.In("SELECT id, word, flippable FROM words WHERE id IN (?) ORDER BY id", ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	var rows []wordRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get words: %w", err)
	}
	return r.attachTranslations(ctx, rows)
}

// FetchBatch returns up to limit random words of the scope whose ids are
// not in exclude.
func (r *WordRepository) FetchBatch(ctx context.Context, c models.PairingContext, exclude []int64, limit int) ([]models.LearningItem, error) {
	if limit <= 0 {
		return []models.LearningItem{}, nil
	}
	where, args := wordScope(c)
	query := "SELECT id, word, flippable FROM words WHERE " + where
	if len(exclude) > 0 {
		query += " AND id NOT IN (?)"
		args = append(args, exclude)
	}
	query += " ORDER BY RANDOM() LIMIT ?"
	args = append(args, limit)

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	var rows []wordRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get random words: %w", err)
	}
	return r.attachTranslations(ctx, rows)
}

// Count returns the catalog size of a scope.
func (r *WordRepository) Count(ctx context.Context, c models.PairingContext) (int, error) {
	where, args := wordScope(c)
	var n int
	if err := r.db.GetContext(ctx, &n, r.db.Rebind("SELECT COUNT(*) FROM words WHERE "+where), args...); err != nil {
		return 0, fmt.Errorf("failed to count words: %w", err)
	}
	return n, nil
}

// Delete removes a word and its translations.
func (r *WordRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM translations WHERE word_id = ?"), id); err != nil {
		return fmt.Errorf("failed to delete translations: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM words WHERE id = ?"), id); err != nil {
		return fmt.Errorf("failed to delete word: %w", err)
	}
	return tx.Commit()
}

func (r *WordRepository) attachTranslations(ctx context.Context, rows []wordRow) ([]models.LearningItem, error) {
	items := make([]models.LearningItem, 0, len(rows))
	if len(rows) == 0 {
		return items, nil
	}
	ids := lo.Map(rows, func(w wordRow, _ int) int64 { return w.ID })
	query, args, err := sqlx.In(`
		SELECT word_id, translation
		FROM translations
		WHERE word_id IN (?)
		ORDER BY word_id, position`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	var trs []struct {
		WordID      int64  `db:"word_id"`
		Translation string `db:"translation"`
	}
	if err := r.db.SelectContext(ctx, &trs, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get translations: %w", err)
	}
	byWord := make(map[int64][]string, len(rows))
	for _, t := range trs {
		byWord[t.WordID] = append(byWord[t.WordID], t.Translation)
	}
	for _, row := range rows {
		translations := byWord[row.ID]
		if translations == nil {
			translations = []string{}
		}
		items = append(items, models.LearningItem{
			ID:           row.ID,
			Text:         row.Word,
			Translations: translations,
			Flippable:    row.Flippable,
		})
	}
	return items, nil
}
