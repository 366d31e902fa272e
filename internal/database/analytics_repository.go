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

// AnalyticsRepository records answers and box transitions.
type AnalyticsRepository struct {
	db *sqlx.DB
}

// NewAnalyticsRepository creates a new repository instance
func NewAnalyticsRepository(db *sqlx.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

// ResultCounts aggregates learning events of a scope.
type ResultCounts struct {
	OK    int `db:"ok"`
	Wrong int `db:"wrong"`
}

// BoxMoveStats is the per-item transition aggregate.
type BoxMoveStats struct {
	ItemID      int64
	MoveCount   int
	LastFrom    models.BoxName
	LastTo      models.BoxName
	LastMovedAt time.Time
}

// InsertLearningEvent stores one answer.
func (r *AnalyticsRepository) InsertLearningEvent(ctx context.Context, ev models.LearningEvent) error {
	query := `
		INSERT INTO learning_events (
			item_id, scope_id, course_id, source_lang_id, target_lang_id, level,
			box, result, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		ev.ItemID,
		ev.Context.ScopeID(),
		ev.Context.CourseID,
		ev.Context.SourceLangID,
		ev.Context.TargetLangID,
		ev.Context.Level,
		string(ev.Box),
		string(ev.Result),
		ev.Duration.Milliseconds(),
		toMillis(ev.At),
	)
	if err != nil {
		return fmt.Errorf("failed to insert learning event: %w", err)
	}
	return nil
}

// UpsertBoxMove bumps the move counter of an item and remembers the last
// transition. An empty To is stored as "learned".
func (r *AnalyticsRepository) UpsertBoxMove(ctx context.Context, mv models.BoxMove) error {
	to := string(mv.To)
	if to == "" {
		to = "learned"
	}
	query := `
		INSERT INTO item_box_moves (item_id, scope_id, move_count, last_from_box, last_to_box, last_moved_at)
		VALUES (?, ?, 1, ?, ?, ?)
		ON CONFLICT (item_id, scope_id) DO UPDATE SET
			move_count = item_box_moves.move_count + 1,
			last_from_box = excluded.last_from_box,
			last_to_box = excluded.last_to_box,
			last_moved_at = excluded.last_moved_at`
	_, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		mv.ItemID, mv.Context.ScopeID(), string(mv.From), to, toMillis(mv.At))
	if err != nil {
		return fmt.Errorf("failed to upsert box move: %w", err)
	}
	return nil
}

// CountResults returns the ok and wrong answers of a scope.
func (r *AnalyticsRepository) CountResults(ctx context.Context, c models.PairingContext) (ResultCounts, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN result = 'ok' THEN 1 ELSE 0 END), 0) AS ok,
			COALESCE(SUM(CASE WHEN result = 'wrong' THEN 1 ELSE 0 END), 0) AS wrong
		FROM learning_events
		WHERE scope_id = ?`
	var counts ResultCounts
	if err := r.db.GetContext(ctx, &counts, r.db.Rebind(query), c.ScopeID()); err != nil {
		return ResultCounts{}, fmt.Errorf("failed to count results: %w", err)
	}
	return counts, nil
}

// GetBoxMove returns the transition aggregate of an item, or nil.
func (r *AnalyticsRepository) GetBoxMove(ctx context.Context, itemID int64, c models.PairingContext) (*BoxMoveStats, error) {
	query := `
		SELECT item_id, move_count, last_from_box, last_to_box, last_moved_at
		FROM item_box_moves
		WHERE item_id = ? AND scope_id = ?`
	var row struct {
		ItemID      int64  `db:"item_id"`
		MoveCount   int    `db:"move_count"`
		LastFrom    string `db:"last_from_box"`
		LastTo      string `db:"last_to_box"`
		LastMovedAt int64  `db:"last_moved_at"`
	}
	err := r.db.GetContext(ctx, &row, r.db.Rebind(query), itemID, c.ScopeID())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get box move: %w", err)
	}
	return &BoxMoveStats{
		ItemID:      row.ItemID,
		MoveCount:   row.MoveCount,
		LastFrom:    models.BoxName(row.LastFrom),
		LastTo:      models.BoxName(row.LastTo),
		LastMovedAt: fromMillis(row.LastMovedAt),
	}, nil
}
