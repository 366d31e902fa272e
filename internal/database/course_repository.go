package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/boxtrainer/pkg/models"
)

// CourseRepository handles database operations for courses
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository creates a new repository instance
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

type courseRow struct {
	ID                int64  `db:"id"`
	Name              string `db:"name"`
	Owned             bool   `db:"owned"`
	AllowFlipNonOwned bool   `db:"allow_flip_non_owned"`
	CreatedAt         int64  `db:"created_at"`
}

func (r courseRow) course() models.Course {
	return models.Course{
		ID:                r.ID,
		Name:              r.Name,
		Owned:             r.Owned,
		AllowFlipNonOwned: r.AllowFlipNonOwned,
		CreatedAt:         fromMillis(r.CreatedAt),
	}
}

// GetAll returns all courses ordered by name.
func (r *CourseRepository) GetAll(ctx context.Context) ([]models.Course, error) {
	var rows []courseRow
	err := r.db.SelectContext(ctx, &rows, "SELECT id, name, owned, allow_flip_non_owned, created_at FROM courses ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to get courses: %w", err)
	}
	out := make([]models.Course, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.course())
	}
	return out, nil
}

// GetByID returns a course by ID, or nil.
func (r *CourseRepository) GetByID(ctx context.Context, id int64) (*models.Course, error) {
	return r.getOne(ctx, "id = ?", id)
}

// GetByName returns a course by case-insensitive name, or nil.
func (r *CourseRepository) GetByName(ctx context.Context, name string) (*models.Course, error) {
	return r.getOne(ctx, "LOWER(name) = LOWER(?)", strings.TrimSpace(name))
}

func (r *CourseRepository) getOne(ctx context.Context, where string, arg interface{}) (*models.Course, error) {
	query := "SELECT id, name, owned, allow_flip_non_owned, created_at FROM courses WHERE " + where
	var row courseRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(query), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	c := row.course()
	return &c, nil
}

// Create inserts a course and sets its ID.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if strings.TrimSpace(course.Name) == "" {
		return fmt.Errorf("course name cannot be empty")
	}
	if course.CreatedAt.IsZero() {
		course.CreatedAt = time.Now().UTC()
	}
	args := []interface{}{course.Name, course.Owned, course.AllowFlipNonOwned, toMillis(course.CreatedAt)}
	query := "INSERT INTO courses (name, owned, allow_flip_non_owned, created_at) VALUES (?, ?, ?, ?)"

	if isPostgres(r.db) {
		if err := r.db.QueryRowxContext(ctx, r.db.Rebind(query+" RETURNING id"), args...).Scan(&course.ID); err != nil {
			return fmt.Errorf("failed to create course: %w", err)
		}
		return nil
	}
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to create course: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID: %w", err)
	}
	course.ID = id
	return nil
}

// GetOrCreate returns the course called name, creating an owned course when
// none exists.
func (r *CourseRepository) GetOrCreate(ctx context.Context, name string) (*models.Course, error) {
	existing, err := r.GetByName(ctx, name)
	if err != nil || existing != nil {
		return existing, err
	}
	course := &models.Course{Name: strings.TrimSpace(name), Owned: true}
	if err := r.Create(ctx, course); err != nil {
		return nil, err
	}
	return course, nil
}

// Update changes the name and flip policy of a course.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	query := "UPDATE courses SET name = ?, owned = ?, allow_flip_non_owned = ? WHERE id = ?"
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), course.Name, course.Owned, course.AllowFlipNonOwned, course.ID)
	if err != nil {
		return fmt.Errorf("failed to update course: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("course %d not found", course.ID)
	}
	return nil
}

// Delete removes a course with its words and review records.
func (r *CourseRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	steps := []struct {
		what  string
		query string
	}{
		{"translations", "DELETE FROM translations WHERE word_id IN (SELECT id FROM words WHERE course_id = ?)"},
		{"words", "DELETE FROM words WHERE course_id = ?"},
		{"reviews", "DELETE FROM custom_reviews WHERE course_id = ?"},
		{"course", "DELETE FROM courses WHERE id = ?"},
	}
	for _, st := range steps {
		if _, err := tx.ExecContext(ctx, tx.Rebind(st.query), id); err != nil {
			return fmt.Errorf("failed to delete %s: %w", st.what, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
