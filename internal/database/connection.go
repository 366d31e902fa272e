package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Options select the relational backend.
type Options struct {
	// Driver is sqlite3 or postgres.
	Driver string
	// DSN is used verbatim when set.
	DSN string
	// Path is the sqlite database file used when DSN is empty.
	Path string
}

// Connect opens the database and creates missing tables.
func Connect(opts Options) (*sqlx.DB, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	dsn := opts.DSN
	if dsn == "" && driver == DriverSQLite {
		path := opts.Path
		if path == "" {
			path = filepath.Join("data", "boxtrainer.db")
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		dsn = path
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
		// SQLite doesn't support multiple writers, and every connection to
		// :memory: is a separate database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if err := InitializeSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// ConnectMemory opens a private in-memory SQLite database.
func ConnectMemory() (*sqlx.DB, error) {
	return Connect(Options{Driver: DriverSQLite, DSN: ":memory:"})
}

func isPostgres(db *sqlx.DB) bool {
	return db.DriverName() == DriverPostgres
}

// InitializeSchema creates necessary tables if they don't exist.
// Timestamps are stored as unix milliseconds.
func InitializeSchema(db *sqlx.DB) error {
	pk := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if isPostgres(db) {
		pk = "BIGSERIAL PRIMARY KEY"
	}
	statements := []struct {
		name  string
		query string
	}{
		{"courses", `
			CREATE TABLE IF NOT EXISTS courses (
				id {pk},
				name TEXT NOT NULL UNIQUE,
				owned BOOLEAN NOT NULL DEFAULT TRUE,
				allow_flip_non_owned BOOLEAN NOT NULL DEFAULT FALSE,
				created_at BIGINT NOT NULL DEFAULT 0
			)`},
		{"words", `
			CREATE TABLE IF NOT EXISTS words (
				id {pk},
				word TEXT NOT NULL,
				course_id BIGINT NOT NULL DEFAULT 0,
				source_lang_id BIGINT NOT NULL DEFAULT 0,
				target_lang_id BIGINT NOT NULL DEFAULT 0,
				level TEXT NOT NULL DEFAULT '',
				flippable BOOLEAN NOT NULL DEFAULT TRUE,
				created_at BIGINT NOT NULL DEFAULT 0
			)`},
		{"translations", `
			CREATE TABLE IF NOT EXISTS translations (
				id {pk},
				word_id BIGINT NOT NULL REFERENCES words(id) ON DELETE CASCADE,
				position INTEGER NOT NULL,
				translation TEXT NOT NULL,
				UNIQUE(word_id, position)
			)`},
		{"reviews", `
			CREATE TABLE IF NOT EXISTS reviews (
				id {pk},
				word_id BIGINT NOT NULL,
				source_lang_id BIGINT NOT NULL,
				target_lang_id BIGINT NOT NULL,
				level TEXT NOT NULL DEFAULT '',
				stage INTEGER NOT NULL DEFAULT 0,
				learned_at BIGINT NOT NULL,
				next_review BIGINT NOT NULL,
				UNIQUE(word_id, source_lang_id, target_lang_id)
			)`},
		{"custom_reviews", `
			CREATE TABLE IF NOT EXISTS custom_reviews (
				id {pk},
				flashcard_id BIGINT NOT NULL UNIQUE,
				course_id BIGINT NOT NULL,
				stage INTEGER NOT NULL DEFAULT 0,
				learned_at BIGINT NOT NULL,
				next_review BIGINT NOT NULL
			)`},
		{"learning_events", `
			CREATE TABLE IF NOT EXISTS learning_events (
				id {pk},
				item_id BIGINT NOT NULL,
				scope_id TEXT NOT NULL,
				course_id BIGINT NOT NULL DEFAULT 0,
				source_lang_id BIGINT NOT NULL DEFAULT 0,
				target_lang_id BIGINT NOT NULL DEFAULT 0,
				level TEXT NOT NULL DEFAULT '',
				box TEXT NOT NULL,
				result TEXT NOT NULL CHECK (result IN ('ok', 'wrong')),
				duration_ms BIGINT NOT NULL DEFAULT 0,
				created_at BIGINT NOT NULL
			)`},
		{"item_box_moves", `
			CREATE TABLE IF NOT EXISTS item_box_moves (
				item_id BIGINT NOT NULL,
				scope_id TEXT NOT NULL,
				move_count INTEGER NOT NULL DEFAULT 0,
				last_from_box TEXT NOT NULL,
				last_to_box TEXT NOT NULL,
				last_moved_at BIGINT NOT NULL,
				PRIMARY KEY (item_id, scope_id)
			)`},
	}
	for _, st := range statements {
		if _, err := db.Exec(strings.ReplaceAll(st.query, "{pk}", pk)); err != nil {
			return fmt.Errorf("failed to create %s table: %w", st.name, err)
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_words_pair ON words(source_lang_id, target_lang_id, level)",
		"CREATE INDEX IF NOT EXISTS idx_words_course ON words(course_id)",
		"CREATE INDEX IF NOT EXISTS idx_reviews_due ON reviews(source_lang_id, target_lang_id, next_review)",
		"CREATE INDEX IF NOT EXISTS idx_custom_reviews_due ON custom_reviews(course_id, next_review)",
		"CREATE INDEX IF NOT EXISTS idx_learning_events_scope ON learning_events(scope_id, created_at)",
	}
	for _, q := range indexes {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}
