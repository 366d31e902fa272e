// Package excel moves catalog words and learning progress in and out of
// spreadsheets.
package excel

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/example/boxtrainer/pkg/models"
)

var errSkipRow = errors.New("skipping row")

// WordStore is the part of the word catalog the importer writes to.
type WordStore interface {
	Create(ctx context.Context, c models.PairingContext, item *models.LearningItem) error
	UpdateTranslations(ctx context.Context, wordID int64, translations []string) error
	FindByText(ctx context.Context, c models.PairingContext, text string) (*models.LearningItem, error)
}

// CourseStore resolves course names to courses.
type CourseStore interface {
	GetByName(ctx context.Context, name string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
}

// ImportConfig defines the import configuration
type ImportConfig struct {
	FilePath          string // Path to the Excel or CSV file
	WordColumn        string // Column with the word
	TranslationColumn string // Column with translations separated by ';'
	FlippableColumn   string // Column with yes/no, empty means flippable
	CourseColumn      string // Column with the course name, empty means Scope
	SheetName         string // Name of the sheet to import
	StartRow          int    // The row to start importing from (1-based index)
	// Scope receives rows without a course.
	Scope models.PairingContext
}

// DefaultImportConfig returns the default import configuration
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		WordColumn:        "A",
		TranslationColumn: "B",
		FlippableColumn:   "C",
		CourseColumn:      "D",
		SheetName:         "Sheet1",
		StartRow:          2,
	}
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int
	CoursesCreated int
	Created        int
	Updated        int
	Skipped        int
	Errors         []string
}

// Importer loads catalog words from spreadsheets.
type Importer struct {
	words   WordStore
	courses CourseStore
	log     logrus.FieldLogger
}

// NewImporter creates an importer. courses may be nil when no file names a
// course.
func NewImporter(words WordStore, courses CourseStore, log logrus.FieldLogger) *Importer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Importer{words: words, courses: courses, log: log.WithField("component", "import")}
}

type importRun struct {
	*Importer
	config  ImportConfig
	result  *ImportResult
	courses map[string]models.PairingContext
}

// ImportWords imports words from an Excel or CSV file
func (im *Importer) ImportWords(ctx context.Context, config ImportConfig) (*ImportResult, error) {
	run := &importRun{
		Importer: im,
		config:   config,
		result:   &ImportResult{Errors: make([]string, 0)},
		courses:  make(map[string]models.PairingContext),
	}
	var err error
	if strings.ToLower(filepath.Ext(config.FilePath)) == ".csv" {
		err = run.fromCSV(ctx)
	} else {
		err = run.fromExcel(ctx)
	}
	if err != nil {
		return nil, err
	}
	im.log.WithFields(logrus.Fields{
		"file":    config.FilePath,
		"created": run.result.Created,
		"updated": run.result.Updated,
		"skipped": run.result.Skipped,
		"errors":  len(run.result.Errors),
	}).Info("import finished")
	return run.result, nil
}

func (run *importRun) fromExcel(ctx context.Context) error {
	f, err := excelize.OpenFile(run.config.FilePath)
	if err != nil {
		return fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(run.config.SheetName)
	if err != nil {
		return fmt.Errorf("failed to get rows: %w", err)
	}
	for i, row := range rows {
		if i < run.config.StartRow-1 {
			continue
		}
		run.process(ctx, row, i+1, "")
	}
	return nil
}

// fromCSV reads the same columns as the sheet. A row with only its first
// cell filled starts a course section for the rows that follow.
func (run *importRun) fromCSV(ctx context.Context) error {
	file, err := os.Open(run.config.FilePath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true

	rowNum := 0
	section := ""
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("error reading CSV: %w", err)
		}
		rowNum++
		if rowNum < run.config.StartRow {
			continue
		}
		if name, ok := sectionHeader(row); ok {
			section = name
			continue
		}
		run.process(ctx, row, rowNum, section)
	}
	return nil
}

func sectionHeader(row []string) (string, bool) {
	if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
		return "", false
	}
	for _, cell := range row[1:] {
		if strings.TrimSpace(cell) != "" {
			return "", false
		}
	}
	name := strings.Trim(strings.TrimSpace(row[0]), "\"")
	return name, name != ""
}

func (run *importRun) process(ctx context.Context, row []string, rowNum int, section string) {
	run.result.TotalProcessed++
	err := run.processRow(ctx, row, section)
	switch {
	case errors.Is(err, errSkipRow):
		run.result.Skipped++
	case err != nil:
		run.result.Errors = append(run.result.Errors, fmt.Sprintf("Row %d: %v", rowNum, err))
	}
}

func cell(row []string, column string) string {
	if column == "" {
		return ""
	}
	if idx := columnToIndex(column); idx >= 0 && idx < len(row) {
		return row[idx]
	}
	return ""
}

func (run *importRun) processRow(ctx context.Context, row []string, section string) error {
	word := cleanWord(cell(row, run.config.WordColumn))
	translations := splitTranslations(cell(row, run.config.TranslationColumn))
	if word == "" && len(translations) == 0 {
		return errSkipRow
	}
	if word == "" {
		return fmt.Errorf("word cannot be empty")
	}
	if len(translations) == 0 {
		return fmt.Errorf("translation cannot be empty")
	}

	courseName := strings.TrimSpace(cell(row, run.config.CourseColumn))
	if courseName == "" {
		courseName = section
	}
	scope, err := run.scopeFor(ctx, courseName)
	if err != nil {
		return fmt.Errorf("failed to process course: %w", err)
	}

	existing, err := run.words.FindByText(ctx, scope, word)
	if err != nil {
		return fmt.Errorf("failed to search for existing words: %w", err)
	}
	if existing != nil {
		if err := run.words.UpdateTranslations(ctx, existing.ID, translations); err != nil {
			return fmt.Errorf("failed to update word: %w", err)
		}
		run.result.Updated++
		return nil
	}

	item := &models.LearningItem{
		Text:         word,
		Translations: translations,
		Flippable:    parseFlippable(cell(row, run.config.FlippableColumn)),
	}
	if err := run.words.Create(ctx, scope, item); err != nil {
		return fmt.Errorf("failed to create word: %w", err)
	}
	run.result.Created++
	return nil
}

func (run *importRun) scopeFor(ctx context.Context, courseName string) (models.PairingContext, error) {
	if courseName == "" {
		return run.config.Scope, nil
	}
	key := strings.ToLower(courseName)
	if scope, ok := run.courses[key]; ok {
		return scope, nil
	}
	if run.Importer.courses == nil {
		return models.PairingContext{}, fmt.Errorf("course %q given but no course store configured", courseName)
	}
	course, err := run.Importer.courses.GetByName(ctx, courseName)
	if err != nil {
		return models.PairingContext{}, err
	}
	if course == nil {
		// Imported courses belong to the learner, so flipping is allowed.
		course = &models.Course{Name: courseName, Owned: true}
		if err := run.Importer.courses.Create(ctx, course); err != nil {
			return models.PairingContext{}, err
		}
		run.result.CoursesCreated++
	}
	scope := models.CourseContext(course.ID)
	run.courses[key] = scope
	return scope, nil
}

// cleanWord drops trailing notes in parentheses, e.g. "go (went, gone)".
func cleanWord(word string) string {
	if i := strings.Index(word, "("); i > 0 {
		return strings.TrimSpace(word[:i])
	}
	return strings.TrimSpace(word)
}

func splitTranslations(s string) []string {
	parts := lo.Map(strings.Split(s, ";"), func(p string, _ int) string { return cleanWord(p) })
	return lo.Uniq(lo.Filter(parts, func(p string, _ int) bool { return p != "" }))
}

func parseFlippable(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "no", "n", "false", "0":
		return false
	}
	return true
}

// columnToIndex converts an Excel column letter to a zero-based index.
func columnToIndex(column string) int {
	column = strings.ToUpper(strings.TrimSpace(column))
	index := 0
	for i := 0; i < len(column); i++ {
		if column[i] < 'A' || column[i] > 'Z' {
			return -1
		}
		index = index*26 + int(column[i]-'A'+1)
	}
	return index - 1
}
