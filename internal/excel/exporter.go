package excel

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/xuri/excelize/v2"

	"github.com/example/boxtrainer/pkg/models"
)

const (
	BoxesSheet   = "Boxes"
	ReviewsSheet = "Reviews"
)

// ItemLookup resolves item ids to catalog words.
type ItemLookup interface {
	GetByIDs(ctx context.Context, ids []int64) ([]models.LearningItem, error)
}

// Progress is everything a progress workbook shows for one scope.
type Progress struct {
	Scope   models.PairingContext
	Boxes   models.BoxesState
	Reviews []models.ReviewRecord
	Now     time.Time
}

// ExportProgress builds a workbook with one row per boxed item and one row
// per review record. Items the catalog no longer knows keep their id only.
func ExportProgress(ctx context.Context, p Progress, items ItemLookup) (*excelize.File, error) {
	ids := make([]int64, 0, p.Boxes.Total()+len(p.Reviews))
	for _, name := range models.BoxOrder {
		for _, it := range p.Boxes[name] {
			ids = append(ids, it.ID)
		}
	}
	for _, r := range p.Reviews {
		ids = append(ids, r.ItemID)
	}
	known := map[int64]models.LearningItem{}
	if items != nil && len(ids) > 0 {
		found, err := items.GetByIDs(ctx, lo.Uniq(ids))
		if err != nil {
			return nil, fmt.Errorf("failed to look up items: %w", err)
		}
		known = lo.KeyBy(found, func(it models.LearningItem) int64 { return it.ID })
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", BoxesSheet); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(ReviewsSheet); err != nil {
		f.Close()
		return nil, err
	}
	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}

	boxRows := [][]interface{}{{"Box", "ID", "Word", "Translations"}}
	for _, name := range models.BoxOrder {
		for _, it := range p.Boxes[name] {
			if w, ok := known[it.ID]; ok {
				it = w
			}
			boxRows = append(boxRows, []interface{}{string(name), it.ID, it.Text, strings.Join(it.Translations, "; ")})
		}
	}
	reviewRows := [][]interface{}{{"ID", "Word", "Stage", "Learned At", "Next Review", "Due"}}
	for _, r := range p.Reviews {
		reviewRows = append(reviewRows, []interface{}{
			r.ItemID,
			known[r.ItemID].Text,
			r.Stage,
			r.LearnedAt.UTC().Format(time.RFC3339),
			r.NextReviewAt.UTC().Format(time.RFC3339),
			r.IsDue(p.Now),
		})
	}

	for sheet, rows := range map[string][][]interface{}{BoxesSheet: boxRows, ReviewsSheet: reviewRows} {
		if err := writeRows(f, sheet, rows, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write %s sheet: %w", sheet, err)
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}, headerStyle int) error {
	for i, row := range rows {
		cellName, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		row := row
		if err := f.SetSheetRow(sheet, cellName, &row); err != nil {
			return err
		}
	}
	if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
		return err
	}
	return f.SetColWidth(sheet, "A", "F", 18)
}

// WriteProgress exports p and writes the workbook to w.
func WriteProgress(ctx context.Context, w io.Writer, p Progress, items ItemLookup) error {
	f, err := ExportProgress(ctx, p, items)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
