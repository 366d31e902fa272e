package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/boxtrainer/internal/database"
	"github.com/example/boxtrainer/internal/excel"
	"github.com/example/boxtrainer/internal/snapshot"
	"github.com/example/boxtrainer/pkg/models"
)

var importScope scopeFlags

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import catalog words from an .xlsx or .csv file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(settings)
		if err != nil {
			return err
		}
		defer a.Close()

		courses := database.NewCourseRepository(a.db)
		ic := excel.DefaultImportConfig()
		ic.FilePath = filepath.Clean(args[0])
		if s, _ := cmd.Flags().GetString("sheet"); s != "" {
			ic.SheetName = s
		}
		ic.StartRow, _ = cmd.Flags().GetInt("start-row")
		ic.CourseColumn, _ = cmd.Flags().GetString("course-column")

		if importScope.course != "" {
			// Import straight into a course, creating it if needed.
			c, err := courses.GetOrCreate(ctx, importScope.course)
			if err != nil {
				return err
			}
			ic.Scope = models.CourseContext(c.ID)
			ic.CourseColumn = ""
		} else {
			scope, _, err := importScope.resolve(ctx, courses)
			if err != nil {
				return err
			}
			ic.Scope = scope
		}

		im := excel.NewImporter(database.NewWordRepository(a.db), courses, a.log)
		res, err := im.ImportWords(ctx, ic)
		if err != nil {
			return err
		}
		cmd.Printf("processed %d rows: %d created, %d updated, %d skipped, %d new courses\n",
			res.TotalProcessed, res.Created, res.Updated, res.Skipped, res.CoursesCreated)
		for _, e := range res.Errors {
			cmd.PrintErrln(e)
		}
		return nil
	},
}

var exportScope scopeFlags

var exportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Write boxes and review schedule of a scope to an .xlsx workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(settings)
		if err != nil {
			return err
		}
		defer a.Close()

		scope, _, err := exportScope.resolve(ctx, database.NewCourseRepository(a.db))
		if err != nil {
			return err
		}
		store, err := a.openSnapshots(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		p := excel.Progress{Scope: scope, Boxes: models.NewBoxesState(), Now: time.Now()}
		data, err := store.Get(ctx, snapshot.Key(a.cfg.Snapshot.Namespace, scope))
		switch {
		case err == nil:
			payload, derr := snapshot.Decode(data)
			if derr == nil {
				p.Boxes = payload.Boxes
			} else {
				a.log.WithError(derr).Warn("ignoring unreadable snapshot")
			}
		case !errors.Is(err, snapshot.ErrNotFound):
			return err
		}
		p.Reviews, err = database.NewReviewRepository(a.db).List(ctx, scope)
		if err != nil {
			return err
		}

		out, err := os.Create(filepath.Clean(args[0]))
		if err != nil {
			return fmt.Errorf("create %s: %w", args[0], err)
		}
		if err := excel.WriteProgress(ctx, out, p, database.NewWordRepository(a.db)); err != nil {
			out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
		cmd.Printf("exported %d boxed items and %d reviews to %s\n", p.Boxes.Total(), len(p.Reviews), args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd, exportCmd)
	importScope.register(importCmd)
	importCmd.Flags().String("sheet", "", "sheet to read (default Sheet1)")
	importCmd.Flags().Int("start-row", 2, "first data row, 1-based")
	importCmd.Flags().String("course-column", "D", "column naming a course per row, empty to disable")
	exportScope.register(exportCmd)
}
