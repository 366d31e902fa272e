package cli

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/boxtrainer/internal/database"
)

var reviewScope scopeFlags

var reviewsCmd = &cobra.Command{
	Use:   "reviews",
	Short: "Inspect and update the review schedule of graduated words",
}

var reviewsDueCmd = &cobra.Command{
	Use:   "due",
	Short: "List reviews that are due now",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(settings)
		if err != nil {
			return err
		}
		defer a.Close()
		scope, _, err := reviewScope.resolve(ctx, database.NewCourseRepository(a.db))
		if err != nil {
			return err
		}
		s, err := a.reviews()
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		now := time.Now()
		due, err := s.Due(ctx, scope, now, limit)
		if err != nil {
			return err
		}
		words := database.NewWordRepository(a.db)
		for _, r := range due {
			text := "?"
			if items, err := words.GetByIDs(ctx, []int64{r.ItemID}); err == nil && len(items) == 1 {
				text = items[0].Text
			}
			cmd.Printf("%d\t%s\tstage %d\tdue since %s\n", r.ItemID, text, r.Stage, r.NextReviewAt.Local().Format(time.DateTime))
		}
		if !scope.IsCourse() {
			byLevel, err := database.NewReviewRepository(a.db).CountDueByLevel(ctx, scope.SourceLangID, scope.TargetLangID, now)
			if err != nil {
				return err
			}
			for level, n := range byLevel {
				cmd.Printf("level %q: %d due\n", level, n)
			}
		}
		return nil
	},
}

var reviewsAdvanceCmd = &cobra.Command{
	Use:   "advance ITEM_ID",
	Short: "Record a successful review and move the word one stage up",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return err
		}
		a, err := openApp(settings)
		if err != nil {
			return err
		}
		defer a.Close()
		scope, _, err := reviewScope.resolve(ctx, database.NewCourseRepository(a.db))
		if err != nil {
			return err
		}
		s, err := a.reviews()
		if err != nil {
			return err
		}
		rec, err := s.Advance(ctx, id, scope)
		if err != nil {
			return err
		}
		cmd.Printf("item %d now at stage %d, next review %s\n", id, rec.Stage, rec.NextReviewAt.Local().Format(time.DateTime))
		return nil
	},
}

var reviewsRemoveCmd = &cobra.Command{
	Use:   "remove ITEM_ID",
	Short: "Drop a word from the review schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return err
		}
		a, err := openApp(settings)
		if err != nil {
			return err
		}
		defer a.Close()
		scope, _, err := reviewScope.resolve(ctx, database.NewCourseRepository(a.db))
		if err != nil {
			return err
		}
		s, err := a.reviews()
		if err != nil {
			return err
		}
		return s.Remove(ctx, id, scope)
	},
}

var reviewsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every review record of a scope",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(settings)
		if err != nil {
			return err
		}
		defer a.Close()
		scope, _, err := reviewScope.resolve(ctx, database.NewCourseRepository(a.db))
		if err != nil {
			return err
		}
		s, err := a.reviews()
		if err != nil {
			return err
		}
		return s.Reset(ctx, scope)
	},
}

func init() {
	rootCmd.AddCommand(reviewsCmd)
	reviewsCmd.AddCommand(reviewsDueCmd, reviewsAdvanceCmd, reviewsRemoveCmd, reviewsResetCmd)
	for _, c := range []*cobra.Command{reviewsDueCmd, reviewsAdvanceCmd, reviewsRemoveCmd, reviewsResetCmd} {
		reviewScope.register(c)
	}
	reviewsDueCmd.Flags().Int("limit", 50, "maximum number of reviews to list")
}
