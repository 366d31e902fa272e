package cli

import (
	"github.com/spf13/cobra"

	"github.com/example/boxtrainer/internal/database"
	"github.com/example/boxtrainer/internal/scheduler"
	"github.com/example/boxtrainer/internal/snapshot"
	"github.com/example/boxtrainer/pkg/models"
)

var resetScope scopeFlags

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget saved box progress for a scope, or for every scope with --all",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(settings)
		if err != nil {
			return err
		}
		defer a.Close()
		store, err := a.openSnapshots(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		ns := a.cfg.Snapshot.Namespace
		if all, _ := cmd.Flags().GetBool("all"); all {
			n, err := snapshot.ClearNamespace(ctx, store, ns)
			if err != nil {
				return err
			}
			cmd.Printf("removed %d snapshots\n", n)
			return nil
		}
		scope, _, err := resetScope.resolve(ctx, database.NewCourseRepository(a.db))
		if err != nil {
			return err
		}
		if err := store.Delete(ctx, snapshot.Key(ns, scope)); err != nil {
			return err
		}
		cmd.Printf("progress of %s removed\n", scope)
		return nil
	},
}

var remindScope scopeFlags

var remindCmd = &cobra.Command{
	Use:   "remind",
	Short: "Log a reminder whenever reviews are due",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(settings)
		if err != nil {
			return err
		}
		defer a.Close()

		courses := database.NewCourseRepository(a.db)
		var scopes []models.PairingContext
		if remindScope.course != "" || remindScope.source != 0 {
			scope, _, err := remindScope.resolve(ctx, courses)
			if err != nil {
				return err
			}
			scopes = append(scopes, scope)
		} else {
			all, err := courses.GetAll(ctx)
			if err != nil {
				return err
			}
			for _, c := range all {
				scopes = append(scopes, models.CourseContext(c.ID))
			}
		}

		reviews, err := a.reviews()
		if err != nil {
			return err
		}
		opts := a.cfg.ReminderOptions()
		opts.Logger = a.log
		s := scheduler.New(reviews, scheduler.LogNotifier{Log: a.log}, scopes, opts)

		if once, _ := cmd.Flags().GetBool("once"); once {
			_, err := s.RunOnce(ctx)
			return err
		}
		if err := s.Start(ctx); err != nil {
			return err
		}
		defer s.Stop()
		a.log.WithField("scopes", len(scopes)).Info("reminder scheduler running")
		<-ctx.Done()
		return nil
	},
}

var coursesCmd = &cobra.Command{
	Use:   "courses",
	Short: "List courses",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(settings)
		if err != nil {
			return err
		}
		defer a.Close()
		all, err := database.NewCourseRepository(a.db).GetAll(cmd.Context())
		if err != nil {
			return err
		}
		for _, c := range all {
			cmd.Printf("%d\t%s\towned=%t\tflip=%t\n", c.ID, c.Name, c.Owned, c.FlipAllowed())
		}
		return nil
	},
}

var courseAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Create a course",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(settings)
		if err != nil {
			return err
		}
		defer a.Close()
		owned, _ := cmd.Flags().GetBool("owned")
		allowFlip, _ := cmd.Flags().GetBool("allow-flip")
		c := &models.Course{Name: args[0], Owned: owned, AllowFlipNonOwned: allowFlip}
		if err := database.NewCourseRepository(a.db).Create(cmd.Context(), c); err != nil {
			return err
		}
		cmd.Printf("course %d created\n", c.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetCmd, remindCmd, coursesCmd)
	coursesCmd.AddCommand(courseAddCmd)

	resetScope.register(resetCmd)
	resetCmd.Flags().Bool("all", false, "remove every saved snapshot")

	remindScope.register(remindCmd)
	remindCmd.Flags().Bool("once", false, "check once and exit")

	courseAddCmd.Flags().Bool("owned", true, "the learner owns the course words")
	courseAddCmd.Flags().Bool("allow-flip", false, "allow reversed quizzing when not owned")
}
