package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/example/boxtrainer/internal/analytics"
	"github.com/example/boxtrainer/internal/database"
	"github.com/example/boxtrainer/internal/spellcheck"
	"github.com/example/boxtrainer/internal/trainer"
	"github.com/example/boxtrainer/internal/tui"
)

var trainScope scopeFlags

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Start an interactive training session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(settings)
		if err != nil {
			return err
		}
		defer a.Close()

		courses := database.NewCourseRepository(a.db)
		scope, flipAllowed, err := trainScope.resolve(ctx, courses)
		if err != nil {
			return err
		}
		store, err := a.openSnapshots(ctx)
		if err != nil {
			return err
		}
		defer store.Close()
		reviews, err := a.reviews()
		if err != nil {
			return err
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		recorder := analytics.NewRecorder(database.NewAnalyticsRepository(a.db), analytics.NewMetrics(reg), a.log)
		if addr := a.cfg.Metrics.Addr; addr != "" {
			stop := serveMetrics(addr, reg, a.log)
			defer stop()
		}

		session := trainer.NewSession(trainer.Options{
			Scope:     scope,
			Engine:    a.cfg.EngineConfig(flipAllowed),
			Autoflow:  a.cfg.AutoflowSettings(),
			BatchSize: a.cfg.Learning.BatchSize,
			Namespace: a.cfg.Snapshot.Namespace,
			SaveDelay: a.cfg.Snapshot.SaveDelay,
		}, trainer.Deps{
			Catalog:     database.NewWordRepository(a.db),
			Snapshots:   store,
			Spellcheck:  spellcheck.New(a.cfg.SpellcheckOptions()),
			Reviews:     reviews,
			Analytics:   recorder,
			OnMastered:  recorder.Mastered,
			OnGraduated: recorder.Graduated,
			Logger:      a.log,
		})
		if err := session.Open(ctx); err != nil {
			return err
		}

		runErr := tui.Run(ctx, session.Engine(), scope.String())

		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return errors.Join(runErr, session.Close(closeCtx))
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)
	trainScope.register(trainCmd)
	trainCmd.Flags().Bool("box-zero", false, "enable the intro box")
	trainCmd.Flags().Bool("autoflow", true, "switch boxes and load new words automatically")
	trainCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	bindFlagToViper("learning.box_zero", trainCmd, "box-zero")
	bindFlagToViper("autoflow.enabled", trainCmd, "autoflow")
	bindFlagToViper("metrics.addr", trainCmd, "metrics-addr")
}

// serveMetrics exposes reg on addr until the returned func is called.
func serveMetrics(addr string, reg *prometheus.Registry, log logrus.FieldLogger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Warn("metrics server stopped")
		}
	}()
	log.WithField("addr", addr).Info("serving metrics")
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
