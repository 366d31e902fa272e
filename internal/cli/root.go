// Package cli holds the boxtrainer commands.
package cli

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/example/boxtrainer/internal/clock"
	"github.com/example/boxtrainer/internal/config"
	"github.com/example/boxtrainer/internal/database"
	"github.com/example/boxtrainer/internal/logger"
	"github.com/example/boxtrainer/internal/snapshot"
	"github.com/example/boxtrainer/internal/spaced_repetition"
)

// settings collects config file, environment and bound flags.
var settings = config.New()

var configPath string

var rootCmd = &cobra.Command{
	Use:           "boxtrainer",
	Short:         "Six-box Leitner vocabulary trainer",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./boxtrainer.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
	bindFlagToViper("log.level", rootCmd, "log-level")
	bindFlagToViper("log.format", rootCmd, "log-format")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func bindFlagToViper(key string, cmd *cobra.Command, name string) {
	flag := cmd.Flags().Lookup(name)
	if flag == nil {
		flag = cmd.PersistentFlags().Lookup(name)
	}
	if flag == nil {
		return
	}
	cobra.CheckErr(settings.BindPFlag(key, flag))
}

// app is what every command needs once the config is loaded.
type app struct {
	cfg *config.Config
	log *logrus.Logger
	db  *sqlx.DB
}

func openApp(v *viper.Viper) (*app, error) {
	cfg, err := config.LoadInto(v, configPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	db, err := database.Connect(cfg.DatabaseOptions())
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log, db: db}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.WithError(err).Warn("closing database")
	}
}

func (a *app) reviews() (*spaced_repetition.Scheduler, error) {
	return spaced_repetition.NewScheduler(database.NewReviewRepository(a.db), a.cfg.Reviews.Intervals, clock.Real(), a.log)
}

// openSnapshots opens the configured snapshot backend.
func (a *app) openSnapshots(ctx context.Context) (snapshot.Store, error) {
	sc := a.cfg.Snapshot
	switch sc.Backend {
	case config.BackendMemory:
		a.log.Warn("memory snapshot backend, progress is lost on exit")
		return snapshot.NewMemoryStore(), nil
	case config.BackendRedis:
		return snapshot.OpenRedis(ctx, sc.RedisAddr, sc.RedisPassword, sc.RedisDB)
	case config.BackendBadger:
		return snapshot.OpenBadger(sc.Path, a.log)
	}
	return nil, fmt.Errorf("unsupported snapshot backend %q", sc.Backend)
}
