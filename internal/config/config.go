// Package config loads settings from a config file, a .env file and
// BOXTRAINER_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/example/boxtrainer/internal/database"
	"github.com/example/boxtrainer/internal/leitner"
	"github.com/example/boxtrainer/internal/scheduler"
	"github.com/example/boxtrainer/internal/spaced_repetition"
	"github.com/example/boxtrainer/internal/spellcheck"
	"github.com/example/boxtrainer/pkg/models"
)

const EnvPrefix = "BOXTRAINER"

// Snapshot backends.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// Config holds all configuration for the application
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	Learning  LearningConfig  `mapstructure:"learning"`
	Autoflow  AutoflowConfig  `mapstructure:"autoflow"`
	Reviews   ReviewsConfig   `mapstructure:"reviews"`
	Reminders RemindersConfig `mapstructure:"reminders"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
}

// DatabaseConfig selects the relational store.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Path   string `mapstructure:"path"`
}

// SnapshotConfig selects where box snapshots live.
type SnapshotConfig struct {
	Backend       string        `mapstructure:"backend"`
	Path          string        `mapstructure:"path"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Namespace     string        `mapstructure:"namespace"`
	SaveDelay     time.Duration `mapstructure:"save_delay"`
}

// LearningConfig holds engine and answer checking settings.
type LearningConfig struct {
	BoxZero          bool          `mapstructure:"box_zero"`
	ReversedBoxes    []string      `mapstructure:"reversed_boxes"`
	FlipAllowed      bool          `mapstructure:"flip_allowed"`
	SettleDelay      time.Duration `mapstructure:"settle_delay"`
	FlashDelay       time.Duration `mapstructure:"flash_delay"`
	BatchSize        int           `mapstructure:"batch_size"`
	Fuzzy            bool          `mapstructure:"fuzzy"`
	IgnoreDiacritics bool          `mapstructure:"ignore_diacritics"`
}

// AutoflowConfig mirrors leitner.AutoflowSettings.
type AutoflowConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	SwitchThreshold    int           `mapstructure:"switch_threshold"`
	ReplenishThreshold int           `mapstructure:"replenish_threshold"`
	Cooldown           time.Duration `mapstructure:"cooldown"`
	EntryLimit         int           `mapstructure:"entry_limit"`
	ItemLimit          int           `mapstructure:"item_limit"`
}

// ReviewsConfig holds the review ladder.
type ReviewsConfig struct {
	Intervals []time.Duration `mapstructure:"intervals"`
}

// RemindersConfig drives the due-review reminder job.
type RemindersConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	StartHour int           `mapstructure:"start_hour"`
	EndHour   int           `mapstructure:"end_hour"`
	Limit     int           `mapstructure:"limit"`
}

// MetricsConfig exposes Prometheus metrics when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadDotenv copies a .env file into the process environment. Missing
// files are ignored and existing variables win.
func LoadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error reading %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration. An empty path looks for boxtrainer.{yaml,toml,json}
// in the working directory and ./config; a missing file is not an error.
func Load(path string) (*Config, error) {
	return LoadInto(New(), path)
}

// LoadInto is Load on a caller-provided viper, e.g. one with bound command
// line flags.
func LoadInto(v *viper.Viper, path string) (*Config, error) {
	if err := LoadDotenv(); err != nil {
		return nil, err
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("boxtrainer")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return FromViper(v)
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// FromViper decodes and validates the settings held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", database.DriverSQLite)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.path", "data/boxtrainer.db")

	v.SetDefault("snapshot.backend", BackendBadger)
	v.SetDefault("snapshot.path", "data/snapshots")
	v.SetDefault("snapshot.redis_addr", "localhost:6379")
	v.SetDefault("snapshot.redis_password", "")
	v.SetDefault("snapshot.redis_db", 0)
	v.SetDefault("snapshot.namespace", "boxes")
	v.SetDefault("snapshot.save_delay", 800*time.Millisecond)

	v.SetDefault("learning.box_zero", false)
	v.SetDefault("learning.reversed_boxes", []string{string(models.BoxTwo), string(models.BoxFour)})
	v.SetDefault("learning.flip_allowed", true)
	v.SetDefault("learning.settle_delay", leitner.DefaultSettleDelay)
	v.SetDefault("learning.flash_delay", leitner.DefaultFlashDelay)
	v.SetDefault("learning.batch_size", 10)
	v.SetDefault("learning.fuzzy", true)
	v.SetDefault("learning.ignore_diacritics", false)

	v.SetDefault("autoflow.enabled", true)
	v.SetDefault("autoflow.switch_threshold", leitner.DefaultSwitchThreshold)
	v.SetDefault("autoflow.replenish_threshold", leitner.DefaultReplenishThreshold)
	v.SetDefault("autoflow.cooldown", leitner.DefaultSwitchCooldown)
	v.SetDefault("autoflow.entry_limit", leitner.DefaultEntryLimit)
	v.SetDefault("autoflow.item_limit", 0)

	v.SetDefault("reviews.intervals", []time.Duration(spaced_repetition.DefaultIntervals))

	v.SetDefault("reminders.interval", scheduler.DefaultInterval)
	v.SetDefault("reminders.start_hour", scheduler.DefaultNotificationStartHour)
	v.SetDefault("reminders.end_hour", scheduler.DefaultNotificationEndHour)
	v.SetDefault("reminders.limit", 0)

	v.SetDefault("metrics.addr", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate checks values that cannot be corrected silently.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case database.DriverSQLite, database.DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Snapshot.Backend {
	case BackendMemory, BackendBadger, BackendRedis:
	default:
		return fmt.Errorf("unsupported snapshot backend %q", c.Snapshot.Backend)
	}
	if _, err := c.reversedBoxes(); err != nil {
		return err
	}
	if !spaced_repetition.Intervals(c.Reviews.Intervals).Ascending() || len(c.Reviews.Intervals) == 0 {
		return spaced_repetition.ErrInvalidIntervals
	}
	for _, h := range []int{c.Reminders.StartHour, c.Reminders.EndHour} {
		if h < 0 || h > 23 {
			return fmt.Errorf("reminder hour %d out of range", h)
		}
	}
	return nil
}

func (c *Config) reversedBoxes() ([]models.BoxName, error) {
	out := make([]models.BoxName, 0, len(c.Learning.ReversedBoxes))
	for _, s := range c.Learning.ReversedBoxes {
		if strings.TrimSpace(s) == "" {
			continue
		}
		b, err := models.ParseBoxName(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("learning.reversed_boxes: %w", err)
		}
		out = append(out, b)
	}
	return out, nil
}

// EngineConfig returns the engine settings. flipAllowed comes from the
// course policy and is combined with the learner switch.
func (c *Config) EngineConfig(flipAllowed bool) leitner.Config {
	reversed, _ := c.reversedBoxes()
	return leitner.Config{
		BoxZeroEnabled: c.Learning.BoxZero,
		ReversedBoxes:  reversed,
		FlipAllowed:    c.Learning.FlipAllowed && flipAllowed,
		SettleDelay:    c.Learning.SettleDelay,
		FlashDelay:     c.Learning.FlashDelay,
	}
}

// AutoflowSettings returns the autoflow policy.
func (c *Config) AutoflowSettings() leitner.AutoflowSettings {
	return leitner.AutoflowSettings{
		Enabled:            c.Autoflow.Enabled,
		SwitchThreshold:    c.Autoflow.SwitchThreshold,
		ReplenishThreshold: c.Autoflow.ReplenishThreshold,
		Cooldown:           c.Autoflow.Cooldown,
		EntryLimit:         c.Autoflow.EntryLimit,
		ItemLimit:          c.Autoflow.ItemLimit,
	}
}

// SpellcheckOptions returns the answer checking policy.
func (c *Config) SpellcheckOptions() spellcheck.Options {
	return spellcheck.Options{Fuzzy: c.Learning.Fuzzy, IgnoreDiacritics: c.Learning.IgnoreDiacritics}
}

// DatabaseOptions returns the connection options.
func (c *Config) DatabaseOptions() database.Options {
	return database.Options{Driver: c.Database.Driver, DSN: c.Database.DSN, Path: c.Database.Path}
}

// ReminderOptions returns the reminder job settings without clock and logger.
func (c *Config) ReminderOptions() scheduler.Options {
	return scheduler.Options{
		Interval:  c.Reminders.Interval,
		StartHour: c.Reminders.StartHour,
		EndHour:   c.Reminders.EndHour,
		Limit:     c.Reminders.Limit,
	}
}
