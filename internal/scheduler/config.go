package scheduler

import (
	"time"

	"github.com/smallbiznis/botquota/internal/config"
)

const (
	JobConsumeDays  = "consume_days"
	JobReapExpired  = "reap_expired"
	runLockKey      = "scheduler:run"
	defaultUnitWait = 30 * time.Second

	// Lock and serialization conflicts on one account are retried in place.
	unitMaxTries   = 3
	unitRetryDelay = 50 * time.Millisecond
)

// Config controls scheduler intervals, parallelism and batch sizes.
type Config struct {
	RunInterval           time.Duration
	ReapInterval          time.Duration
	Concurrency           int
	BatchSize             int
	MaxCatchUpPeriods     int
	UseStoredSubscription bool
	EnabledJobs           []string
	LockTTL               time.Duration
	ConsumeTimeout        time.Duration
	ReapTimeout           time.Duration
	UnitTimeout           time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:       time.Minute,
		ReapInterval:      time.Hour,
		Concurrency:       8,
		BatchSize:         500,
		MaxCatchUpPeriods: 7,
		LockTTL:           10 * time.Minute,
		ConsumeTimeout:    30 * time.Minute,
		ReapTimeout:       10 * time.Minute,
		UnitTimeout:       defaultUnitWait,
	}
}

func ProvideConfig(cfg config.Config) Config {
	sc := cfg.Scheduler
	return Config{
		RunInterval:           sc.RunInterval,
		ReapInterval:          sc.ReapInterval,
		Concurrency:           sc.Concurrency,
		BatchSize:             sc.BatchSize,
		MaxCatchUpPeriods:     sc.MaxCatchUpPeriods,
		UseStoredSubscription: sc.UseStoredSubscription,
		EnabledJobs:           sc.EnabledJobs,
		LockTTL:               sc.LockTTL,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = defaults.ReapInterval
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaults.Concurrency
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.MaxCatchUpPeriods <= 0 {
		c.MaxCatchUpPeriods = defaults.MaxCatchUpPeriods
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.ConsumeTimeout <= 0 {
		c.ConsumeTimeout = defaults.ConsumeTimeout
	}
	if c.ReapTimeout <= 0 {
		c.ReapTimeout = defaults.ReapTimeout
	}
	if c.UnitTimeout <= 0 {
		c.UnitTimeout = defaults.UnitTimeout
	}
	return c
}
