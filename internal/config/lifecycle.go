package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// LifecycleConfig is the quota policy surface. It can be hot reloaded.
type LifecycleConfig struct {
	BillingPeriod       time.Duration `mapstructure:"billingPeriod"`
	GracePeriod         time.Duration `mapstructure:"gracePeriod"`
	PremiumThreshold    int64         `mapstructure:"premiumThreshold"`
	TrialDays           int64         `mapstructure:"trialDays"`
	InitialStatusActive bool          `mapstructure:"initialStatusActive"`
}

func DefaultLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		BillingPeriod:    24 * time.Hour,
		GracePeriod:      7 * 24 * time.Hour,
		PremiumThreshold: 30,
		TrialDays:        10,
	}
}

type LifecycleConfigHolder struct {
	current atomic.Value // holds LifecycleConfig
}

// NewStaticLifecycleConfigHolder returns a holder that never reloads.
func NewStaticLifecycleConfigHolder(cfg LifecycleConfig) *LifecycleConfigHolder {
	holder := &LifecycleConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewLifecycleConfigHolder(log *zap.Logger) (*LifecycleConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("lifecycle")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/botquota/config")
	v.AddConfigPath("/etc/botquota")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BOTQUOTA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultLifecycleConfig()
	v.SetDefault("lifecycle.billingPeriod", defaults.BillingPeriod)
	v.SetDefault("lifecycle.gracePeriod", defaults.GracePeriod)
	v.SetDefault("lifecycle.premiumThreshold", defaults.PremiumThreshold)
	v.SetDefault("lifecycle.trialDays", defaults.TrialDays)
	v.SetDefault("lifecycle.initialStatusActive", defaults.InitialStatusActive)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg LifecycleConfig
	if err := v.UnmarshalKey("lifecycle", &cfg); err != nil {
		return nil, err
	}
	if err := validateLifecycleConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticLifecycleConfigHolder(cfg)
	if !fileLoaded {
		return holder, nil
	}

	log = log.Named("config.lifecycle")
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated LifecycleConfig
		if err := v.UnmarshalKey("lifecycle", &updated); err != nil {
			log.Warn("lifecycle config reload failed", zap.Error(err))
			return
		}
		if err := validateLifecycleConfig(updated); err != nil {
			log.Warn("invalid lifecycle config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("lifecycle config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *LifecycleConfigHolder) Get() LifecycleConfig {
	return h.current.Load().(LifecycleConfig)
}

func validateLifecycleConfig(cfg LifecycleConfig) error {
	if cfg.BillingPeriod <= 0 {
		return errors.New("lifecycle.billingPeriod must be positive")
	}
	if cfg.GracePeriod < 0 {
		return errors.New("lifecycle.gracePeriod cannot be negative")
	}
	if cfg.PremiumThreshold <= 0 {
		return errors.New("lifecycle.premiumThreshold must be positive")
	}
	if cfg.TrialDays < 0 {
		return errors.New("lifecycle.trialDays cannot be negative")
	}
	return nil
}
