package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLifecycleHolderDefaultsWithoutFile(t *testing.T) {
	holder, err := NewLifecycleConfigHolder(zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 24*time.Hour, cfg.BillingPeriod)
	assert.Equal(t, 7*24*time.Hour, cfg.GracePeriod)
	assert.Equal(t, int64(30), cfg.PremiumThreshold)
	assert.Equal(t, int64(10), cfg.TrialDays)
	assert.False(t, cfg.InitialStatusActive)
}

func TestValidateLifecycleConfig(t *testing.T) {
	valid := DefaultLifecycleConfig()
	require.NoError(t, validateLifecycleConfig(valid))

	cases := map[string]func(*LifecycleConfig){
		"zero period":         func(c *LifecycleConfig) { c.BillingPeriod = 0 },
		"negative grace":      func(c *LifecycleConfig) { c.GracePeriod = -time.Hour },
		"zero threshold":      func(c *LifecycleConfig) { c.PremiumThreshold = 0 },
		"negative trial days": func(c *LifecycleConfig) { c.TrialDays = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultLifecycleConfig()
			mutate(&cfg)
			assert.Error(t, validateLifecycleConfig(cfg))
		})
	}
}
