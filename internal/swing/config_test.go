package swing

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.382, cfg.FormationThreshold(Bull))
	assert.Equal(t, 0.382, cfg.FormationThreshold(Bear))
	assert.Equal(t, 5, cfg.MaxLegsPerPivot)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"negative formation", func(c *Config) { c.BullFormationThreshold = -0.1 }, "bull_formation_threshold"},
		{"zero bear formation", func(c *Config) { c.BearFormationThreshold = 0 }, "bear_formation_threshold"},
		{"formation above one", func(c *Config) { c.BullFormationThreshold = 1.5 }, "bull_formation_threshold"},
		{"negative engulf", func(c *Config) { c.EngulfedBreachThreshold = -0.01 }, "engulfed_breach_threshold"},
		{"zero cap", func(c *Config) { c.MaxLegsPerPivot = 0 }, "max_legs_per_pivot"},
		{"range tolerance above one", func(c *Config) { c.ProximityRangeTolerance = 2 }, "proximity_range_tolerance"},
		{"negative time tolerance", func(c *Config) { c.ProximityTimeTolerance = -1 }, "proximity_time_tolerance"},
		{"NaN stale", func(c *Config) { c.StaleExtensionThreshold = math.NaN() }, "stale_extension_threshold"},
		{"stale below engulf", func(c *Config) { c.StaleExtensionThreshold = 0.1 }, "stale_extension_threshold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var ve ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLegsPerPivot = -1

	d, err := New(cfg, zeroLogger())
	assert.Nil(t, d)
	assert.Error(t, err)
}

func TestConfig_Hash(t *testing.T) {
	a, err := DefaultConfig().Hash()
	require.NoError(t, err)
	b, err := DefaultConfig().Hash()
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	cfg := DefaultConfig()
	cfg.MaxLegsPerPivot = 6
	c, err := cfg.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestParseConfig(t *testing.T) {
	t.Run("empty yields defaults", func(t *testing.T) {
		cfg, err := ParseConfig(nil)
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("partial override", func(t *testing.T) {
		cfg, err := ParseConfig([]byte("max_legs_per_pivot: 3\nbear_formation_threshold: 0.5\n"))
		require.NoError(t, err)
		assert.Equal(t, 3, cfg.MaxLegsPerPivot)
		assert.Equal(t, 0.5, cfg.BearFormationThreshold)
		assert.Equal(t, 0.382, cfg.BullFormationThreshold)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		_, err := ParseConfig([]byte("max_legs: 3\n"))
		assert.Error(t, err)
	})

	t.Run("invalid value rejected", func(t *testing.T) {
		_, err := ParseConfig([]byte("engulfed_breach_threshold: -1\n"))
		var ve ValidationError
		assert.True(t, errors.As(err, &ve))
	})
}
