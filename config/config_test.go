package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := New()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.5, cfg.Pipeline.ConfidenceThreshold)
	assert.Equal(t, "greedy", cfg.Pipeline.AssociationPolicy)
	assert.True(t, cfg.Pipeline.UnknownAsUnsafe)
	assert.Equal(t, 0.2, cfg.Pipeline.PaddingRatio)
	assert.NotEmpty(t, cfg.Pipeline.Colors)
	assert.Contains(t, cfg.Detector.Helmet.Names, "helmet")
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"confidence above 1", func(c *Config) { c.Pipeline.ConfidenceThreshold = 1.5 }},
		{"negative aggregation threshold", func(c *Config) { c.Pipeline.AggregationThreshold = -0.1 }},
		{"negative padding", func(c *Config) { c.Pipeline.PaddingRatio = -0.2 }},
		{"zero pairing ratio", func(c *Config) { c.Pipeline.PairingRatio = 0 }},
		{"unknown policy", func(c *Config) { c.Pipeline.AssociationPolicy = "optimal" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
