package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, 30*time.Second, c.TickInterval)
	assert.Equal(t, 5*time.Second, c.RetryBackoff)
	assert.Equal(t, 365*24*time.Hour, c.Retention)
	assert.Equal(t, 0.1168, c.Plan.FlatDollarsPerKWH)
	assert.Equal(t, 50.0, c.Thresholds.ActiveWatts)
	assert.Equal(t, 1.0, c.Thresholds.StandbyWatts)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"nil location", func(c *Config) { c.Location = nil }},
		{"nil schedule", func(c *Config) { c.Schedule = nil }},
		{"zero tick", func(c *Config) { c.TickInterval = 0 }},
		{"negative backoff", func(c *Config) { c.RetryBackoff = -time.Second }},
		{"inverted thresholds", func(c *Config) { c.Thresholds.ActiveWatts = 0.5 }},
		{"equal thresholds", func(c *Config) { c.Thresholds.ActiveWatts = c.Thresholds.StandbyWatts }},
		{"negative retention", func(c *Config) { c.Retention = -time.Hour }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.modify(&c)
			assert.Error(t, c.Validate())
		})
	}
}
