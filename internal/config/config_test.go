package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lox/inatfetch/internal/export"
	"github.com/lox/inatfetch/internal/models"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "Amelanchier alnifolia", cfg.SpeciesName)
	assert.Equal(t, models.AnnotationFilter{TermID: 12, ValueID: 14}, cfg.Filter())
	assert.Equal(t, 200, cfg.PageSize)
	assert.Equal(t, time.Second, cfg.MinInterval)
	assert.Equal(t, 30*time.Second, cfg.ObservationsTTL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty species", func(c *Config) { c.SpeciesName = "" }},
		{"empty place", func(c *Config) { c.PlaceName = "" }},
		{"zero term", func(c *Config) { c.TermID = 0 }},
		{"negative value", func(c *Config) { c.ValueID = -1 }},
		{"page size zero", func(c *Config) { c.PageSize = 0 }},
		{"page size too large", func(c *Config) { c.PageSize = 201 }},
		{"negative ttl", func(c *Config) { c.CacheTTL = -time.Second }},
		{"negative interval", func(c *Config) { c.MinInterval = -time.Millisecond }},
		{"bad base url", func(c *Config) { c.BaseURL = "not a url" }},
		{"no formats", func(c *Config) { c.Formats = nil }},
		{"unknown format", func(c *Config) { c.Formats = []string{"csv", "xml"} }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateBoundaries(t *testing.T) {
	cfg := Default()
	cfg.PageSize = 1
	cfg.MinInterval = 0
	cfg.CacheTTL = 0
	assert.NoError(t, cfg.Validate())

	cfg.PageSize = 200
	assert.NoError(t, cfg.Validate())
}

func TestExportFormats(t *testing.T) {
	cfg := Default()
	cfg.Formats = []string{"json", "csv", "json", "xlsx"}
	require.NoError(t, cfg.Validate())

	formats, err := cfg.ExportFormats()
	require.NoError(t, err)
	assert.Equal(t, []export.Format{export.FormatJSON, export.FormatCSV, export.FormatXLSX}, formats)

	cfg.Formats = []string{"yaml"}
	_, err = cfg.ExportFormats()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "console"}, false)
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerDebugOverridesLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "error", Format: "json"}, true)
	require.NoError(t, err)
	assert.True(t, zap.L().Core().Enabled(zap.DebugLevel))
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"}, false)
	assert.Error(t, err)
}
