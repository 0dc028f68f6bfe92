// Package config holds the validated run configuration and logger setup.
package config

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lox/inatfetch/internal/export"
	"github.com/lox/inatfetch/internal/inat"
	"github.com/lox/inatfetch/internal/models"
)

const (
	DefaultSpecies         = "Amelanchier alnifolia"
	DefaultPlace           = "Siskiyou County, CA"
	DefaultTermID          = 12 // Plant Phenology
	DefaultValueID         = 14 // Fruits or Seeds
	DefaultCachePath       = "inat_cache/inat_api_cache.db"
	DefaultOutputDir       = "results"
	DefaultObservationsTTL = 30 * time.Second
)

// LogConfig controls the global zap logger.
type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=console json"`
}

// Config is read once at startup and never mutated afterwards.
type Config struct {
	SpeciesName string `validate:"required"`
	PlaceName   string `validate:"required"`
	TermID      int64  `validate:"gt=0"`
	ValueID     int64  `validate:"gt=0"`
	PageSize    int    `validate:"min=1,max=200"`

	BaseURL         string        `validate:"required,url"`
	CachePath       string        `validate:"required"`
	CacheTTL        time.Duration `validate:"gte=0s"`
	ObservationsTTL time.Duration `validate:"gte=0s"`
	MinInterval     time.Duration `validate:"gte=0s"`
	ClearCache      bool

	OutputDir string   `validate:"required"`
	Formats   []string `validate:"required,min=1,dive,oneof=csv json xlsx"`

	Debug       bool
	MetricsFile string
	Log         LogConfig
}

// Default returns the configuration used when no flags are given.
func Default() Config {
	return Config{
		SpeciesName:     DefaultSpecies,
		PlaceName:       DefaultPlace,
		TermID:          DefaultTermID,
		ValueID:         DefaultValueID,
		PageSize:        inat.DefaultPageSize,
		BaseURL:         inat.DefaultBaseURL,
		CachePath:       DefaultCachePath,
		CacheTTL:        inat.DefaultCacheTTL,
		ObservationsTTL: DefaultObservationsTTL,
		MinInterval:     inat.DefaultMinInterval,
		OutputDir:       DefaultOutputDir,
		Formats:         []string{string(export.FormatCSV), string(export.FormatJSON)},
		Log:             LogConfig{Level: "info", Format: "console"},
	}
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return eris.Wrap(err, "config: validate")
	}
	return nil
}

func (c Config) Filter() models.AnnotationFilter {
	return models.AnnotationFilter{TermID: c.TermID, ValueID: c.ValueID}
}

// ExportFormats returns Formats in order with duplicates removed.
func (c Config) ExportFormats() ([]export.Format, error) {
	var out []export.Format
	seen := map[export.Format]bool{}
	for _, s := range c.Formats {
		f, err := export.ParseFormat(s)
		if err != nil {
			return nil, err
		}
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out, nil
}

// InitLogger replaces the global zap logger. debug forces debug level.
func InitLogger(cfg LogConfig, debug bool) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	levelName := cfg.Level
	if debug {
		levelName = "debug"
	}
	level, err := zapcore.ParseLevel(levelName)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
