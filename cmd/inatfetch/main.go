package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/rotisserie/eris"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	"go.uber.org/zap"

	"github.com/lox/inatfetch/internal/config"
	"github.com/lox/inatfetch/internal/metrics"
	"github.com/lox/inatfetch/internal/store"
)

const (
	exitFailure = 1
	exitPartial = 2
)

// exitError carries a specific process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// CLI holds the flags shared by every command.
type CLI struct {
	EnvFile kongdotenv.ENVFileConfig `kong:"optional,name=env-file,default='.env',help='Path to a .env file to load.'"`

	CachePath   string `name:"cache-path" default:"${default_cache_path}" env:"INATFETCH_CACHE_PATH" help:"SQLite file holding the response cache and run history."`
	LogLevel    string `name:"log-level" default:"${default_log_level}" enum:"debug,info,warn,error" env:"INATFETCH_LOG_LEVEL" help:"Log level (${enum})."`
	LogFormat   string `name:"log-format" default:"${default_log_format}" enum:"console,json" env:"INATFETCH_LOG_FORMAT" help:"Log format (${enum})."`
	Debug       bool   `name:"debug" env:"INATFETCH_DEBUG" help:"Log raw API responses and force debug level."`
	MetricsFile string `name:"metrics-file" env:"INATFETCH_METRICS_FILE" help:"Write Prometheus metrics to this textfile on exit."`

	Fetch FetchCmd `cmd:"" default:"withargs" help:"Fetch, filter and export observations (default)."`
	Cache CacheCmd `cmd:"" help:"Inspect or clear the response cache."`
	Runs  RunsCmd  `cmd:"" help:"List recent fetch runs."`
}

func (cli *CLI) logConfig() config.LogConfig {
	return config.LogConfig{Level: cli.LogLevel, Format: cli.LogFormat}
}

func (cli *CLI) openStore() (*store.Store, error) {
	st, err := store.Open(cli.CachePath)
	if err != nil {
		return nil, eris.Wrapf(err, "open cache %s", cli.CachePath)
	}
	return st, nil
}

// defaultVars feeds config.Default into the kong default tags so flags and
// the validated configuration share one set of defaults.
func defaultVars() kong.Vars {
	d := config.Default()
	return kong.Vars{
		"default_species":          d.SpeciesName,
		"default_place":            d.PlaceName,
		"default_term_id":          strconv.FormatInt(d.TermID, 10),
		"default_value_id":         strconv.FormatInt(d.ValueID, 10),
		"default_page_size":        strconv.Itoa(d.PageSize),
		"default_base_url":         d.BaseURL,
		"default_cache_path":       d.CachePath,
		"default_cache_ttl":        d.CacheTTL.String(),
		"default_observations_ttl": d.ObservationsTTL.String(),
		"default_min_interval":     d.MinInterval.String(),
		"default_output_dir":       d.OutputDir,
		"default_formats":          strings.Join(d.Formats, ","),
		"default_log_level":        d.Log.Level,
		"default_log_format":       d.Log.Format,
	}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("inatfetch"),
		kong.Description("Fetch iNaturalist observations for a species and place, filtered by annotation."),
		kong.UsageOnError(),
		defaultVars(),
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.Bind(&cli),
	)

	if err := config.InitLogger(cli.logConfig(), cli.Debug); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(exitFailure)
	}
	defer zap.L().Sync()

	err := kctx.Run()

	if cli.MetricsFile != "" {
		if merr := metrics.WriteTextfile(cli.MetricsFile); merr != nil {
			zap.L().Warn("metrics: failed to write textfile", zap.Error(merr))
		}
	}

	if err != nil {
		code := exitFailure
		var ee *exitError
		if errors.As(err, &ee) {
			code = ee.code
		}
		zap.L().Error("inatfetch: command failed", zap.Error(err))
		zap.L().Sync()
		os.Exit(code)
	}
}
