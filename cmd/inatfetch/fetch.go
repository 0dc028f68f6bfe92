package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lox/inatfetch/internal/config"
	"github.com/lox/inatfetch/internal/export"
	"github.com/lox/inatfetch/internal/httputil"
	"github.com/lox/inatfetch/internal/inat"
	"github.com/lox/inatfetch/internal/labels"
	"github.com/lox/inatfetch/internal/models"
	"github.com/lox/inatfetch/internal/pipeline"
)

type FetchCmd struct {
	Species         string        `name:"species" default:"${default_species}" env:"INATFETCH_SPECIES" help:"Species name to resolve."`
	Place           string        `name:"place" default:"${default_place}" env:"INATFETCH_PLACE" help:"Place name to resolve."`
	TermID          int64         `name:"term-id" default:"${default_term_id}" env:"INATFETCH_TERM_ID" help:"Annotation term ID to keep (12 = Plant Phenology)."`
	ValueID         int64         `name:"value-id" default:"${default_value_id}" env:"INATFETCH_VALUE_ID" help:"Annotation value ID to keep (14 = Fruits or Seeds)."`
	PageSize        int           `name:"page-size" default:"${default_page_size}" env:"INATFETCH_PAGE_SIZE" help:"Observations per page (1-200)."`
	BaseURL         string        `name:"base-url" default:"${default_base_url}" env:"INATFETCH_BASE_URL" hidden:""`
	CacheTTL        time.Duration `name:"cache-ttl" default:"${default_cache_ttl}" env:"INATFETCH_CACHE_TTL" help:"How long API responses stay cached."`
	ObservationsTTL time.Duration `name:"observations-ttl" default:"${default_observations_ttl}" env:"INATFETCH_OBSERVATIONS_TTL" help:"Cache TTL for observation search pages."`
	MinInterval     time.Duration `name:"min-interval" default:"${default_min_interval}" env:"INATFETCH_MIN_INTERVAL" help:"Minimum delay between network requests."`
	OutputDir       string        `name:"output-dir" default:"${default_output_dir}" env:"INATFETCH_OUTPUT_DIR" help:"Directory for exported files."`
	Formats         []string      `name:"format" default:"${default_formats}" env:"INATFETCH_FORMATS" help:"Output formats (csv, json, xlsx)."`
	ClearCache      bool          `name:"clear-cache" env:"INATFETCH_CLEAR_CACHE" help:"Drop every cached response before fetching."`
}

func (c *FetchCmd) config(cli *CLI) config.Config {
	return config.Config{
		SpeciesName:     c.Species,
		PlaceName:       c.Place,
		TermID:          c.TermID,
		ValueID:         c.ValueID,
		PageSize:        c.PageSize,
		BaseURL:         c.BaseURL,
		CachePath:       cli.CachePath,
		CacheTTL:        c.CacheTTL,
		ObservationsTTL: c.ObservationsTTL,
		MinInterval:     c.MinInterval,
		ClearCache:      c.ClearCache,
		OutputDir:       c.OutputDir,
		Formats:         c.Formats,
		Debug:           cli.Debug,
		MetricsFile:     cli.MetricsFile,
		Log:             cli.logConfig(),
	}
}

func (c *FetchCmd) Run(ctx context.Context, cli *CLI) error {
	cfg := c.config(cli)
	if err := cfg.Validate(); err != nil {
		return err
	}
	formats, err := cfg.ExportFormats()
	if err != nil {
		return err
	}

	st, err := cli.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if cfg.ClearCache {
		n, err := st.ClearCache(ctx)
		if err != nil {
			return eris.Wrap(err, "clear cache")
		}
		zap.L().Info("cache: cleared", zap.Int64("entries", n))
	} else {
		n, err := st.RemoveExpiredResponses(ctx, time.Now())
		if err != nil {
			return eris.Wrap(err, "remove expired responses")
		}
		if n > 0 {
			zap.L().Info("cache: removed expired responses", zap.Int64("entries", n))
		}
	}

	transport := inat.NewCachedTransport(cfg.BaseURL, httputil.NewClient(), st)
	client := inat.NewClient(transport, inat.ClientConfig{
		MinInterval: cfg.MinInterval,
		CacheTTL:    cfg.CacheTTL,
		Debug:       cfg.Debug,
	})

	p := pipeline.New(pipeline.Config{
		SpeciesName:     cfg.SpeciesName,
		PlaceName:       cfg.PlaceName,
		Filter:          cfg.Filter(),
		PageSize:        cfg.PageSize,
		ObservationsTTL: cfg.ObservationsTTL,
		Formats:         formats,
	}, inat.NewResolver(client), inat.NewFetcher(client), labels.Default())
	p.SetSink(export.NewWriter(cfg.OutputDir, cfg.SpeciesName, cfg.Filter(), time.Now()))
	p.SetReporter(export.NewSummaryReporter(os.Stdout))
	p.SetRunRecorder(st)

	res, err := p.Run(ctx)
	if res != nil {
		printResult(res)
	}
	if err != nil {
		if res != nil && res.Status == models.RunPartial {
			return &exitError{code: exitPartial, err: err}
		}
		return err
	}
	return nil
}

func printResult(res *pipeline.Result) {
	fmt.Printf("\nRun %s: %s\n", res.RunID, res.Status)
	fmt.Printf("  pages:        %s\n", humanize.Comma(int64(res.Pages)))
	fmt.Printf("  fetched:      %s\n", humanize.Comma(int64(res.Fetched)))
	fmt.Printf("  skipped:      %s\n", humanize.Comma(int64(res.Skipped)))
	fmt.Printf("  filtered out: %s\n", humanize.Comma(int64(res.FilteredOut)))
	fmt.Printf("  kept:         %s\n", humanize.Comma(int64(res.Kept)))
	for _, path := range res.Paths {
		fmt.Printf("  wrote %s\n", path)
	}
}
