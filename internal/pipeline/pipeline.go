package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lox/inatfetch/internal/export"
	"github.com/lox/inatfetch/internal/inat"
	"github.com/lox/inatfetch/internal/metrics"
	"github.com/lox/inatfetch/internal/models"
)

type State int

const (
	StateIdle State = iota
	StateResolvingIdentifiers
	StateFetching
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolvingIdentifiers:
		return "resolving_identifiers"
	case StateFetching:
		return "fetching"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var ErrAlreadyRun = errors.New("pipeline: already run")

type Config struct {
	SpeciesName string
	PlaceName   string
	Filter      models.AnnotationFilter
	PageSize    int
	// ObservationsTTL overrides the cache TTL for observation search pages.
	ObservationsTTL time.Duration
	Formats         []export.Format
}

type Resolver interface {
	ResolveTaxon(ctx context.Context, name string) (int64, error)
	ResolvePlace(ctx context.Context, name string) (int64, error)
}

// PageSource yields raw observation pages. *inat.Fetcher implements it.
type PageSource interface {
	Pages(ctx context.Context, q inat.Query) iter.Seq2[inat.Page, error]
}

// Sink persists the final record list in one format and returns the path written.
type Sink interface {
	Write(records []models.Observation, format export.Format) (string, error)
}

// PlaceLabels is implemented by label tables that carry place metadata,
// such as *labels.Table.
type PlaceLabels interface {
	DescribePlace(id int64) (string, bool)
}

type Reporter interface {
	Report(summary models.Summary) error
}

// RunRecorder keeps the fetch_runs audit trail. *store.Store implements it.
type RunRecorder interface {
	StartFetchRun(ctx context.Context, run *models.FetchRun) error
	CompleteFetchRun(ctx context.Context, run *models.FetchRun) error
}

// Result is returned from every run, successful or not. When Err is set,
// Observations holds whatever was kept up to the last fully processed page.
type Result struct {
	RunID        string
	Status       models.RunStatus
	TaxonID      int64
	PlaceID      int64
	Pages        int
	Fetched      int
	Skipped      int
	FilteredOut  int
	Kept         int
	Observations []models.Observation
	Summary      models.Summary
	Paths        []string
	Err          error
}

// Pipeline drives a single fetch from name resolution through to the sink.
type Pipeline struct {
	cfg      Config
	resolver Resolver
	source   PageSource
	labels   inat.LabelTable
	sink     Sink
	reporter Reporter
	recorder RunRecorder
	state    State
}

func New(cfg Config, resolver Resolver, source PageSource, labels inat.LabelTable) *Pipeline {
	if cfg.PageSize == 0 {
		cfg.PageSize = inat.DefaultPageSize
	}
	return &Pipeline{
		cfg:      cfg,
		resolver: resolver,
		source:   source,
		labels:   labels,
	}
}

// SetSink configures where records go on completion. Without a sink the
// records are only returned in the Result.
func (p *Pipeline) SetSink(sink Sink) {
	p.sink = sink
}

func (p *Pipeline) SetReporter(reporter Reporter) {
	p.reporter = reporter
}

// SetRunRecorder enables the run audit trail.
func (p *Pipeline) SetRunRecorder(recorder RunRecorder) {
	p.recorder = recorder
}

func (p *Pipeline) State() State {
	return p.state
}

// Run executes the pipeline once. A second call returns ErrAlreadyRun. The
// returned error is also stored in Result.Err.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if p.state != StateIdle {
		return nil, ErrAlreadyRun
	}

	res := &Result{RunID: uuid.NewString()}
	run := &models.FetchRun{
		RunID:       res.RunID,
		SpeciesName: p.cfg.SpeciesName,
		PlaceName:   p.cfg.PlaceName,
		Filter:      p.cfg.Filter.String(),
	}
	recorded := p.startRun(ctx, run)

	err := p.run(ctx, res)
	if err != nil {
		res.Err = err
		p.state = StateFailed
		if res.Kept > 0 {
			res.Status = models.RunPartial
		} else {
			res.Status = models.RunFailed
		}
		zap.L().Error("pipeline: run failed",
			zap.String("run_id", res.RunID),
			zap.String("status", string(res.Status)),
			zap.Int("kept", res.Kept),
			zap.Error(err),
		)
	} else {
		p.state = StateComplete
		res.Status = models.RunSuccess
	}

	if recorded {
		p.completeRun(ctx, run, res)
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context, res *Result) error {
	p.state = StateResolvingIdentifiers

	taxonID, err := p.resolver.ResolveTaxon(ctx, p.cfg.SpeciesName)
	if err != nil {
		return eris.Wrapf(err, "resolve species %q", p.cfg.SpeciesName)
	}
	res.TaxonID = taxonID

	placeID, err := p.resolver.ResolvePlace(ctx, p.cfg.PlaceName)
	if err != nil {
		return eris.Wrapf(err, "resolve place %q", p.cfg.PlaceName)
	}
	res.PlaceID = placeID

	p.state = StateFetching
	zap.L().Info("pipeline: fetching observations",
		zap.Int64("taxon_id", taxonID),
		zap.Int64("place_id", placeID),
		zap.Stringer("filter", p.cfg.Filter),
	)

	place := p.describePlace(placeID)
	normalizer := inat.NewNormalizer(p.labels, taxonID, placeID)
	agg := NewAggregator()
	summarize := func() models.Summary {
		s := agg.Summary()
		s.Place = place
		return s
	}
	defer func() { res.Summary = summarize() }()

	query := inat.Query{
		TaxonID:  taxonID,
		PlaceID:  placeID,
		Filter:   p.cfg.Filter,
		PageSize: p.cfg.PageSize,
		TTL:      p.cfg.ObservationsTTL,
	}
	for page, err := range p.source.Pages(ctx, query) {
		if err != nil {
			return err
		}
		res.Pages++
		p.processPage(page, normalizer, agg, res)
	}

	zap.L().Info("pipeline: fetch complete",
		zap.Int("pages", res.Pages),
		zap.Int("fetched", res.Fetched),
		zap.Int("skipped", res.Skipped),
		zap.Int("filtered_out", res.FilteredOut),
		zap.Int("kept", res.Kept),
	)

	if p.sink != nil {
		for _, format := range p.cfg.Formats {
			path, err := p.sink.Write(res.Observations, format)
			if err != nil {
				return eris.Wrapf(err, "write %s output", format)
			}
			res.Paths = append(res.Paths, path)
		}
	}
	if p.reporter != nil {
		if err := p.reporter.Report(summarize()); err != nil {
			return eris.Wrap(err, "report summary")
		}
	}
	return nil
}

// processPage normalizes, re-checks and aggregates every record on one page.
// Records are only appended to the result once the whole page is processed.
func (p *Pipeline) processPage(page inat.Page, normalizer *inat.Normalizer, agg *Aggregator, res *Result) {
	kept := make([]models.Observation, 0, len(page.Results))
	for _, raw := range page.Results {
		res.Fetched++

		obs, err := normalizer.Normalize(raw)
		if err != nil {
			res.Skipped++
			metrics.ObservationsProcessed.WithLabelValues("malformed").Inc()
			zap.L().Warn("pipeline: skipping malformed observation",
				zap.Int("page", page.Index),
				zap.Error(err),
			)
			continue
		}

		agg.Observe(obs)
		if !obs.HasAnnotation(p.cfg.Filter) {
			res.FilteredOut++
			metrics.ObservationsProcessed.WithLabelValues("filtered").Inc()
			continue
		}

		agg.Record(obs)
		kept = append(kept, obs)
		metrics.ObservationsProcessed.WithLabelValues("kept").Inc()
	}
	res.Observations = append(res.Observations, kept...)
	res.Kept += len(kept)
}

// describePlace labels the resolved place from the label table, falling back
// to the configured name for places the table does not know.
func (p *Pipeline) describePlace(id int64) string {
	if pl, ok := p.labels.(PlaceLabels); ok {
		if desc, ok := pl.DescribePlace(id); ok {
			zap.L().Info("pipeline: resolved place", zap.Int64("place_id", id), zap.String("place", desc))
			return desc
		}
	}
	return p.cfg.PlaceName
}

// startRun reports whether the run row was written. Without it there is
// nothing for completeRun to update.
func (p *Pipeline) startRun(ctx context.Context, run *models.FetchRun) bool {
	if p.recorder == nil {
		return false
	}
	if err := p.recorder.StartFetchRun(ctx, run); err != nil {
		zap.L().Warn("pipeline: failed to record run start, run will not be audited",
			zap.String("run_id", run.RunID),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (p *Pipeline) completeRun(ctx context.Context, run *models.FetchRun, res *Result) {
	run.Pages = res.Pages
	run.Fetched = res.Fetched
	run.Skipped = res.Skipped
	run.FilteredOut = res.FilteredOut
	run.Kept = res.Kept
	run.Status = sql.NullString{String: string(res.Status), Valid: true}
	if res.TaxonID > 0 {
		run.TaxonID = sql.NullInt64{Int64: res.TaxonID, Valid: true}
	}
	if res.PlaceID > 0 {
		run.PlaceID = sql.NullInt64{Int64: res.PlaceID, Valid: true}
	}
	if res.Err != nil {
		run.ErrorMessage = sql.NullString{String: res.Err.Error(), Valid: true}
	}

	// The run context may already be canceled; the audit row should still land.
	if err := p.recorder.CompleteFetchRun(context.WithoutCancel(ctx), run); err != nil {
		zap.L().Warn("pipeline: failed to record run completion", zap.Error(err))
	}
}
