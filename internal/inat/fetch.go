package inat

import (
	"context"
	"iter"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/lox/inatfetch/internal/models"
)

const (
	MaxPageSize     = 200
	DefaultPageSize = MaxPageSize
)

// Query describes one observation search.
type Query struct {
	TaxonID  int64
	PlaceID  int64
	Filter   models.AnnotationFilter
	PageSize int
	// TTL overrides the client's cache TTL for search pages.
	TTL time.Duration
}

func (q Query) params(page int) url.Values {
	v := url.Values{
		"taxon_id": {strconv.FormatInt(q.TaxonID, 10)},
		"place_id": {strconv.FormatInt(q.PlaceID, 10)},
		"per_page": {strconv.Itoa(q.PageSize)},
		"page":     {strconv.Itoa(page)},
		"order_by": {"observed_on"},
		"order":    {"desc"},
	}
	if q.Filter.TermID > 0 {
		v.Set("term_id", strconv.FormatInt(q.Filter.TermID, 10))
	}
	if q.Filter.ValueID > 0 {
		v.Set("term_value_id", strconv.FormatInt(q.Filter.ValueID, 10))
	}
	return v
}

// Page is one page of raw search results.
type Page struct {
	Index        int
	TotalResults int
	Results      []gjson.Result
}

// Fetcher walks the paginated observation search.
type Fetcher struct {
	client Requester
}

func NewFetcher(client Requester) *Fetcher {
	return &Fetcher{client: client}
}

// Pages yields every page of results, starting at page 1, issuing exactly one
// request per page. Iteration ends after a short page or once the running
// count reaches the reported total. A request failure is yielded as a
// *FetchAbortedError and ends the sequence. The sequence is not restartable.
func (f *Fetcher) Pages(ctx context.Context, q Query) iter.Seq2[Page, error] {
	return func(yield func(Page, error) bool) {
		if q.PageSize < 1 || q.PageSize > MaxPageSize {
			yield(Page{}, eris.Errorf("page size %d out of range 1-%d", q.PageSize, MaxPageSize))
			return
		}

		fetched := 0
		for page := 1; ; page++ {
			zap.L().Info("fetcher: fetching page", zap.Int("page", page))

			resp, err := f.client.Request(ctx, Request{
				Endpoint: "observations",
				Params:   q.params(page),
				TTL:      q.TTL,
			})
			if err != nil {
				yield(Page{}, &FetchAbortedError{LastPage: page - 1, Err: err})
				return
			}

			results := resp.Get("results").Array()
			total := resp.Get("total_results")
			fetched += len(results)

			p := Page{Index: page, Results: results}
			if total.Exists() {
				p.TotalResults = int(total.Int())
			}
			if page == 1 {
				zap.L().Info("fetcher: total observations found", zap.Int("total", p.TotalResults))
			}

			if !yield(p, nil) {
				return
			}

			if len(results) < q.PageSize {
				return
			}
			if total.Exists() && fetched >= p.TotalResults {
				return
			}
		}
	}
}

// FetchAll flattens Pages into individual raw observations.
func (f *Fetcher) FetchAll(ctx context.Context, q Query) iter.Seq2[gjson.Result, error] {
	return func(yield func(gjson.Result, error) bool) {
		for page, err := range f.Pages(ctx, q) {
			if err != nil {
				yield(gjson.Result{}, err)
				return
			}
			for _, raw := range page.Results {
				if !yield(raw, nil) {
					return
				}
			}
		}
	}
}
