package inat

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lox/inatfetch/internal/httputil"
	"github.com/lox/inatfetch/internal/store"
)

const DefaultBaseURL = "https://api.inaturalist.org/v1"

// Request is one GET against the API. TTL controls how long a successful
// response may be served from cache. Client fills in its default when TTL is
// zero; a negative TTL bypasses the cache.
type Request struct {
	Endpoint string
	Params   url.Values
	TTL      time.Duration
}

// Response is the raw result of a GET.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
	FromCache  bool
}

// Transport performs GETs. Lookup must never touch the network so callers can
// tell cache hits apart from network-bound calls before throttling.
type Transport interface {
	Lookup(ctx context.Context, req Request) (*Response, bool, error)
	Fetch(ctx context.Context, req Request) (*Response, error)
}

// Cache is the persistence the CachedTransport needs. *store.Store implements it.
type Cache interface {
	GetCachedResponse(ctx context.Context, key string, now time.Time) (*store.CachedResponse, error)
	PutCachedResponse(ctx context.Context, resp store.CachedResponse) error
}

// CachedTransport is an HTTP transport backed by a SQLite response cache.
// Only 200 responses are cached.
type CachedTransport struct {
	baseURL string
	client  *http.Client
	cache   Cache
	now     func() time.Time
}

// NewCachedTransport creates a transport. A nil cache disables caching.
func NewCachedTransport(baseURL string, client *http.Client, cache Cache) *CachedTransport {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = httputil.NewClient()
	}
	return &CachedTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		cache:   cache,
		now:     time.Now,
	}
}

// URL returns the canonical URL for req. Query parameters are sorted, so
// identical requests map to the same cache key.
func (t *CachedTransport) URL(req Request) string {
	u := t.baseURL + "/" + strings.TrimLeft(req.Endpoint, "/")
	if len(req.Params) > 0 {
		u += "?" + req.Params.Encode()
	}
	return u
}

func (t *CachedTransport) Lookup(ctx context.Context, req Request) (*Response, bool, error) {
	if t.cache == nil || req.TTL <= 0 {
		return nil, false, nil
	}

	u := t.URL(req)
	cached, err := t.cache.GetCachedResponse(ctx, store.CacheKey(u), t.now())
	if err != nil {
		return nil, false, eris.Wrap(err, "cache lookup")
	}
	if cached == nil {
		return nil, false, nil
	}
	return &Response{URL: u, StatusCode: cached.Status, Body: cached.Body, FromCache: true}, true, nil
}

func (t *CachedTransport) Fetch(ctx context.Context, req Request) (*Response, error) {
	u := t.URL(req)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, eris.Wrapf(err, "get %s", u)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read body")
	}

	if resp.StatusCode == http.StatusOK && t.cache != nil && req.TTL > 0 {
		now := t.now().UTC()
		if err := t.cache.PutCachedResponse(ctx, store.CachedResponse{
			Key:       store.CacheKey(u),
			URL:       u,
			Endpoint:  req.Endpoint,
			Status:    resp.StatusCode,
			Body:      body,
			FetchedAt: now,
			ExpiresAt: now.Add(req.TTL),
		}); err != nil {
			zap.L().Warn("transport: store cached response", zap.String("url", u), zap.Error(err))
		}
	}

	return &Response{URL: u, StatusCode: resp.StatusCode, Body: body}, nil
}
