package inat

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lox/inatfetch/internal/metrics"
)

const (
	DefaultMinInterval = time.Second
	DefaultCacheTTL    = 24 * time.Hour
)

var errInvalidJSON = errors.New("response body is not valid JSON")

// ClientConfig is read once at construction.
type ClientConfig struct {
	// MinInterval is the minimum time between the starts of two network-bound
	// requests. Zero disables throttling.
	MinInterval time.Duration
	// CacheTTL applies to requests that don't set their own TTL.
	CacheTTL time.Duration
	// Debug logs every raw response body at debug level.
	Debug bool
}

// Requester issues a JSON request. *Client implements it.
type Requester interface {
	Request(ctx context.Context, req Request) (gjson.Result, error)
}

// Client wraps a Transport with a fixed minimum delay between network calls
// and uniform error handling. Cache hits are served without throttling.
type Client struct {
	transport Transport
	limiter   *rate.Limiter
	cfg       ClientConfig
}

func NewClient(transport Transport, cfg ClientConfig) *Client {
	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	return &Client{
		transport: transport,
		limiter:   rate.NewLimiter(limit, 1),
		cfg:       cfg,
	}
}

// Request performs req and parses the body as JSON. A non-2xx status or an
// invalid body yields a *TransportError. Nothing is retried.
func (c *Client) Request(ctx context.Context, req Request) (gjson.Result, error) {
	if req.TTL == 0 {
		req.TTL = c.cfg.CacheTTL
	}

	resp, hit, err := c.transport.Lookup(ctx, req)
	if err != nil {
		zap.L().Warn("client: cache lookup failed, fetching", zap.String("endpoint", req.Endpoint), zap.Error(err))
		hit = false
	}

	if hit {
		metrics.CacheLookups.WithLabelValues(req.Endpoint, "hit").Inc()
		zap.L().Debug("client: using cache", zap.String("url", resp.URL))
	} else {
		metrics.CacheLookups.WithLabelValues(req.Endpoint, "miss").Inc()
		resp, err = c.fetch(ctx, req)
		if err != nil {
			return gjson.Result{}, err
		}
	}

	if c.cfg.Debug {
		zap.L().Debug("client: response body",
			zap.String("url", resp.URL),
			zap.Bool("from_cache", resp.FromCache),
			zap.ByteString("body", resp.Body),
		)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := truncateBody(resp.Body, 200)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return gjson.Result{}, &TransportError{
			Endpoint:   req.Endpoint,
			StatusCode: resp.StatusCode,
			Err:        errors.New(msg),
		}
	}
	if !gjson.ValidBytes(resp.Body) {
		return gjson.Result{}, &TransportError{Endpoint: req.Endpoint, StatusCode: resp.StatusCode, Err: errInvalidJSON}
	}

	return gjson.ParseBytes(resp.Body), nil
}

func (c *Client) fetch(ctx context.Context, req Request) (*Response, error) {
	waitStart := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Endpoint: req.Endpoint, Err: err}
	}
	metrics.RateLimitWait.Observe(time.Since(waitStart).Seconds())

	start := time.Now()
	resp, err := c.transport.Fetch(ctx, req)
	metrics.APILatency.WithLabelValues(req.Endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.APICallsTotal.WithLabelValues(req.Endpoint, "error").Inc()
		return nil, &TransportError{Endpoint: req.Endpoint, Err: err}
	}
	metrics.APICallsTotal.WithLabelValues(req.Endpoint, statusClass(resp.StatusCode)).Inc()
	return resp, nil
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "other"
	}
}

func truncateBody(body []byte, max int) string {
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}
