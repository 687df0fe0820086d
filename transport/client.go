package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wippyai/wasm-bridge/errors"
)

// Options configures a Client. Zero values select the defaults.
type Options struct {
	Logger            *zap.Logger
	RetryMax          int
	RetryWaitMin      time.Duration
	RetryWaitMax      time.Duration
	Timeout           time.Duration
	RequestsPerSecond float64
	UserAgent         string
}

const (
	DefaultRetryMax     = 3
	DefaultRetryWaitMin = 500 * time.Millisecond
	DefaultRetryWaitMax = 10 * time.Second
	DefaultTimeout      = 30 * time.Second
	DefaultUserAgent    = "wasm-bridge/1.0"
)

// Client is a retrying, rate limited HTTP client.
type Client struct {
	http      *retryablehttp.Client
	limiter   *rate.Limiter
	userAgent string
}

// NewClient creates a client. A non-positive RequestsPerSecond means no limit.
func NewClient(opts Options) *Client {
	if opts.RetryMax == 0 {
		opts.RetryMax = DefaultRetryMax
	}
	if opts.RetryWaitMin == 0 {
		opts.RetryWaitMin = DefaultRetryWaitMin
	}
	if opts.RetryWaitMax == 0 {
		opts.RetryWaitMax = DefaultRetryWaitMax
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	log := opts.Logger
	if log == nil {
		log = Logger()
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = max(opts.RetryMax, 0)
	rc.RetryWaitMin = opts.RetryWaitMin
	rc.RetryWaitMax = opts.RetryWaitMax
	rc.HTTPClient.Timeout = opts.Timeout
	rc.Logger = leveled{log.Sugar()}
	// Return the last response instead of an error once retries run out so
	// callers see the real status.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), max(int(opts.RequestsPerSecond), 1))
	}

	return &Client{http: rc, limiter: limiter, userAgent: opts.UserAgent}
}

// Do sends a request after waiting for the rate limiter. body may be nil.
func (c *Client) Do(ctx context.Context, method, url string, header http.Header, body []byte) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(errors.PhaseHost, errors.KindUnavailable, err, "rate limit")
	}

	var raw any
	if body != nil {
		raw = bytes.NewReader(body)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, raw)
	if err != nil {
		return nil, errors.InvalidInput(errors.PhaseHost, fmt.Sprintf("request %s %s: %v", method, url, err))
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "gzip, zstd")
	}
	return c.http.Do(req)
}

// Get is Do with GET and no body.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, url, nil, nil)
}

// Fetch performs a request and returns the response with its decoded body
// fully read.
func (c *Client) Fetch(ctx context.Context, method, url string, header http.Header, body []byte) (*http.Response, []byte, error) {
	resp, err := c.Do(ctx, method, url, header, body)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	r, err := Body(resp)
	if err != nil {
		return nil, nil, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, errors.Wrap(errors.PhaseHost, errors.KindIO, err, "read body")
	}
	return resp, data, nil
}

// leveled adapts zap to retryablehttp.LeveledLogger.
type leveled struct {
	s *zap.SugaredLogger
}

func (l leveled) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveled) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveled) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveled) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
