// Package fetch provides the shared retrying HTTP client every
// network-facing component uses. It classifies failures into transient
// (network errors and 5xx, retried with backoff) and permanent (auth
// rejections, failed immediately).
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/marketwatch/trendwatch/internal/metrics"
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 10 << 20

// Config controls client behavior.
type Config struct {
	Timeout        time.Duration
	UserAgent      string
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	MaxRedirects   int
	DefaultHeaders http.Header
}

// Options customize a single fetch.
type Options struct {
	Headers http.Header
	// BearerToken, when set, is sent as an Authorization header.
	BearerToken string
}

// Response is the outcome of a successful fetch.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Client is a rate-friendly, retrying HTTP GET client. It is stateless per
// invocation and safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	retry      *ExponentialRetryPolicy
	logger     *zap.Logger
}

// New builds a Client.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	maxRedirects := cfg.MaxRedirects
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: newTransport(),
			Timeout:   cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		retry:  NewExponentialRetryPolicy(cfg.MaxRetries, cfg.BackoffInitial, cfg.BackoffMax),
		logger: logger,
	}
}

// Fetch performs a GET with retries on transient failures. Permanent
// failures (401/403) return immediately.
func (c *Client) Fetch(ctx context.Context, url string, opts Options) (Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := c.do(ctx, url, opts)
		if err == nil {
			return resp, nil
		}
		if !c.retry.ShouldRetry(err, attempt) {
			return Response{}, err
		}
		backoff := c.retry.Backoff(attempt)
		metrics.ObserveFetchRetry()
		c.logger.Warn("fetch attempt failed, retrying",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if err := sleep(ctx, backoff); err != nil {
			return Response{}, err
		}
	}
}

// FetchJSON is Fetch with an Accept: application/json header preset.
func (c *Client) FetchJSON(ctx context.Context, url string, opts Options) (Response, error) {
	if opts.Headers == nil {
		opts.Headers = http.Header{}
	} else {
		opts.Headers = opts.Headers.Clone()
	}
	opts.Headers.Set("Accept", "application/json")
	return c.Fetch(ctx, url, opts)
}

func (c *Client) do(ctx context.Context, url string, opts Options) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{}, fmt.Errorf("new request: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	for key, values := range c.cfg.DefaultHeaders {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	for key, values := range opts.Headers {
		req.Header.Del(key)
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if opts.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+opts.BearerToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close response body failed", zap.Error(cerr))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Response{}, fmt.Errorf("read body from %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{}, &HTTPError{StatusCode: resp.StatusCode, URL: url}
	}
	return Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header.Clone(),
		Body:       body,
	}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch backoff canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
