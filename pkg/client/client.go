// Package client is the Go SDK for the Health Commons HTTP API.
//
// Every call returns domain errors from pkg/domain-errors: transport
// failures carry CodeConnectionFailed, error responses carry the code the
// server sent (or CodeCallFailed when the body is not a domain error).
//
// Writes are never retried. A retried query could spend privacy budget twice.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	dErrors "healthcommons/pkg/domain-errors"
)

const (
	defaultTimeout = 30 * time.Second
	defaultRetries = 2
)

// Client calls one Health Commons server as one agent.
type Client struct {
	reads  *resty.Client
	writes *resty.Client
	logger *slog.Logger
}

type config struct {
	token      string
	timeout    time.Duration
	retries    int
	httpClient *http.Client
	logger     *slog.Logger
}

type Option func(*config)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *config) {
		c.token = token
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithRetries sets how many times a failed read is retried.
func WithRetries(n int) Option {
	return func(c *config) {
		c.retries = n
	}
}

// WithHTTPClient replaces the underlying transport, e.g. for tests or mTLS.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

func New(baseURL string, opts ...Option) *Client {
	cfg := config{
		timeout: defaultTimeout,
		retries: defaultRetries,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	build := func(retries int) *resty.Client {
		var rc *resty.Client
		if cfg.httpClient != nil {
			rc = resty.NewWithClient(cfg.httpClient)
		} else {
			rc = resty.New()
		}
		rc.SetBaseURL(baseURL).
			SetTimeout(cfg.timeout).
			SetRetryCount(retries).
			SetRetryWaitTime(200 * time.Millisecond).
			SetRetryMaxWaitTime(2 * time.Second).
			SetHeader("Content-Type", "application/json").
			SetHeader("Accept", "application/json")
		if cfg.token != "" {
			rc.SetAuthToken(cfg.token)
		}
		return rc
	}
	return &Client{
		reads:  build(cfg.retries),
		writes: build(0),
		logger: cfg.logger,
	}
}

// errorBody is the JSON error shape written by the server.
type errorBody map[string]any

func (c *Client) get(ctx context.Context, path string, query map[string]string, out any) error {
	req := c.reads.R().SetContext(ctx).SetResult(out).SetError(&errorBody{})
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	resp, err := req.Get(path)
	return c.check(ctx, http.MethodGet, path, resp, err)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	req := c.writes.R().SetContext(ctx).SetError(&errorBody{})
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Post(path)
	return c.check(ctx, http.MethodPost, path, resp, err)
}

// getRaw returns the response body as bytes, for non-JSON downloads.
func (c *Client) getRaw(ctx context.Context, path string, query map[string]string) ([]byte, error) {
	req := c.reads.R().SetContext(ctx).SetError(&errorBody{}).SetHeader("Accept", "*/*")
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	resp, err := req.Get(path)
	if err := c.check(ctx, http.MethodGet, path, resp, err); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

func (c *Client) check(ctx context.Context, method, path string, resp *resty.Response, err error) error {
	if err != nil {
		c.logger.WarnContext(ctx, "health commons call failed",
			"method", method,
			"path", path,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeConnectionFailed, fmt.Sprintf("%s %s failed", method, path))
	}
	if !resp.IsError() {
		return nil
	}
	return decodeError(resp)
}

// decodeError rebuilds the server's domain error, metadata included.
func decodeError(resp *resty.Response) error {
	body, ok := resp.Error().(*errorBody)
	if !ok || body == nil {
		return dErrors.Newf(dErrors.CodeCallFailed, "server returned %d", resp.StatusCode())
	}
	code, _ := (*body)["error"].(string)
	if code == "" {
		return dErrors.Newf(dErrors.CodeCallFailed, "server returned %d", resp.StatusCode())
	}
	msg, _ := (*body)["error_description"].(string)
	if msg == "" {
		msg = fmt.Sprintf("server returned %d", resp.StatusCode())
	}
	de := dErrors.New(dErrors.Code(code), msg)
	for k, v := range *body {
		if k == "error" || k == "error_description" {
			continue
		}
		de = de.WithMeta(k, v)
	}
	return de
}
