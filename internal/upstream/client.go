package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"callqa/pkg/logger"
	"callqa/pkg/metrics"
)

const maxBodyBytes = 32 << 20

// Client performs single-attempt JSON POSTs against one external service.
// There is no retry; each call is bounded by the client timeout.
type Client struct {
	service string
	baseURL string
	timeout time.Duration
	http    *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the underlying transport, mainly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func NewClient(service, baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http:    &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Service() string { return c.service }
func (c *Client) BaseURL() string { return c.baseURL }

// PostJSON sends in as JSON to path and decodes a 2xx body into out.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	start := time.Now()
	err := c.postJSON(ctx, path, in, out)
	metrics.ObserveUpstream(c.service, resultLabel(err), time.Since(start))
	if err != nil {
		logger.From(ctx).Warn("upstream call failed",
			"service", c.service,
			"path", path,
			"duration_ms", time.Since(start).Milliseconds(),
			"err", err,
		)
	}
	return err
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", c.service, err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &Error{Service: c.service, Kind: ErrUnavailable, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Service: c.service, Kind: classify(err), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &Error{Service: c.service, Kind: classify(err), StatusCode: resp.StatusCode, Err: err}
	}
	text := strings.TrimSpace(string(body))

	switch {
	case resp.StatusCode >= 500:
		return &Error{Service: c.service, Kind: ErrUnavailable, StatusCode: resp.StatusCode, Body: text}
	case resp.StatusCode >= 300:
		return &Error{Service: c.service, Kind: ErrRejected, StatusCode: resp.StatusCode, Body: text}
	}

	if out == nil {
		return nil
	}
	if len(body) == 0 {
		return &Error{Service: c.service, Kind: ErrBadResponse, StatusCode: resp.StatusCode, Err: errors.New("empty body")}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Service: c.service, Kind: ErrBadResponse, StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrTimeout
	}
	return ErrUnavailable
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrRejected):
		return "rejected"
	case errors.Is(err, ErrBadResponse):
		return "bad_response"
	default:
		return "unavailable"
	}
}
