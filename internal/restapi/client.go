// Package restapi wraps the trading backend's REST endpoints the dashboard reads
// and drives: prices, grid levels, trade logs, archives and symbol monitoring.
package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"grid-dashboard/internal/metrics"
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend status %d", e.Status)
	}
	return fmt.Sprintf("backend status %d: %s", e.Status, e.Message)
}

type Client struct {
	baseURL string
	httpc   *http.Client
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewClient(baseURL string, timeout time.Duration, m *metrics.Metrics, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		logger:  logger,
		metrics: m,
	}
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) url(p string, q url.Values) string {
	u := c.baseURL + p
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func symbolQuery(symbol string) url.Values {
	return url.Values{"symbol": {strings.ToUpper(strings.TrimSpace(symbol))}}
}

// call sends one request and decodes a JSON answer into out when out is non-nil.
func (c *Client) call(ctx context.Context, method, path string, q url.Values, body, out any) error {
	resp, err := c.send(ctx, method, path, q, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, q url.Values, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", path, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path, q), rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		c.observe(path, "error", start)
		return nil, fmt.Errorf("backend unreachable: %w", err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		c.observe(path, "status_"+strconv.Itoa(resp.StatusCode), start)
		apiErr := &APIError{Status: resp.StatusCode}
		var v struct {
			Detail  string `json:"detail"`
			Message string `json:"message"`
		}
		if json.NewDecoder(resp.Body).Decode(&v) == nil {
			apiErr.Message = v.Detail
			if apiErr.Message == "" {
				apiErr.Message = v.Message
			}
		}
		c.logger.Warn("backend request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)
		return nil, apiErr
	}
	c.observe(path, "ok", start)
	return resp, nil
}

func (c *Client) observe(path, outcome string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.RESTRequestTime.WithLabelValues(path, outcome).Observe(time.Since(start).Seconds())
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
