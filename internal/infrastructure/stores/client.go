package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/snapp/backend/internal/domain"
	"github.com/snapp/backend/internal/metrics"
)

// DefaultTimeout bounds every outbound source request.
const DefaultTimeout = 5 * time.Second

// maxBodyBytes caps how much of a source response is read.
const maxBodyBytes = 4 << 20

// HTTPOptions configures the transport shared by the structured adapters.
type HTTPOptions struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	UserAgent         string
}

func (o *HTTPOptions) defaults() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.RequestsPerSecond <= 0 {
		o.RequestsPerSecond = 5
	}
	if o.Burst <= 0 {
		o.Burst = 10
	}
	if o.UserAgent == "" {
		o.UserAgent = "Snapp/1.0"
	}
}

// sourceClient executes requests for one source and maps every failure to a
// *domain.SourceError. It never retries.
type sourceClient struct {
	source      string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	userAgent   string
}

func newSourceClient(source string, opts HTTPOptions) *sourceClient {
	opts.defaults()
	return &sourceClient{
		source:      source,
		httpClient:  &http.Client{Timeout: opts.Timeout},
		rateLimiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		userAgent:   opts.UserAgent,
	}
}

// do sends req and decodes a 2xx JSON body into out. failCode is the code used
// for non-specific upstream failures (API_ERROR for lookups, SEARCH_ERROR for searches).
// A 404 is reported as (false, nil) so callers can decide what "not found" means.
func (c *sourceClient) do(ctx context.Context, req *http.Request, operation, failCode string, out any) (found bool, err error) {
	start := time.Now()
	defer func() {
		metrics.SourceLatency.WithLabelValues(c.source, operation).Observe(time.Since(start).Seconds())
		outcome := "ok"
		if err != nil {
			var se *domain.SourceError
			if errors.As(err, &se) {
				outcome = se.Code
			} else {
				outcome = "error"
			}
		}
		metrics.SourceRequestsTotal.WithLabelValues(c.source, operation, outcome).Inc()
	}()

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return false, domain.NewSourceError(c.source, domain.CodeRateLimited, err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return false, domain.NewSourceError(c.source, domain.CodeTimeout, err)
		}
		return false, domain.NewSourceError(c.source, failCode, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if isTimeout(err) {
			return false, domain.NewSourceError(c.source, domain.CodeTimeout, err)
		}
		return false, domain.NewSourceError(c.source, failCode, fmt.Errorf("reading body: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, domain.NewSourceError(c.source, domain.CodeAuthError, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		return false, domain.NewSourceError(c.source, domain.CodeRateLimited, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return false, domain.NewSourceError(c.source, failCode, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 200)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return false, domain.NewSourceError(c.source, domain.CodeParseError, fmt.Errorf("decoding response: %w", err))
	}
	return true, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
