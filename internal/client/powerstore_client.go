// Package client is the outbound PowerStore REST client. Every request carries
// the caller's credentials as HTTP basic auth; no session is kept.
package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/bobmcallan/powerstore-mcp/internal/common"
	"github.com/bobmcallan/powerstore-mcp/internal/metrics"
)

// maxResponseSize caps the response body to prevent OOM from unexpectedly large responses.
const maxResponseSize = 50 << 20 // 50MB

// maxBodyExcerpt bounds the body carried on an UpstreamError.
const maxBodyExcerpt = 1024

// ErrUpstream matches every *UpstreamError.
var ErrUpstream = errors.New("powerstore request failed")

// ErrResponseTooLarge is wrapped by the UpstreamError returned when a body
// exceeds the response cap.
var ErrResponseTooLarge = errors.New("response too large")

// Credentials authenticate a single request.
type Credentials struct {
	Host     string
	Username string
	Password string
}

// Options configures a PowerStoreClient.
type Options struct {
	APIBasePath string // e.g. /api/rest
	Scheme      string // https unless overridden
	TLSVerify   bool
	MaxRetries  int
	RetryDelay  time.Duration
	Timeout     time.Duration // per attempt
	Logger      *common.Logger
	Metrics     *metrics.Metrics
}

// UpstreamError reports a failed PowerStore request: a non-2xx response, or
// a connection failure (StatusCode 0) once retries are exhausted.
type UpstreamError struct {
	StatusCode int
	Message    string
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("PowerStore request failed: %s", e.Message)
	}
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("PowerStore API error (HTTP %d): %s", e.StatusCode, msg)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// PowerStoreClient issues GET requests against the PowerStore REST API.
// It is safe for concurrent use.
type PowerStoreClient struct {
	http      *retryablehttp.Client
	transport *http.Transport
	basePath  string
	scheme    string
	maxBody   int64
	logger    *common.Logger
	metrics   *metrics.Metrics
}

// NewPowerStoreClient creates a client with a pooled transport, fixed-delay
// retries for connection failures and 5xx responses, and a per-attempt timeout.
func NewPowerStoreClient(opts Options) *PowerStoreClient {
	logger := opts.Logger
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	scheme := opts.Scheme
	if scheme == "" {
		scheme = "https"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	delay := opts.RetryDelay
	if delay < 0 {
		delay = 0
	}
	retries := opts.MaxRetries
	if retries < 0 {
		retries = 0
	}

	transport := cleanhttp.DefaultPooledTransport()
	transport.TLSClientConfig = &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: !opts.TLSVerify, //nolint:gosec // arrays commonly use self-signed certificates
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{
		Transport: &instrumentedTransport{next: transport, metrics: opts.Metrics},
		Timeout:   timeout,
	}
	rc.RetryMax = retries
	rc.RetryWaitMin = delay
	rc.RetryWaitMax = delay
	rc.Backoff = func(_, _ time.Duration, _ int, _ *http.Response) time.Duration { return delay }
	rc.CheckRetry = retryPolicy
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = leveledLogger{logger: logger}
	rc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt == 0 {
			return
		}
		opts.Metrics.IncRetry()
		logger.Warn().
			Str("path", req.URL.Path).
			Int("attempt", attempt+1).
			Int("max_attempts", retries+1).
			Msg("Retrying PowerStore request")
	}

	return &PowerStoreClient{
		http:      rc,
		transport: transport,
		basePath:  strings.TrimRight(opts.APIBasePath, "/"),
		scheme:    scheme,
		maxBody:   maxResponseSize,
		logger:    logger,
		metrics:   opts.Metrics,
	}
}

// retryPolicy retries connection failures and 5xx responses. 4xx responses
// and caller cancellation are terminal.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	return resp.StatusCode >= http.StatusInternalServerError, nil
}

// URL builds the request URL for path on host.
func (c *PowerStoreClient) URL(host, path string, query url.Values) string {
	u := c.scheme + "://" + normalizeHost(host) + c.basePath + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// Get performs one logical GET of path (already placeholder-substituted and
// escaped) with bounded retries and returns the response body.
func (c *PowerStoreClient) Get(ctx context.Context, creds Credentials, path string, query url.Values) ([]byte, error) {
	target := c.URL(creds.Host, path, query)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", path, err)
	}
	req.SetBasicAuth(creds.Username, creds.Password)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("method", http.MethodGet).Str("host", normalizeHost(creds.Host)).Str("path", path).Msg("PowerStore request")

	start := time.Now()
	resp, err := c.http.Do(req)
	duration := time.Since(start)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("PowerStore request cancelled: %w", ctxErr)
		}
		c.logger.Error().Err(err).Str("path", path).Dur("duration", duration).Msg("PowerStore request failed")
		return nil, &UpstreamError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	// One byte past the cap distinguishes a full body from a cut-off one.
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > c.maxBody {
		c.logger.Warn().Str("path", path).Int64("limit_bytes", c.maxBody).Msg("PowerStore response too large")
		return nil, &UpstreamError{
			Message: fmt.Sprintf("response exceeds %s, narrow with select/limit", formatSize(c.maxBody)),
			Err:     ErrResponseTooLarge,
		}
	}

	c.logger.Debug().Int("status", resp.StatusCode).Dur("duration", duration).Msg("PowerStore response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		uerr := parseErrorResponse(resp.StatusCode, body)
		c.logger.Warn().Int("status", resp.StatusCode).Str("path", path).Str("error", uerr.Message).Msg("PowerStore API error")
		return nil, uerr
	}
	return body, nil
}

// Close releases idle pooled connections.
func (c *PowerStoreClient) Close() {
	c.transport.CloseIdleConnections()
}

// parseErrorResponse extracts the PowerStore error messages from an error body.
func parseErrorResponse(statusCode int, body []byte) *UpstreamError {
	uerr := &UpstreamError{StatusCode: statusCode, Body: excerpt(body)}

	var psErr struct {
		Messages []struct {
			Code        string `json:"code"`
			Severity    string `json:"severity"`
			MessageL10n string `json:"message_l10n"`
		} `json:"messages"`
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &psErr) != nil {
		return uerr
	}

	var msgs []string
	for _, m := range psErr.Messages {
		if m.MessageL10n != "" {
			msgs = append(msgs, m.MessageL10n)
		}
	}
	switch {
	case len(msgs) > 0:
		uerr.Message = strings.Join(msgs, "; ")
	case psErr.Error != "":
		uerr.Message = psErr.Error
	}
	return uerr
}

func formatSize(n int64) string {
	if n >= 1<<20 {
		return fmt.Sprintf("%dMB", n>>20)
	}
	return fmt.Sprintf("%d bytes", n)
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxBodyExcerpt {
		return s[:maxBodyExcerpt] + "..."
	}
	return s
}

// normalizeHost strips a scheme and trailing slash from a user-supplied host.
func normalizeHost(host string) string {
	host = strings.TrimSpace(host)
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimRight(host, "/")
}

// instrumentedTransport records each attempt's status and duration.
type instrumentedTransport struct {
	next    http.RoundTripper
	metrics *metrics.Metrics
}

func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	code := 0
	if resp != nil {
		code = resp.StatusCode
	}
	t.metrics.ObserveUpstream(code, time.Since(start))
	return resp, err
}

// leveledLogger adapts the arbor logger to retryablehttp.LeveledLogger.
// Per-attempt failures are reported at warn; the final outcome is logged by Get.
type leveledLogger struct {
	logger *common.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Str("detail", formatKV(keysAndValues)).Msg(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Str("detail", formatKV(keysAndValues)).Msg(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Str("detail", formatKV(keysAndValues)).Msg(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Str("detail", formatKV(keysAndValues)).Msg(msg)
}

func formatKV(keysAndValues []interface{}) string {
	var b strings.Builder
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%v=%v", keysAndValues[i], keysAndValues[i+1])
	}
	return b.String()
}
