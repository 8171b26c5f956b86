package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/apilens/apilens/internal/core"
	"github.com/apilens/apilens/internal/metrics"
)

const (
	// DefaultBackoffBase is the delay before the first retry; attempt n waits base*2^n.
	DefaultBackoffBase = time.Second
	// DefaultMaxResponseSize caps how much of a response body is read.
	DefaultMaxResponseSize = 10 * 1024 * 1024
)

// Executor issues requests against registered connections with timeout,
// exponential backoff and per-connection rate limiting.
type Executor struct {
	Client          *http.Client
	Limiter         *RateLimiter
	Logger          *logging.Logger
	BackoffBase     time.Duration
	MaxResponseSize int64
	UserAgent       string
	// Sleep waits between attempts; tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
	Clock func() time.Time
}

// Execute sends req through conn. Attempts run from 0 to conn.RetryCount
// inclusive and are strictly sequential. On failure the last response seen
// (if any) is returned alongside a *core.RequestError.
func (e *Executor) Execute(ctx context.Context, conn *core.ConnectionConfig, req core.APIRequest) (*core.APIResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if conn == nil {
		return nil, &core.ValidationError{Field: "connection", Message: "is required"}
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	target, err := BuildURL(conn.BaseURL, req.Endpoint, req.Query)
	if err != nil {
		return nil, &core.ValidationError{Field: "endpoint", Message: err.Error()}
	}

	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, &core.ValidationError{Field: "body", Message: err.Error()}
	}

	var (
		lastResp *core.APIResponse
		lastErr  *core.RequestError
	)

	retries := max(conn.RetryCount, 0)

	for attempt := 0; attempt <= retries; attempt++ {
		if allowed, wait := e.Limiter.CheckAndConsume(conn); !allowed {
			metrics.RecordThrottle(conn.ID, "local")
			e.warn("Request refused by local rate limit",
				zap.String("connection_id", conn.ID),
				zap.Duration("reset_in", wait),
			)
			return nil, &core.RequestError{
				Kind:         core.ErrRateLimitExceeded,
				ConnectionID: conn.ID,
				Method:       method,
				Endpoint:     req.Endpoint,
				Attempts:     attempt,
				RetryAfter:   wait,
			}
		}

		resp, reqErr := e.attempt(ctx, conn, method, target, body, req)
		if resp != nil {
			resp.Attempts = attempt + 1
			lastResp = resp
		}
		if reqErr == nil {
			return resp, nil
		}
		reqErr.ConnectionID = conn.ID
		reqErr.Method = method
		reqErr.Endpoint = req.Endpoint
		reqErr.Attempts = attempt + 1
		lastErr = reqErr

		if ctx.Err() != nil {
			return lastResp, ctx.Err()
		}
		if !reqErr.Retryable() {
			return lastResp, reqErr
		}
		if attempt >= retries {
			break
		}

		delay := e.backoff(attempt)
		metrics.RecordRetry(conn.ID, attempt+1)
		e.debug("Retrying request",
			zap.String("connection_id", conn.ID),
			zap.String("method", method),
			zap.String("endpoint", req.Endpoint),
			zap.Int("attempt", attempt+1),
			zap.Int("status", reqErr.StatusCode),
			zap.Duration("delay", delay),
			zap.Error(reqErr.Err),
		)
		if err := e.sleep(ctx, delay); err != nil {
			return lastResp, err
		}
	}

	return lastResp, &core.RequestError{
		Kind:         core.ErrRequestFailedAfterRetries,
		ConnectionID: conn.ID,
		Method:       method,
		Endpoint:     req.Endpoint,
		StatusCode:   lastErr.StatusCode,
		Attempts:     retries + 1,
		Err:          lastErr,
	}
}

func (e *Executor) attempt(ctx context.Context, conn *core.ConnectionConfig, method, target string, body []byte, req core.APIRequest) (*core.APIResponse, *core.RequestError) {
	attemptCtx := ctx
	if conn.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, conn.Timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, method, target, reader)
	if err != nil {
		return nil, &core.RequestError{Kind: core.ErrNetwork, Err: err}
	}

	for key, value := range ApplyAuth(e.requestHeaders(conn, req, body != nil), conn) {
		httpReq.Header.Set(key, value)
	}

	started := e.now()
	httpResp, err := e.client().Do(httpReq)
	if err != nil {
		elapsed := e.now().Sub(started)
		metrics.RecordRequest(conn.ID, method, 0, false, elapsed)
		resp := &core.APIResponse{Success: false, Error: err.Error(), Duration: elapsed}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return resp, &core.RequestError{Kind: core.ErrTimeout, Err: fmt.Errorf("no response within %s", conn.Timeout)}
		}
		return resp, &core.RequestError{Kind: core.ErrNetwork, Err: err}
	}
	defer httpResp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	data, readErr := io.ReadAll(io.LimitReader(httpResp.Body, e.maxResponseSize()))
	elapsed := e.now().Sub(started)

	e.Limiter.RecordResponse(conn, httpResp.Header)

	success := httpResp.StatusCode >= 200 && httpResp.StatusCode < 300
	metrics.RecordRequest(conn.ID, method, httpResp.StatusCode, success, elapsed)

	resp := &core.APIResponse{
		Success:    success,
		StatusCode: httpResp.StatusCode,
		Status:     http.StatusText(httpResp.StatusCode),
		Headers:    httpResp.Header.Clone(),
		Body:       decodeBody(httpResp.Header.Get("Content-Type"), data),
		Duration:   elapsed,
	}

	if readErr != nil {
		resp.Success = false
		resp.Error = readErr.Error()
		if errors.Is(readErr, context.DeadlineExceeded) && ctx.Err() == nil {
			return resp, &core.RequestError{Kind: core.ErrTimeout, StatusCode: httpResp.StatusCode, Err: readErr}
		}
		return resp, &core.RequestError{Kind: core.ErrNetwork, StatusCode: httpResp.StatusCode, Err: readErr}
	}
	if success {
		return resp, nil
	}

	reqErr := classifyStatus(httpResp.StatusCode, httpResp.Header, e.now())
	resp.Error = reqErr.Error()
	if reqErr.Provider {
		metrics.RecordThrottle(conn.ID, "provider")
	}
	return resp, reqErr
}

// requestHeaders layers defaults, connection headers and request headers in
// that order. Keys are canonical so a later layer always replaces an earlier
// one regardless of case.
func (e *Executor) requestHeaders(conn *core.ConnectionConfig, req core.APIRequest, hasBody bool) map[string]string {
	headers := map[string]string{"Accept": "application/json"}
	if hasBody {
		headers["Content-Type"] = "application/json"
	}
	if e.UserAgent != "" {
		headers["User-Agent"] = e.UserAgent
	}
	mergeHeaders(headers, conn.Headers)
	mergeHeaders(headers, req.Headers)
	return headers
}

func mergeHeaders(dst, src map[string]string) {
	for key, value := range src {
		dst[http.CanonicalHeaderKey(key)] = value
	}
}

func classifyStatus(status int, header http.Header, now time.Time) *core.RequestError {
	reqErr := &core.RequestError{StatusCode: status}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		reqErr.Kind = core.ErrAuthentication
	case status == http.StatusNotFound:
		reqErr.Kind = core.ErrNotFound
	case status == http.StatusTooManyRequests:
		reqErr.Kind = core.ErrRateLimitExceeded
		reqErr.Provider = true
		reqErr.RetryAfter = core.RetryAfter(header, now)
	case status >= 500:
		reqErr.Kind = core.ErrServerStatus
	default:
		reqErr.Kind = core.ErrClientStatus
	}
	return reqErr
}

// BuildURL joins a base URL, a relative endpoint and query parameters.
func BuildURL(baseURL, endpoint string, query map[string]string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return "", errors.New("base url is required")
	}

	endpoint = strings.TrimSpace(endpoint)
	if endpoint != "" && !strings.HasPrefix(endpoint, "/") && !strings.HasPrefix(endpoint, "?") {
		endpoint = "/" + endpoint
	}

	parsed, err := url.Parse(base + endpoint)
	if err != nil {
		return "", err
	}

	if len(query) > 0 {
		values := parsed.Query()
		for key, value := range query {
			values.Set(key, value)
		}
		parsed.RawQuery = values.Encode()
	}

	return parsed.String(), nil
}

func encodeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	case json.RawMessage:
		return v, nil
	default:
		return json.Marshal(v)
	}
}

func decodeBody(contentType string, data []byte) any {
	if len(data) == 0 {
		return nil
	}

	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		var parsed any
		if err := json.Unmarshal(data, &parsed); err == nil {
			return parsed
		}
		return string(data)
	case strings.HasPrefix(mediaType, "text/"),
		mediaType == "application/xml",
		strings.HasSuffix(mediaType, "+xml"),
		mediaType == "application/x-www-form-urlencoded":
		return string(data)
	case mediaType == "":
		var parsed any
		if err := json.Unmarshal(data, &parsed); err == nil {
			return parsed
		}
		return string(data)
	default:
		return data
	}
}

func (e *Executor) backoff(attempt int) time.Duration {
	base := e.BackoffBase
	if base <= 0 {
		base = DefaultBackoffBase
	}
	return time.Duration(float64(base) * math.Pow(2, float64(attempt)))
}

func (e *Executor) sleep(ctx context.Context, d time.Duration) error {
	if e.Sleep != nil {
		return e.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *Executor) client() *http.Client {
	if e.Client != nil {
		return e.Client
	}
	return http.DefaultClient
}

func (e *Executor) maxResponseSize() int64 {
	if e.MaxResponseSize > 0 {
		return e.MaxResponseSize
	}
	return DefaultMaxResponseSize
}

func (e *Executor) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

func (e *Executor) debug(msg string, fields ...zap.Field) {
	if e.Logger != nil {
		e.Logger.Debug(msg, fields...)
	}
}

func (e *Executor) warn(msg string, fields ...zap.Field) {
	if e.Logger != nil {
		e.Logger.Warn(msg, fields...)
	}
}
