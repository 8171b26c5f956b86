package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/apilens/apilens/internal/core"
	"github.com/apilens/apilens/internal/metrics"
)

const (
	// DefaultProbeTimeout bounds each individual probe request.
	DefaultProbeTimeout = 5 * time.Second
	// DefaultProbeConcurrency is the number of probes in flight at once.
	DefaultProbeConcurrency = 4
	// DefaultCacheTTL is how long a discovery result stays cached.
	DefaultCacheTTL = 24 * time.Hour

	openAPIConfidence   = 0.95
	graphQLConfidence   = 0.9
	maxProbeConfidence  = 0.8
	perEndpointEvidence = 0.2
	maxSpecDocumentSize = 5 * 1024 * 1024
)

// Well-known locations, probed in order.
var (
	DefaultSpecPaths = []string{
		"/swagger.json",
		"/swagger/v1/swagger.json",
		"/openapi.json",
		"/api-docs",
		"/api/swagger.json",
		"/v1/swagger.json",
		"/v2/swagger.json",
		"/v3/api-docs",
		"/docs/openapi.json",
		"/graphql",
		"/api/graphql",
	}

	DefaultPrefixes = []string{"/api", "/api/v1", "/api/v2", "/v1", "/v2", "/rest"}

	DefaultSubPaths = []string{"/", "/health", "/status", "/users", "/user", "/me", "/info", "/version"}
)

// Cache stores discovery results between runs. Lookup returns nil, nil on a
// miss or an expired entry.
type Cache interface {
	LookupDiscovery(ctx context.Context, baseURL string) (*core.AutoDiscoveredAPI, error)
	SaveDiscovery(ctx context.Context, baseURL string, api *core.AutoDiscoveredAPI, ttl time.Duration) error
}

// Engine infers the shape of an API from its base URL.
type Engine struct {
	Client           *http.Client
	Logger           *logging.Logger
	ProbeTimeout     time.Duration
	ProbeConcurrency int
	UserAgent        string

	SpecPaths []string
	Prefixes  []string
	SubPaths  []string

	Cache    Cache
	CacheTTL time.Duration
	Clock    func() time.Time
}

// NewEngine returns an engine with the default probe lists.
func NewEngine(client *http.Client) *Engine {
	return &Engine{
		Client:           client,
		ProbeTimeout:     DefaultProbeTimeout,
		ProbeConcurrency: DefaultProbeConcurrency,
		CacheTTL:         DefaultCacheTTL,
	}
}

// Discover probes baseURL. It returns nil, nil when nothing could be
// identified; an error is returned only for an invalid URL or a cancelled
// context.
func (e *Engine) Discover(ctx context.Context, baseURL string) (*core.AutoDiscoveredAPI, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	base, host, err := normalizeBaseURL(baseURL)
	if err != nil {
		return nil, &core.ValidationError{Field: "base_url", Message: err.Error()}
	}

	if e.Cache != nil {
		cached, cacheErr := e.Cache.LookupDiscovery(ctx, base)
		if cacheErr != nil {
			e.warn("Discovery cache lookup failed", zap.String("base_url", base), zap.Error(cacheErr))
		}
		metrics.RecordCacheLookup(cached != nil)
		if cached != nil {
			e.debug("Discovery cache hit", zap.String("base_url", base))
			return cached, nil
		}
	}

	started := e.now()
	api, err := e.discoverSpec(ctx, base, host)
	if err != nil {
		return nil, err
	}
	if api == nil {
		api, err = e.discoverByProbing(ctx, base, host)
		if err != nil {
			return nil, err
		}
	}
	elapsed := e.now().Sub(started)

	if api == nil {
		metrics.RecordDiscovery("", false, elapsed)
		e.debug("Discovery found nothing", zap.String("base_url", base), zap.Duration("elapsed", elapsed))
		return nil, nil
	}

	metrics.RecordDiscovery(string(api.Style), true, elapsed)
	e.debug("Discovery complete",
		zap.String("base_url", base),
		zap.String("style", string(api.Style)),
		zap.String("source", api.Source),
		zap.Int("endpoints", len(api.Endpoints)),
		zap.Float64("confidence", api.Confidence),
		zap.Duration("elapsed", elapsed),
	)

	if e.Cache != nil {
		if err := e.Cache.SaveDiscovery(ctx, base, api, e.cacheTTL()); err != nil {
			e.warn("Discovery cache save failed", zap.String("base_url", base), zap.Error(err))
		}
	}

	return api, nil
}

// discoverSpec runs stage one: the first well-known location serving a
// usable document wins. Once a location hits, probes of later locations are
// skipped or cancelled.
func (e *Engine) discoverSpec(ctx context.Context, base, host string) (*core.AutoDiscoveredAPI, error) {
	paths := e.specPaths()

	var (
		mu      sync.Mutex
		best    = len(paths)
		found   *core.AutoDiscoveredAPI
		cancels = make([]context.CancelFunc, len(paths))
	)

	g := new(errgroup.Group)
	g.SetLimit(e.concurrency())
	for i, path := range paths {
		g.Go(func() error {
			mu.Lock()
			if i > best || ctx.Err() != nil {
				mu.Unlock()
				return nil
			}
			probeCtx, cancel := context.WithCancel(ctx)
			cancels[i] = cancel
			mu.Unlock()
			defer cancel()

			api := e.probeSpec(probeCtx, base, host, path)
			if api == nil && probeCtx.Err() != nil && ctx.Err() == nil {
				return nil
			}
			metrics.RecordProbe("spec", api != nil)
			if api == nil {
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			if i < best {
				best = i
				found = api
				for _, later := range cancels[i+1:] {
					if later != nil {
						later()
					}
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return found, nil
}

func (e *Engine) probeSpec(ctx context.Context, base, host, path string) *core.AutoDiscoveredAPI {
	if isGraphQLPath(path) {
		status, body, err := e.fetch(ctx, http.MethodPost, base+path, []byte(introspectionQuery))
		if err != nil || status < 200 || status >= 300 {
			return nil
		}
		doc, ok := parseObject(body)
		if !ok || !isIntrospectionResult(doc) {
			return nil
		}
		return &core.AutoDiscoveredAPI{
			BaseURL:    base,
			Name:       inferName(host),
			Style:      core.StyleGraphQL,
			Endpoints:  []core.DiscoveredEndpoint{graphQLEndpoint(path)},
			Confidence: graphQLConfidence,
			Source:     "graphql:" + path,
		}
	}

	status, body, err := e.fetch(ctx, http.MethodGet, base+path, nil)
	if err != nil || status < 200 || status >= 300 {
		return nil
	}
	doc, ok := parseObject(body)
	if !ok {
		e.debug("Spec candidate is not a JSON object", zap.String("url", base+path))
		return nil
	}
	if !IsOpenAPIDocument(doc) {
		return nil
	}

	name := DocumentTitle(doc)
	if name == "" {
		name = inferName(host)
	}
	return &core.AutoDiscoveredAPI{
		BaseURL:    base,
		Name:       name,
		Style:      core.StyleREST,
		Endpoints:  ParseOpenAPI(doc),
		Confidence: openAPIConfidence,
		Source:     "openapi:" + path,
	}
}

type probeTarget struct {
	prefix  int
	subPath string
}

// discoverByProbing runs stage two: every prefix/sub-path pair is probed
// and the prefix with the most evidence wins. Ties keep the earlier prefix.
func (e *Engine) discoverByProbing(ctx context.Context, base, host string) (*core.AutoDiscoveredAPI, error) {
	prefixes := e.prefixes()
	subPaths := e.subPaths()

	targets := make([]probeTarget, 0, len(prefixes)*len(subPaths))
	for i := range prefixes {
		for _, sub := range subPaths {
			targets = append(targets, probeTarget{prefix: i, subPath: sub})
		}
	}

	statuses := make([]int, len(targets))
	g := new(errgroup.Group)
	g.SetLimit(e.concurrency())
	for i, target := range targets {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			status, _, err := e.fetch(ctx, http.MethodGet, base+joinPath(prefixes[target.prefix], target.subPath), nil)
			if err == nil {
				statuses[i] = status
			}
			metrics.RecordProbe("fallback", endpointExists(statuses[i]))
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	grouped := make([][]core.DiscoveredEndpoint, len(prefixes))
	for i, target := range targets {
		status := statuses[i]
		if !endpointExists(status) {
			continue
		}
		grouped[target.prefix] = append(grouped[target.prefix], core.DiscoveredEndpoint{
			Path:           target.subPath,
			Method:         http.MethodGet,
			Description:    fmt.Sprintf("Responded with HTTP %d", status),
			Authentication: status == http.StatusUnauthorized || status == http.StatusForbidden,
		})
	}

	best := -1
	bestConfidence := 0.0
	for i, endpoints := range grouped {
		confidence := probeConfidence(len(endpoints))
		if confidence > bestConfidence {
			best = i
			bestConfidence = confidence
		}
	}
	if best < 0 {
		return nil, nil
	}

	return &core.AutoDiscoveredAPI{
		BaseURL:    base + prefixes[best],
		Name:       inferName(host),
		Style:      core.StyleREST,
		Endpoints:  grouped[best],
		Confidence: bestConfidence,
		Source:     "probe:" + prefixes[best],
	}, nil
}

// endpointExists treats any non-404 status below 500 as evidence that a
// route is served.
func endpointExists(status int) bool {
	return status > 0 && status < 500 && status != http.StatusNotFound
}

func probeConfidence(count int) float64 {
	confidence := math.Min(maxProbeConfidence, float64(count)*perEndpointEvidence)
	return math.Round(confidence*100) / 100
}

func (e *Engine) fetch(ctx context.Context, method, target string, body []byte) (int, []byte, error) {
	probeCtx, cancel := context.WithTimeout(ctx, e.probeTimeout())
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(probeCtx, method, target, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if e.UserAgent != "" {
		req.Header.Set("User-Agent", e.UserAgent)
	}

	resp, err := e.client().Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSpecDocumentSize))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

func parseObject(data []byte) (map[string]any, bool) {
	var doc map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &doc); err != nil {
		return nil, false
	}
	return doc, doc != nil
}

func normalizeBaseURL(raw string) (string, string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", "", errors.New("is required")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", "", err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", "", errors.New("must use http or https scheme")
	}
	if parsed.Host == "" {
		return "", "", errors.New("host is required")
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return strings.TrimRight(parsed.String(), "/"), parsed.Hostname(), nil
}

// inferName derives a display name from a hostname: "api.github.com"
// becomes "github".
func inferName(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" || net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return host
	}
	labels := strings.Split(host, ".")
	for len(labels) > 2 && (labels[0] == "www" || labels[0] == "api") {
		labels = labels[1:]
	}
	if labels[0] == "www" || labels[0] == "api" {
		return strings.Join(labels, ".")
	}
	return labels[0]
}

func joinPath(prefix, sub string) string {
	if sub == "/" {
		return prefix + "/"
	}
	return prefix + sub
}

func (e *Engine) specPaths() []string {
	if len(e.SpecPaths) > 0 {
		return e.SpecPaths
	}
	return DefaultSpecPaths
}

func (e *Engine) prefixes() []string {
	if len(e.Prefixes) > 0 {
		return e.Prefixes
	}
	return DefaultPrefixes
}

func (e *Engine) subPaths() []string {
	if len(e.SubPaths) > 0 {
		return e.SubPaths
	}
	return DefaultSubPaths
}

func (e *Engine) concurrency() int {
	if e.ProbeConcurrency > 0 {
		return e.ProbeConcurrency
	}
	return DefaultProbeConcurrency
}

func (e *Engine) probeTimeout() time.Duration {
	if e.ProbeTimeout > 0 {
		return e.ProbeTimeout
	}
	return DefaultProbeTimeout
}

func (e *Engine) cacheTTL() time.Duration {
	if e.CacheTTL > 0 {
		return e.CacheTTL
	}
	return DefaultCacheTTL
}

func (e *Engine) client() *http.Client {
	if e.Client != nil {
		return e.Client
	}
	return http.DefaultClient
}

func (e *Engine) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

func (e *Engine) debug(msg string, fields ...zap.Field) {
	if e.Logger != nil {
		e.Logger.Debug(msg, fields...)
	}
}

func (e *Engine) warn(msg string, fields ...zap.Field) {
	if e.Logger != nil {
		e.Logger.Warn(msg, fields...)
	}
}
