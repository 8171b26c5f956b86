package core

import (
	"net/http"
	"strings"
	"time"
)

// Origin identifies where a connection definition came from.
type Origin string

const (
	OriginPredefined Origin = "predefined"
	OriginCustom     Origin = "custom"
	OriginDiscovered Origin = "discovered"
)

// AuthMethod identifies how credentials are applied to outgoing requests.
type AuthMethod string

const (
	AuthNone   AuthMethod = "none"
	AuthAPIKey AuthMethod = "api_key"
	AuthBearer AuthMethod = "bearer"
	AuthBasic  AuthMethod = "basic"
	AuthOAuth  AuthMethod = "oauth"
	AuthCustom AuthMethod = "custom"
)

// ParseAuthMethod normalizes an auth method string.
func ParseAuthMethod(value string) (AuthMethod, bool) {
	switch AuthMethod(strings.ToLower(strings.TrimSpace(value))) {
	case "", AuthNone:
		return AuthNone, true
	case AuthAPIKey, "apikey", "api-key":
		return AuthAPIKey, true
	case AuthBearer:
		return AuthBearer, true
	case AuthBasic:
		return AuthBasic, true
	case AuthOAuth, "oauth2":
		return AuthOAuth, true
	case AuthCustom:
		return AuthCustom, true
	default:
		return "", false
	}
}

// RateLimitSpec declares a local call budget for a connection.
type RateLimitSpec struct {
	Requests      int `json:"requests" yaml:"requests"`
	PeriodSeconds int `json:"period_seconds" yaml:"period_seconds"`
}

// Period returns the window length.
func (s RateLimitSpec) Period() time.Duration {
	return time.Duration(s.PeriodSeconds) * time.Second
}

// Definition is the input for creating a connection. It is produced from a
// catalog entry, a custom definition or a discovery result.
type Definition struct {
	Name       string            `json:"name"`
	Origin     Origin            `json:"origin"`
	BaseURL    string            `json:"base_url"`
	AuthMethod AuthMethod        `json:"auth_method"`
	Headers    map[string]string `json:"headers,omitempty"`
	Timeout    time.Duration     `json:"timeout,omitempty"`
	RetryCount *int              `json:"retry_count,omitempty"`
	RateLimit  *RateLimitSpec    `json:"rate_limit,omitempty"`
}

// ConnectionConfig is a registered connection to one external API.
// Credentials are read-only after creation and never serialized.
type ConnectionConfig struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Origin      Origin            `json:"origin"`
	BaseURL     string            `json:"base_url"`
	AuthMethod  AuthMethod        `json:"auth_method"`
	Credentials Credentials       `json:"-"`
	Headers     map[string]string `json:"headers,omitempty"`
	Timeout     time.Duration     `json:"timeout"`
	RetryCount  int               `json:"retry_count"`
	RateLimit   *RateLimitSpec    `json:"rate_limit,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Clone returns a copy that shares no mutable maps with the receiver.
func (c *ConnectionConfig) Clone() *ConnectionConfig {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Headers != nil {
		clone.Headers = make(map[string]string, len(c.Headers))
		for key, value := range c.Headers {
			clone.Headers[key] = value
		}
	}
	if c.RateLimit != nil {
		limit := *c.RateLimit
		clone.RateLimit = &limit
	}
	return &clone
}

// HasCredentials reports whether credential material is attached.
func (c *ConnectionConfig) HasCredentials() bool {
	return c != nil && c.Credentials != nil
}

// RateLimitState tracks the remaining budget for one connection.
type RateLimitState struct {
	Remaining int       `json:"remaining"`
	Limit     int       `json:"limit"`
	ResetAt   time.Time `json:"reset_at"`
	// Observed is set when the state came from provider headers only.
	Observed bool `json:"observed,omitempty"`
}

// APIRequest is one call against a connection, relative to its base URL.
type APIRequest struct {
	Method   string            `json:"method"`
	Endpoint string            `json:"endpoint"`
	Body     any               `json:"body,omitempty"`
	Query    map[string]string `json:"query,omitempty"`
	Headers  map[string]string `json:"headers,omitempty"`
}

// APIResponse is the normalized outcome of a request.
type APIResponse struct {
	Success    bool          `json:"success"`
	StatusCode int           `json:"status_code,omitempty"`
	Status     string        `json:"status,omitempty"`
	Headers    http.Header   `json:"headers,omitempty"`
	Body       any           `json:"body,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
	Attempts   int           `json:"attempts,omitempty"`
}

// APIStyle is the inferred protocol family of a discovered API.
type APIStyle string

const (
	StyleREST    APIStyle = "rest"
	StyleGraphQL APIStyle = "graphql"
	StyleSOAP    APIStyle = "soap"
	StyleRPC     APIStyle = "rpc"
)

// Parameter describes a declared operation parameter.
type Parameter struct {
	Name        string `json:"name"`
	In          string `json:"in,omitempty"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// DiscoveredEndpoint is one path/method pair found during discovery.
type DiscoveredEndpoint struct {
	Path           string      `json:"path"`
	Method         string      `json:"method"`
	Description    string      `json:"description"`
	Parameters     []Parameter `json:"parameters,omitempty"`
	Authentication bool        `json:"authentication"`
}

// AutoDiscoveredAPI is the result of probing an unknown base URL.
type AutoDiscoveredAPI struct {
	BaseURL    string               `json:"base_url"`
	Name       string               `json:"name"`
	Style      APIStyle             `json:"style"`
	Endpoints  []DiscoveredEndpoint `json:"endpoints"`
	Confidence float64              `json:"confidence"`
	Source     string               `json:"source,omitempty"`
}

// RequiresAuth reports whether any discovered endpoint appeared protected.
func (a *AutoDiscoveredAPI) RequiresAuth() bool {
	if a == nil {
		return false
	}
	for _, endpoint := range a.Endpoints {
		if endpoint.Authentication {
			return true
		}
	}
	return false
}

// CustomIntegration converts a discovery result into a custom integration.
func (a *AutoDiscoveredAPI) CustomIntegration() *CustomIntegration {
	if a == nil {
		return nil
	}
	auth := AuthNone
	if a.RequiresAuth() {
		auth = AuthAPIKey
	}
	endpoints := make([]DiscoveredEndpoint, len(a.Endpoints))
	copy(endpoints, a.Endpoints)
	return &CustomIntegration{
		Name:       a.Name,
		BaseURL:    a.BaseURL,
		AuthMethod: auth,
		Style:      a.Style,
		Endpoints:  endpoints,
		Origin:     OriginDiscovered,
	}
}

// CustomIntegration is a user- or discovery-provided API definition.
type CustomIntegration struct {
	Name       string               `json:"name"`
	BaseURL    string               `json:"base_url"`
	AuthMethod AuthMethod           `json:"auth_method"`
	Style      APIStyle             `json:"style,omitempty"`
	Headers    map[string]string    `json:"headers,omitempty"`
	Endpoints  []DiscoveredEndpoint `json:"endpoints,omitempty"`
	Origin     Origin               `json:"origin"`
}

// Definition converts the integration into a registry definition.
func (c *CustomIntegration) Definition() Definition {
	origin := c.Origin
	if origin == "" {
		origin = OriginCustom
	}
	return Definition{
		Name:       c.Name,
		Origin:     origin,
		BaseURL:    c.BaseURL,
		AuthMethod: c.AuthMethod,
		Headers:    c.Headers,
	}
}
