package output

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/apilens/apilens/internal/catalog"
	"github.com/apilens/apilens/internal/core"
	"github.com/apilens/apilens/internal/core/store"
)

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("table")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	format, err = ParseFormat("md")
	require.NoError(t, err)
	require.Equal(t, FormatMarkdown, format)

	format, err = ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	_, err = ParseFormat("csv")
	require.Error(t, err)
}

func TestFormatExtension(t *testing.T) {
	require.Equal(t, "json", FormatJSON.Extension())
	require.Equal(t, "md", FormatMarkdown.Extension())
	require.Equal(t, "txt", FormatTable.Extension())
}

func sampleResponse() *core.APIResponse {
	return &core.APIResponse{
		Success:    true,
		StatusCode: 200,
		Status:     "OK",
		Headers:    http.Header{"X-Ratelimit-Remaining": []string{"42"}},
		Body:       map[string]any{"login": "octocat"},
		Duration:   1234 * time.Millisecond,
		Attempts:   1,
	}
}

func TestFormatResponse(t *testing.T) {
	resp := sampleResponse()

	tableRendered, err := NewFormatter(FormatTable).FormatResponse(resp)
	require.NoError(t, err)
	require.Contains(t, tableRendered, "FIELD")
	require.Contains(t, tableRendered, "200 OK")
	require.Contains(t, tableRendered, "1.234s")
	require.Contains(t, tableRendered, "42")
	require.Contains(t, tableRendered, "\"login\": \"octocat\"")

	jsonRendered, err := NewFormatter(FormatJSON).FormatResponse(resp)
	require.NoError(t, err)
	require.Contains(t, jsonRendered, "\"status_code\": 200")
	require.Contains(t, jsonRendered, "\"login\": \"octocat\"")

	markdownRendered, err := NewFormatter(FormatMarkdown).FormatResponse(resp)
	require.NoError(t, err)
	require.Contains(t, markdownRendered, "| Field | Value |")
	require.Contains(t, markdownRendered, "```\n{")
}

func TestFormatBatch(t *testing.T) {
	responses := []*core.APIResponse{
		{Success: true, StatusCode: 200, Duration: 10 * time.Millisecond, Attempts: 1},
		{Success: false, StatusCode: 404, Error: "resource not found", Attempts: 1},
		nil,
	}
	summary := core.SummarizeBatch("conn-1", responses, 2*time.Second)

	tableRendered, err := NewFormatter(FormatTable).FormatBatch(summary)
	require.NoError(t, err)
	require.Contains(t, tableRendered, "404 Not Found")
	// titles and footers may be case-transformed by the table style
	lowered := strings.ToLower(tableRendered)
	require.Contains(t, lowered, "batch conn-1")
	require.Contains(t, lowered, "1/3 succeeded, 2 failed in 2s")

	markdownRendered, err := NewFormatter(FormatMarkdown).FormatBatch(summary)
	require.NoError(t, err)
	require.Contains(t, markdownRendered, "**Summary**: 1/3 succeeded")
	require.Contains(t, markdownRendered, "no response")

	jsonRendered, err := NewFormatter(FormatJSON).FormatBatch(summary)
	require.NoError(t, err)
	require.Contains(t, jsonRendered, "\"failed\": 2")
}

func TestFormatConnectionsOmitsCredentials(t *testing.T) {
	used := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	records := []store.ConnectionRecord{
		{
			Connection: core.ConnectionConfig{
				ID:          "c-1",
				Name:        "github",
				Origin:      core.OriginPredefined,
				BaseURL:     "https://api.github.com",
				AuthMethod:  core.AuthBearer,
				Credentials: core.BearerCredentials{Token: "super-secret"},
				RateLimit:   &core.RateLimitSpec{Requests: 60, PeriodSeconds: 3600},
			},
			LastUsedAt: &used,
		},
	}

	for _, format := range []Format{FormatTable, FormatJSON, FormatMarkdown} {
		rendered, err := NewFormatter(format).FormatConnections(records)
		require.NoError(t, err)
		require.Contains(t, rendered, "github")
		require.NotContains(t, rendered, "super-secret", "format %s", format)
	}

	tableRendered, err := NewFormatter(FormatTable).FormatConnections(records)
	require.NoError(t, err)
	require.Contains(t, tableRendered, "60/1h0m0s")
	require.Contains(t, tableRendered, "2025-01-02T03:04:05Z")

	empty, err := NewFormatter(FormatTable).FormatConnections(nil)
	require.NoError(t, err)
	require.Equal(t, "No saved connections.", empty)
}

func TestFormatDiscovery(t *testing.T) {
	api := &core.AutoDiscoveredAPI{
		BaseURL:    "https://api.example.com",
		Name:       "example",
		Style:      core.StyleREST,
		Confidence: 0.95,
		Source:     "openapi:/openapi.json",
		Endpoints: []core.DiscoveredEndpoint{
			{Path: "/users", Method: "GET", Description: "List users", Authentication: true},
		},
	}

	tableRendered, err := NewFormatter(FormatTable).FormatDiscovery(api)
	require.NoError(t, err)
	require.Contains(t, tableRendered, "/users")
	lowered := strings.ToLower(tableRendered)
	require.Contains(t, lowered, "example (rest)")
	require.Contains(t, lowered, "confidence 95%")

	missRendered, err := NewFormatter(FormatTable).FormatDiscovery(nil)
	require.NoError(t, err)
	require.Equal(t, "No API discovered.", missRendered)

	jsonMiss, err := NewFormatter(FormatJSON).FormatDiscovery(nil)
	require.NoError(t, err)
	require.Equal(t, "null", jsonMiss)
}

func TestFormatCatalogAndRateLimits(t *testing.T) {
	entries := []catalog.Entry{
		{ID: "slack", Name: "Slack", Category: "communication", AuthMethod: core.AuthBearer, BaseURL: "https://slack.com/api", Popularity: 95},
	}
	rendered, err := NewFormatter(FormatMarkdown).FormatCatalog(entries)
	require.NoError(t, err)
	require.Contains(t, rendered, "| slack | Slack | communication | bearer | https://slack.com/api | 95 |")

	jsonEmpty, err := NewFormatter(FormatJSON).FormatCatalog(nil)
	require.NoError(t, err)
	require.Equal(t, "[]", jsonEmpty)

	limits := []store.RateLimitEntry{
		{
			ConnectionID:   "c-1",
			ConnectionName: "github",
			State:          core.RateLimitState{Remaining: 0, Limit: 60, ResetAt: time.Date(2025, 1, 1, 0, 1, 0, 0, time.UTC), Observed: true},
		},
	}
	tableRendered, err := NewFormatter(FormatTable).FormatRateLimits(limits)
	require.NoError(t, err)
	require.Contains(t, tableRendered, "provider")
	require.Contains(t, tableRendered, "2025-01-01T00:01:00Z")
}

func TestMarkdownEscaping(t *testing.T) {
	entries := []catalog.Entry{
		{ID: "pipe", Name: "pipe|test", Category: "data", AuthMethod: core.AuthNone, BaseURL: "https://example.com"},
	}

	rendered, err := NewFormatter(FormatMarkdown).FormatCatalog(entries)
	require.NoError(t, err)
	require.Contains(t, rendered, "pipe\\|test")
}

func TestRenderBody(t *testing.T) {
	require.Equal(t, "", renderBody(nil))
	require.Equal(t, "plain", renderBody("plain"))
	require.Equal(t, "<3 bytes of binary content>", renderBody([]byte{1, 2, 3}))
	require.True(t, strings.HasPrefix(renderBody(map[string]any{"a": 1}), "{"))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
