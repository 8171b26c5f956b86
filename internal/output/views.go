package output

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/apilens/apilens/internal/catalog"
	"github.com/apilens/apilens/internal/core"
	"github.com/apilens/apilens/internal/core/store"
)

// view is the format-neutral shape shared by the table and markdown renderers.
type view struct {
	Title  string
	Header []string
	Rows   [][]string
	// Summary is rendered under the rows.
	Summary string
	// Body is preformatted content rendered after the table.
	Body string
	// Empty replaces the table when there are no rows.
	Empty string
}

func responseView(resp *core.APIResponse) view {
	v := view{Title: "Response", Header: []string{"Field", "Value"}}
	if resp == nil {
		v.Empty = "No response."
		return v
	}

	v.Rows = append(v.Rows,
		[]string{"Status", statusText(resp)},
		[]string{"Success", strconv.FormatBool(resp.Success)},
		[]string{"Duration", formatDuration(resp.Duration)},
	)
	if resp.Attempts > 0 {
		v.Rows = append(v.Rows, []string{"Attempts", strconv.Itoa(resp.Attempts)})
	}
	if remaining := resp.Headers.Get("X-Ratelimit-Remaining"); remaining != "" {
		v.Rows = append(v.Rows, []string{"Rate Limit Remaining", remaining})
	}
	if resp.Error != "" {
		v.Rows = append(v.Rows, []string{"Error", resp.Error})
	}
	v.Body = renderBody(resp.Body)
	return v
}

func batchView(summary *core.BatchSummary) view {
	v := view{Title: "Batch", Header: []string{"#", "Status", "Success", "Duration", "Attempts", "Error"}}
	if summary == nil {
		v.Empty = "No batch results."
		return v
	}
	if summary.ConnectionID != "" {
		v.Title = "Batch " + summary.ConnectionID
	}

	for i, resp := range summary.Responses {
		if resp == nil {
			v.Rows = append(v.Rows, []string{strconv.Itoa(i + 1), "-", "false", "-", "-", "no response"})
			continue
		}
		attempts := "-"
		if resp.Attempts > 0 {
			attempts = strconv.Itoa(resp.Attempts)
		}
		v.Rows = append(v.Rows, []string{
			strconv.Itoa(i + 1),
			statusText(resp),
			strconv.FormatBool(resp.Success),
			formatDuration(resp.Duration),
			attempts,
			truncate(resp.Error, 60),
		})
	}

	v.Summary = fmt.Sprintf("%d/%d succeeded, %d failed in %s",
		summary.Succeeded, summary.Total, summary.Failed, formatDuration(summary.Elapsed))
	if len(v.Rows) == 0 {
		v.Empty = "Batch contained no requests."
	}
	return v
}

func connectionsView(records []store.ConnectionRecord) view {
	v := view{
		Title:  "Connections",
		Header: []string{"ID", "Name", "Origin", "Base URL", "Auth", "Rate Limit", "Last Used"},
		Empty:  "No saved connections.",
	}
	for _, record := range records {
		conn := record.Connection
		lastUsed := "never"
		if record.LastUsedAt != nil {
			lastUsed = formatTime(*record.LastUsedAt)
		}
		v.Rows = append(v.Rows, []string{
			conn.ID,
			conn.Name,
			string(conn.Origin),
			conn.BaseURL,
			string(conn.AuthMethod),
			formatRateLimitSpec(conn.RateLimit),
			lastUsed,
		})
	}
	return v
}

func discoveryView(api *core.AutoDiscoveredAPI) view {
	v := view{
		Header: []string{"Method", "Path", "Auth", "Description"},
		Empty:  "No API discovered.",
	}
	if api == nil {
		v.Title = "Discovery"
		return v
	}

	v.Title = fmt.Sprintf("%s (%s)", api.Name, api.Style)
	for _, endpoint := range api.Endpoints {
		auth := "no"
		if endpoint.Authentication {
			auth = "yes"
		}
		v.Rows = append(v.Rows, []string{
			endpoint.Method,
			endpoint.Path,
			auth,
			truncate(endpoint.Description, 60),
		})
	}

	summary := fmt.Sprintf("%s, confidence %.0f%%", api.BaseURL, api.Confidence*100)
	if api.Source != "" {
		summary += ", via " + api.Source
	}
	v.Summary = summary
	v.Empty = "API found but no endpoints were listed."
	return v
}

func catalogView(entries []catalog.Entry) view {
	v := view{
		Title:  "Catalog",
		Header: []string{"ID", "Name", "Category", "Auth", "Base URL", "Popularity"},
		Empty:  "No matching APIs.",
	}
	for _, entry := range entries {
		v.Rows = append(v.Rows, []string{
			entry.ID,
			entry.Name,
			entry.Category,
			string(entry.AuthMethod),
			entry.BaseURL,
			strconv.FormatFloat(entry.Popularity, 'f', -1, 64),
		})
	}
	return v
}

func rateLimitsView(entries []store.RateLimitEntry) view {
	v := view{
		Title:  "Rate Limits",
		Header: []string{"Connection", "Name", "Remaining", "Limit", "Resets", "Source"},
		Empty:  "No rate limit state recorded.",
	}
	for _, entry := range entries {
		source := "local"
		if entry.State.Observed {
			source = "provider"
		}
		v.Rows = append(v.Rows, []string{
			entry.ConnectionID,
			entry.ConnectionName,
			strconv.Itoa(entry.State.Remaining),
			strconv.Itoa(entry.State.Limit),
			formatTime(entry.State.ResetAt),
			source,
		})
	}
	return v
}

func statusText(resp *core.APIResponse) string {
	if resp == nil || resp.StatusCode == 0 {
		return "-"
	}
	text := resp.Status
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return strings.TrimSpace(fmt.Sprintf("%d %s", resp.StatusCode, text))
}

func renderBody(body any) string {
	switch v := body.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return fmt.Sprintf("<%d bytes of binary content>", len(v))
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}

func formatRateLimitSpec(spec *core.RateLimitSpec) string {
	if spec == nil || spec.Requests <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%s", spec.Requests, spec.Period())
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	if d < time.Millisecond {
		return d.String()
	}
	return d.Round(time.Millisecond).String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if limit <= 3 || len(value) <= limit {
		return value
	}
	return value[:limit-3] + "..."
}
