package output

import (
	"encoding/json"
	"time"

	"github.com/apilens/apilens/internal/catalog"
	"github.com/apilens/apilens/internal/core"
	"github.com/apilens/apilens/internal/core/store"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatResponse renders a response as JSON.
func (f *JSONFormatter) FormatResponse(resp *core.APIResponse) (string, error) {
	return f.encode(resp)
}

// FormatBatch renders a batch summary as JSON.
func (f *JSONFormatter) FormatBatch(summary *core.BatchSummary) (string, error) {
	return f.encode(summary)
}

// FormatConnections renders saved connections as JSON.
func (f *JSONFormatter) FormatConnections(records []store.ConnectionRecord) (string, error) {
	type connectionJSON struct {
		core.ConnectionConfig
		LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	}
	out := make([]connectionJSON, 0, len(records))
	for _, record := range records {
		out = append(out, connectionJSON{ConnectionConfig: record.Connection, LastUsedAt: record.LastUsedAt})
	}
	return f.encode(out)
}

// FormatDiscovery renders a discovery result as JSON. A miss renders null.
func (f *JSONFormatter) FormatDiscovery(api *core.AutoDiscoveredAPI) (string, error) {
	return f.encode(api)
}

// FormatCatalog renders catalog entries as JSON.
func (f *JSONFormatter) FormatCatalog(entries []catalog.Entry) (string, error) {
	if entries == nil {
		entries = []catalog.Entry{}
	}
	return f.encode(entries)
}

// FormatRateLimits renders persisted rate limit state as JSON.
func (f *JSONFormatter) FormatRateLimits(entries []store.RateLimitEntry) (string, error) {
	type rateLimitJSON struct {
		ConnectionID   string              `json:"connection_id"`
		ConnectionName string              `json:"connection_name,omitempty"`
		State          core.RateLimitState `json:"state"`
		UpdatedAt      string              `json:"updated_at"`
	}
	out := make([]rateLimitJSON, 0, len(entries))
	for _, entry := range entries {
		out = append(out, rateLimitJSON{
			ConnectionID:   entry.ConnectionID,
			ConnectionName: entry.ConnectionName,
			State:          entry.State,
			UpdatedAt:      formatTime(entry.UpdatedAt),
		})
	}
	return f.encode(out)
}

func (f *JSONFormatter) encode(value any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(value, "", "  ")
	} else {
		data, err = json.Marshal(value)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
