package output

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/apilens/apilens/internal/catalog"
	"github.com/apilens/apilens/internal/core"
	"github.com/apilens/apilens/internal/core/store"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

// FormatResponse renders a response as a table followed by its body.
func (f *TableFormatter) FormatResponse(resp *core.APIResponse) (string, error) {
	return renderTable(responseView(resp)), nil
}

// FormatBatch renders a batch summary as a table.
func (f *TableFormatter) FormatBatch(summary *core.BatchSummary) (string, error) {
	return renderTable(batchView(summary)), nil
}

// FormatConnections renders saved connections as a table.
func (f *TableFormatter) FormatConnections(records []store.ConnectionRecord) (string, error) {
	return renderTable(connectionsView(records)), nil
}

// FormatDiscovery renders a discovery result as a table.
func (f *TableFormatter) FormatDiscovery(api *core.AutoDiscoveredAPI) (string, error) {
	return renderTable(discoveryView(api)), nil
}

// FormatCatalog renders catalog entries as a table.
func (f *TableFormatter) FormatCatalog(entries []catalog.Entry) (string, error) {
	return renderTable(catalogView(entries)), nil
}

// FormatRateLimits renders persisted rate limit state as a table.
func (f *TableFormatter) FormatRateLimits(entries []store.RateLimitEntry) (string, error) {
	return renderTable(rateLimitsView(entries)), nil
}

func renderTable(v view) string {
	if len(v.Rows) == 0 && v.Body == "" {
		return v.Empty
	}

	var sb strings.Builder
	if len(v.Rows) > 0 {
		t := table.NewWriter()
		t.SetStyle(table.StyleRounded)
		if v.Title != "" {
			t.SetTitle(v.Title)
		}
		t.AppendHeader(toRow(v.Header))
		for _, row := range v.Rows {
			t.AppendRow(toRow(row))
		}
		if v.Summary != "" {
			footer := make(table.Row, len(v.Header))
			for i := range footer {
				footer[i] = ""
			}
			footer[len(footer)-1] = v.Summary
			t.AppendFooter(footer)
		}
		sb.WriteString(t.Render())
	}

	if v.Body != "" {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(v.Body)
	}
	return sb.String()
}

func toRow(values []string) table.Row {
	row := make(table.Row, len(values))
	for i, value := range values {
		row[i] = value
	}
	return row
}
