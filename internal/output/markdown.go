package output

import (
	"fmt"
	"strings"

	"github.com/apilens/apilens/internal/catalog"
	"github.com/apilens/apilens/internal/core"
	"github.com/apilens/apilens/internal/core/store"
)

// MarkdownFormatter renders results as a markdown table.
type MarkdownFormatter struct{}

// FormatResponse renders a response as Markdown.
func (f *MarkdownFormatter) FormatResponse(resp *core.APIResponse) (string, error) {
	return renderMarkdown(responseView(resp)), nil
}

// FormatBatch renders a batch summary as Markdown.
func (f *MarkdownFormatter) FormatBatch(summary *core.BatchSummary) (string, error) {
	return renderMarkdown(batchView(summary)), nil
}

// FormatConnections renders saved connections as Markdown.
func (f *MarkdownFormatter) FormatConnections(records []store.ConnectionRecord) (string, error) {
	return renderMarkdown(connectionsView(records)), nil
}

// FormatDiscovery renders a discovery result as Markdown.
func (f *MarkdownFormatter) FormatDiscovery(api *core.AutoDiscoveredAPI) (string, error) {
	return renderMarkdown(discoveryView(api)), nil
}

// FormatCatalog renders catalog entries as Markdown.
func (f *MarkdownFormatter) FormatCatalog(entries []catalog.Entry) (string, error) {
	return renderMarkdown(catalogView(entries)), nil
}

// FormatRateLimits renders persisted rate limit state as Markdown.
func (f *MarkdownFormatter) FormatRateLimits(entries []store.RateLimitEntry) (string, error) {
	return renderMarkdown(rateLimitsView(entries)), nil
}

func renderMarkdown(v view) string {
	var sb strings.Builder
	if v.Title != "" {
		sb.WriteString(fmt.Sprintf("## %s\n\n", escapeMarkdownCell(v.Title)))
	}

	if len(v.Rows) == 0 && v.Body == "" {
		sb.WriteString(v.Empty)
		sb.WriteString("\n")
		return sb.String()
	}

	if len(v.Rows) > 0 {
		sb.WriteString("| " + strings.Join(escapeAll(v.Header), " | ") + " |\n")
		separators := make([]string, len(v.Header))
		for i, header := range v.Header {
			separators[i] = strings.Repeat("-", max(len(header), 3))
		}
		sb.WriteString("|" + strings.Join(separators, "|") + "|\n")
		for _, row := range v.Rows {
			sb.WriteString("| " + strings.Join(escapeAll(row), " | ") + " |\n")
		}
	}

	if v.Summary != "" {
		sb.WriteString(fmt.Sprintf("\n**Summary**: %s\n", v.Summary))
	}

	if v.Body != "" {
		sb.WriteString("\n```\n")
		sb.WriteString(v.Body)
		sb.WriteString("\n```\n")
	}
	return sb.String()
}

func escapeAll(values []string) []string {
	escaped := make([]string, len(values))
	for i, value := range values {
		escaped[i] = escapeMarkdownCell(value)
	}
	return escaped
}

func escapeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.ReplaceAll(value, "|", "\\|")
}
