package output

import (
	"fmt"
	"strings"

	"github.com/apilens/apilens/internal/catalog"
	"github.com/apilens/apilens/internal/core"
	"github.com/apilens/apilens/internal/core/store"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Formatter renders connector results.
type Formatter interface {
	FormatResponse(resp *core.APIResponse) (string, error)
	FormatBatch(summary *core.BatchSummary) (string, error)
	FormatConnections(records []store.ConnectionRecord) (string, error)
	FormatDiscovery(api *core.AutoDiscoveredAPI) (string, error)
	FormatCatalog(entries []catalog.Entry) (string, error)
	FormatRateLimits(entries []store.RateLimitEntry) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// Extension returns the file extension used when writing this format to disk.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatMarkdown:
		return "md"
	default:
		return "txt"
	}
}
