package metrics

import (
	"strconv"

	"github.com/apilens/apilens/internal/observability"
)

// Metric names
const (
	ErrorsTotalName = "errors_total"
	PanicsTotalName = "panics_total"
)

// RecordError records a surfaced error with its code and upstream status.
// A status of zero means no HTTP status was involved.
func RecordError(errorCode string, httpStatus int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			ErrorsTotalName,
			1,
			map[string]string{
				"error_code":  errorCode,
				"http_status": strconv.Itoa(httpStatus),
			},
		)
	}
}

// RecordPanic records a panic recovery
func RecordPanic() {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			PanicsTotalName,
			1,
			nil,
		)
	}
}
