package metrics

import (
	"strconv"
	"time"

	"github.com/apilens/apilens/internal/observability"
)

// Connector metrics following Prometheus conventions
var (
	// Request metrics
	RequestsTotal   = "connector_requests_total"
	RequestDuration = "connector_request_duration_ms"
	RetriesTotal    = "connector_retries_total"

	// Rate limit metrics
	ThrottledTotal = "connector_throttled_total"

	// Batch metrics
	BatchesTotal       = "connector_batches_total"
	BatchRequestsTotal = "connector_batch_requests_total"
	BatchDuration      = "connector_batch_duration_ms"

	// Active connections registered in the current process
	ActiveConnections = "connector_active_connections"
)

// RecordRequest records one HTTP exchange against a connection. A status of
// zero means the request never produced a response.
func RecordRequest(connectionID, method string, status int, success bool, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	outcome := "success"
	if !success {
		outcome = "failure"
	}

	_ = observability.TelemetrySystem.Counter(
		RequestsTotal,
		1,
		map[string]string{
			"connection_id": connectionID,
			"method":        method,
			"status":        strconv.Itoa(status),
			"outcome":       outcome,
		},
	)

	_ = observability.TelemetrySystem.Histogram(
		RequestDuration,
		duration,
		map[string]string{
			"connection_id": connectionID,
			"method":        method,
		},
	)
}

// RecordRetry records a scheduled retry for a connection.
func RecordRetry(connectionID string, attempt int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			RetriesTotal,
			1,
			map[string]string{
				"connection_id": connectionID,
				"attempt":       strconv.Itoa(attempt),
			},
		)
	}
}

// RecordThrottle records a refused or rate-limited request. Source is
// "local" for the in-process budget and "provider" for HTTP 429.
func RecordThrottle(connectionID, source string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			ThrottledTotal,
			1,
			map[string]string{
				"connection_id": connectionID,
				"source":        source,
			},
		)
	}
}

// RecordBatch records a completed batch run.
func RecordBatch(total, failed int, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	_ = observability.TelemetrySystem.Counter(BatchesTotal, 1, nil)
	_ = observability.TelemetrySystem.Counter(
		BatchRequestsTotal,
		float64(total-failed),
		map[string]string{"outcome": "success"},
	)
	_ = observability.TelemetrySystem.Counter(
		BatchRequestsTotal,
		float64(failed),
		map[string]string{"outcome": "failure"},
	)
	_ = observability.TelemetrySystem.Histogram(BatchDuration, duration, nil)
}

// SetActiveConnections sets the number of registered connections.
func SetActiveConnections(count int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ActiveConnections,
			float64(count),
			nil,
		)
	}
}
