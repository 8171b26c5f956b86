package metrics

import (
	"time"

	"github.com/apilens/apilens/internal/observability"
)

// Discovery metrics
var (
	DiscoveryRunsTotal   = "discovery_runs_total"
	DiscoveryDuration    = "discovery_duration_ms"
	DiscoveryProbesTotal = "discovery_probes_total"
	DiscoveryCacheTotal  = "discovery_cache_lookups_total"
)

// RecordDiscovery records one discovery run. Style is empty when nothing
// was found.
func RecordDiscovery(style string, found bool, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	result := "found"
	if !found {
		result = "not_found"
		style = "none"
	}

	_ = observability.TelemetrySystem.Counter(
		DiscoveryRunsTotal,
		1,
		map[string]string{
			"result": result,
			"style":  style,
		},
	)
	_ = observability.TelemetrySystem.Histogram(
		DiscoveryDuration,
		duration,
		map[string]string{"result": result},
	)
}

// RecordProbe records a single discovery probe. Stage is "spec" or
// "fallback".
func RecordProbe(stage string, hit bool) {
	if observability.TelemetrySystem == nil {
		return
	}

	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	_ = observability.TelemetrySystem.Counter(
		DiscoveryProbesTotal,
		1,
		map[string]string{
			"stage":   stage,
			"outcome": outcome,
		},
	)
}

// RecordCacheLookup records a discovery cache lookup.
func RecordCacheLookup(hit bool) {
	if observability.TelemetrySystem == nil {
		return
	}

	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	_ = observability.TelemetrySystem.Counter(
		DiscoveryCacheTotal,
		1,
		map[string]string{"outcome": outcome},
	)
}
