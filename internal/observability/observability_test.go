package observability_test

import (
	"errors"
	"os"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/apilens/apilens/internal/metrics"
	"github.com/apilens/apilens/internal/observability"
)

func TestInitCLILogger(t *testing.T) {
	observability.InitCLILogger("apilens-test", false)
	require.NotNil(t, observability.CLILogger)

	observability.CLILogger.Info("Test CLI log message", zap.String("connection_id", "abc"))
}

func TestInitCLILoggerVerbose(t *testing.T) {
	observability.InitCLILogger("apilens-test", true)
	require.NotNil(t, observability.CLILogger)

	observability.CLILogger.Debug("Debug message", zap.String("mode", "verbose"))
}

func TestNewStructuredLogger(t *testing.T) {
	logger, err := observability.NewStructuredLogger("apilens-test", "debug", map[string]any{"component": "test"})
	require.NoError(t, err)
	require.NotNil(t, logger)

	logger.Info("Structured message", zap.Int("attempt", 1))
}

func TestStructuredLoggerUnknownLevelFallsBackToInfo(t *testing.T) {
	logger, err := observability.NewStructuredLogger("apilens-test", "chatty", nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestSimpleProfileLogger(t *testing.T) {
	logger, err := observability.NewSimpleLogger("apilens-test", "warn")
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestApplyCLILevel(t *testing.T) {
	observability.InitCLILogger("apilens-test", false)
	before := observability.CLILogger

	observability.ApplyCLILevel("apilens-test", "info")
	require.Same(t, before, observability.CLILogger)

	observability.ApplyCLILevel("apilens-test", "error")
	require.NotNil(t, observability.CLILogger)
	require.NotSame(t, before, observability.CLILogger)
}

func TestMetricsDisabledByDefault(t *testing.T) {
	require.Nil(t, observability.TelemetrySystem)

	// Emission is a no-op without a telemetry system.
	metrics.RecordRequest("conn", "GET", 200, true, 0)
	metrics.RecordRetry("conn", 1)
	metrics.RecordThrottle("conn", "local")
	metrics.RecordDiscovery("rest", true, 0)
}

func TestInitMetricsRandomPort(t *testing.T) {
	t.Cleanup(func() { _ = observability.StopMetrics() })

	if err := observability.InitMetrics("apilens_test", 0); err != nil {
		if isPermissionError(err) {
			t.Skipf("loopback binds not permitted: %v", err)
		}
		require.NoError(t, err)
	}

	require.NotNil(t, observability.TelemetrySystem)
	require.NotNil(t, observability.PrometheusExporter)

	metrics.RecordRequest("conn", "GET", 500, false, 0)
	metrics.RecordThrottle("conn", "provider")
	metrics.RecordBatch(3, 1, 0)
}

func isPermissionError(err error) bool {
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "permission denied") || strings.Contains(msg, "not permitted")
}
