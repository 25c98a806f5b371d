package health

import (
	"testing"

	"json-store/internal/logs"
	"json-store/internal/metrics"

	"github.com/stretchr/testify/assert"
)

func TestAnalyzer_OK(t *testing.T) {
	reg := metrics.NewRegistry()
	logger := logs.NewLogger(10, logs.DEBUG)

	reg.Inc(metrics.StoreSetsTotal)
	reg.Inc(metrics.SweepRunsTotal)

	report := NewAnalyzer(reg, logger).Analyze()

	assert.Equal(t, StatusOK, report.OverallStatus)
	assert.Equal(t, "System is healthy", report.Summary)
	assert.Empty(t, report.Signals)
}

func TestAnalyzer_DegradedSweepFailure(t *testing.T) {
	reg := metrics.NewRegistry()
	logger := logs.NewLogger(10, logs.DEBUG)

	reg.Inc(metrics.SweepFailuresTotal)

	report := NewAnalyzer(reg, logger).Analyze()

	assert.Equal(t, StatusDegraded, report.OverallStatus)
	assert.Contains(t, report.Signals, "Expired entry sweeps have failed")
}

func TestAnalyzer_MultipleMetricSignals(t *testing.T) {
	reg := metrics.NewRegistry()
	logger := logs.NewLogger(10, logs.DEBUG)

	reg.Inc(metrics.StorageErrorsTotal)
	reg.Inc(metrics.SerializationErrorsTotal)

	report := NewAnalyzer(reg, logger).Analyze()

	assert.Equal(t, StatusDegraded, report.OverallStatus)
	assert.Len(t, report.Signals, 2)
	assert.Len(t, report.Recommendations, 2)
}

func TestAnalyzer_LogBasedCleanupFailures(t *testing.T) {
	reg := metrics.NewRegistry()
	logger := logs.NewLogger(10, logs.DEBUG)

	for i := 0; i < 3; i++ {
		logger.Warn("expired entry cleanup failed", "key", "k")
	}

	report := NewAnalyzer(reg, logger).Analyze()

	assert.Equal(t, StatusDegraded, report.OverallStatus)
	assert.Contains(t, report.Signals, "Repeated expired-entry cleanup failures on reads")
}

func TestAnalyzer_LogBasedPanicDetection(t *testing.T) {
	reg := metrics.NewRegistry()
	logger := logs.NewLogger(10, logs.DEBUG)

	reg.Inc(metrics.SweepFailuresTotal)
	logger.Error("panic in scheduled cleanup: runtime error")

	report := NewAnalyzer(reg, logger).Analyze()

	assert.Equal(t, StatusCritical, report.OverallStatus)
	assert.Contains(t, report.Signals, "Panics detected in logs")
}

func TestEscalate(t *testing.T) {
	assert.Equal(t, StatusDegraded, escalate(StatusOK, StatusDegraded))
	assert.Equal(t, StatusCritical, escalate(StatusDegraded, StatusCritical))
	assert.Equal(t, StatusCritical, escalate(StatusCritical, StatusDegraded))
	assert.Equal(t, StatusOK, escalate(StatusOK, StatusOK))
}
