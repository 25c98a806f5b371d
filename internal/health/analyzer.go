package health

import (
	"strings"

	"json-store/internal/logs"
	"json-store/internal/metrics"
)

// Analyzer converts metrics and recent logs into a health report.
type Analyzer struct {
	metrics *metrics.Registry
	logger  *logs.Logger
	rules   []Rule
}

// NewAnalyzer creates a new analyzer.
func NewAnalyzer(
	reg *metrics.Registry,
	logger *logs.Logger,
) *Analyzer {
	return &Analyzer{
		metrics: reg,
		logger:  logger,
		rules: []Rule{
			SweepFailureRule,
			StorageErrorRule,
			SerializationErrorRule,
		},
	}
}

// Analyze evaluates metrics and logs and returns a health report.
func (a *Analyzer) Analyze() Report {
	snapshot := a.metrics.Snapshot()

	var (
		signals         = []string{}
		recommendations = []string{}
		status          = StatusOK
	)

	/* ---------- METRICS-BASED RULES ---------- */

	for _, rule := range a.rules {
		result := rule(snapshot)
		if !result.Triggered {
			continue
		}

		signals = append(signals, result.Signal)
		recommendations = append(recommendations, result.Recommendation)
		status = escalate(status, result.Severity)
	}

	/* ---------- LOG-BASED SIGNALS ---------- */

	cleanupFailures := 0
	panicCount := 0

	for _, entry := range a.logger.GetLast(100) {
		if entry.Level == logs.WARN &&
			strings.Contains(entry.Message, "expired entry cleanup failed") {
			cleanupFailures++
		}

		if entry.Level == logs.ERROR &&
			strings.Contains(entry.Message, "panic") {
			panicCount++
		}
	}

	if cleanupFailures >= 3 {
		signals = append(signals,
			"Repeated expired-entry cleanup failures on reads",
		)
		recommendations = append(recommendations,
			"Expired rows are left behind; check write access to the database",
		)
		status = escalate(status, StatusDegraded)
	}

	if panicCount > 0 {
		signals = append(signals,
			"Panics detected in logs",
		)
		recommendations = append(recommendations,
			"Inspect stack traces and stabilize error handling",
		)
		status = StatusCritical
	}

	/* ---------- SUMMARY ---------- */

	summary := "System is healthy"
	if status != StatusOK {
		summary = "System health issues detected"
	}

	return Report{
		OverallStatus:   status,
		Summary:         summary,
		Signals:         signals,
		Recommendations: recommendations,
	}
}

func escalate(current, next Status) Status {
	switch {
	case current == StatusCritical || next == StatusCritical:
		return StatusCritical
	case current == StatusDegraded || next == StatusDegraded:
		return StatusDegraded
	default:
		return StatusOK
	}
}
