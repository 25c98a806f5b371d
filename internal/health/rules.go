package health

import "json-store/internal/metrics"

// RuleResult represents the outcome of a single rule.
type RuleResult struct {
	Triggered      bool
	Signal         string
	Recommendation string
	Severity       Status
}

// Rule evaluates a metrics snapshot.
type Rule func(snapshot map[string]int64) RuleResult

// ---------- RULES ----------

// Failed sweeps mean expired rows are piling up until reads find them.
func SweepFailureRule(snapshot map[string]int64) RuleResult {
	if snapshot[string(metrics.SweepFailuresTotal)] > 0 {
		return RuleResult{
			Triggered:      true,
			Signal:         "Expired entry sweeps have failed",
			Recommendation: "Check database availability and the sweeper logs",
			Severity:       StatusDegraded,
		}
	}
	return RuleResult{}
}

// Storage errors surfaced to callers of the store.
func StorageErrorRule(snapshot map[string]int64) RuleResult {
	if snapshot[string(metrics.StorageErrorsTotal)] > 0 {
		return RuleResult{
			Triggered:      true,
			Signal:         "Storage errors returned to callers",
			Recommendation: "Inspect database connectivity, disk space and locks",
			Severity:       StatusDegraded,
		}
	}
	return RuleResult{}
}

// Rejected writes usually mean a client sends values that cannot be encoded.
func SerializationErrorRule(snapshot map[string]int64) RuleResult {
	if snapshot[string(metrics.SerializationErrorsTotal)] > 0 {
		return RuleResult{
			Triggered:      true,
			Signal:         "Writes rejected because values are not serializable",
			Recommendation: "Check clients for values that cannot be encoded as JSON",
			Severity:       StatusDegraded,
		}
	}
	return RuleResult{}
}
