package metrics

import (
	"sync"
	"sync/atomic"
)

// MetricKey is a strongly typed metric identifier.
type MetricKey string

// Metric keys (centralized)
const (
	// Store
	StoreSetsTotal    MetricKey = "store_sets_total"
	StoreGetsTotal    MetricKey = "store_gets_total"
	StoreHitsTotal    MetricKey = "store_hits_total"
	StoreMissesTotal  MetricKey = "store_misses_total"
	StoreExpiredTotal MetricKey = "store_expired_total"
	StoreDeletesTotal MetricKey = "store_deletes_total"
	StoreClearsTotal  MetricKey = "store_clears_total"
	// StoreRows is a gauge read from the repository when /metrics is served.
	StoreRows MetricKey = "store_rows"

	// Errors
	SerializationErrorsTotal MetricKey = "serialization_errors_total"
	StorageErrorsTotal       MetricKey = "storage_errors_total"

	// Sweeper
	SweepRunsTotal     MetricKey = "sweep_runs_total"
	SweepRemovedTotal  MetricKey = "sweep_removed_total"
	SweepFailuresTotal MetricKey = "sweep_failures_total"

	// HTTP
	HTTPRequestsTotal MetricKey = "http_requests_total"
	HTTPPanicsTotal   MetricKey = "http_panics_total"
)

// Registry stores all metrics.
type Registry struct {
	mu       sync.RWMutex
	counters map[MetricKey]*int64
}

// NewRegistry creates a metrics registry.
func NewRegistry() *Registry {
	return &Registry{
		counters: make(map[MetricKey]*int64),
	}
}

// Inc increments a metric by 1.
func (r *Registry) Inc(key MetricKey) {
	r.Add(key, 1)
}

// Add increments a metric by delta.
func (r *Registry) Add(key MetricKey, delta int64) {
	r.mu.RLock()
	ptr, ok := r.counters[key]
	r.mu.RUnlock()

	if ok {
		atomic.AddInt64(ptr, delta)
		return
	}

	// Slow path: metric not yet initialized
	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if ptr, ok = r.counters[key]; ok {
		atomic.AddInt64(ptr, delta)
		return
	}

	var val int64
	r.counters[key] = &val
	atomic.AddInt64(&val, delta)
}
