package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Standard HTTP metrics
	httpRequestDuration *Histogram
	httpRequestCount    *Counter
	httpRequestSize     *Histogram
	httpResponseSize    *Histogram

	// Registry metrics
	registryLookups       *Counter
	registryFallbacks     *Counter
	registryRegistrations *Counter
	heartbeatsSent        *Counter
	heartbeatsFailed      *Counter
	staleRecordsPruned    *Counter

	// Ensure standard metrics are initialized only once
	standardMetricsOnce sync.Once
	registryMetricsOnce sync.Once
)

// InitStandardMetrics initializes standard HTTP metrics.
// This function is called automatically by the middleware, but can be called
// explicitly to ensure metrics are registered before use.
// It is safe to call multiple times - subsequent calls are no-ops.
func InitStandardMetrics(namespace string) error {
	var initErr error

	standardMetricsOnce.Do(func() {
		// Initialize HTTP metrics
		httpRequestDuration, initErr = NewHistogram(HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Labels:    []string{"method", "path", "status_code"},
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		})
		if initErr != nil {
			return
		}

		httpRequestCount, initErr = NewCounter(CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
			Labels:    []string{"method", "path", "status_code"},
		})
		if initErr != nil {
			return
		}

		httpRequestSize, initErr = NewHistogram(HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_size_bytes",
			Help:      "HTTP request size in bytes",
			Labels:    []string{"method", "path"},
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8), // 100B to ~100MB
		})
		if initErr != nil {
			return
		}

		httpResponseSize, initErr = NewHistogram(HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "response_size_bytes",
			Help:      "HTTP response size in bytes",
			Labels:    []string{"method", "path", "status_code"},
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8), // 100B to ~100MB
		})
		if initErr != nil {
			return
		}
	})

	return initErr
}

// InitRegistryMetrics initializes the service registry metrics: discovery
// lookups by serving tier, remote fallbacks, registrations, heartbeat
// outcomes, and stale record pruning.
// It is safe to call multiple times - subsequent calls are no-ops.
func InitRegistryMetrics(namespace string) error {
	var initErr error

	registryMetricsOnce.Do(func() {
		registryLookups, initErr = NewCounter(CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "lookups_total",
			Help:      "Total number of discovery lookups by operation and serving source",
			Labels:    []string{"op", "source"},
		})
		if initErr != nil {
			return
		}

		registryFallbacks, initErr = NewCounter(CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "fallbacks_total",
			Help:      "Total number of operations that fell through to the remote tier",
			Labels:    []string{"op"},
		})
		if initErr != nil {
			return
		}

		registryRegistrations, initErr = NewCounter(CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "registrations_total",
			Help:      "Total number of service registrations by backend and result",
			Labels:    []string{"backend", "result"},
		})
		if initErr != nil {
			return
		}

		heartbeatsSent, initErr = NewCounter(CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "heartbeats_sent_total",
			Help:      "Total number of heartbeats successfully delivered by backend",
			Labels:    []string{"backend"},
		})
		if initErr != nil {
			return
		}

		heartbeatsFailed, initErr = NewCounter(CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "heartbeats_failed_total",
			Help:      "Total number of heartbeats that failed to reach any backend",
			Labels:    []string{"backend"},
		})
		if initErr != nil {
			return
		}

		staleRecordsPruned, initErr = NewCounter(CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "stale_records_pruned_total",
			Help:      "Total number of stale registration records removed",
			Labels:    []string{},
		})
		if initErr != nil {
			return
		}
	})

	return initErr
}

// GetHTTPRequestDuration returns the standard HTTP request duration histogram.
// Returns nil if standard metrics have not been initialized.
func GetHTTPRequestDuration() *Histogram {
	return httpRequestDuration
}

// GetHTTPRequestCount returns the standard HTTP request count counter.
// Returns nil if standard metrics have not been initialized.
func GetHTTPRequestCount() *Counter {
	return httpRequestCount
}

// GetHTTPRequestSize returns the standard HTTP request size histogram.
// Returns nil if standard metrics have not been initialized.
func GetHTTPRequestSize() *Histogram {
	return httpRequestSize
}

// GetHTTPResponseSize returns the standard HTTP response size histogram.
// Returns nil if standard metrics have not been initialized.
func GetHTTPResponseSize() *Histogram {
	return httpResponseSize
}

// GetRegistryLookups returns the registry lookup counter.
// Returns nil if registry metrics have not been initialized.
func GetRegistryLookups() *Counter {
	return registryLookups
}

// GetRegistryFallbacks returns the registry fallback counter.
// Returns nil if registry metrics have not been initialized.
func GetRegistryFallbacks() *Counter {
	return registryFallbacks
}

// GetRegistryRegistrations returns the registration counter.
// Returns nil if registry metrics have not been initialized.
func GetRegistryRegistrations() *Counter {
	return registryRegistrations
}

// GetHeartbeatsSent returns the delivered heartbeat counter.
// Returns nil if registry metrics have not been initialized.
func GetHeartbeatsSent() *Counter {
	return heartbeatsSent
}

// GetHeartbeatsFailed returns the failed heartbeat counter.
// Returns nil if registry metrics have not been initialized.
func GetHeartbeatsFailed() *Counter {
	return heartbeatsFailed
}

// GetStaleRecordsPruned returns the pruned record counter.
// Returns nil if registry metrics have not been initialized.
func GetStaleRecordsPruned() *Counter {
	return staleRecordsPruned
}
