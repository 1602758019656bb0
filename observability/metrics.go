// Package observability exposes Prometheus metrics for the memory
// backends. Every counter and histogram is labeled by backend so one
// collector serves any number of memory instances.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics for the memory subsystem.
type Collector struct {
	registry *prometheus.Registry

	// Operation metrics
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Entry lifecycle metrics
	EntriesAdded   *prometheus.CounterVec
	EntriesRemoved *prometheus.CounterVec
	EntriesPruned  *prometheus.CounterVec

	// Lookup metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
}

// NewCollector creates a metrics collector with its own registry, so
// tests can create as many as they want without duplicate-registration
// panics.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	operations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of memory operations",
		},
		[]string{"backend", "operation", "status"},
	)

	operationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Memory operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	entriesAdded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_added_total",
			Help:      "Total number of entries added",
		},
		[]string{"backend"},
	)

	entriesRemoved := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_removed_total",
			Help:      "Total number of entries removed",
		},
		[]string{"backend"},
	)

	entriesPruned := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_pruned_total",
			Help:      "Total number of entries evicted by capacity pruning",
		},
		[]string{"backend"},
	)

	cacheHits := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of successful key lookups",
		},
		[]string{"backend"},
	)

	cacheMisses := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of failed key lookups",
		},
		[]string{"backend"},
	)

	registry.MustRegister(
		operations,
		operationDuration,
		entriesAdded,
		entriesRemoved,
		entriesPruned,
		cacheHits,
		cacheMisses,
	)

	return &Collector{
		registry:          registry,
		Operations:        operations,
		OperationDuration: operationDuration,
		EntriesAdded:      entriesAdded,
		EntriesRemoved:    entriesRemoved,
		EntriesPruned:     entriesPruned,
		CacheHits:         cacheHits,
		CacheMisses:       cacheMisses,
	}
}

// RecordOperation records one completed operation with its outcome.
func (c *Collector) RecordOperation(backend, operation string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.Operations.WithLabelValues(backend, operation, status).Inc()
	c.OperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordLookup records a key lookup hit or miss.
func (c *Collector) RecordLookup(backend string, hit bool) {
	if hit {
		c.CacheHits.WithLabelValues(backend).Inc()
	} else {
		c.CacheMisses.WithLabelValues(backend).Inc()
	}
}

// Registry returns the Prometheus registry for this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
