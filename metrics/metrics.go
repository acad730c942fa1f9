// Package metrics registers the engine's Prometheus counters and exposes
// them over the standard /metrics HTTP handler.
//
// Grounded on imReese-NexusKV/pkg/metrics/metrics.go's package-level
// CounterVec + Init() shape, extended with the buffer pool / lock manager
// / deadlock-detector counters storage.buffer.Metrics and
// concurrency.LockManager need (spec.md's DOMAIN STACK wiring).
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	BufferPoolHits      = prometheus.NewCounter(prometheus.CounterOpts{Name: "enginecore_buffer_pool_hits_total", Help: "Buffer pool fetches served from an already-resident frame."})
	BufferPoolMisses    = prometheus.NewCounter(prometheus.CounterOpts{Name: "enginecore_buffer_pool_misses_total", Help: "Buffer pool fetches that required a disk read."})
	BufferPoolEvictions = prometheus.NewCounter(prometheus.CounterOpts{Name: "enginecore_buffer_pool_evictions_total", Help: "Frames evicted by the LRU-K replacer."})

	LockWaits       = prometheus.NewCounter(prometheus.CounterOpts{Name: "enginecore_lock_waits_total", Help: "Lock requests that had to block before being granted."})
	DeadlocksBroken = prometheus.NewCounter(prometheus.CounterOpts{Name: "enginecore_deadlocks_broken_total", Help: "Cycles broken by the deadlock detector."})
)

// Init registers every collector with the default registry; call once at
// process startup before serving /metrics.
func Init() {
	prometheus.MustRegister(
		BufferPoolHits,
		BufferPoolMisses,
		BufferPoolEvictions,
		LockWaits,
		DeadlocksBroken,
	)
}

// Collector adapts the package-level counters to both storage/buffer.Metrics
// and concurrency.Metrics.
type Collector struct{}

func (Collector) BufferPoolHit()      { BufferPoolHits.Inc() }
func (Collector) BufferPoolMiss()     { BufferPoolMisses.Inc() }
func (Collector) BufferPoolEviction() { BufferPoolEvictions.Inc() }

func (Collector) LockWait()       { LockWaits.Inc() }
func (Collector) DeadlockBroken() { DeadlocksBroken.Inc() }
