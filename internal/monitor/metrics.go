package monitor

import (
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"multiaccount-trade/internal/gateway"
)

// SystemMetrics tracks dispatch counters, order legs and gateway submit latency.
// It implements events.Observer, order.Recorder and gateway.Recorder.
type SystemMetrics struct {
	mu sync.RWMutex

	// Gateway SendOrder round trip.
	OrderLatency *LatencyHistogram

	eventsDispatched uint64
	handlerFailures  uint64
	legsSubmitted    uint64
	legsFailed       uint64
	submitErrors     uint64

	byKind        map[string]uint64
	gatewayHealth map[string]bool
	gatewayStats  gateway.PoolStats
	health        *HealthServer

	startedAt time.Time
}

// LatencyHistogram tracks latency samples with sliding window.
// Stats are computed lazily and cached until the next sample.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// NewSystemMetrics creates a new metrics instance.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		OrderLatency:  NewLatencyHistogram(1000),
		byKind:        make(map[string]uint64),
		gatewayHealth: make(map[string]bool),
		startedAt:     time.Now(),
	}
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts duration to ms and records.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false

	return h.cachedStats
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

// AttachHealth forwards gateway health transitions to a gRPC health server,
// starting with the states already known.
func (m *SystemMetrics) AttachHealth(h *HealthServer) {
	m.mu.Lock()
	m.health = h
	known := make(map[string]bool, len(m.gatewayHealth))
	for k, v := range m.gatewayHealth {
		known[k] = v
	}
	m.mu.Unlock()

	for name, healthy := range known {
		h.SetGatewayHealth(name, healthy)
	}
}

// EventDispatched counts one dispatched event.
func (m *SystemMetrics) EventDispatched(kind string) {
	atomic.AddUint64(&m.eventsDispatched, 1)
	m.mu.Lock()
	m.byKind[kind]++
	m.mu.Unlock()
}

// HandlerFailed counts a handler that returned an error or panicked.
func (m *SystemMetrics) HandlerFailed(string) {
	atomic.AddUint64(&m.handlerFailures, 1)
}

// LegSubmitted counts an order leg accepted by its gateway.
func (m *SystemMetrics) LegSubmitted() {
	atomic.AddUint64(&m.legsSubmitted, 1)
}

// LegFailed counts an order leg that could not be submitted.
func (m *SystemMetrics) LegFailed() {
	atomic.AddUint64(&m.legsFailed, 1)
}

// RecordSubmit records one gateway SendOrder call.
func (m *SystemMetrics) RecordSubmit(_ string, d time.Duration, err error) {
	m.OrderLatency.RecordDuration(d)
	if err != nil {
		atomic.AddUint64(&m.submitErrors, 1)
	}
}

// SetGatewayHealth records a health transition.
func (m *SystemMetrics) SetGatewayHealth(gatewayName string, healthy bool) {
	m.mu.Lock()
	m.gatewayHealth[gatewayName] = healthy
	h := m.health
	m.mu.Unlock()

	if h != nil {
		h.SetGatewayHealth(gatewayName, healthy)
	}
}

// SetGatewayPoolStats updates gateway pool statistics.
func (m *SystemMetrics) SetGatewayPoolStats(stats gateway.PoolStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gatewayStats = stats
}

// MetricsSnapshot is a point-in-time copy of every metric.
type MetricsSnapshot struct {
	OrderLatency     LatencyStats      `json:"order_latency"`
	EventsDispatched uint64            `json:"events_dispatched"`
	EventsByKind     map[string]uint64 `json:"events_by_kind"`
	HandlerFailures  uint64            `json:"handler_failures"`
	LegsSubmitted    uint64            `json:"legs_submitted"`
	LegsFailed       uint64            `json:"legs_failed"`
	SubmitErrors     uint64            `json:"submit_errors"`
	GatewayHealth    map[string]bool   `json:"gateway_health"`
	GatewayPool      gateway.PoolStats `json:"gateway_pool"`
	GoroutineCount   int               `json:"goroutine_count"`
	HeapAlloc        uint64            `json:"heap_alloc_bytes"`
	Uptime           string            `json:"uptime"`
	Timestamp        time.Time         `json:"timestamp"`
}

// GetSnapshot returns a point-in-time metrics snapshot.
func (m *SystemMetrics) GetSnapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.mu.RLock()
	byKind := make(map[string]uint64, len(m.byKind))
	for k, v := range m.byKind {
		byKind[k] = v
	}
	health := make(map[string]bool, len(m.gatewayHealth))
	for k, v := range m.gatewayHealth {
		health[k] = v
	}
	gwStats := m.gatewayStats
	m.mu.RUnlock()

	return MetricsSnapshot{
		OrderLatency:     m.OrderLatency.Stats(),
		EventsDispatched: atomic.LoadUint64(&m.eventsDispatched),
		EventsByKind:     byKind,
		HandlerFailures:  atomic.LoadUint64(&m.handlerFailures),
		LegsSubmitted:    atomic.LoadUint64(&m.legsSubmitted),
		LegsFailed:       atomic.LoadUint64(&m.legsFailed),
		SubmitErrors:     atomic.LoadUint64(&m.submitErrors),
		GatewayHealth:    health,
		GatewayPool:      gwStats,
		GoroutineCount:   runtime.NumGoroutine(),
		HeapAlloc:        memStats.HeapAlloc,
		Uptime:           time.Since(m.startedAt).Round(time.Second).String(),
		Timestamp:        time.Now(),
	}
}
