package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Heap metrics
	AllocsTotal       *prometheus.CounterVec
	AllocFailures     *prometheus.CounterVec
	FreesTotal        *prometheus.CounterVec
	OutstandingAllocs prometheus.Gauge
	OutstandingBytes  prometheus.Gauge

	// Lifecycle metrics
	PrimitivesCreated   *prometheus.CounterVec
	PrimitivesDestroyed *prometheus.CounterVec
	PrimitivesLive      prometheus.Gauge
	CreateFailures      *prometheus.CounterVec
	ReaperSpawns        prometheus.Counter

	// Kernel metrics
	TasksActive prometheus.Gauge

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current metric values for the inspector's JSON API.
type Snapshot struct {
	OutstandingAllocs int64
	OutstandingBytes  int64
	PrimitivesLive    int64
	ReaperSpawns      int64
	CreateFailures    int64
}

// NewMetrics creates a new metrics collector registered on the default
// Prometheus registry. Call at most once per process; tests that need their
// own collector should use NewMetricsWith.
func NewMetrics() *Metrics {
	return newMetrics(promauto.With(prometheus.DefaultRegisterer))
}

// NewMetricsWith creates a metrics collector on a caller-owned registry.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	return newMetrics(promauto.With(reg))
}

func newMetrics(factory promauto.Factory) *Metrics {
	return &Metrics{
		startTime: time.Now(),

		// Heap metrics
		AllocsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capos_heap_allocs_total",
				Help: "Total capability heap allocations",
			},
			[]string{"region"},
		),
		AllocFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capos_heap_alloc_failures_total",
				Help: "Capability heap allocations that could not be satisfied",
			},
			[]string{"caps"},
		),
		FreesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capos_heap_frees_total",
				Help: "Total capability heap frees",
			},
			[]string{"region"},
		),
		OutstandingAllocs: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "capos_heap_outstanding_allocs",
				Help: "Live capability heap allocations",
			},
		),
		OutstandingBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "capos_heap_outstanding_bytes",
				Help: "Bytes currently allocated from the capability heap",
			},
		),

		// Lifecycle metrics
		PrimitivesCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capos_primitives_created_total",
				Help: "Primitives created with capability-tagged memory",
			},
			[]string{"kind"},
		),
		PrimitivesDestroyed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capos_primitives_destroyed_total",
				Help: "Primitives destroyed and their memory reclaimed",
			},
			[]string{"kind"},
		),
		PrimitivesLive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "capos_primitives_live",
				Help: "Primitives currently alive",
			},
		),
		CreateFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capos_primitive_create_failures_total",
				Help: "Primitive constructions that failed and rolled back",
			},
			[]string{"kind", "reason"},
		),
		ReaperSpawns: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "capos_reaper_spawns_total",
				Help: "Reaper tasks spawned to complete self-deletions",
			},
		),

		// Kernel metrics
		TasksActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "capos_tasks_active",
				Help: "Tasks currently known to the scheduler",
			},
		),

		// System metrics
		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "capos_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
	}
}

// RecordAlloc records a successful heap allocation.
func (m *Metrics) RecordAlloc(region string, size int) {
	m.AllocsTotal.WithLabelValues(region).Inc()
	m.OutstandingAllocs.Inc()
	m.OutstandingBytes.Add(float64(size))

	m.mu.Lock()
	m.snapshot.OutstandingAllocs++
	m.snapshot.OutstandingBytes += int64(size)
	m.mu.Unlock()
}

// RecordAllocFailure records an allocation the heap could not satisfy.
func (m *Metrics) RecordAllocFailure(caps string) {
	m.AllocFailures.WithLabelValues(caps).Inc()
}

// RecordFree records a heap free.
func (m *Metrics) RecordFree(region string, size int) {
	m.FreesTotal.WithLabelValues(region).Inc()
	m.OutstandingAllocs.Dec()
	m.OutstandingBytes.Sub(float64(size))

	m.mu.Lock()
	m.snapshot.OutstandingAllocs--
	m.snapshot.OutstandingBytes -= int64(size)
	m.mu.Unlock()
}

// RecordCreate records a successful primitive construction.
func (m *Metrics) RecordCreate(kind string) {
	m.PrimitivesCreated.WithLabelValues(kind).Inc()
	m.PrimitivesLive.Inc()

	m.mu.Lock()
	m.snapshot.PrimitivesLive++
	m.mu.Unlock()
}

// RecordCreateFailure records a rolled-back construction.
func (m *Metrics) RecordCreateFailure(kind, reason string) {
	m.CreateFailures.WithLabelValues(kind, reason).Inc()

	m.mu.Lock()
	m.snapshot.CreateFailures++
	m.mu.Unlock()
}

// RecordDestroy records a primitive teardown.
func (m *Metrics) RecordDestroy(kind string) {
	m.PrimitivesDestroyed.WithLabelValues(kind).Inc()
	m.PrimitivesLive.Dec()

	m.mu.Lock()
	m.snapshot.PrimitivesLive--
	m.mu.Unlock()
}

// RecordReaperSpawn records a reaper task spawned for a self-delete.
func (m *Metrics) RecordReaperSpawn() {
	m.ReaperSpawns.Inc()

	m.mu.Lock()
	m.snapshot.ReaperSpawns++
	m.mu.Unlock()
}

// UpdateUptime refreshes the uptime gauge.
func (m *Metrics) UpdateUptime() {
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}

// GetSnapshot returns current metric values for the JSON API.
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
