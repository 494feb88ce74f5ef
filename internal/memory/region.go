package memory

import (
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/CapOS/internal/logging"
	"github.com/GriffinCanCode/CapOS/internal/monitoring"
	"github.com/GriffinCanCode/CapOS/internal/types"
)

// Region describes one capability-tagged memory region.
type Region struct {
	Name     string
	Capacity int
	Caps     types.CapMask
}

type regionState struct {
	Region
	used int
}

// RegionHeap satisfies allocations from a fixed set of capability-tagged
// regions. An allocation is placed in the first region whose capability set
// covers the requested mask and whose remaining capacity fits the size.
// Accounting is by byte count only; fragmentation is not modeled.
type RegionHeap struct {
	mu          sync.Mutex
	regions     []*regionState
	outstanding int
	log         *logging.Logger
	metrics     *monitoring.Metrics
}

// NewRegionHeap creates a heap over the given regions, in priority order.
func NewRegionHeap(regions []Region, log *logging.Logger) *RegionHeap {
	h := &RegionHeap{log: log.Named("heap")}
	for _, r := range regions {
		h.regions = append(h.regions, &regionState{Region: r})
	}
	return h
}

// WithMetrics attaches a metrics collector to the heap.
func (h *RegionHeap) WithMetrics(m *monitoring.Metrics) *RegionHeap {
	h.metrics = m
	return h
}

// Alloc returns a buffer of the given size drawn from a region satisfying the
// capability mask, or nil when no region can. Sizes <= 0 return nil; callers
// treat that as "absent", not as failure.
func (h *RegionHeap) Alloc(size int, caps types.CapMask) *Block {
	if size <= 0 {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, r := range h.regions {
		if r.Caps&caps != caps {
			continue
		}
		if r.Capacity-r.used < size {
			continue
		}
		r.used += size
		h.outstanding++

		if h.metrics != nil {
			h.metrics.RecordAlloc(r.Name, size)
		}
		h.log.Debug("alloc",
			zap.String("region", r.Name),
			zap.Int("size", size),
			zap.String("caps", caps.String()),
		)
		return &Block{
			data:   make([]byte, size),
			caps:   caps,
			region: r.Name,
		}
	}

	if h.metrics != nil {
		h.metrics.RecordAllocFailure(caps.String())
	}
	h.log.Warn("allocation failed",
		zap.Int("size", size),
		zap.String("caps", caps.String()),
	)
	return nil
}

// Free returns a block's bytes to its region. Freeing nil is a no-op.
// Freeing the same block twice corrupts accounting and panics.
func (h *RegionHeap) Free(b *Block) {
	if b == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if b.freed {
		panic("memory: double free of capability block from region " + b.region)
	}
	b.freed = true

	for _, r := range h.regions {
		if r.Name != b.region {
			continue
		}
		r.used -= b.Len()
		h.outstanding--

		if h.metrics != nil {
			h.metrics.RecordFree(r.Name, b.Len())
		}
		h.log.Debug("free",
			zap.String("region", r.Name),
			zap.Int("size", b.Len()),
		)
		return
	}
	panic("memory: free of block from unknown region " + b.region)
}

// Outstanding returns the number of live allocations.
func (h *RegionHeap) Outstanding() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outstanding
}

// OutstandingBytes returns bytes currently allocated across all regions.
func (h *RegionHeap) OutstandingBytes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for _, r := range h.regions {
		total += r.used
	}
	return total
}

// RegionStat is a point-in-time view of one region, for the inspector.
type RegionStat struct {
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
	Used     int    `json:"used"`
	Caps     string `json:"caps"`
}

// RegionStats returns per-region usage.
func (h *RegionHeap) RegionStats() []RegionStat {
	h.mu.Lock()
	defer h.mu.Unlock()
	stats := make([]RegionStat, 0, len(h.regions))
	for _, r := range h.regions {
		stats = append(stats, RegionStat{
			Name:     r.Name,
			Capacity: r.Capacity,
			Used:     r.used,
			Caps:     r.Caps.String(),
		})
	}
	return stats
}
