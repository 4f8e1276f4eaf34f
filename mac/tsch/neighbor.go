package tsch

import (
	"sync"

	"github.com/gowpan/dot15d4/frame"
)

// DefaultNeighborTableSize is the fixed capacity of a NeighborTable,
// matching the reference's NeighborTable<16>.
const DefaultNeighborTableSize = 16

// Neighbor is a TSCH time-source candidate learned from an Enhanced
// Beacon: its address, its advertised join metric, and whether it has been
// selected as this device's time source.
type Neighbor struct {
	Address     frame.Address
	JoinMetric  uint8
	TimeSource  bool
}

// NeighborTable is a fixed-capacity table of neighbors, used to select a
// time source: the neighbor with the lowest join metric.
type NeighborTable struct {
	mu       sync.Mutex
	capacity int
	byAddr   map[string]*Neighbor
	order    []string
}

// NewNeighborTable builds an empty table with capacity slots.
func NewNeighborTable(capacity int) *NeighborTable {
	if capacity <= 0 {
		capacity = DefaultNeighborTableSize
	}
	return &NeighborTable{capacity: capacity, byAddr: make(map[string]*Neighbor)}
}

// Observe records (or updates) a neighbor's join metric. If the table is
// full and addr is not already known, the entry with the highest join
// metric is evicted to make room.
func (t *NeighborTable) Observe(addr frame.Address, joinMetric uint8) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := addr.String()
	if n, ok := t.byAddr[key]; ok {
		n.JoinMetric = joinMetric
		return
	}
	if len(t.order) >= t.capacity {
		t.evictWorstLocked()
	}
	t.byAddr[key] = &Neighbor{Address: addr, JoinMetric: joinMetric}
	t.order = append(t.order, key)
}

func (t *NeighborTable) evictWorstLocked() {
	var worstKey string
	var worstMetric uint8
	first := true
	for _, k := range t.order {
		n := t.byAddr[k]
		if n.TimeSource {
			continue
		}
		if first || n.JoinMetric > worstMetric {
			worstKey = k
			worstMetric = n.JoinMetric
			first = false
		}
	}
	if worstKey == "" {
		return
	}
	delete(t.byAddr, worstKey)
	for i, k := range t.order {
		if k == worstKey {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// TimeSource selects and returns the neighbor with the lowest join metric,
// marking it as the time source. ok is false if the table is empty.
func (t *NeighborTable) TimeSource() (Neighbor, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var best *Neighbor
	for _, k := range t.order {
		n := t.byAddr[k]
		n.TimeSource = false
		if best == nil || n.JoinMetric < best.JoinMetric {
			best = n
		}
	}
	if best == nil {
		return Neighbor{}, false
	}
	best.TimeSource = true
	return *best, true
}

// Len returns the number of neighbors currently recorded.
func (t *NeighborTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}
