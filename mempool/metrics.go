package mempool

import (
	"sync/atomic"
)

// poolStats holds the operation counters. The counters are atomics so the
// snapshot accessors stay lock-free like the other read-only surfaces.
type poolStats struct {
	allocs           atomic.Uint64
	frees            atomic.Uint64
	reallocs         atomic.Uint64
	failedAllocs     atomic.Uint64
	corruptionEvents atomic.Uint64
}

// Stats is a point-in-time copy of the pool's operation counters.
type Stats struct {
	Allocs           uint64 `json:"allocs"`
	Frees            uint64 `json:"frees"`
	Reallocs         uint64 `json:"reallocs"`
	FailedAllocs     uint64 `json:"failed_allocs"`
	CorruptionEvents uint64 `json:"corruption_events"`
}

// Snapshot returns the current operation counters. It takes no lock.
func (p *Pool) Snapshot() Stats {
	return Stats{
		Allocs:           p.stats.allocs.Load(),
		Frees:            p.stats.frees.Load(),
		Reallocs:         p.stats.reallocs.Load(),
		FailedAllocs:     p.stats.failedAllocs.Load(),
		CorruptionEvents: p.stats.corruptionEvents.Load(),
	}
}

// ClassSnapshot is the observable state of one size class.
type ClassSnapshot struct {
	BlockSize      uint64 `json:"block_size"`
	TotalBlocks    uint64 `json:"total_blocks"`
	OccupiedBlocks uint64 `json:"occupied_blocks"`
	FreeBytes      uint64 `json:"free_bytes"`
}

// DebugSnapshot is a diagnostic view of the whole pool, shaped for JSON
// encoding by inspection tools.
type DebugSnapshot struct {
	TotalSize   uint64          `json:"total_size"`
	RegionBytes uint64          `json:"region_bytes"`
	Classes     []ClassSnapshot `json:"classes"`
	LastError   string          `json:"last_error"`
	LastMessage string          `json:"last_message"`
	Stats       Stats           `json:"stats"`
}

// Debug returns a diagnostic snapshot of the pool. It serializes against
// the mutating operations.
func (p *Pool) Debug() DebugSnapshot {
	if !p.valid() {
		return DebugSnapshot{LastError: InvalidMempool.String(), LastMessage: invalidPoolMessage}
	}
	p.lock.acquire()
	defer p.lock.release()

	snap := DebugSnapshot{
		TotalSize:   p.settings.TotalSize,
		RegionBytes: uint64(p.size),
		Classes:     make([]ClassSnapshot, 0, NumClasses),
		LastError:   p.lastCode.String(),
		LastMessage: string(p.lastMsg[:p.lastLen]),
		Stats:       p.Snapshot(),
	}
	for i := range p.cats {
		c := &p.cats[i]
		snap.Classes = append(snap.Classes, ClassSnapshot{
			BlockSize:      c.blockSize,
			TotalBlocks:    c.total,
			OccupiedBlocks: c.occupied,
			FreeBytes:      c.blockSize * (c.total - c.occupied),
		})
	}
	return snap
}
