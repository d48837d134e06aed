package mempool

import (
	"sync"
	"testing"
	"unsafe"
)

func TestConcurrentChurn(t *testing.T) {
	p := newTestPool(t, counts(32, 64, 64, 32, 128, 16), func(s *Settings) {
		s.Threadsafe = true
	})

	const workers = 8
	const iters = 500

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			sizes := []uint64{8, 30, 33, 64, 100, 120}
			var held []unsafe.Pointer
			for i := 0; i < iters; i++ {
				size := sizes[(i+w)%len(sizes)]
				if ptr := p.Alloc(size); ptr != nil {
					// Touch the payload so races on overlapping handouts
					// would trip the sentinel checks later.
					ptrBytes(ptr, int(size))[0] = byte(w)
					held = append(held, ptr)
				}
				if len(held) > 8 {
					p.Free(held[0])
					held = held[1:]
				}
			}
			for _, ptr := range held {
				p.Free(ptr)
			}
		}(w)
	}
	wg.Wait()

	for i := range p.cats {
		if occ := p.cats[i].occupied; occ != 0 {
			t.Errorf("class %d occupied = %d after drain, want 0", i, occ)
		}
	}
	if err := p.verifyIntegrity(); err != nil {
		t.Fatalf("integrity after concurrent churn: %v", err)
	}
}

func TestSnapshotCounters(t *testing.T) {
	p := newTestPool(t, counts(32, 4), nil)
	ptr := p.Alloc(8)
	p.Free(ptr)
	p.Alloc(0) // fails

	s := p.Snapshot()
	if s.Allocs != 1 || s.Frees != 1 {
		t.Errorf("Snapshot = %+v, want 1 alloc and 1 free", s)
	}

	d := p.Debug()
	if len(d.Classes) != NumClasses {
		t.Fatalf("Debug classes = %d, want %d", len(d.Classes), NumClasses)
	}
	if d.Classes[0].TotalBlocks != 4 {
		t.Errorf("Debug class 0 total = %d, want 4", d.Classes[0].TotalBlocks)
	}
	if d.LastError != NoMemory.String() {
		t.Errorf("Debug last error = %q, want NoMemory", d.LastError)
	}
}
