package mempool

import (
	"unsafe"
)

// Alloc serves a request of size bytes out of the pool and returns a
// pointer to the payload, or nil. On failure the last-error slot names the
// reason; NoMemory means no single block and no contiguous run of smaller
// blocks can hold the request.
func (p *Pool) Alloc(size uint64) unsafe.Pointer {
	if !p.valid() {
		return nil
	}
	if !p.lock.acquire() {
		p.recordError(ThreadSyncError, "pool lock acquisition failed")
		return nil
	}
	defer p.lock.release()
	p.clearLastError()
	return p.allocLocked(size)
}

// allocLocked is the planner proper: pick a class and a single-block or
// multi-block strategy, then commit.
func (p *Pool) allocLocked(size uint64) unsafe.Pointer {
	if size == 0 {
		p.recordError(NoMemory, "zero-size allocation request")
		return nil
	}
	if p.settings.FullOverflowChecks {
		p.checkPoolEndSentinel()
	}

	// Single-block candidate: the tight best-fit class, and only that
	// class. Class 0 needs no lower neighbour check; if it fits and has
	// room, it always wins.
	single := -1
	for i := range p.cats {
		c := &p.cats[i]
		if c.blockSize < size {
			continue
		}
		if c.occupied < c.total {
			single = i
		}
		break
	}
	if single == 0 {
		return p.commitAlloc(&p.cats[0], p.cats[0].firstFree, 1, size)
	}

	// Multi-block candidate: the largest class below the request size with
	// a contiguous free run long enough for the merged span.
	multi := -1
	var runStart uintptr
	var runLen uint64
	for i := NumClasses - 1; i >= 0; i-- {
		c := &p.cats[i]
		if c.blockSize >= size {
			continue
		}
		k := c.runBlocks(size)
		if start, ok := p.findRun(c, k); ok {
			multi, runStart, runLen = i, start, k
			break
		}
	}

	switch {
	case single < 0 && multi < 0:
		p.recordError(NoMemory, "no size class can serve the request")
		p.stats.failedAllocs.Add(1)
		return nil
	case multi < 0:
		c := &p.cats[single]
		return p.commitAlloc(c, c.firstFree, 1, size)
	case single < 0:
		return p.commitAlloc(&p.cats[multi], runStart, runLen, size)
	}

	// Both are viable: serve from whichever class keeps the larger
	// residual free payload after the hypothetical allocation. Ties take
	// the multi-block branch.
	cS := &p.cats[single]
	cM := &p.cats[multi]
	residualSingle := cS.blockSize * (cS.total - cS.occupied - 1)
	residualMulti := cM.blockSize * (cM.total - cM.occupied - runLen)
	if residualSingle > residualMulti {
		return p.commitAlloc(cS, cS.firstFree, 1, size)
	}
	return p.commitAlloc(cM, runStart, runLen, size)
}

// findRun sweeps the class arena from first_free_address, counting
// consecutive cells whose used_blocks is NotSet. An occupied cell resets
// the count; k consecutive free cells short-circuit to success; a
// remaining window shorter than k strides exits early.
func (p *Pool) findRun(c *category, k uint64) (uintptr, bool) {
	if c.total == 0 || c.firstFree == 0 || c.lastFree == 0 {
		return 0, false
	}
	if c.total-c.occupied < k {
		return 0, false
	}
	stride := c.stride()
	var start uintptr
	var n uint64
	for off := c.firstFree; off <= c.lastFree; off += stride {
		if n == 0 {
			remaining := uint64((c.lastFree-off)/stride) + 1
			if remaining < k {
				return 0, false
			}
		}
		if p.word(off+offBlockUsed) == NotSet {
			if n == 0 {
				start = off
			}
			n++
			if n == k {
				return start, true
			}
		} else {
			n = 0
		}
	}
	return 0, false
}

// commitAlloc hands out the run [blockOff, blockOff+k*stride): re-verify
// the target cells, merge a multi-block run, write the head counters,
// honour the zero-on-alloc setting, and settle the table.
func (p *Pool) commitAlloc(c *category, blockOff uintptr, k uint64, size uint64) unsafe.Pointer {
	stride := c.stride()
	for i := uint64(0); i < k; i++ {
		cell := blockOff + uintptr(i)*stride
		p.verifyFreeCell(cell, c)
		if p.settings.FullOverflowChecks {
			p.verifyFreeCellFill(cell, c)
		}
	}

	// Merge: overwrite the interior overhead gaps with the init byte so
	// the run becomes one contiguous span. Only the head start sentinel
	// and the tail end sentinel stay stamped.
	for i := uint64(0); i+1 < k; i++ {
		gap := blockOff + uintptr(i)*stride + offBlockPayload + uintptr(c.blockSize)
		p.fill(gap, blockOverhead, InitByte)
	}

	p.setWord(blockOff+offBlockUsed, k)
	p.setWord(blockOff+offBlockData, size)

	payload := blockOff + offBlockPayload
	if p.settings.ZeroOnAlloc {
		p.fill(payload, uintptr(size), 0)
	}

	c.occupied += k
	p.settleAfterAlloc(c, blockOff, k)
	p.stats.allocs.Add(1)
	debugPostAllocValidate(p, blockOff, k, size)
	return unsafe.Add(p.base, payload)
}
