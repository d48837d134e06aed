package mempool

// category is one block-category table entry. Addresses are region
// offsets; 0 is the null value (offset 0 is the pool start sentinel and
// can never name a block).
//
// Invariants maintained across alloc, free, and realloc:
//   - occupied <= total
//   - total == 0 implies all offsets are null
//   - occupied < total implies firstFree and lastFree name stamped blocks
//     whose used_blocks counter is NotSet
//   - every block in [start, last] lies on a stride of blockSize+3*Align
//   - no free block lies below firstFree or above lastFree
type category struct {
	blockSize uint64
	total     uint64
	occupied  uint64
	start     uintptr
	last      uintptr
	firstFree uintptr
	lastFree  uintptr
}

// stride is the byte distance between consecutive block cells.
func (c *category) stride() uintptr {
	return uintptr(c.blockSize) + blockOverhead
}

// payloadSpan is the contiguous user-addressable byte count of a merged
// run of k cells: k payloads plus the k-1 interior overhead gaps.
func (c *category) payloadSpan(k uint64) uint64 {
	return c.blockSize*k + 3*Align*(k-1)
}

// runBlocks is the cell count needed for a payload of s bytes in this
// class: ceil((s + 3A) / (blockSize + 3A)).
func (c *category) runBlocks(s uint64) uint64 {
	return (s + blockOverhead + c.blockSize + blockOverhead - 1) / (c.blockSize + blockOverhead)
}

// contains reports whether the block offset lies inside this class arena.
func (c *category) contains(off uintptr) bool {
	return c.total > 0 && off >= c.start && off <= c.last
}

// classOf finds the class whose arena contains the block offset, or -1.
func (p *Pool) classOf(off uintptr) int {
	for i := range p.cats {
		if p.cats[i].contains(off) {
			return i
		}
	}
	return -1
}

// settleAfterAlloc advances the free window after an allocation consumed
// the cells [blockOff, blockOff+k*stride).
//
// When first_free_address was consumed, the table scans forward one stride
// at a time for a cell whose used_blocks is NotSet; finding none up to
// last_free_address nulls both pointers and pins occupied to total. When
// last_free_address was consumed, it retracts backward to the nearest free
// cell so that both pointers keep naming free blocks whenever occupancy is
// below total.
func (p *Pool) settleAfterAlloc(c *category, blockOff uintptr, k uint64) {
	if c.occupied >= c.total {
		c.firstFree, c.lastFree = 0, 0
		return
	}
	stride := c.stride()
	spanEnd := blockOff + uintptr(k)*stride

	if c.firstFree >= blockOff && c.firstFree < spanEnd {
		found := uintptr(0)
		for off := spanEnd; off <= c.lastFree && off <= c.last; off += stride {
			if p.word(off+offBlockUsed) == NotSet {
				found = off
				break
			}
		}
		if found == 0 {
			// No free cell remains inside the window; the window is a
			// conservative bound, so an empty window means a full class.
			c.firstFree, c.lastFree = 0, 0
			c.occupied = c.total
			return
		}
		c.firstFree = found
	}

	if c.lastFree >= blockOff && c.lastFree < spanEnd {
		for off := blockOff - stride; off >= c.firstFree; off -= stride {
			if p.word(off+offBlockUsed) == NotSet {
				c.lastFree = off
				break
			}
			if off == c.firstFree {
				break
			}
		}
	}
}

// extendWindowOnFree widens the free window to include the freed run
// [firstCell, lastCell]. The pointers are conservative bounds and are
// never retracted on free.
func (p *Pool) extendWindowOnFree(c *category, firstCell, lastCell uintptr) {
	if c.firstFree == 0 || firstCell < c.firstFree {
		c.firstFree = firstCell
	}
	if c.lastFree == 0 || lastCell > c.lastFree {
		c.lastFree = lastCell
	}
}

// verifyFreeCell re-checks the sentinels and counters of a block that the
// planner is about to hand out. Any mismatch records an Overflow with the
// offending address and restores the damaged state so the allocation can
// proceed.
func (p *Pool) verifyFreeCell(b uintptr, c *category) {
	if !p.sentinelAt(b, &blockStartSentinel) {
		p.recordErrorAt(Overflow, b, "block start sentinel damaged")
		p.stamp(b, &blockStartSentinel)
	}
	if p.word(b+offBlockUsed) != NotSet || p.word(b+offBlockData) != NotSet {
		p.recordErrorAt(Overflow, b+offBlockUsed, "free block counters damaged")
		p.setWord(b+offBlockUsed, NotSet)
		p.setWord(b+offBlockData, NotSet)
	}
	end := b + offBlockPayload + uintptr(c.blockSize)
	if !p.sentinelAt(end, &blockEndSentinel) {
		p.recordErrorAt(Overflow, end, "block end sentinel damaged")
		p.stamp(end, &blockEndSentinel)
	}
}

// verifyFreeCellFill checks that a free cell's payload still carries the
// init byte, recording an Overflow and scrubbing otherwise. Only called
// under full overflow checks.
func (p *Pool) verifyFreeCellFill(b uintptr, c *category) {
	payload := b + offBlockPayload
	if !p.filledWith(payload, uintptr(c.blockSize), InitByte) {
		p.recordErrorAt(Overflow, payload, "free block payload damaged")
		p.fill(payload, uintptr(c.blockSize), InitByte)
	}
}
