package mempool

import (
	"unsafe"
)

// Realloc resizes an allocation. A nil pointer with a positive size is an
// allocation; a non-nil pointer with size zero is a free and returns nil.
// Growth tries, in order: the existing span, a contiguous extension of the
// run, and a copy-migrate to a fresh allocation. When migration fails the
// original block stays valid and allocated, and nil is returned.
func (p *Pool) Realloc(ptr unsafe.Pointer, size uint64) unsafe.Pointer {
	if ptr == nil {
		if size == 0 {
			return nil
		}
		return p.Alloc(size)
	}
	if size == 0 {
		p.Free(ptr)
		return nil
	}
	if !p.valid() {
		return nil
	}
	if !p.lock.acquire() {
		p.recordError(ThreadSyncError, "pool lock acquisition failed")
		return nil
	}
	defer p.lock.release()
	p.clearLastError()
	return p.reallocLocked(ptr, size)
}

func (p *Pool) reallocLocked(ptr unsafe.Pointer, size uint64) unsafe.Pointer {
	ref, ok := p.resolveBlock(ptr)
	if !ok {
		return nil
	}
	c := &p.cats[ref.ci]
	span := c.payloadSpan(ref.used)
	payload := ref.off + offBlockPayload

	switch {
	case size == ref.data:
		return ptr

	case size < ref.data:
		p.shrinkInPlace(c, ref, size)
		p.stats.reallocs.Add(1)
		return ptr

	case size <= span:
		// The span already covers the growth; only the slack between the
		// old and new size changes hands.
		if p.settings.ZeroOnAlloc {
			p.fill(payload+uintptr(ref.data), uintptr(size-ref.data), 0)
		}
		p.setWord(ref.off+offBlockData, size)
		p.stats.reallocs.Add(1)
		return ptr
	}

	if p.extendRun(c, ref, size) {
		p.stats.reallocs.Add(1)
		return ptr
	}

	// Migrate: a fresh allocation, a payload copy, then reclaim of the
	// original. A failed fresh allocation leaves the original untouched.
	np := p.allocLocked(size)
	if np == nil {
		return nil
	}
	copy(unsafe.Slice((*byte)(np), ref.data), unsafe.Slice((*byte)(ptr), ref.data))
	p.freeLocked(ptr)
	p.stats.reallocs.Add(1)
	return np
}

// shrinkInPlace reduces data_size and returns any trailing cells the
// smaller payload no longer needs to the category. The kept run keeps the
// head start sentinel; the new span end is restamped with the block end
// sentinel before the trailing cells are reformatted as free.
func (p *Pool) shrinkInPlace(c *category, ref blockRef, size uint64) {
	stride := c.stride()
	payload := ref.off + offBlockPayload
	keep := c.runBlocks(size)
	if keep >= ref.used {
		p.fill(payload+uintptr(size), uintptr(c.payloadSpan(ref.used)-size), InitByte)
		p.setWord(ref.off+offBlockData, size)
		return
	}

	keptSpan := c.payloadSpan(keep)
	p.fill(payload+uintptr(size), uintptr(keptSpan-size), InitByte)
	p.stamp(payload+uintptr(keptSpan), &blockEndSentinel)
	p.setWord(ref.off+offBlockUsed, keep)
	p.setWord(ref.off+offBlockData, size)

	firstFreed := ref.off + uintptr(keep)*stride
	for i := keep; i < ref.used; i++ {
		p.formatFreeBlock(ref.off+uintptr(i)*stride, c)
	}
	c.occupied -= ref.used - keep
	p.extendWindowOnFree(c, firstFreed, ref.off+uintptr(ref.used-1)*stride)
}

// extendRun grows the run in place by merging the free cells immediately
// after it. It reports false when the class lacks capacity or any of the
// needed cells is occupied, leaving all state untouched.
func (p *Pool) extendRun(c *category, ref blockRef, size uint64) bool {
	stride := c.stride()
	span := c.payloadSpan(ref.used)
	extra := (size - span + c.blockSize + blockOverhead - 1) / (c.blockSize + blockOverhead)
	if c.occupied+extra > c.total {
		return false
	}
	extStart := ref.off + uintptr(ref.used)*stride
	extLast := extStart + uintptr(extra-1)*stride
	if extLast > c.last {
		return false
	}
	for off := extStart; off <= extLast; off += stride {
		if p.word(off+offBlockUsed) != NotSet {
			return false
		}
	}

	for off := extStart; off <= extLast; off += stride {
		p.verifyFreeCell(off, c)
		if p.settings.FullOverflowChecks {
			p.verifyFreeCellFill(off, c)
		}
	}

	// Merge the old span end and the interior overhead of the new cells;
	// the last new cell's end sentinel becomes the sentinel of the whole
	// run.
	for i := ref.used - 1; i < ref.used+extra-1; i++ {
		gap := ref.off + uintptr(i)*stride + offBlockPayload + uintptr(c.blockSize)
		p.fill(gap, blockOverhead, InitByte)
	}

	p.setWord(ref.off+offBlockUsed, ref.used+extra)
	if p.settings.ZeroOnAlloc {
		payload := ref.off + offBlockPayload
		p.fill(payload+uintptr(ref.data), uintptr(size-ref.data), 0)
	}
	p.setWord(ref.off+offBlockData, size)

	c.occupied += extra
	p.settleAfterAlloc(c, extStart, extra)
	return true
}
