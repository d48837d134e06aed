package mempool

import (
	"unsafe"
)

// blockRef is a resolved view of an allocated block: its head cell offset,
// class index, and counter values.
type blockRef struct {
	off  uintptr
	ci   int
	used uint64
	data uint64
}

// Free validates a user pointer and returns its span to the free pool.
// A nil pointer is a silent no-op and does not clear the last-error.
func (p *Pool) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	if !p.valid() {
		return
	}
	if !p.lock.acquire() {
		p.recordError(ThreadSyncError, "pool lock acquisition failed")
		return
	}
	defer p.lock.release()
	p.clearLastError()
	p.freeLocked(ptr)
}

// resolveBlock runs the shared head of the free/realloc validation chain:
// locate the block header behind the user pointer, find its class, and
// read the counters. Sentinel and counter damage is recovered best-effort;
// pointer-shape failures abort without mutation.
func (p *Pool) resolveBlock(ptr unsafe.Pointer) (blockRef, bool) {
	var ref blockRef

	off, ok := p.offsetOf(ptr)
	if !ok || off < offBlockPayload {
		p.recordError(PointerParamError, "pointer does not fall inside the pool region")
		return ref, false
	}
	blockOff := off - offBlockPayload

	if !p.sentinelAt(blockOff, &blockStartSentinel) {
		p.recordErrorAt(PointerParamError, blockOff,
			"pointer is not preceded by a block start sentinel")
		return ref, false
	}

	ci := p.classOf(blockOff)
	if ci < 0 {
		p.recordErrorAt(PointerParamError, blockOff,
			"pointer lies outside every class arena")
		return ref, false
	}
	c := &p.cats[ci]
	if (blockOff-c.start)%c.stride() != 0 {
		p.recordErrorAt(PointerParamError, blockOff,
			"pointer is not aligned to a block boundary")
		return ref, false
	}

	used := p.word(blockOff + offBlockUsed)
	data := p.word(blockOff + offBlockData)
	if used == NotSet || data == NotSet {
		p.recordErrorAt(Overflow, blockOff+offBlockUsed,
			"block counters carry the free marker")
		p.setWord(blockOff+offBlockUsed, NotSet)
		p.setWord(blockOff+offBlockData, NotSet)
		return ref, false
	}

	// The run must stay inside the arena; a counter pointing past the last
	// cell is structural damage the sentinel checks cannot see.
	if used == 0 || blockOff+uintptr(used-1)*c.stride() > c.last {
		p.recordErrorAt(InconsistentBlocks, blockOff+offBlockUsed,
			"used block counter spans past the class arena")
		return ref, false
	}

	// End sentinel at the span end: restamp on damage and carry on, so the
	// reclaim still completes.
	spanEnd := blockOff + offBlockPayload + uintptr(c.payloadSpan(used))
	if !p.sentinelAt(spanEnd, &blockEndSentinel) {
		p.recordErrorAt(Overflow, spanEnd, "block end sentinel damaged")
		p.stamp(spanEnd, &blockEndSentinel)
	}

	if data > c.payloadSpan(used) {
		p.recordErrorAt(InconsistentBlocks, blockOff+offBlockData,
			"data size exceeds the payload span")
		data = c.payloadSpan(used)
	}

	ref = blockRef{off: blockOff, ci: ci, used: used, data: data}
	return ref, true
}

// freeLocked validates and reclaims one allocation.
func (p *Pool) freeLocked(ptr unsafe.Pointer) bool {
	ref, ok := p.resolveBlock(ptr)
	if !ok {
		return false
	}
	c := &p.cats[ref.ci]

	// Under full checks the slack between the requested size and the span
	// end must still carry the init byte; a stray write there is an
	// overflow, but the reclaim still completes.
	if p.settings.FullOverflowChecks {
		span := c.payloadSpan(ref.used)
		payload := ref.off + offBlockPayload
		if !p.filledWith(payload+uintptr(ref.data), uintptr(span-ref.data), InitByte) {
			p.recordErrorAt(Overflow, payload+uintptr(ref.data),
				"write past the requested size into the block slack")
		}
	}

	p.reclaimRun(c, ref.off, ref.used)
	p.stats.frees.Add(1)
	return true
}

// reclaimRun splits the merged run back into individual free cells:
// init-byte payloads, restamped sentinels, NotSet counters. The category
// window widens to include the whole run.
func (p *Pool) reclaimRun(c *category, blockOff uintptr, used uint64) {
	stride := c.stride()
	span := c.payloadSpan(used)
	p.fill(blockOff+offBlockPayload, uintptr(span), InitByte)
	for i := uint64(0); i < used; i++ {
		p.formatFreeBlock(blockOff+uintptr(i)*stride, c)
	}
	c.occupied -= used
	lastCell := blockOff + uintptr(used-1)*stride
	p.extendWindowOnFree(c, blockOff, lastCell)
}
