package mempool

import (
	"os"
	"unsafe"
)

// Settings carries the creation parameters. The pool keeps an immutable
// copy; GetSettings returns that copy, not the caller's original.
type Settings struct {
	TotalSize          uint64             // payload capacity; recomputed at create
	BlockCounts        [NumClasses]uint64 // blocks per class, ascending class order
	Callback           ErrorCallback      // invoked once per error event, or nil
	Threadsafe         bool               // serialize mutating operations
	FullOverflowChecks bool               // verify init-byte fill of free payload and slack
	ZeroOnAlloc        bool               // zero the requested bytes on allocate
	DumpFilePath       string             // non-empty enables the dump writer
}

// Pool is the owning handle for one backing region. All category and aux
// state is reached through the handle; every user-facing operation
// re-verifies the pool start sentinel before touching the region.
type Pool struct {
	region   region
	base     unsafe.Pointer
	size     uintptr
	settings Settings
	cats     [NumClasses]category
	lock     poolLock

	lastCode ErrorCode
	lastLen  int
	lastMsg  [ErrMsgBufSize]byte

	stats poolStats
}

// Create builds a pool over a freshly acquired backing region and returns
// its handle, or nil. On failure the settings callback, if any, receives
// NoMemory or InconsistentSettings.
//
// The caller's TotalSize is recomputed as the sum of the configured block
// payloads; a differing non-zero value still creates the pool but flags
// InconsistentSettings. A non-empty dump path is deleted here so each pool
// run starts a fresh dump.
func Create(s Settings) *Pool {
	fail := func(code ErrorCode, msg string) *Pool {
		if s.Callback != nil {
			s.Callback(code, msg)
		}
		return nil
	}

	if len(s.DumpFilePath) >= DumpPathSize {
		return fail(InconsistentSettings, "dump file path exceeds the fixed path buffer")
	}
	var total uint64
	for i, n := range s.BlockCounts {
		total += n * classPayloadSizes[i]
	}
	if total == 0 {
		return fail(InconsistentSettings, "no blocks configured in any size class")
	}
	inconsistent := s.TotalSize != 0 && s.TotalSize != total
	s.TotalSize = total

	regionSize := RequiredSize(s.BlockCounts)
	reg, err := acquireRegion(regionSize)
	if err != nil {
		return fail(NoMemory, "backing region acquisition failed: "+err.Error())
	}

	p := &Pool{
		region:   reg,
		base:     unsafe.Pointer(unsafe.SliceData(reg.data)),
		size:     regionSize,
		settings: s,
	}
	p.lock.init(s.Threadsafe)
	p.initLayout()

	if s.DumpFilePath != "" {
		_ = os.Remove(s.DumpFilePath)
	}
	p.syncRegionMeta()

	if inconsistent {
		p.recordError(InconsistentSettings,
			"total size recomputed from the per-class block counts")
	}
	return p
}

// initLayout stamps the pool sentinels, builds the category table, and
// formats every block as free: stamped sentinels, NotSet counters, and an
// init-byte payload.
func (p *Pool) initLayout() {
	p.stamp(offPoolStart, &poolStartSentinel)
	p.stamp(p.size-Align, &poolEndSentinel)

	off := uintptr(offArenas)
	for i := range p.cats {
		c := &p.cats[i]
		c.blockSize = classPayloadSizes[i]
		c.total = p.settings.BlockCounts[i]
		c.occupied = 0
		if c.total == 0 {
			continue
		}
		stride := c.stride()
		c.start = off
		c.last = off + uintptr(c.total-1)*stride
		c.firstFree = c.start
		c.lastFree = c.last
		for b := c.start; b <= c.last; b += stride {
			p.formatFreeBlock(b, c)
		}
		off = c.last + stride
	}
}

// formatFreeBlock stamps one block cell as free.
func (p *Pool) formatFreeBlock(b uintptr, c *category) {
	p.stamp(b, &blockStartSentinel)
	p.setWord(b+offBlockUsed, NotSet)
	p.setWord(b+offBlockData, NotSet)
	p.fill(b+offBlockPayload, uintptr(c.blockSize), InitByte)
	p.stamp(b+offBlockPayload+uintptr(c.blockSize), &blockEndSentinel)
}

// valid reports whether the handle still owns a region that begins with
// the pool start sentinel.
func (p *Pool) valid() bool {
	return p != nil && p.base != nil && p.sentinelAt(offPoolStart, &poolStartSentinel)
}

// checkPoolEndSentinel verifies the closing sentinel, recording an
// Overflow and restamping on mismatch so subsequent operations have a
// chance of succeeding. Only exercised when full overflow checks are on.
func (p *Pool) checkPoolEndSentinel() {
	off := p.size - Align
	if !p.sentinelAt(off, &poolEndSentinel) {
		p.recordErrorAt(Overflow, off, "pool end sentinel damaged")
		p.stamp(off, &poolEndSentinel)
	}
}

// Destroy scrubs and releases the backing region. It returns false iff the
// handle does not carry the pool sentinel. The caller must guarantee no
// other operation is in flight against the handle.
func (p *Pool) Destroy() bool {
	if !p.valid() {
		return false
	}
	p.lock.acquire()
	p.fill(0, p.size, 0)
	p.lock.release()
	p.lock.destroy()
	_ = p.region.release()
	p.base = nil
	p.size = 0
	return true
}

// GetSettings copies the pool's immutable settings into out. It takes no
// lock; the settings never change after create.
func (p *Pool) GetSettings(out *Settings) bool {
	if !p.valid() {
		return false
	}
	p.clearLastError()
	if out == nil {
		p.recordError(OutputParamError, "nil settings output parameter")
		return false
	}
	*out = p.settings
	return true
}

// syncRegionMeta serializes the settings, category table, and aux state
// into their reserved region sections. The authoritative copies live on
// the handle; the on-region mirror keeps the byte layout that external
// dump consumers read.
func (p *Pool) syncRegionMeta() {
	// Settings section.
	p.setWord(offSettings+setOffTotalSize, p.settings.TotalSize)
	for i, n := range p.settings.BlockCounts {
		p.setWord(offSettings+setOffCounts+uintptr(i)*Word, n)
	}
	p.setWord(offSettings+setOffCallback, 0)
	var flags uint64
	if p.settings.Threadsafe {
		flags |= 1
	}
	if p.settings.FullOverflowChecks {
		flags |= 1 << 8
	}
	if p.settings.ZeroOnAlloc {
		flags |= 1 << 16
	}
	p.setWord(offSettings+setOffFlags, flags)
	path := p.bytes(offSettings+setOffDumpPath, DumpPathSize)
	for i := range path {
		path[i] = 0
	}
	copy(path, p.settings.DumpFilePath)

	// Category table.
	for i := range p.cats {
		c := &p.cats[i]
		e := uintptr(offCatTable) + uintptr(i)*catEntrySize
		p.setWord(e, c.blockSize)
		p.setWord(e+Word, c.total)
		p.setWord(e+2*Word, c.occupied)
		p.setWord(e+3*Word, uint64(c.start))
		p.setWord(e+4*Word, uint64(c.last))
		p.setWord(e+5*Word, uint64(c.firstFree))
		p.setWord(e+6*Word, uint64(c.lastFree))
	}

	// Aux section.
	p.setWord(offAux+auxOffLockHandle, 0)
	var lockInit uint64
	if p.lock.initialized {
		lockInit = 1
	}
	p.setWord(offAux+auxOffLockInit, lockInit)
	p.setWord(offAux+auxOffLastErr, uint64(p.lastCode))
	p.setWord(offAux+auxOffMsgLen, uint64(p.lastLen))
	msg := p.bytes(offAux+auxOffMsg, ErrMsgBufSize)
	for i := range msg {
		msg[i] = 0
	}
	copy(msg, p.lastMsg[:p.lastLen])
}
