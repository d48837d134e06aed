// Package mempool implements a fixed-capacity, segregated-size memory pool.
// This module partitions a single pre-acquired backing region into eight
// size classes, serves variable-sized requests out of that region, and
// detects corruption via sentinel values embedded alongside user data.
package mempool

import (
	"unsafe"
)

// Word is the machine word size the on-memory format is defined over.
const Word = 8

// Align is the section and block-header alignment unit (two machine words).
const Align = 2 * Word

// NotSet marks a counter word as "free"; it is the maximum machine word value.
const NotSet = ^uint64(0)

// InitByte is the canonical fill value for free payload and slack regions.
const InitByte byte = 0xAC

// NumClasses is the number of fixed size classes.
const NumClasses = 8

// ErrMsgBufSize is the fixed capacity of the last-error message buffer.
const ErrMsgBufSize = 512

// DumpPathSize is the fixed capacity of the dump-file path buffer.
const DumpPathSize = 128

// classPayloadSizes lists the per-class payload capacities in ascending order.
var classPayloadSizes = [NumClasses]uint64{32, 64, 128, 256, 512, 1024, 2048, 4096}

// ClassPayloadSizes returns the eight fixed payload sizes in ascending order.
func ClassPayloadSizes() [NumClasses]uint64 {
	return classPayloadSizes
}

// Per-block offsets. A block is laid out as:
//
//	[0, A)        block start sentinel
//	[A, A+8)      used_blocks, or NotSet when free
//	[A+8, A+16)   data_size, or NotSet when free
//	[2A, 2A+size) payload
//	[2A+size, 3A+size) block end sentinel
const (
	offBlockUsed    = Align
	offBlockData    = Align + Word
	offBlockPayload = 2 * Align

	// blockOverhead is the non-payload portion of a block: start sentinel,
	// two counter words, end sentinel.
	blockOverhead = 3 * Align
)

// On-region section sizes. All sections are padded to Align.
const (
	// settings area: total_size(8) + counts(64) + callback slot(8) +
	// flag bytes(8) + dump path(128), padded.
	settingsAreaSize = 224

	// category entry: block_size, total, occupied, start, last,
	// first_free, last_free (7 words), padded.
	catEntrySize = 64
	catTableSize = NumClasses * catEntrySize

	// aux area: lock handle(8) + lock_initialized(8) + last_error(8) +
	// message length(8) + message buffer.
	auxAreaSize = 4*Word + ErrMsgBufSize
)

// Region offsets of the fixed sections. Block arenas follow the aux area
// and the pool end sentinel closes the region.
const (
	offPoolStart = 0
	offSettings  = offPoolStart + Align
	offCatTable  = offSettings + settingsAreaSize
	offAux       = offCatTable + catTableSize
	offArenas    = offAux + auxAreaSize
)

// Offsets within the on-region settings area.
const (
	setOffTotalSize = 0
	setOffCounts    = Word
	setOffCallback  = setOffCounts + NumClasses*Word
	setOffFlags     = setOffCallback + Word
	setOffDumpPath  = setOffFlags + Word
)

// Offsets within the on-region aux area.
const (
	auxOffLockHandle = 0
	auxOffLockInit   = Word
	auxOffLastErr    = 2 * Word
	auxOffMsgLen     = 3 * Word
	auxOffMsg        = 4 * Word
)

// The four fixed sentinel patterns. Exact byte values are part of the
// on-memory format and are compared bytewise.
var (
	poolStartSentinel = [Align]byte{
		0xDE, 0xCE, 0xCA, 0xDE, 0xF0, 0xCA, 0xAC, 0xDC,
		0xF0, 0x0D, 0xFA, 0xCE, 0xDE, 0xAD, 0xBE, 0xEF,
	}
	poolEndSentinel = [Align]byte{
		0xDE, 0xAD, 0xBE, 0xEF, 0xF0, 0x0D, 0xFA, 0xCE,
		0xAC, 0xDC, 0xDE, 0xCE, 0xCA, 0xDE, 0xF0, 0xCA,
	}
	blockStartSentinel = [Align]byte{
		0xF0, 0x0D, 0xFA, 0xCE, 0xDE, 0xAD, 0xBE, 0xEF,
		0xDE, 0xCE, 0xCA, 0xDE, 0xF0, 0xCA, 0xAC, 0xDC,
	}
	blockEndSentinel = [Align]byte{
		0xAC, 0xDC, 0xDE, 0xCE, 0xCA, 0xDE, 0xF0, 0xCA,
		0xDE, 0xAD, 0xBE, 0xEF, 0xF0, 0x0D, 0xFA, 0xCE,
	}
)

// RequiredSize computes the backing-region size for the given per-class
// block counts: fixed header sections, one arena per non-empty class, and
// the closing sentinel.
func RequiredSize(counts [NumClasses]uint64) uintptr {
	n := uintptr(offArenas)
	for i, c := range counts {
		n += uintptr(c) * (uintptr(classPayloadSizes[i]) + blockOverhead)
	}
	return n + Align
}

// word reads a native-endian machine word at the given region offset.
func (p *Pool) word(off uintptr) uint64 {
	return *(*uint64)(unsafe.Add(p.base, off))
}

// setWord writes a native-endian machine word at the given region offset.
func (p *Pool) setWord(off uintptr, v uint64) {
	*(*uint64)(unsafe.Add(p.base, off)) = v
}

// bytes returns the region byte window [off, off+n) as a slice.
func (p *Pool) bytes(off, n uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Add(p.base, off)), n)
}

// fill overwrites the region window [off, off+n) with b.
func (p *Pool) fill(off, n uintptr, b byte) {
	s := p.bytes(off, n)
	for i := range s {
		s[i] = b
	}
}

// stamp writes a sentinel pattern at the given region offset.
func (p *Pool) stamp(off uintptr, sentinel *[Align]byte) {
	copy(p.bytes(off, Align), sentinel[:])
}

// sentinelAt reports whether the region bytes at off equal the pattern.
func (p *Pool) sentinelAt(off uintptr, sentinel *[Align]byte) bool {
	s := p.bytes(off, Align)
	for i := range sentinel {
		if s[i] != sentinel[i] {
			return false
		}
	}
	return true
}

// filledWith reports whether every byte in [off, off+n) equals b.
func (p *Pool) filledWith(off, n uintptr, b byte) bool {
	s := p.bytes(off, n)
	for i := range s {
		if s[i] != b {
			return false
		}
	}
	return true
}

// addrOf converts a region offset to the user-visible address used in
// error messages.
func (p *Pool) addrOf(off uintptr) uintptr {
	return uintptr(p.base) + off
}

// offsetOf maps a user pointer back to its region offset. ok is false when
// the pointer does not fall inside the region.
func (p *Pool) offsetOf(ptr unsafe.Pointer) (uintptr, bool) {
	off := uintptr(ptr) - uintptr(p.base)
	return off, off < p.size
}
