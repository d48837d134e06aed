package mempool

import (
	"fmt"
)

// ErrorCode classifies pool failures. Codes are published through the
// per-pool last-error slot, the registered callback, and the dump file.
type ErrorCode uint32

const (
	NoErr ErrorCode = iota
	InconsistentSettings
	ThreadSyncError
	OutputParamError
	InvalidMempool
	NoMemory
	Overflow
	InconsistentBlocks
	PointerParamError
)

// String returns the canonical name of the error code.
func (c ErrorCode) String() string {
	switch c {
	case NoErr:
		return "NoErr"
	case InconsistentSettings:
		return "InconsistentSettings"
	case ThreadSyncError:
		return "ThreadSyncError"
	case OutputParamError:
		return "OutputParamError"
	case InvalidMempool:
		return "InvalidMempool"
	case NoMemory:
		return "NoMemory"
	case Overflow:
		return "Overflow"
	case InconsistentBlocks:
		return "InconsistentBlocks"
	case PointerParamError:
		return "PointerParamError"
	}
	return fmt.Sprintf("ErrorCode(%d)", uint32(c))
}

// ErrorCallback receives every error event, synchronously, before the
// failing operation returns.
type ErrorCallback func(code ErrorCode, msg string)

// invalidPoolMessage is returned by LastErrorMessage when the handle does
// not carry the pool sentinel.
const invalidPoolMessage = "not a mempool"

// clearLastError resets the last-error slot at the entry of a user-facing
// operation.
func (p *Pool) clearLastError() {
	p.lastCode = NoErr
	p.lastLen = 0
}

// recordError publishes an error event through all configured sinks: the
// last-error slot, the callback, and the dump file.
func (p *Pool) recordError(code ErrorCode, msg string) {
	p.publish(code, msg, noMark)
}

// recordErrorAt publishes an error event whose message carries the
// offending location in the fixed form
// "(at the 0xADDR location / OFFSET mempool offset)".
func (p *Pool) recordErrorAt(code ErrorCode, off uintptr, msg string) {
	full := fmt.Sprintf("%s (at the 0x%X location / %d mempool offset)",
		msg, p.addrOf(off), off)
	p.publish(code, full, int64(off))
}

// noMark disables the offset marker in dump records.
const noMark = int64(-1)

func (p *Pool) publish(code ErrorCode, msg string, mark int64) {
	p.lastCode = code
	p.lastLen = copy(p.lastMsg[:ErrMsgBufSize-1], msg)
	if code == Overflow || code == InconsistentBlocks {
		p.stats.corruptionEvents.Add(1)
	}
	if p.settings.Callback != nil {
		p.settings.Callback(code, msg)
	}
	if p.settings.DumpFilePath != "" {
		p.appendDump(msg, mark)
	}
}

// LastErrorCode returns the most recent error recorded against the pool,
// or InvalidMempool when the handle does not carry the pool sentinel.
func (p *Pool) LastErrorCode() ErrorCode {
	if !p.valid() {
		return InvalidMempool
	}
	return p.lastCode
}

// LastErrorMessage returns the human-readable reason for the most recent
// error, or "not a mempool" when the handle does not carry the pool
// sentinel. The empty string means no error has been recorded since the
// last operation entry.
func (p *Pool) LastErrorMessage() string {
	if !p.valid() {
		return invalidPoolMessage
	}
	return string(p.lastMsg[:p.lastLen])
}
