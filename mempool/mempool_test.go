// Package mempool tests cover the pool lifecycle, the settings
// sanitation rules, and the error-reporting surfaces.
package mempool

import (
	"strings"
	"testing"
)

// newTestPool builds a pool over the given per-class counts and registers
// teardown. Extra settings tweaks go through the mutate callback.
func newTestPool(t *testing.T, counts [NumClasses]uint64, mutate func(*Settings)) *Pool {
	t.Helper()
	s := Settings{BlockCounts: counts}
	if mutate != nil {
		mutate(&s)
	}
	p := Create(s)
	if p == nil {
		t.Fatalf("Create(%v) returned nil", counts)
	}
	t.Cleanup(func() { p.Destroy() })
	return p
}

func counts(pairs ...uint64) [NumClasses]uint64 {
	var c [NumClasses]uint64
	for i := 0; i+1 < len(pairs); i += 2 {
		for ci, bs := range classPayloadSizes {
			if bs == pairs[i] {
				c[ci] = pairs[i+1]
			}
		}
	}
	return c
}

func TestCreateRecomputesTotalSize(t *testing.T) {
	var got []ErrorCode
	p := newTestPool(t, counts(32, 2, 64, 1), func(s *Settings) {
		s.TotalSize = 999
		s.Callback = func(code ErrorCode, msg string) { got = append(got, code) }
	})

	var out Settings
	if !p.GetSettings(&out) {
		t.Fatalf("GetSettings failed")
	}
	if out.TotalSize != 2*32+64 {
		t.Errorf("TotalSize = %d, want %d", out.TotalSize, 2*32+64)
	}
	if len(got) != 1 || got[0] != InconsistentSettings {
		t.Errorf("callback codes = %v, want [InconsistentSettings]", got)
	}
}

func TestCreateZeroTotalSizeIsNotFlagged(t *testing.T) {
	p := newTestPool(t, counts(32, 1), func(s *Settings) {
		s.Callback = func(code ErrorCode, msg string) {
			t.Errorf("unexpected callback: %v %q", code, msg)
		}
	})
	if code := p.LastErrorCode(); code != NoErr {
		t.Errorf("LastErrorCode = %v, want NoErr", code)
	}
}

func TestCreateRejectsEmptyConfiguration(t *testing.T) {
	var got ErrorCode
	p := Create(Settings{Callback: func(code ErrorCode, msg string) { got = code }})
	if p != nil {
		t.Fatalf("Create with no blocks returned a pool")
	}
	if got != InconsistentSettings {
		t.Errorf("callback code = %v, want InconsistentSettings", got)
	}
}

func TestCreateRejectsOverlongDumpPath(t *testing.T) {
	p := Create(Settings{
		BlockCounts:  counts(32, 1),
		DumpFilePath: strings.Repeat("x", DumpPathSize),
	})
	if p != nil {
		t.Fatalf("Create with an overlong dump path returned a pool")
	}
}

func TestDestroyInvalidatesHandle(t *testing.T) {
	p := Create(Settings{BlockCounts: counts(32, 2)})
	if p == nil {
		t.Fatal("Create returned nil")
	}
	ptr := p.Alloc(10)
	if ptr == nil {
		t.Fatal("Alloc failed")
	}
	if !p.Destroy() {
		t.Fatal("Destroy returned false")
	}
	if p.Destroy() {
		t.Error("second Destroy returned true")
	}
	if code := p.LastErrorCode(); code != InvalidMempool {
		t.Errorf("LastErrorCode after destroy = %v, want InvalidMempool", code)
	}
	if msg := p.LastErrorMessage(); msg != "not a mempool" {
		t.Errorf("LastErrorMessage after destroy = %q, want %q", msg, "not a mempool")
	}
	if p.Alloc(10) != nil {
		t.Error("Alloc after destroy returned non-nil")
	}
	var out Settings
	if p.GetSettings(&out) {
		t.Error("GetSettings after destroy returned true")
	}
}

func TestGetSettingsNilOutParam(t *testing.T) {
	p := newTestPool(t, counts(32, 1), nil)
	if p.GetSettings(nil) {
		t.Error("GetSettings(nil) returned true")
	}
	if code := p.LastErrorCode(); code != OutputParamError {
		t.Errorf("LastErrorCode = %v, want OutputParamError", code)
	}
}

func TestLastErrorClearedOnOperationEntry(t *testing.T) {
	p := newTestPool(t, counts(32, 1), nil)
	if p.Alloc(0) != nil {
		t.Fatal("zero-size Alloc returned non-nil")
	}
	if code := p.LastErrorCode(); code != NoMemory {
		t.Fatalf("LastErrorCode = %v, want NoMemory", code)
	}
	ptr := p.Alloc(8)
	if ptr == nil {
		t.Fatal("Alloc failed")
	}
	if code := p.LastErrorCode(); code != NoErr {
		t.Errorf("LastErrorCode after success = %v, want NoErr", code)
	}

	// A nil free is a silent no-op that must not clear the slot.
	if p.Alloc(0) != nil {
		t.Fatal("zero-size Alloc returned non-nil")
	}
	p.Free(nil)
	if code := p.LastErrorCode(); code != NoMemory {
		t.Errorf("LastErrorCode after Free(nil) = %v, want NoMemory", code)
	}
}

func TestErrorCodeStrings(t *testing.T) {
	names := map[ErrorCode]string{
		NoErr:                "NoErr",
		InconsistentSettings: "InconsistentSettings",
		ThreadSyncError:      "ThreadSyncError",
		OutputParamError:     "OutputParamError",
		InvalidMempool:       "InvalidMempool",
		NoMemory:             "NoMemory",
		Overflow:             "Overflow",
		InconsistentBlocks:   "InconsistentBlocks",
		PointerParamError:    "PointerParamError",
	}
	for code, want := range names {
		if got := code.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", uint32(code), got, want)
		}
	}
}

func TestRequiredSizeCoversLayout(t *testing.T) {
	c := counts(32, 4, 4096, 2)
	want := uintptr(offArenas) + 4*(32+48) + 2*(4096+48) + Align
	if got := RequiredSize(c); got != want {
		t.Errorf("RequiredSize = %d, want %d", got, want)
	}
}

func TestFreshPoolIntegrity(t *testing.T) {
	p := newTestPool(t, counts(32, 4, 64, 2, 4096, 1), nil)
	if err := p.verifyIntegrity(); err != nil {
		t.Fatalf("fresh pool fails integrity sweep: %v", err)
	}
	for i := range p.cats {
		c := &p.cats[i]
		if c.total == 0 {
			continue
		}
		stride := c.stride()
		for b := c.start; b <= c.last; b += stride {
			if !p.filledWith(b+offBlockPayload, uintptr(c.blockSize), InitByte) {
				t.Fatalf("class %d block at %d not init-filled", i, b)
			}
		}
	}
}

func TestZeroOnAlloc(t *testing.T) {
	p := newTestPool(t, counts(32, 2), func(s *Settings) { s.ZeroOnAlloc = true })
	ptr := p.Alloc(16)
	if ptr == nil {
		t.Fatal("Alloc failed")
	}
	for i, b := range ptrBytes(ptr, 16) {
		if b != 0 {
			t.Fatalf("byte %d = %#x, want 0", i, b)
		}
	}

	q := newTestPool(t, counts(32, 2), nil)
	ptr2 := q.Alloc(16)
	if ptr2 == nil {
		t.Fatal("Alloc failed")
	}
	for i, b := range ptrBytes(ptr2, 16) {
		if b != InitByte {
			t.Fatalf("byte %d = %#x, want init byte", i, b)
		}
	}
}
