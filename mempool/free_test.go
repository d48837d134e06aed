package mempool

import (
	"testing"
	"unsafe"
)

func TestAllocFreeRoundTripRestoresTable(t *testing.T) {
	p := newTestPool(t, counts(32, 4, 64, 2, 256, 3), nil)

	for _, size := range []uint64{1, 8, 32, 33, 60, 100, 200, 256} {
		before := p.cats
		ptr := p.Alloc(size)
		if ptr == nil {
			t.Fatalf("Alloc(%d) failed: %v", size, p.LastErrorMessage())
		}
		p.Free(ptr)
		if p.cats != before {
			t.Errorf("category table after Alloc(%d)+Free differs:\n got %+v\nwant %+v",
				size, p.cats, before)
		}
		if err := p.verifyIntegrity(); err != nil {
			t.Fatalf("integrity after round trip of %d: %v", size, err)
		}
	}
}

func TestFreeForeignPointer(t *testing.T) {
	p := newTestPool(t, counts(32, 2), nil)
	var local [64]byte

	p.Free(unsafe.Pointer(&local[0]))
	if code := p.LastErrorCode(); code != PointerParamError {
		t.Errorf("LastErrorCode = %v, want PointerParamError", code)
	}
	if p.cats[0].occupied != 0 {
		t.Error("foreign free mutated the table")
	}
}

func TestFreeMidPayloadPointer(t *testing.T) {
	p := newTestPool(t, counts(32, 2), nil)
	ptr := p.Alloc(16)
	if ptr == nil {
		t.Fatal("Alloc failed")
	}

	p.Free(unsafe.Add(ptr, 4))
	if code := p.LastErrorCode(); code != PointerParamError {
		t.Errorf("LastErrorCode = %v, want PointerParamError", code)
	}
	if p.cats[0].occupied != 1 {
		t.Error("mid-payload free mutated the table")
	}

	p.Free(ptr)
	if p.cats[0].occupied != 0 {
		t.Error("valid free after the bad one did not reclaim")
	}
}

func TestDoubleFreeRecordsOverflow(t *testing.T) {
	p := newTestPool(t, counts(32, 2), nil)
	ptr := p.Alloc(16)
	if ptr == nil {
		t.Fatal("Alloc failed")
	}
	p.Free(ptr)
	p.Free(ptr)
	if code := p.LastErrorCode(); code != Overflow {
		t.Errorf("LastErrorCode after double free = %v, want Overflow", code)
	}
	if p.cats[0].occupied != 0 {
		t.Errorf("occupied = %d after double free, want 0", p.cats[0].occupied)
	}
	if err := p.verifyIntegrity(); err != nil {
		t.Fatalf("integrity: %v", err)
	}
}

func TestSlackOverflowDetectedOnFree(t *testing.T) {
	var events []ErrorCode
	p := newTestPool(t, counts(32, 2), func(s *Settings) {
		s.FullOverflowChecks = true
		s.Callback = func(code ErrorCode, msg string) { events = append(events, code) }
	})

	ptr := p.Alloc(10)
	if ptr == nil {
		t.Fatal("Alloc failed")
	}
	// One byte past data_size, still inside the block payload.
	ptrBytes(ptr, 11)[10] = 0xFF

	p.Free(ptr)
	if code := p.LastErrorCode(); code != Overflow {
		t.Errorf("LastErrorCode = %v, want Overflow", code)
	}
	found := false
	for _, c := range events {
		if c == Overflow {
			found = true
		}
	}
	if !found {
		t.Error("callback did not receive the Overflow event")
	}
	// The free still completes.
	if p.cats[0].occupied != 0 {
		t.Errorf("occupied = %d, want 0", p.cats[0].occupied)
	}
	if err := p.verifyIntegrity(); err != nil {
		t.Fatalf("integrity: %v", err)
	}
}

func TestEndSentinelDamageRecoveredOnFree(t *testing.T) {
	p := newTestPool(t, counts(32, 2), nil)
	ptr := p.Alloc(32)
	if ptr == nil {
		t.Fatal("Alloc failed")
	}
	// Write one byte past the payload into the end sentinel.
	ptrBytes(ptr, 33)[32] = 0x00

	p.Free(ptr)
	if code := p.LastErrorCode(); code != Overflow {
		t.Errorf("LastErrorCode = %v, want Overflow", code)
	}
	if p.cats[0].occupied != 0 {
		t.Errorf("occupied = %d, want 0", p.cats[0].occupied)
	}
	// The sentinel was restored during recovery.
	if err := p.verifyIntegrity(); err != nil {
		t.Fatalf("integrity after recovery: %v", err)
	}
}

func TestErrorMessageCarriesLocation(t *testing.T) {
	p := newTestPool(t, counts(32, 2), nil)
	ptr := p.Alloc(16)
	p.Free(ptr)
	p.Free(ptr) // double free records Overflow with the block address

	msg := p.LastErrorMessage()
	if msg == "" {
		t.Fatal("empty last-error message")
	}
	wantSub := "mempool offset)"
	if len(msg) < len(wantSub) || msg[len(msg)-len(wantSub):] != wantSub {
		t.Errorf("message %q does not end with the location suffix", msg)
	}
}

func TestFreeRestoresInitFill(t *testing.T) {
	p := newTestPool(t, counts(64, 2), nil)
	ptr := p.Alloc(64)
	buf := ptrBytes(ptr, 64)
	for i := range buf {
		buf[i] = 0x77
	}
	p.Free(ptr)

	c := &p.cats[classIdx(t, 64)]
	for b := c.start; b <= c.last; b += c.stride() {
		if !p.filledWith(b+offBlockPayload, uintptr(c.blockSize), InitByte) {
			t.Fatalf("freed payload at %d not init-filled", b)
		}
	}
}
