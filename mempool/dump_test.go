package mempool

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/orizon-lang/emballoc/internal/dumpfile"
)

func TestDumpWrittenOnCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.dump")
	p := newTestPool(t, counts(32, 2), func(s *Settings) {
		s.FullOverflowChecks = true
		s.DumpFilePath = path
	})

	ptr := p.Alloc(10)
	if ptr == nil {
		t.Fatal("Alloc failed")
	}
	ptrBytes(ptr, 12)[11] = 0x01 // slack damage
	p.Free(ptr)

	recs, err := dumpfile.ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(recs) == 0 {
		t.Fatal("no dump records written")
	}
	rec := recs[0]
	if rec.Version != dumpfile.FormatVersion {
		t.Errorf("record version = %q, want %q", rec.Version, dumpfile.FormatVersion)
	}
	if rec.Message == "" {
		t.Error("record message empty")
	}
	if rec.Mark < 0 {
		t.Errorf("record mark = %d, want an offset", rec.Mark)
	}
	if rec.RegionSize != int64(RequiredSize(counts(32, 2))) {
		t.Errorf("record region size = %d, want %d", rec.RegionSize, RequiredSize(counts(32, 2)))
	}
	if len(rec.Dump) == 0 {
		t.Error("record carries no hex dump lines")
	}
}

func TestCreateDeletesStaleDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pool.dump")
	if err := os.WriteFile(path, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}
	newTestPool(t, counts(32, 1), func(s *Settings) { s.DumpFilePath = path })

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("stale dump file survived create: %v", err)
	}
}
