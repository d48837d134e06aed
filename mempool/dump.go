package mempool

import (
	"github.com/orizon-lang/emballoc/internal/dumpfile"
)

// appendDump writes the error message and a full-region hex dump to the
// configured dump file. The on-region metadata mirror is refreshed first
// so the dump shows the live settings, category table, and aux state.
// Dump I/O failures are swallowed; the dump is a best-effort sink.
func (p *Pool) appendDump(msg string, mark int64) {
	p.syncRegionMeta()
	_ = dumpfile.Append(p.settings.DumpFilePath, msg, p.bytes(0, p.size), mark)
}
