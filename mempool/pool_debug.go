//go:build debug

package mempool

import (
	"fmt"
)

// In debug builds, enforce a strict structural sweep after allocation.

func debugPostAllocValidate(p *Pool, blockOff uintptr, k, size uint64) {
	if p.word(blockOff+offBlockUsed) != k {
		panic(fmt.Sprintf("debug: used_blocks mismatch at offset %d", blockOff))
	}
	if p.word(blockOff+offBlockData) != size {
		panic(fmt.Sprintf("debug: data_size mismatch at offset %d", blockOff))
	}
	if err := p.verifyIntegrity(); err != nil {
		panic("debug: " + err.Error())
	}
}
