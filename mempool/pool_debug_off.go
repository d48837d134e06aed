//go:build !debug

package mempool

// This file provides no-op debug hooks for non-debug builds.

// debugPostAllocValidate runs a strict structural sweep after each
// allocation in debug builds. No-op in normal builds.
func debugPostAllocValidate(p *Pool, blockOff uintptr, k, size uint64) {}
