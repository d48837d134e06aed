//go:build unix

package mempool

import (
	"golang.org/x/sys/unix"
)

// region owns the backing bytes of one pool. On unix targets the region is
// an anonymous private mapping so the pool never contends with the Go heap
// and teardown returns the pages to the kernel in one call.
type region struct {
	data   []byte
	mapped bool
}

func acquireRegion(n uintptr) (region, error) {
	b, err := unix.Mmap(-1, 0, int(n),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return region{}, err
	}
	return region{data: b, mapped: true}, nil
}

func (r *region) release() error {
	if !r.mapped {
		r.data = nil
		return nil
	}
	err := unix.Munmap(r.data)
	r.data = nil
	r.mapped = false
	return err
}
