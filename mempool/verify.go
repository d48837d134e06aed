package mempool

import (
	"fmt"
)

// verifyIntegrity sweeps the whole region against the structural
// invariants: pool sentinels, per-class block walks, occupancy counts,
// and the free-pointer window. It mutates nothing and reports the first
// violation found.
func (p *Pool) verifyIntegrity() error {
	if !p.sentinelAt(offPoolStart, &poolStartSentinel) {
		return fmt.Errorf("pool start sentinel damaged")
	}
	if !p.sentinelAt(p.size-Align, &poolEndSentinel) {
		return fmt.Errorf("pool end sentinel damaged")
	}

	for i := range p.cats {
		if err := p.verifyClass(&p.cats[i]); err != nil {
			return fmt.Errorf("class %d: %w", i, err)
		}
	}
	return nil
}

func (p *Pool) verifyClass(c *category) error {
	if c.occupied > c.total {
		return fmt.Errorf("occupied %d exceeds total %d", c.occupied, c.total)
	}
	if c.total == 0 {
		if c.start != 0 || c.last != 0 || c.firstFree != 0 || c.lastFree != 0 {
			return fmt.Errorf("empty class carries non-null addresses")
		}
		return nil
	}

	stride := c.stride()
	var occupied uint64
	var firstFree, lastFree uintptr

	for off := c.start; off <= c.last; {
		if !p.sentinelAt(off, &blockStartSentinel) {
			return fmt.Errorf("block start sentinel damaged at offset %d", off)
		}
		used := p.word(off + offBlockUsed)
		data := p.word(off + offBlockData)
		if used == NotSet {
			if data != NotSet {
				return fmt.Errorf("free block with set data_size at offset %d", off)
			}
			end := off + offBlockPayload + uintptr(c.blockSize)
			if !p.sentinelAt(end, &blockEndSentinel) {
				return fmt.Errorf("free block end sentinel damaged at offset %d", off)
			}
			if firstFree == 0 {
				firstFree = off
			}
			lastFree = off
			off += stride
			continue
		}
		if used == 0 || off+uintptr(used-1)*stride > c.last {
			return fmt.Errorf("used_blocks %d spans past the arena at offset %d", used, off)
		}
		if data > c.payloadSpan(used) {
			return fmt.Errorf("data_size %d exceeds the payload span at offset %d", data, off)
		}
		end := off + offBlockPayload + uintptr(c.payloadSpan(used))
		if !p.sentinelAt(end, &blockEndSentinel) {
			return fmt.Errorf("allocated run end sentinel damaged at offset %d", off)
		}
		occupied += used
		off += uintptr(used) * stride
	}

	if occupied != c.occupied {
		return fmt.Errorf("occupancy count %d disagrees with the walk %d", c.occupied, occupied)
	}
	if c.occupied < c.total {
		if c.firstFree == 0 || c.lastFree == 0 {
			return fmt.Errorf("free window null with occupancy %d of %d", c.occupied, c.total)
		}
		if p.word(c.firstFree+offBlockUsed) != NotSet {
			return fmt.Errorf("first_free_address names an occupied block")
		}
		if p.word(c.lastFree+offBlockUsed) != NotSet {
			return fmt.Errorf("last_free_address names an occupied block")
		}
		if firstFree < c.firstFree {
			return fmt.Errorf("free block below first_free_address")
		}
		if lastFree > c.lastFree {
			return fmt.Errorf("free block above last_free_address")
		}
	}
	return nil
}
