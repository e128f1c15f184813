package backend

import (
	"math/bits"

	"github.com/roach88/npu/internal/ir"
)

const (
	emptyKey         = uint32(ir.InvalidNeuron)
	minTableCapacity = 256
	// hashMultiplier is Knuth's multiplicative constant (2^32 / phi).
	hashMultiplier = 2654435761
)

// sourceEntry locates one source's synapses in the packed buffers.
type sourceEntry struct {
	start uint32
	count uint32
	flags uint8
}

// sourceTable is an open-addressing hash table keyed by source neuron id
// with linear probing. Capacity is a power of two at least twice the
// number of keys, so probe chains always reach an empty slot.
type sourceTable struct {
	keys    []uint32
	entries []sourceEntry
	mask    uint32
	size    int
}

func tableCapacity(keys, minCap int) int {
	if minCap < minTableCapacity {
		minCap = minTableCapacity
	}
	want := max(2*keys, minCap)
	return 1 << bits.Len(uint(want-1))
}

func newSourceTable(keys, minCap int) *sourceTable {
	capacity := tableCapacity(keys, minCap)
	t := &sourceTable{
		keys:    make([]uint32, capacity),
		entries: make([]sourceEntry, capacity),
		mask:    uint32(capacity - 1),
	}
	for i := range t.keys {
		t.keys[i] = emptyKey
	}
	return t
}

func (t *sourceTable) home(src uint32) uint32 {
	return (src * hashMultiplier) & t.mask
}

// insert adds or replaces src.
func (t *sourceTable) insert(src uint32, e sourceEntry) {
	i := t.home(src)
	for {
		switch t.keys[i] {
		case emptyKey:
			t.keys[i] = src
			t.entries[i] = e
			t.size++
			return
		case src:
			t.entries[i] = e
			return
		}
		i = (i + 1) & t.mask
	}
}

// lookup finds src, probing past any number of colliding keys.
func (t *sourceTable) lookup(src uint32) (sourceEntry, bool) {
	i := t.home(src)
	for probes := 0; probes <= int(t.mask); probes++ {
		switch t.keys[i] {
		case emptyKey:
			return sourceEntry{}, false
		case src:
			return t.entries[i], true
		}
		i = (i + 1) & t.mask
	}
	return sourceEntry{}, false
}

// capacity is the number of slots.
func (t *sourceTable) capacity() int { return len(t.keys) }

// bytes is the table's buffer footprint.
func (t *sourceTable) bytes() int { return len(t.keys) * (4 + 12) }
