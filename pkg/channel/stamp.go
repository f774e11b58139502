package channel

import "math/bits"

// stampCoder packs a slot index, a lap counter and the close mark into a
// single uint64 cursor. The mark bit sits just above the index bits; laps
// occupy everything above it. Stamps from different laps never collide
// because the lap bits always advance.
type stampCoder struct {
	markBit uint64
	oneLap  uint64
}

func newStampCoder(capacity uint64) stampCoder {
	mark := nextPowerOfTwo(capacity + 1)
	return stampCoder{markBit: mark, oneLap: mark * 2}
}

// index extracts the slot index from a cursor.
func (c stampCoder) index(v uint64) uint64 { return v & (c.markBit - 1) }

// lap extracts the lap bits from a cursor.
func (c stampCoder) lap(v uint64) uint64 { return v &^ (c.oneLap - 1) }

// marked reports whether the close mark is set on a cursor.
func (c stampCoder) marked(v uint64) bool { return v&c.markBit != 0 }

// unmark clears the close mark from a cursor.
func (c stampCoder) unmark(v uint64) uint64 { return v &^ c.markBit }

func nextPowerOfTwo(v uint64) uint64 {
	if v <= 1 {
		return 1
	}
	return 1 << bits.Len64(v-1)
}
