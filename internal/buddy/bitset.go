package buddy

import "math/bits"

// Bitset is a fixed-size bit array at MinOrder granularity, backing the
// bitmap tracker strategy (spec.md §4.3). No pack example or ecosystem
// library offers a plain growable-free fixed bitset matching this exact
// shape (see DESIGN.md), so it is implemented directly over []uint64.
type Bitset struct {
	words []uint64
	nbits uint64
}

// NewBitset allocates a bitset with room for at least nbits bits.
func NewBitset(nbits uint64) *Bitset {
	return &Bitset{
		words: make([]uint64, (nbits+63)/64),
		nbits: nbits,
	}
}

// Len returns the number of addressable bits.
func (b *Bitset) Len() uint64 { return b.nbits }

// TestAndSet sets bit i and reports whether it was already set.
func (b *Bitset) TestAndSet(i uint64) bool {
	if i >= b.nbits {
		return false
	}

	word, mask := i/64, uint64(1)<<(i%64)
	was := b.words[word]&mask != 0
	b.words[word] |= mask

	return was
}

// Clear clears bit i.
func (b *Bitset) Clear(i uint64) {
	if i >= b.nbits {
		return
	}

	word, mask := i/64, uint64(1)<<(i%64)
	b.words[word] &^= mask
}

// Test reports whether bit i is set.
func (b *Bitset) Test(i uint64) bool {
	if i >= b.nbits {
		return false
	}

	word, mask := i/64, uint64(1)<<(i%64)

	return b.words[word]&mask != 0
}

// Iterate calls fn for every set bit, in ascending order, stopping early if
// fn returns false.
func (b *Bitset) Iterate(fn func(bit uint64) bool) {
	for word, w := range b.words {
		for w != 0 {
			tz := bits.TrailingZeros64(w)
			bit := uint64(word)*64 + uint64(tz)

			if bit >= b.nbits {
				return
			}

			if !fn(bit) {
				return
			}

			w &^= 1 << uint(tz)
		}
	}
}
