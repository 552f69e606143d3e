package pagereport

import "github.com/vmguest/pagereporting/internal/buddy"

// BatchEntry is one reported extent: a page plus its byte length at the
// time it was isolated (order and migratetype are recoverable from the
// page itself, but are copied here so a reporter backend need not reach
// back into the allocator).
type BatchEntry struct {
	Page        *buddy.Page
	PFN         uint64
	Order       int
	Migratetype buddy.Migratetype
	ByteLen     uint64
}

// Batch is a fixed-capacity owned hand-off to the reporter. While pages sit
// in a Batch they are isolated: not on any free list, not allocatable.
type Batch struct {
	entries  []BatchEntry
	capacity int
}

// NewBatch allocates batch storage for up to capacity entries.
func NewBatch(capacity int) *Batch {
	return &Batch{entries: make([]BatchEntry, 0, capacity), capacity: capacity}
}

// Reset empties the batch for reuse without reallocating its backing array.
func (b *Batch) Reset() { b.entries = b.entries[:0] }

// Add appends an isolated page to the batch. It reports false if the batch
// is already at capacity.
func (b *Batch) Add(p *buddy.Page) bool {
	if len(b.entries) >= b.capacity {
		return false
	}

	b.entries = append(b.entries, BatchEntry{
		Page:        p,
		PFN:         p.PFN,
		Order:       p.Order,
		Migratetype: p.Migratetype,
		ByteLen:     uint64(1) << uint(p.Order) * buddy.PageSize,
	})

	return true
}

// Len reports how many entries the batch currently holds.
func (b *Batch) Len() int { return len(b.entries) }

// Full reports whether the batch has reached capacity.
func (b *Batch) Full() bool { return len(b.entries) >= b.capacity }

// Capacity reports the batch's maximum size.
func (b *Batch) Capacity() int { return b.capacity }

// Entries returns the batch's current entries. The slice is only valid
// until the next Reset.
func (b *Batch) Entries() []BatchEntry { return b.entries }
