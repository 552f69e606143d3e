package pagereport

import "github.com/vmguest/pagereporting/internal/buddy"

// BitmapTracker tracks candidate pages via a per-zone bit array at MinOrder
// granularity, grounded in the bitmap-based "page hinting" design in
// original_source/mm/page_hinting.c. It does not guarantee a tracked PFN is
// still free at scan time — Fill checks.
type BitmapTracker struct {
	MinOrder int
}

func (t *BitmapTracker) bitOf(zone *buddy.Zone, pfn uint64) uint64 {
	return (pfn - zone.BasePFN) >> uint(t.MinOrder)
}

// Enqueue sets page's bit under the zone lock. Pages below MinOrder are not
// tracked: the bitmap strategy operates at MinOrder granularity only.
func (t *BitmapTracker) Enqueue(zone *buddy.Zone, page *buddy.Page) {
	if zone.Bitmap == nil || page.Order < t.MinOrder {
		return
	}

	if !zone.Bitmap.TestAndSet(t.bitOf(zone, page.PFN)) {
		zone.FreePages.Add(1)
	}
}

// Fill resolves set bits back to pages, isolating each one that is still
// free and eligible. Stale bits (page no longer free) and isolation
// rejections are both cleared without error, per spec §4.4's edge cases.
// Examination is bounded to a small multiple of capacity so a zone with
// many stale bits cannot make a single cycle unbounded. Bits are visited
// in ascending PFN order; pages are not taken highest order first.
func (t *BitmapTracker) Fill(zone *buddy.Zone, batch *Batch, capacity int) int {
	if zone.Bitmap == nil {
		return 0
	}

	maxExamine := capacity * 8
	examined := 0
	count := 0

	var consumed []uint64

	zone.Bitmap.Iterate(func(bit uint64) bool {
		if count >= capacity || examined >= maxExamine {
			return false
		}

		examined++
		consumed = append(consumed, bit)

		pfn := zone.BasePFN + bit<<uint(t.MinOrder)
		page := zone.PageAtPFN(pfn)

		if page == nil || page.Order < t.MinOrder || page.Migratetype == buddy.Isolate {
			// StalePage: no longer free, or no longer eligible.
			return true
		}

		if !zone.IsolateFree(page) {
			// IsolationRejected: skip, no error surfaced.
			return true
		}

		if batch.Add(page) {
			count++
		}

		return true
	})

	for _, bit := range consumed {
		zone.Bitmap.Clear(bit)
		zone.FreePages.Add(-1)
	}

	return count
}
