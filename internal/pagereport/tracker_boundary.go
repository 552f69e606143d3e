package pagereport

import "github.com/vmguest/pagereporting/internal/buddy"

// BoundaryTracker has no separate data structure: the tracker IS the
// boundary partition plus the allocator's own free lists (spec §4.3).
type BoundaryTracker struct {
	MinOrder int
}

// Enqueue is a no-op: newly freed pages already land in the correct free-
// list region via GetUnreportedTail, with no separate bookkeeping needed.
func (t *BoundaryTracker) Enqueue(zone *buddy.Zone, page *buddy.Page) {}

// Fill walks free lists highest-order-first, taking migratetypes in
// buddy.MigratetypeOrder, isolating the first unreported page at each
// (order, mt) repeatedly until capacity is reached or the zone is drained
// of unreported pages at eligible orders.
func (t *BoundaryTracker) Fill(zone *buddy.Zone, batch *Batch, capacity int) int {
	count := 0

	for order := buddy.MaxOrder; order >= t.MinOrder && count < capacity; order-- {
		for _, mt := range buddy.MigratetypeOrder {
			page := firstUnreported(zone, order, mt, zone.FreeListHead(order, mt))
			for page != nil && count < capacity {
				next := page.Next()

				if !zone.IsolateFree(page) {
					// IsolationRejected: skip this page, no error surfaced.
					page = firstUnreported(zone, order, mt, next)
					continue
				}

				if !batch.Add(page) {
					break
				}

				count++
				page = firstUnreported(zone, order, mt, next)
			}
		}
	}

	return count
}

// firstUnreported walks the free list at (order, mt) from start to the
// boundary pointer, returning the first page found (everything strictly
// before the boundary is unreported, by the Boundary Index invariant), or
// nil if no unreported page lies between start and the boundary.
func firstUnreported(zone *buddy.Zone, order int, mt buddy.Migratetype, start *buddy.Page) *buddy.Page {
	boundary := zone.Boundary[order][mt]

	for p := start; p != nil && p != boundary; p = p.Next() {
		if !p.Reported {
			return p
		}
	}

	return nil
}
