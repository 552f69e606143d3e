package pagereport

import "github.com/vmguest/pagereporting/internal/buddy"

// Tracker accumulates candidate free pages and fills a batch from a zone.
// Exactly one implementation backs a given Controller for its whole
// lifetime (spec §4.3: "a conforming implementation may pick either, but
// must commit to one").
type Tracker interface {
	// Fill drains up to capacity candidate free pages from zone into batch,
	// across all non-isolate migratetypes, isolating each selected page via
	// the allocator's isolation primitive. BoundaryTracker takes pages
	// highest order first; BitmapTracker takes them in ascending PFN order,
	// with no preference by order. It returns the number of entries added.
	// Callers must hold the zone lock.
	Fill(zone *buddy.Zone, batch *Batch, capacity int) int

	// Enqueue is called from the allocator free path, with the zone lock
	// held, recording that page has just been freed. BoundaryTracker's
	// Enqueue is a no-op — the free lists themselves are the tracker.
	Enqueue(zone *buddy.Zone, page *buddy.Page)
}
