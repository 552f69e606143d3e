package pagereport

import "github.com/vmguest/pagereporting/internal/buddy"

// ResetBoundary sets every boundary pointer at orders minOrder..MaxOrder to
// nil, meaning "equals the free-list head" — nothing reported yet at any of
// those (order, mt) pairs. Pointers below minOrder are left as they are.
// Called at the start of a zone scan cycle. Callers must hold the zone
// lock.
func ResetBoundary(zone *buddy.Zone, minOrder int) {
	for order := minOrder; order <= buddy.MaxOrder; order++ {
		for mt := buddy.Migratetype(0); mt < buddy.NumMigratetypes; mt++ {
			zone.Boundary[order][mt] = nil
		}
	}
}

// AddBoundary sets the boundary pointer for page's (order, migratetype) to
// page's list node. Called when a Reported page is placed back on the free
// list. Callers must hold the zone lock.
func AddBoundary(zone *buddy.Zone, page *buddy.Page) {
	zone.Boundary[page.Order][page.Migratetype] = page
}

// DelBoundary advances the boundary pointer past page if page currently is
// the boundary, called when the allocator removes a page from the reported
// region. Callers must hold the zone lock.
func DelBoundary(zone *buddy.Zone, page *buddy.Page) {
	if zone.Boundary[page.Order][page.Migratetype] == page {
		zone.Boundary[page.Order][page.Migratetype] = page.Next()
	}
}
