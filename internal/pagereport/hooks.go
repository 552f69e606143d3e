package pagereport

import "github.com/vmguest/pagereporting/internal/buddy"

// Controller implements buddy.ReportingHooks, the narrow callback surface
// the allocator's free/alloc path invokes into (spec §4.1). All three
// methods run with the zone lock already held by the caller.

// NotifyFree is the screening hook: zero work when the subsystem is
// disabled, the order is below MinOrder, the zone already has a request
// pending, or the order's unreported-free count is below HWM (Open
// Question 1, decided for unreported-free vs HWM in SPEC_FULL.md §9).
func (c *Controller) NotifyFree(zone *buddy.Zone, page *buddy.Page, order int) {
	if !c.enabled.Load() {
		return
	}

	if c.tracker != nil {
		c.tracker.Enqueue(zone, page)
	}

	if c.evaluateLocked(zone, order) {
		c.requestWork()
	}
}

// GetUnreportedTail returns the insertion point for a newly freed page at
// (order, mt): the free-list head when the zone is not ReportingActive,
// otherwise the boundary pointer, so the page joins the unreported region.
func (c *Controller) GetUnreportedTail(zone *buddy.Zone, order int, mt buddy.Migratetype) *buddy.Page {
	if !zone.ReportingActive {
		return nil
	}

	return zone.Boundary[order][mt]
}

// ClearReported runs when the allocator removes a page from a free list.
// If the page carries the Reported flag, the boundary is pulled back
// across it (only while the zone is ReportingActive), the flag is cleared,
// and ReportedCounts is decremented.
func (c *Controller) ClearReported(zone *buddy.Zone, page *buddy.Page) {
	if !page.Reported {
		return
	}

	if zone.ReportingActive {
		DelBoundary(zone, page)
	}

	page.Reported = false
	zone.ReportedCounts[page.Order]--
}

// evaluateLocked tests whether zone should transition to Requested at
// order, setting ReportingRequested and reporting true if so. Callers must
// hold the zone lock.
func (c *Controller) evaluateLocked(zone *buddy.Zone, order int) bool {
	if order < c.cfg.MinOrder || order > buddy.MaxOrder {
		return false
	}

	if zone.ReportingRequested {
		return false
	}

	if zone.UnreportedFree(order) < int(c.hwm.Load()) {
		return false
	}

	zone.ReportingRequested = true

	return true
}
