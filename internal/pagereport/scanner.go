package pagereport

import "github.com/vmguest/pagereporting/internal/buddy"

// scanCycle implements the algorithm box from spec §4.4: under the zone
// lock, repeatedly fill a batch from the tracker, release the lock to call
// the reporter, reacquire it, and drain the batch back onto the free
// lists as Reported, until a fill finds nothing left to pull.
func (c *Controller) scanCycle(zone *buddy.Zone) {
	device := c.device.Load()

	zone.Lock()

	if device == nil || c.batch == nil {
		// Reporter unregistered (or shutting down) since this zone was
		// marked Requested; stand down without running the tracker.
		zone.ReportingRequested = false
		zone.Unlock()
		c.refcnt.Add(-1)

		return
	}

	if c.cfg.Strategy == BoundaryStrategy {
		ResetBoundary(zone, c.cfg.MinOrder)
		zone.ReportingActive = true
	}

	for {
		c.batch.Reset()

		capacity := int(c.maxBatch.Load())
		if capacity > c.batch.Capacity() {
			capacity = c.batch.Capacity()
		}

		count := c.tracker.Fill(zone, c.batch, capacity)

		if count == 0 {
			zone.ReportingRequested = false
			c.refcnt.Add(-1)

			break
		}

		zone.Unlock()
		device.React(c.batch)
		zone.Lock()

		c.drainBatch(zone)

		if !zone.ReportingRequested {
			break
		}
	}

	if c.cfg.Strategy == BoundaryStrategy {
		zone.ReportingActive = false
	}

	zone.Unlock()
}

// drainBatch reinserts every page in the current batch onto its free list
// as Reported. For the boundary strategy, each page is spliced in at the
// existing boundary for its (order, migratetype) and the boundary then
// advances to that page's node, preserving the "everything at or after the
// boundary is Reported" invariant with no scan required. For the bitmap
// strategy, pages simply rejoin the head (there is no boundary to
// maintain).
func (c *Controller) drainBatch(zone *buddy.Zone) {
	for _, e := range c.batch.Entries() {
		p := e.Page

		if c.cfg.Strategy == BoundaryStrategy {
			ref := zone.Boundary[e.Order][e.Migratetype]
			if ref == nil {
				// No Reported node exists yet for this (order, mt) since
				// the last reset: the new Reported page must join the
				// list at the tail, not the head, so the still-unreported
				// pages ahead of it stay reachable from the head.
				zone.FreeOnePageAtTail(p, e.Migratetype)
			} else {
				zone.FreeOnePage(p, e.Migratetype, ref)
			}

			p.Reported = true
			zone.ReportedCounts[e.Order]++
			AddBoundary(zone, p)

			continue
		}

		zone.FreeOnePage(p, e.Migratetype, nil)
		p.Reported = true
		zone.ReportedCounts[e.Order]++
	}
}
