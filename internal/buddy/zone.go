package buddy

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// ReportingHooks is the narrow callback surface the allocator's free/alloc
// path invokes into the page-reporting core (package pagereport). A Zone
// with a nil Hooks behaves exactly as a plain buddy allocator: zero
// overhead, no reporting bookkeeping.
type ReportingHooks interface {
	// NotifyFree is called after page has been linked onto a free list at
	// the given order. It must not block and must not re-enter the zone
	// lock (the zone lock is already held by the caller).
	NotifyFree(zone *Zone, page *Page, order int)

	// GetUnreportedTail returns the list node a newly freed page of the
	// given (order, migratetype) should be inserted immediately before.
	// A nil return means "insert at the list head".
	GetUnreportedTail(zone *Zone, order int, mt Migratetype) *Page

	// ClearReported is invoked when a page is about to be removed from a
	// free list by Alloc. If the page carries the Reported flag, the hook
	// must pull the boundary back across it, clear the flag, and adjust
	// any reported counters before returning.
	ClearReported(zone *Zone, page *Page)
}

// Zone bounds a contiguous PFN range and owns a set of free lists indexed
// by (order, migratetype). It also carries the per-zone state the
// page-reporting core adds on top of a plain buddy allocator (spec.md §3):
// ReportingRequested, ReportingActive, per-order reported counts, the
// free-list boundary partition, and the optional bitmap-tracker state.
// These fields are exported because, like the real kernel's struct zone,
// they are mutated directly by the reporting core under the zone lock
// rather than through a narrower accessor API.
type Zone struct {
	mu sync.Mutex

	Name     string
	BasePFN  uint64
	EndPFN   uint64
	MinOrder int // 0 until a Hooks is attached via AttachHooks

	Hooks ReportingHooks

	freeLists    [MaxOrder + 1][NumMigratetypes]*Page
	tails        [MaxOrder + 1][NumMigratetypes]*Page
	freeCount    [MaxOrder + 1][NumMigratetypes]int
	freePageIdx  map[uint64]*Page // PFN -> free Page, any order
	allocCount   [MaxOrder + 1][NumMigratetypes]int

	// arena backs isolated pages with real memory across the isolate/return
	// round trip an external reporter drives them through (SPEC_FULL.md §3).
	arena *Arena

	// ReportingRequested is set when the zone has crossed HWM and needs a
	// scan; cleared when a fill finds nothing left to pull.
	ReportingRequested bool

	// ReportingActive is set while the boundary index is populated for
	// this zone (i.e. while a scan cycle is in flight).
	ReportingActive bool

	// ReportedCounts[order] counts Reported pages currently on the free
	// lists at that order, across all migratetypes.
	ReportedCounts [MaxOrder + 1]int

	// Boundary[order][mt] partitions the free list into unreported (before
	// the pointer) and reported (at-or-after the pointer) regions. Nil
	// means "equals the list head" (nothing reported at that order/mt).
	Boundary [MaxOrder + 1][NumMigratetypes]*Page

	// Bitmap-tracker state, populated only when the attached controller is
	// configured for the bitmap strategy.
	Bitmap    *Bitset
	FreePages atomic.Int64
}

// NewZone creates an empty zone over [basePFN, endPFN). No pages are
// populated; use Seed/SeedRange to add free pages for testing or demo
// traffic.
func NewZone(name string, basePFN, endPFN uint64) *Zone {
	return &Zone{
		Name:        name,
		BasePFN:     basePFN,
		EndPFN:      endPFN,
		freePageIdx: make(map[uint64]*Page),
		arena:       NewArena(),
	}
}

// Unplug tears down the zone's backing arena, simulating a hot-unplugged
// zone (SPEC_FULL.md §9, Open Question 3). Every subsequent IsolateFree
// call on this zone fails exactly as an IsolationRejected would, so the
// scanner needs no separate code path for a zone disappearing mid-scan.
func (z *Zone) Unplug() error {
	return z.arena.Close()
}

// Lock acquires the zone lock. The page-reporting core holds it for the
// duration of a scan cycle's bookkeeping, releasing it only around calls
// into the external reporter (spec.md §5).
func (z *Zone) Lock() { z.mu.Lock() }

// Unlock releases the zone lock.
func (z *Zone) Unlock() { z.mu.Unlock() }

// AttachHooks wires the page-reporting core into this zone's free/alloc
// path. minOrder is cached on the zone because NotifyFree's threshold test
// and the bitmap tracker's bit arithmetic both need it.
func (z *Zone) AttachHooks(hooks ReportingHooks, minOrder int) {
	z.mu.Lock()
	defer z.mu.Unlock()

	z.Hooks = hooks
	z.MinOrder = minOrder
}

// DetachHooks removes the reporting core from this zone's free/alloc path,
// restoring zero-overhead plain-buddy behavior.
func (z *Zone) DetachHooks() {
	z.mu.Lock()
	defer z.mu.Unlock()

	z.Hooks = nil
}

// GetPageblockMigratetype returns the migratetype metadata recorded for the
// page's pageblock (here, simply the page's own field — a per-page
// simplification of the real allocator's per-pageblock metadata).
func (z *Zone) GetPageblockMigratetype(p *Page) Migratetype { return p.Migratetype }

// SetPageblockMigratetype restores migratetype metadata for a page,
// consumed by the reporting core when returning an isolated page.
func (z *Zone) SetPageblockMigratetype(p *Page, mt Migratetype) { p.Migratetype = mt }

// Seed creates and frees a single page of the given order/migratetype at
// pfn, for test and demo setup. It behaves exactly like an ordinary
// allocator free — including driving NotifyFree — so it is a faithful way
// to generate "N pages freed back-to-back" scenarios.
func (z *Zone) Seed(pfn uint64, order int, mt Migratetype) *Page {
	p := &Page{PFN: pfn, Order: order, Migratetype: mt}
	z.Free(p)

	return p
}

// SeedRange seeds count successive blocks of the given order/migratetype,
// starting at startPFN and spaced 2^order pages apart.
func (z *Zone) SeedRange(startPFN uint64, order int, mt Migratetype, count int) []*Page {
	pages := make([]*Page, 0, count)
	stride := uint64(1) << uint(order)

	for i := 0; i < count; i++ {
		pages = append(pages, z.Seed(startPFN+uint64(i)*stride, order, mt))
	}

	return pages
}

// Free links page onto the appropriate free list (respecting the current
// unreported-insertion point) and notifies the reporting core. This is the
// ordinary application free path, analogous to the kernel's
// __free_one_page plus its page_reporting_enqueue call site.
func (z *Zone) Free(p *Page) {
	z.mu.Lock()
	defer z.mu.Unlock()

	z.freeLocked(p)
}

func (z *Zone) freeLocked(p *Page) {
	var ref *Page
	if z.Hooks != nil {
		ref = z.Hooks.GetUnreportedTail(z, p.Order, p.Migratetype)
	}

	z.InsertBefore(p, p.Order, p.Migratetype, ref)
	z.freePageIdx[p.PFN] = p
	z.freeCount[p.Order][p.Migratetype]++

	if z.Hooks != nil {
		z.Hooks.NotifyFree(z, p, p.Order)
	}
}

// Alloc removes and returns the head of the free list at (order, mt),
// running ClearReported if the popped page was Reported. It returns false
// if the list is empty.
func (z *Zone) Alloc(order int, mt Migratetype) (*Page, bool) {
	z.mu.Lock()
	defer z.mu.Unlock()

	head := z.freeLists[order][mt]
	if head == nil {
		return nil, false
	}

	if z.Hooks != nil && head.Reported {
		z.Hooks.ClearReported(z, head)
	}

	z.unlink(head, order, mt)
	delete(z.freePageIdx, head.PFN)
	z.freeCount[order][mt]--
	z.allocCount[order][mt]++

	return head, true
}

// UnreportedFree returns the number of free pages at order across all
// non-isolate migratetypes that are not currently Reported — the quantity
// NotifyFree's high-water-mark test compares against HWM (SPEC_FULL §9,
// Open Question 1).
func (z *Zone) UnreportedFree(order int) int {
	total := 0
	for _, mt := range MigratetypeOrder {
		total += z.freeCount[order][mt]
	}

	return total - z.ReportedCounts[order]
}

// FreeCountAt returns the raw free-list count for (order, mt), including
// Reported pages.
func (z *Zone) FreeCountAt(order int, mt Migratetype) int {
	return z.freeCount[order][mt]
}

// FreeListHead returns the head of the (order, mt) free list, or nil if
// empty. Callers must hold the zone lock.
func (z *Zone) FreeListHead(order int, mt Migratetype) *Page {
	return z.freeLists[order][mt]
}

// ClearAllReported clears the Reported flag on every free page across all
// orders and migratetypes and zeroes ReportedCounts. Callers must hold the
// zone lock. Used when tearing down reporting, e.g. on reporter shutdown.
func (z *Zone) ClearAllReported() {
	for order := 0; order <= MaxOrder; order++ {
		for mt := Migratetype(0); mt < NumMigratetypes; mt++ {
			for p := z.freeLists[order][mt]; p != nil; p = p.next {
				p.Reported = false
			}
		}

		z.ReportedCounts[order] = 0
	}
}

// PageAtPFN resolves a PFN to its free Page record, or nil if no page is
// currently free at that exact PFN (it may be allocated, or may never have
// existed). Used by the bitmap tracker to re-check freshness at scan time.
func (z *Zone) PageAtPFN(pfn uint64) *Page {
	return z.freePageIdx[pfn]
}

// InsertBefore splices page into the (order, mt) free list immediately
// before ref, or at the head if ref is nil. Callers must hold the zone
// lock. It never moves the Boundary pointer — callers that are inserting a
// page back into the reported region must advance Boundary themselves.
func (z *Zone) InsertBefore(page *Page, order int, mt Migratetype, ref *Page) {
	if ref == nil {
		oldHead := z.freeLists[order][mt]
		page.prev = nil
		page.next = oldHead

		if oldHead != nil {
			oldHead.prev = page
		} else {
			z.tails[order][mt] = page
		}

		z.freeLists[order][mt] = page

		return
	}

	page.next = ref
	page.prev = ref.prev

	if ref.prev != nil {
		ref.prev.next = page
	} else {
		z.freeLists[order][mt] = page
	}

	ref.prev = page
}

// AppendTail links page onto the tail of the (order, mt) free list. It is
// used to reinsert a page as the first Reported page since the boundary
// was last reset: with no existing Reported node to splice in front of,
// the page must join the list at its tail so the still-unreported pages
// ahead of it remain reachable from the head (spec.md §4.1, §4.2). Callers
// must hold the zone lock and advance Boundary themselves afterward.
func (z *Zone) AppendTail(page *Page, order int, mt Migratetype) {
	oldTail := z.tails[order][mt]
	page.next = nil
	page.prev = oldTail

	if oldTail != nil {
		oldTail.next = page
	} else {
		z.freeLists[order][mt] = page
	}

	z.tails[order][mt] = page
}

// unlink removes page from the (order, mt) free list. Callers must hold
// the zone lock.
func (z *Zone) unlink(page *Page, order int, mt Migratetype) {
	if page.prev != nil {
		page.prev.next = page.next
	} else {
		z.freeLists[order][mt] = page.next
	}

	if page.next != nil {
		page.next.prev = page.prev
	} else {
		z.tails[order][mt] = page.prev
	}

	page.next, page.prev = nil, nil
}

// IsolateFree detaches a currently-free page from its free list without
// rebalancing neighbors, the allocator primitive consumed by the reporting
// core's scanner (spec.md §6). Callers must hold the zone lock. It returns
// false if the page is not presently free (e.g. raced with a concurrent
// allocation), or if the zone's backing arena is gone (Unplug) — the
// scanner treats both as IsolationRejected and skips the page.
func (z *Zone) IsolateFree(p *Page) bool {
	if z.freePageIdx[p.PFN] != p {
		return false
	}

	if _, err := z.arena.PageBytes(p.PFN); err != nil {
		return false
	}

	z.unlink(p, p.Order, p.Migratetype)
	delete(z.freePageIdx, p.PFN)
	z.freeCount[p.Order][p.Migratetype]--
	z.poisonPage(p)

	return true
}

// poisonPage marks page's backing arena bytes as isolated for an in-flight
// report, so that page payloads genuinely occupy the claimed PFN range: a
// bug that corrupts or reuses this memory while the page is isolated
// becomes an observable byte mismatch in healPage, not merely a bookkeeping
// one (SPEC_FULL.md §3).
func (z *Zone) poisonPage(p *Page) {
	b, err := z.arena.PageBytes(p.PFN)
	if err != nil {
		return
	}

	mark := byte(p.PFN) ^ 0xAA

	for i := range b {
		b[i] = mark
	}
}

// healPage verifies page's backing arena bytes still carry the pattern
// poisonPage wrote, then clears them, completing the isolate/return round
// trip. A mismatch means the page's backing memory was corrupted or reused
// while isolated — a real memory-safety violation rather than a pointer
// bookkeeping bug — so it panics with the offending PFN instead of silently
// continuing.
func (z *Zone) healPage(p *Page) {
	b, err := z.arena.PageBytes(p.PFN)
	if err != nil {
		return
	}

	mark := byte(p.PFN) ^ 0xAA

	for i, got := range b {
		if got != mark {
			panic(fmt.Sprintf("buddy: page pfn=%d corrupted while isolated for reporting (byte %d = %#x, want %#x)", p.PFN, i, got, mark))
		}

		b[i] = 0
	}
}

// FreeOnePage reinserts an isolated page into the free lists at the given
// reference position, restoring its migratetype. Callers must hold the
// zone lock and must separately update Boundary/ReportedCounts/Reported as
// appropriate — this call only performs the list splice (spec.md §6).
func (z *Zone) FreeOnePage(p *Page, mt Migratetype, ref *Page) {
	z.healPage(p)
	p.Migratetype = mt
	z.InsertBefore(p, p.Order, mt, ref)
	z.freePageIdx[p.PFN] = p
	z.freeCount[p.Order][mt]++
}

// FreeOnePageAtTail is FreeOnePage using AppendTail instead of InsertBefore,
// for the case where there is no existing boundary node to splice in front
// of (spec.md §6, drain of the first Reported page since reset).
func (z *Zone) FreeOnePageAtTail(p *Page, mt Migratetype) {
	z.healPage(p)
	p.Migratetype = mt
	z.AppendTail(p, p.Order, mt)
	z.freePageIdx[p.PFN] = p
	z.freeCount[p.Order][mt]++
}
