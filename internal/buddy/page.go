// Package buddy implements a minimal buddy-style page allocator that stands
// in for the real kernel allocator consumed by package pagereport. It owns
// pages, zones, and free lists, and exposes exactly the isolate/reinsert/
// migratetype primitives a page-reporting core needs (see internal/pagereport).
package buddy

// PageSize is the size in bytes of a single order-0 page in the simulated
// address space.
const PageSize = 4096

// MaxOrder is the highest free-list order this allocator supports (inclusive).
// Orders run 0..MaxOrder.
const MaxOrder = 10

// Migratetype partitions each order's free list the way the real buddy
// allocator partitions pageblocks.
type Migratetype int

const (
	Unmovable Migratetype = iota
	Reclaimable
	Movable
	Isolate
	NumMigratetypes
)

func (mt Migratetype) String() string {
	switch mt {
	case Unmovable:
		return "unmovable"
	case Reclaimable:
		return "reclaimable"
	case Movable:
		return "movable"
	case Isolate:
		return "isolate"
	default:
		return "unknown"
	}
}

// MigratetypeOrder is the fixed migratetype scan order used when draining a
// free list at a given order, skipping Isolate — pages already quarantined
// for unrelated reasons must never be handed to a reporter.
var MigratetypeOrder = []Migratetype{Unmovable, Reclaimable, Movable}

// Page is the allocator's per-page bookkeeping record. It is owned by the
// allocator; package pagereport only ever borrows a *Page via Zone methods
// and never constructs one.
type Page struct {
	PFN         uint64
	Order       int
	Migratetype Migratetype

	// Reported is set while the page is resident in the "reported" region
	// of its free list, i.e. it has been hinted to an external reporter
	// and returned, but not yet reallocated.
	Reported bool

	// Private is a page-private word mirroring the kernel's
	// set_page_private. Nothing in this module writes it: a page's order
	// stays in Order across an isolate/return round trip.
	Private uint64

	// next/prev form the intrusive doubly-linked free list this page is
	// currently threaded onto. Both nil when the page is not free (either
	// allocated, or isolated into a reporter's batch).
	next, prev *Page
}

// Next returns the page's successor in the free list it is currently
// threaded onto, or nil if it has none or is not on a free list.
func (p *Page) Next() *Page { return p.next }

// Prev returns the page's predecessor in the free list it is currently
// threaded onto, or nil if it has none or is not on a free list.
func (p *Page) Prev() *Page { return p.prev }
