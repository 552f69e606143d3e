package buddy

import "sync"

// slabPages is how many order-0 pages each backing slab covers. Zones here
// key pages by a PFN namespace that can run far larger than anything ever
// live at once (cmd/pagereport-demo spans zones across up to 2^32 PFNs), so
// Arena cannot map a zone's whole PFN range up front. Instead it backs only
// the pages actually touched, carved out of slabs mapped on demand.
const slabPages = 256

// Arena backs live pages with real memory, so isolate/return bugs
// (double-free, use-after-return, a corrupted reporter round trip) are
// observable as actual out-of-bounds or corrupted-byte failures rather than
// purely bookkeeping mismatches (SPEC_FULL.md §3, "(NEW) Backing store").
type Arena struct {
	mu     sync.Mutex
	byPFN  map[uint64][]byte
	free   [][]byte
	slabs  [][]byte
	closed bool
}

// NewArena creates an empty arena. No memory is mapped until PageBytes
// first touches a PFN.
func NewArena() *Arena {
	return &Arena{byPFN: make(map[uint64][]byte)}
}

// PageBytes returns the backing byte slice for pfn's order-0 page,
// allocating and zeroing it the first time pfn is touched. It returns
// ErrZoneGone once the arena has been torn down by Close.
func (a *Arena) PageBytes(pfn uint64) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil, ErrZoneGone
	}

	if b, ok := a.byPFN[pfn]; ok {
		return b, nil
	}

	if len(a.free) == 0 {
		slab, err := mmapSlab(slabPages * PageSize)
		if err != nil {
			return nil, err
		}

		a.slabs = append(a.slabs, slab)

		for i := 0; i < slabPages; i++ {
			a.free = append(a.free, slab[i*PageSize:(i+1)*PageSize:(i+1)*PageSize])
		}
	}

	b := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	a.byPFN[pfn] = b

	return b, nil
}

// Close releases every backing slab. Subsequent PageBytes calls return
// ErrZoneGone; this is the trigger behind Zone.Unplug (SPEC_FULL.md §9,
// Open Question 3: a zone hot-unplugged mid-scan).
func (a *Arena) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}

	a.closed = true

	var firstErr error

	for _, slab := range a.slabs {
		if err := munmapSlab(slab); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	a.slabs = nil
	a.free = nil
	a.byPFN = nil

	return firstErr
}
