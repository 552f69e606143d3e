package buddy

import "testing"

func TestZoneSeedAndAlloc(t *testing.T) {
	z := NewZone("test", 0, 1024)

	t.Run("SeedMakesPagesAllocable", func(t *testing.T) {
		z.SeedRange(0, 0, Movable, 4)

		if got := z.FreeCountAt(0, Movable); got != 4 {
			t.Fatalf("FreeCountAt(0, Movable) = %d, want 4", got)
		}

		for i := 0; i < 4; i++ {
			p, ok := z.Alloc(0, Movable)
			if !ok {
				t.Fatalf("Alloc %d: expected a page", i)
			}

			if p.Migratetype != Movable {
				t.Errorf("Alloc %d: migratetype = %v, want Movable", i, p.Migratetype)
			}
		}

		if _, ok := z.Alloc(0, Movable); ok {
			t.Fatal("Alloc after drain: expected no page")
		}
	})

	t.Run("AllocIsLIFOAgainstFreeHead", func(t *testing.T) {
		z := NewZone("lifo", 0, 1024)
		a := z.Seed(10, 0, Unmovable)
		b := z.Seed(11, 0, Unmovable)

		got, ok := z.Alloc(0, Unmovable)
		if !ok {
			t.Fatal("expected a page")
		}

		if got != b {
			t.Errorf("Alloc returned PFN %d, want most-recently-freed PFN %d (got %v, a=%v)", got.PFN, b.PFN, got, a)
		}
	})
}

func TestZoneIsolateAndFreeOnePage(t *testing.T) {
	z := NewZone("isolate", 0, 1024)
	p := z.Seed(5, 0, Movable)

	if !z.IsolateFree(p) {
		t.Fatal("IsolateFree: expected success on a free page")
	}

	if z.IsolateFree(p) {
		t.Fatal("IsolateFree: expected failure on an already-isolated page")
	}

	if got := z.FreeCountAt(0, Movable); got != 0 {
		t.Fatalf("FreeCountAt after isolate = %d, want 0", got)
	}

	z.FreeOnePage(p, Movable, nil)

	if got := z.FreeCountAt(0, Movable); got != 1 {
		t.Fatalf("FreeCountAt after FreeOnePage = %d, want 1", got)
	}

	if z.PageAtPFN(5) != p {
		t.Fatal("PageAtPFN: expected the returned page to be indexed again")
	}
}

func TestZoneInsertBeforePreservesOrder(t *testing.T) {
	z := NewZone("insert", 0, 1024)
	a := z.Seed(0, 0, Movable)
	b := z.Seed(1, 0, Movable)
	c := z.Seed(2, 0, Movable)

	// Free order is LIFO at the head: c, b, a.
	if c.Next() != b || b.Next() != a || a.Next() != nil {
		t.Fatalf("unexpected list order: c.next=%v b.next=%v a.next=%v", c.Next(), b.Next(), a.Next())
	}

	if a.Prev() != b || b.Prev() != c || c.Prev() != nil {
		t.Fatalf("unexpected prev chain: a.prev=%v b.prev=%v c.prev=%v", a.Prev(), b.Prev(), c.Prev())
	}
}

type recordingHooks struct {
	freed     []int
	tailFor   *Page
	clearedAt []uint64
}

func (h *recordingHooks) NotifyFree(zone *Zone, page *Page, order int) {
	h.freed = append(h.freed, order)
}
func (h *recordingHooks) GetUnreportedTail(zone *Zone, order int, mt Migratetype) *Page {
	return h.tailFor
}
func (h *recordingHooks) ClearReported(zone *Zone, page *Page) {
	h.clearedAt = append(h.clearedAt, page.PFN)
	page.Reported = false
}

func TestZoneHooksNotifyOnFree(t *testing.T) {
	z := NewZone("hooks", 0, 1024)
	h := &recordingHooks{}
	z.AttachHooks(h, 9)

	z.Seed(0, 3, Movable)
	z.Seed(1, 3, Movable)

	if len(h.freed) != 2 || h.freed[0] != 3 || h.freed[1] != 3 {
		t.Fatalf("NotifyFree calls = %v, want [3 3]", h.freed)
	}
}

func TestZoneAllocClearsReportedViaHook(t *testing.T) {
	z := NewZone("clear", 0, 1024)
	h := &recordingHooks{}
	z.AttachHooks(h, 9)

	p := z.Seed(7, 0, Movable)
	p.Reported = true
	z.ReportedCounts[0] = 1

	got, ok := z.Alloc(0, Movable)
	if !ok || got != p {
		t.Fatal("Alloc: expected to get back the seeded page")
	}

	if len(h.clearedAt) != 1 || h.clearedAt[0] != 7 {
		t.Fatalf("ClearReported calls = %v, want [7]", h.clearedAt)
	}

	if got.Reported {
		t.Error("Reported flag should have been cleared by the hook")
	}
}

func TestZoneDetachHooksStopsNotifications(t *testing.T) {
	z := NewZone("detach", 0, 1024)
	h := &recordingHooks{}
	z.AttachHooks(h, 9)
	z.DetachHooks()

	z.Seed(0, 0, Movable)

	if len(h.freed) != 0 {
		t.Fatalf("NotifyFree calls after detach = %v, want none", h.freed)
	}
}

func TestZonePageblockMigratetype(t *testing.T) {
	z := NewZone("mt", 0, 1024)
	p := z.Seed(0, 0, Movable)

	if got := z.GetPageblockMigratetype(p); got != Movable {
		t.Fatalf("GetPageblockMigratetype = %v, want Movable", got)
	}

	z.SetPageblockMigratetype(p, Unmovable)

	if got := z.GetPageblockMigratetype(p); got != Unmovable {
		t.Fatalf("GetPageblockMigratetype after Set = %v, want Unmovable", got)
	}
}

// tailOf walks the (order, mt) free list to its last node, the same way a
// correctness check external to Zone would, to cross-check the internal
// tails bookkeeping against list structure rather than trusting it blindly.
func tailOf(z *Zone, order int, mt Migratetype) *Page {
	p := z.FreeListHead(order, mt)
	if p == nil {
		return nil
	}

	for p.Next() != nil {
		p = p.Next()
	}

	return p
}

func TestZoneAppendTailJoinsAtListTail(t *testing.T) {
	z := NewZone("tail", 0, 1024)
	a := z.Seed(0, 0, Movable) // list: a
	b := z.Seed(1, 0, Movable) // list: b, a (LIFO at head)

	if got := tailOf(z, 0, Movable); got != a {
		t.Fatalf("tail before AppendTail = %v, want %v", got, a)
	}

	extra := &Page{PFN: 99, Order: 0, Migratetype: Movable}
	z.AppendTail(extra, 0, Movable)

	if got := tailOf(z, 0, Movable); got != extra {
		t.Fatalf("tail after AppendTail = %v, want %v", got, extra)
	}

	if b.Next() != a || a.Next() != extra || extra.Next() != nil {
		t.Fatalf("unexpected list order after AppendTail: b.next=%v a.next=%v extra.next=%v", b.Next(), a.Next(), extra.Next())
	}

	if extra.Prev() != a {
		t.Fatalf("extra.Prev() = %v, want %v", extra.Prev(), a)
	}
}

func TestZoneAppendTailOnEmptyListBecomesHeadAndTail(t *testing.T) {
	z := NewZone("tail-empty", 0, 1024)

	p := &Page{PFN: 5, Order: 2, Migratetype: Unmovable}
	z.AppendTail(p, 2, Unmovable)

	if z.FreeListHead(2, Unmovable) != p {
		t.Fatalf("FreeListHead = %v, want %v", z.FreeListHead(2, Unmovable), p)
	}

	if got := tailOf(z, 2, Unmovable); got != p {
		t.Fatalf("tail = %v, want %v", got, p)
	}
}

func TestZoneUnlinkTailUpdatesTailPointer(t *testing.T) {
	z := NewZone("tail-unlink", 0, 1024)
	a := z.Seed(0, 0, Movable)
	b := z.Seed(1, 0, Movable)

	if got := tailOf(z, 0, Movable); got != a {
		t.Fatalf("tail before Alloc = %v, want %v", got, a)
	}

	// Alloc pops the head (b); a is untouched and remains the tail.
	if got, ok := z.Alloc(0, Movable); !ok || got != b {
		t.Fatalf("Alloc = %v, %v, want %v, true", got, ok, b)
	}

	if got := tailOf(z, 0, Movable); got != a {
		t.Fatalf("tail after Alloc(head) = %v, want %v (unchanged)", got, a)
	}

	// Isolating the remaining page (now both head and tail) must clear the
	// tail pointer, not leave it dangling.
	if !z.IsolateFree(a) {
		t.Fatal("IsolateFree: expected success")
	}

	if got := tailOf(z, 0, Movable); got != nil {
		t.Fatalf("tail after isolating the only page = %v, want nil", got)
	}

	// FreeOnePageAtTail onto the now-empty list must set both head and tail.
	z.FreeOnePageAtTail(a, Movable)

	if z.FreeListHead(0, Movable) != a {
		t.Fatalf("FreeListHead after FreeOnePageAtTail = %v, want %v", z.FreeListHead(0, Movable), a)
	}

	if got := tailOf(z, 0, Movable); got != a {
		t.Fatalf("tail after FreeOnePageAtTail = %v, want %v", got, a)
	}
}

func TestZoneIsolateFreeRoundTripsArenaBytes(t *testing.T) {
	z := NewZone("arena", 0, 1024)
	p := z.Seed(42, 0, Movable)

	if !z.IsolateFree(p) {
		t.Fatal("IsolateFree: expected success")
	}

	b, err := z.arena.PageBytes(42)
	if err != nil {
		t.Fatalf("PageBytes: %v", err)
	}

	want := byte(42) ^ 0xAA
	for i, got := range b {
		if got != want {
			t.Fatalf("byte %d = %#x, want %#x (page should be poisoned while isolated)", i, got, want)
		}
	}

	z.FreeOnePage(p, Movable, nil)

	for i, got := range b {
		if got != 0 {
			t.Fatalf("byte %d = %#x, want 0 (page should be healed after FreeOnePage)", i, got)
		}
	}
}

func TestZoneHealPagePanicsOnCorruption(t *testing.T) {
	z := NewZone("corrupt", 0, 1024)
	p := z.Seed(7, 0, Movable)

	if !z.IsolateFree(p) {
		t.Fatal("IsolateFree: expected success")
	}

	b, err := z.arena.PageBytes(7)
	if err != nil {
		t.Fatalf("PageBytes: %v", err)
	}

	b[0] ^= 0xFF // corrupt the poison pattern while the page is isolated

	defer func() {
		if recover() == nil {
			t.Fatal("FreeOnePage: expected a panic on corrupted arena bytes")
		}
	}()

	z.FreeOnePage(p, Movable, nil)
}

func TestZoneUnplugFailsIsolateFree(t *testing.T) {
	z := NewZone("unplug", 0, 1024)
	p := z.Seed(3, 0, Movable)

	if err := z.Unplug(); err != nil {
		t.Fatalf("Unplug: %v", err)
	}

	if z.IsolateFree(p) {
		t.Fatal("IsolateFree: expected failure once the zone's arena is gone")
	}

	if got := z.FreeCountAt(0, Movable); got != 1 {
		t.Fatalf("FreeCountAt after failed IsolateFree = %d, want 1 (page untouched)", got)
	}
}

func TestUnreportedFreeExcludesReportedCount(t *testing.T) {
	z := NewZone("unreported", 0, 1024)
	z.SeedRange(0, 2, Movable, 5)
	z.ReportedCounts[2] = 2

	if got := z.UnreportedFree(2); got != 3 {
		t.Fatalf("UnreportedFree(2) = %d, want 3", got)
	}
}
