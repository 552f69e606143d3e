package buddy

import "testing"

func TestBitsetTestAndSet(t *testing.T) {
	b := NewBitset(130)

	if b.Test(64) {
		t.Fatal("bit 64 should start clear")
	}

	if b.TestAndSet(64) {
		t.Fatal("TestAndSet(64) should report false on first set")
	}

	if !b.Test(64) {
		t.Fatal("bit 64 should be set after TestAndSet")
	}

	if !b.TestAndSet(64) {
		t.Fatal("TestAndSet(64) should report true on second set")
	}
}

func TestBitsetClear(t *testing.T) {
	b := NewBitset(8)
	b.TestAndSet(3)
	b.Clear(3)

	if b.Test(3) {
		t.Fatal("bit 3 should be clear after Clear")
	}
}

func TestBitsetOutOfRangeIsNoop(t *testing.T) {
	b := NewBitset(4)

	if b.Test(100) {
		t.Fatal("out-of-range Test should report false")
	}

	if b.TestAndSet(100) {
		t.Fatal("out-of-range TestAndSet should report false")
	}

	b.Clear(100) // must not panic
}

func TestBitsetIterateAscending(t *testing.T) {
	b := NewBitset(200)
	want := []uint64{0, 1, 63, 64, 65, 127, 128, 199}

	for _, bit := range want {
		b.TestAndSet(bit)
	}

	var got []uint64
	b.Iterate(func(bit uint64) bool {
		got = append(got, bit)

		return true
	})

	if len(got) != len(want) {
		t.Fatalf("Iterate yielded %d bits, want %d (%v)", len(got), len(want), got)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Iterate[%d] = %d, want %d (full: %v)", i, got[i], want[i], got)
		}
	}
}

func TestBitsetIterateStopsEarly(t *testing.T) {
	b := NewBitset(10)
	b.TestAndSet(1)
	b.TestAndSet(2)
	b.TestAndSet(3)

	count := 0
	b.Iterate(func(bit uint64) bool {
		count++

		return false
	})

	if count != 1 {
		t.Fatalf("Iterate called fn %d times after false return, want 1", count)
	}
}

func TestBitsetLen(t *testing.T) {
	b := NewBitset(37)
	if b.Len() != 37 {
		t.Fatalf("Len() = %d, want 37", b.Len())
	}
}
