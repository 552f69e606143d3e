package pagereport

import (
	"testing"

	"github.com/vmguest/pagereporting/internal/buddy"
)

func TestResetBoundaryClearsAllOrders(t *testing.T) {
	z := buddy.NewZone("z", 0, 1<<20)
	p := z.Seed(0, 9, buddy.Movable)
	z.Boundary[9][buddy.Movable] = p

	ResetBoundary(z, 9)

	if z.Boundary[9][buddy.Movable] != nil {
		t.Fatal("ResetBoundary should clear the boundary pointer")
	}
}

func TestAddAndDelBoundary(t *testing.T) {
	z := buddy.NewZone("z", 0, 1<<20)
	p := z.Seed(0, 9, buddy.Movable)

	AddBoundary(z, p)

	if z.Boundary[9][buddy.Movable] != p {
		t.Fatal("AddBoundary should set the boundary to the given page")
	}

	DelBoundary(z, p)

	if z.Boundary[9][buddy.Movable] != nil {
		t.Fatalf("DelBoundary should advance past a single-node list to nil, got %v", z.Boundary[9][buddy.Movable])
	}
}

func TestDelBoundaryNoopWhenNotBoundary(t *testing.T) {
	z := buddy.NewZone("z", 0, 1<<20)
	a := z.Seed(0, 9, buddy.Movable)
	b := z.Seed(1, 9, buddy.Movable)

	AddBoundary(z, a)
	DelBoundary(z, b)

	if z.Boundary[9][buddy.Movable] != a {
		t.Fatal("DelBoundary should not move a boundary that does not point at the deleted page")
	}
}
