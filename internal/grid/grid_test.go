package grid

import (
	"testing"

	"github.com/signalsfoundry/du-scheduler/internal/gridcfg"
	"github.com/signalsfoundry/du-scheduler/internal/slotpoint"
)

func TestSlotGridFillThenCollides(t *testing.T) {
	g := newSlotGrid(100)
	symbols := gridcfg.SymbolInterval{Start: 2, Length: 12}
	crbs := gridcfg.CRBInterval{Start: 10, Length: 20}
	if err := g.Fill(symbols, crbs); err != nil {
		t.Fatalf("unexpected error filling empty grid: %v", err)
	}
	if !g.Collides(symbols, crbs) {
		t.Errorf("expected the just-filled region to collide with itself")
	}
	if err := g.Fill(symbols, crbs); err == nil {
		t.Errorf("expected a second fill of the same region to fail")
	}
}

func TestSlotGridNonOverlappingFillsSucceed(t *testing.T) {
	g := newSlotGrid(100)
	a := gridcfg.CRBInterval{Start: 0, Length: 10}
	b := gridcfg.CRBInterval{Start: 10, Length: 10}
	symbols := gridcfg.SymbolInterval{Start: 0, Length: 14}
	if err := g.Fill(symbols, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.Fill(symbols, b); err != nil {
		t.Fatalf("unexpected error on disjoint CRB range: %v", err)
	}
}

func TestSlotGridFillOutOfBoundsCollides(t *testing.T) {
	g := newSlotGrid(10)
	symbols := gridcfg.SymbolInterval{Start: 0, Length: 1}
	crbs := gridcfg.CRBInterval{Start: 5, Length: 10}
	if !g.Collides(symbols, crbs) {
		t.Errorf("expected an out-of-range CRB interval to be treated as a collision")
	}
}

func TestCellAllocatorAdvanceAndIndex(t *testing.T) {
	a := NewCellAllocator(16, 100, 100)
	start := slotpoint.New(1, 0, 0, 0)
	a.Advance(start)

	dl, err := a.DL(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dl.Slot().Equal(start) {
		t.Errorf("expected offset 0 to be the anchor slot")
	}

	dl4, err := a.DL(4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dl4.Slot().Equal(start.Add(4)) {
		t.Errorf("expected offset 4 to be anchor+4")
	}
}

func TestCellAllocatorOffsetOutOfRing(t *testing.T) {
	a := NewCellAllocator(8, 50, 50)
	a.Advance(slotpoint.New(1, 0, 0, 0))
	if _, err := a.DL(8); err == nil {
		t.Errorf("expected an error for an offset at the ring capacity")
	}
	if _, err := a.DL(-1); err == nil {
		t.Errorf("expected an error for a negative offset")
	}
}

func TestCellAllocatorAdvanceRecyclesOldestSlot(t *testing.T) {
	a := NewCellAllocator(4, 20, 20)
	start := slotpoint.New(1, 0, 0, 0)
	a.Advance(start)

	crbs := gridcfg.CRBInterval{Start: 0, Length: 5}
	symbols := gridcfg.SymbolInterval{Start: 0, Length: 14}
	dl0, _ := a.DL(0)
	if err := dl0.Fill(symbols, crbs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a.Advance(start.Add(1))
	// the grid filled above at offset 0 is now recycled to anchor+3 and
	// must be empty again.
	dl3, err := a.DL(3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dl3.Collides(symbols, crbs) {
		t.Errorf("expected the recycled slot grid to be empty")
	}
}
