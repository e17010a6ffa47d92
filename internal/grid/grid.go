// Package grid implements the per-slot resource-block bitmap and the
// circular resource-allocator ring the scheduler uses to reserve PRBs
// ahead of transmission time. One ring is owned per cell; it is
// advanced by exactly one slot per tick and indexed by the same
// PDCCH-relative offset the original allocator uses ("get_res_alloc(cell)[k]").
package grid

import (
	"errors"
	"fmt"
	"sync"

	"github.com/signalsfoundry/du-scheduler/internal/gridcfg"
	"github.com/signalsfoundry/du-scheduler/internal/slotpoint"
)

var (
	// ErrOffsetOutOfRing is a contract violation: a caller asked for a
	// slot offset beyond the ring's configured window.
	ErrOffsetOutOfRing = errors.New("grid: offset exceeds ring capacity")
	// ErrGridCollision reports that the requested symbols/CRBs are
	// already occupied; this is an expected runtime condition (spec §7),
	// not a contract violation.
	ErrGridCollision = errors.New("grid: requested resources collide with an existing reservation")
)

const symbolsPerSlot = 14

// symbolMask is a bitmap over the 14 OFDM symbols of a slot.
type symbolMask uint16

func maskFor(symbols gridcfg.SymbolInterval) symbolMask {
	var m symbolMask
	for s := symbols.Start; s < symbols.Start+symbols.Length; s++ {
		m |= 1 << uint(s)
	}
	return m
}

// SlotGrid tracks per-CRB symbol occupancy for one direction (DL or UL)
// of a single slot.
type SlotGrid struct {
	slot  slotpoint.SlotPoint
	crbs  []symbolMask // indexed by CRB
}

func newSlotGrid(nofCRBs int) SlotGrid {
	return SlotGrid{crbs: make([]symbolMask, nofCRBs)}
}

func (g *SlotGrid) reset(slot slotpoint.SlotPoint) {
	g.slot = slot
	for i := range g.crbs {
		g.crbs[i] = 0
	}
}

// Slot returns the slot this grid currently represents.
func (g *SlotGrid) Slot() slotpoint.SlotPoint { return g.slot }

// Collides reports whether the given symbols over the given CRBs
// overlap any existing reservation.
func (g *SlotGrid) Collides(symbols gridcfg.SymbolInterval, crbs gridcfg.CRBInterval) bool {
	m := maskFor(symbols)
	end := crbs.Start + crbs.Length
	if crbs.Start < 0 || end > len(g.crbs) {
		return true
	}
	for i := crbs.Start; i < end; i++ {
		if g.crbs[i]&m != 0 {
			return true
		}
	}
	return false
}

// Fill marks the given symbols over the given CRBs as occupied. It
// returns ErrGridCollision without mutating the grid if any overlap is
// detected, keeping Fill idempotent-safe under retry.
func (g *SlotGrid) Fill(symbols gridcfg.SymbolInterval, crbs gridcfg.CRBInterval) error {
	if g.Collides(symbols, crbs) {
		return ErrGridCollision
	}
	m := maskFor(symbols)
	for i := crbs.Start; i < crbs.Start+crbs.Length; i++ {
		g.crbs[i] |= m
	}
	return nil
}

// FreeCRBCount returns how many CRBs have no symbol occupied at all,
// a cheap capacity signal used by the RA/SIB schedulers before
// attempting a placement.
func (g *SlotGrid) FreeCRBCount() int {
	n := 0
	for _, m := range g.crbs {
		if m == 0 {
			n++
		}
	}
	return n
}

// CellAllocator is the per-cell circular resource-allocator ring: a
// fixed-size window of upcoming DL and UL SlotGrids, indexed by an
// offset relative to the cell's current PDCCH slot (offset 0). The
// window must be sized to cover at least max(k0, k1, k2) + 1 slots so
// every timing-offset lookup the allocator needs stays inside the ring.
type CellAllocator struct {
	mu       sync.Mutex
	capacity int
	dl       []SlotGrid
	ul       []SlotGrid
	anchor   slotpoint.SlotPoint // the slot at offset 0
	primed   bool
}

// NewCellAllocator builds a ring with the given capacity (in slots) and
// number of CRBs per direction.
func NewCellAllocator(capacity int, nofDLCRBs, nofULCRBs int) *CellAllocator {
	dl := make([]SlotGrid, capacity)
	ul := make([]SlotGrid, capacity)
	for i := range dl {
		dl[i] = newSlotGrid(nofDLCRBs)
		ul[i] = newSlotGrid(nofULCRBs)
	}
	return &CellAllocator{capacity: capacity, dl: dl, ul: ul}
}

// Advance moves the ring's offset-0 anchor to the given slot,
// recycling and zeroing the grid that falls out of the window. Callers
// must advance by exactly one slot per tick; advancing by more than one
// slot indicates a missed tick and zeroes every grid it skips over.
func (a *CellAllocator) Advance(slot slotpoint.SlotPoint) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.primed {
		for i := 0; i < a.capacity; i++ {
			s := slot.Add(i)
			idx := int(s.Count()) % a.capacity
			a.dl[idx].reset(s)
			a.ul[idx].reset(s)
		}
		a.anchor = slot
		a.primed = true
		return
	}

	steps := slot.Sub(a.anchor)
	if steps <= 0 {
		return
	}
	if steps > a.capacity {
		steps = a.capacity
	}
	for s := 0; s < steps; s++ {
		recycleSlot := slot.Add(a.capacity - steps + s)
		idx := int(recycleSlot.Count()) % a.capacity
		a.dl[idx].reset(recycleSlot)
		a.ul[idx].reset(recycleSlot)
	}
	a.anchor = slot
}

// index maps a PDCCH-relative offset to a ring slot index, validating
// it sits inside the configured window.
func (a *CellAllocator) index(offset int) (int, slotpoint.SlotPoint, error) {
	if offset < 0 || offset >= a.capacity {
		return 0, slotpoint.SlotPoint{}, fmt.Errorf("%w: offset=%d capacity=%d", ErrOffsetOutOfRing, offset, a.capacity)
	}
	target := a.anchor.Add(offset)
	return int(target.Count()) % a.capacity, target, nil
}

// DL returns the DL SlotGrid at the given PDCCH-relative offset.
func (a *CellAllocator) DL(offset int) (*SlotGrid, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx, _, err := a.index(offset)
	if err != nil {
		return nil, err
	}
	return &a.dl[idx], nil
}

// UL returns the UL SlotGrid at the given PDCCH-relative offset.
func (a *CellAllocator) UL(offset int) (*SlotGrid, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx, _, err := a.index(offset)
	if err != nil {
		return nil, err
	}
	return &a.ul[idx], nil
}

// Anchor returns the slot currently sitting at offset 0.
func (a *CellAllocator) Anchor() slotpoint.SlotPoint {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.anchor
}

// Capacity returns the ring's configured window size in slots.
func (a *CellAllocator) Capacity() int { return a.capacity }
