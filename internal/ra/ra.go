// Package ra implements the random-access and system-information
// schedulers: SIB1 Type-0 common search space placement, PRACH
// occasion tracking, RA-RNTI computation and RAR/Msg3 grant sequencing
// per TS 38.321 §5.1 and TS 38.213 §8.2.
package ra

import (
	"errors"
	"sort"
	"sync"

	"github.com/signalsfoundry/du-scheduler/internal/gridcfg"
	"github.com/signalsfoundry/du-scheduler/internal/slotpoint"
)

// ErrRNTIPoolExhausted is a recoverable runtime condition: every
// C-RNTI in the configured range is currently assigned.
var ErrRNTIPoolExhausted = errors.New("ra: no free c-rnti in pool")

// SIRNTI and PRNTI are the reserved RNTI values TS 38.321 Table 7.1-1
// assigns to system-information and paging PDSCH transmissions.
const (
	SIRNTI = 0xFFFF
	PRNTI  = 0xFFFE
)

// RARNTI computes the RA-RNTI for a PRACH occasion per TS 38.321
// §5.1.3: RA-RNTI = 1 + s_id + 14*t_id + 14*80*f_id + 14*80*8*ul_carrier_id,
// where s_id is the first OFDM symbol index (0..13), t_id is the first
// slot index within a system frame (0..79), f_id is the PRACH occasion
// index in the frequency domain (0..7), and ul_carrier_id is 0 for the
// normal UL carrier.
func RARNTI(sID, tID, fID, ulCarrierID uint32) uint32 {
	return 1 + sID + 14*tID + 14*80*fID + 14*80*8*ulCarrierID
}

// PRACHOccasion describes one detected PRACH occasion the RA scheduler
// must open a RAR window for.
type PRACHOccasion struct {
	Slot     slotpoint.SlotPoint
	SymbolStart uint32
	FreqIndex uint32
	Preamble  uint8
}

// RARNTIFor derives the RA-RNTI for a PRACH occasion, taking the PRACH
// occasion's slot index within the frame as t_id.
func RARNTIFor(occ PRACHOccasion) uint32 {
	tID := uint32(occ.Slot.Subframe())*slotpoint.SlotsPerSubframe(occ.Slot.Numerology()) + occ.Slot.SlotIndex()
	return RARNTI(occ.SymbolStart, tID%80, occ.FreqIndex, 0)
}

// RNTIAllocator hands out unique C-RNTI and TC-RNTI values from a
// configured range, tracking which are currently in use so a released
// RNTI can be reused once its UE has been fully torn down.
type RNTIAllocator struct {
	mu       sync.Mutex
	lo, hi   uint32
	next     uint32
	inUse    map[uint32]bool
}

// NewRNTIAllocator returns an allocator drawing RNTIs from [lo, hi],
// the TS 38.321 Table 7.1-1 C-RNTI range is 0x0001..0xFFEF by default.
func NewRNTIAllocator(lo, hi uint32) *RNTIAllocator {
	return &RNTIAllocator{lo: lo, hi: hi, next: lo, inUse: make(map[uint32]bool)}
}

// Allocate returns the next free RNTI in the configured range.
func (a *RNTIAllocator) Allocate() (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := a.next
	for {
		candidate := a.next
		a.next++
		if a.next > a.hi {
			a.next = a.lo
		}
		if !a.inUse[candidate] {
			a.inUse[candidate] = true
			return candidate, nil
		}
		if a.next == start {
			return 0, ErrRNTIPoolExhausted
		}
	}
}

// Release frees a previously allocated RNTI for reuse.
func (a *RNTIAllocator) Release(rnti uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inUse, rnti)
}

// SIB1Scheduler decides which slots carry a fresh SIB1 transmission on
// the Type-0 common search space.
type SIB1Scheduler struct {
	periodSlots uint32
	offsetSlots uint32
}

// NewSIB1Scheduler builds a scheduler firing every periodSlots slots,
// starting at offsetSlots.
func NewSIB1Scheduler(periodSlots, offsetSlots uint32) *SIB1Scheduler {
	return &SIB1Scheduler{periodSlots: periodSlots, offsetSlots: offsetSlots}
}

// ShouldSchedule reports whether slot is a SIB1 transmission occasion.
func (s *SIB1Scheduler) ShouldSchedule(slot slotpoint.SlotPoint) bool {
	if s.periodSlots == 0 {
		return false
	}
	return (slot.Count()-s.offsetSlots)%s.periodSlots == 0
}

// PagingScheduler decides which slots carry a paging occasion.
type PagingScheduler struct {
	periodSlots uint32
}

// NewPagingScheduler builds a scheduler firing every periodSlots slots.
func NewPagingScheduler(periodSlots uint32) *PagingScheduler {
	return &PagingScheduler{periodSlots: periodSlots}
}

// ShouldSchedule reports whether slot is a paging occasion.
func (s *PagingScheduler) ShouldSchedule(slot slotpoint.SlotPoint) bool {
	if s.periodSlots == 0 {
		return false
	}
	return slot.Count()%s.periodSlots == 0
}

// PendingRAR tracks one outstanding RAR/Msg3 sequence: a detected
// PRACH preamble awaiting its RAR grant, and once granted, its Msg3
// grant awaiting completion.
type PendingRAR struct {
	Occasion PRACHOccasion
	RARNTI   uint32
	TCRNTI   uint32
	RARSlot  slotpoint.SlotPoint // the slot the RAR PDSCH was actually sent on
	RARSent  bool
}

// WindowExpired reports whether the RAR response window (in slots) has
// elapsed without the RAR being sent, per TS 38.213 §8.2's ra-ResponseWindow.
func (p *PendingRAR) WindowExpired(now slotpoint.SlotPoint, windowSlots uint32) bool {
	if p.RARSent {
		return false
	}
	return uint32(now.Sub(p.Occasion.Slot)) > windowSlots
}

// Tracker manages the set of in-flight RAR sequences for one cell.
type Tracker struct {
	mu      sync.Mutex
	pending map[uint32]*PendingRAR // keyed by RA-RNTI
}

// NewTracker returns an empty RAR tracker.
func NewTracker() *Tracker {
	return &Tracker{pending: make(map[uint32]*PendingRAR)}
}

// AddOccasion registers a newly detected PRACH preamble and returns
// its derived RA-RNTI.
func (t *Tracker) AddOccasion(occ PRACHOccasion) uint32 {
	raRNTI := RARNTIFor(occ)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[raRNTI] = &PendingRAR{Occasion: occ, RARNTI: raRNTI}
	return raRNTI
}

// MarkRARSent records that the RAR for raRNTI was transmitted on slot.
func (t *Tracker) MarkRARSent(raRNTI uint32, tcRNTI uint32, slot slotpoint.SlotPoint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.pending[raRNTI]; ok {
		p.RARSent = true
		p.TCRNTI = tcRNTI
		p.RARSlot = slot
	}
}

// ExpireStale drops and returns every pending RAR whose response
// window has elapsed, freeing the RA scheduler to reuse that RA-RNTI.
func (t *Tracker) ExpireStale(now slotpoint.SlotPoint, windowSlots uint32) []*PendingRAR {
	t.mu.Lock()
	defer t.mu.Unlock()
	var expired []*PendingRAR
	for raRNTI, p := range t.pending {
		if p.WindowExpired(now, windowSlots) {
			expired = append(expired, p)
			delete(t.pending, raRNTI)
		}
	}
	return expired
}

// Pending returns the RA-RNTIs of every tracked sequence that has not
// yet had its RAR sent, sorted ascending — the order the RAR scheduler
// considers them in within a slot.
func (t *Tracker) Pending() []uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []uint32
	for raRNTI, p := range t.pending {
		if !p.RARSent {
			out = append(out, raRNTI)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Peek returns the pending RAR sequence tracked under raRNTI, or nil
// if it is not currently tracked.
func (t *Tracker) Peek(raRNTI uint32) *PendingRAR {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending[raRNTI]
}

// Complete removes a fully resolved RAR sequence (Msg3 received and
// handled, or the UE promoted to C-RNTI).
func (t *Tracker) Complete(raRNTI uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, raRNTI)
}

// Msg3Grant describes the UL grant embedded in a RAR payload, carried
// on the TC-RNTI before the UE has a dedicated configuration.
type Msg3Grant struct {
	TCRNTI   uint32
	CRBs     gridcfg.CRBInterval
	Slot     slotpoint.SlotPoint
}
