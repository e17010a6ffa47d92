// Package pdcch implements the PDCCH candidate search and allocation
// used to reserve a control channel element (CCE) set for a DL or UL
// grant, following the CCE-hashing candidate search of TS 38.213 §10.1:
// candidate m at aggregation level L starts at CCE
// L*((Y_k + floor(m*N_CCE/(L*M))) mod floor(N_CCE/L)), and the first
// non-overlapping candidate in increasing m order is taken.
package pdcch

import (
	"github.com/signalsfoundry/du-scheduler/internal/dciproto"
	"github.com/signalsfoundry/du-scheduler/internal/gridcfg"
)

// Allocation is one reserved PDCCH occasion: the CCEs it occupies plus
// enough context to build the eventual DCI payload.
type Allocation struct {
	RNTI          uint32
	SearchSpaceID uint8
	AggregationLevel uint8
	CCEStart      int
	CCECount      int
	DCI           dciproto.DCI // filled in by the caller once the grant is finalised
}

// cceMask tracks, per slot per CORESET, which CCEs are already spoken
// for. A uint64 comfortably covers the realistic CORESET sizes this
// scheduler targets (CORESETs rarely exceed 48 CCEs).
type cceMask uint64

// Allocator reserves PDCCH candidates against a single slot's worth of
// CORESET CCE space. One Allocator is created fresh per slot per cell
// by the slot driver and discarded once the slot's result is emitted.
type Allocator struct {
	used      map[uint8]cceMask // keyed by CORESET id
	stack     []*Allocation      // reservation order, to support CancelLast
	slotCount uint32             // n_s,f^mu of the slot this allocator searches candidates in
}

// NewAllocator returns an empty per-slot PDCCH allocator searching
// candidates as though anchored at slot 0. Prefer NewAllocatorAt once
// the slot's actual count is known, since the hashing sequence Y_k
// depends on it.
func NewAllocator() *Allocator {
	return NewAllocatorAt(0)
}

// NewAllocatorAt returns an empty PDCCH allocator for the slot with
// the given slot count, used to seed the TS 38.213 §10.1 Y_k recurrence.
func NewAllocatorAt(slotCount uint32) *Allocator {
	return &Allocator{used: make(map[uint8]cceMask), slotCount: slotCount}
}

// hashModulus is D in TS 38.213 §10.1's Y_k = (A_p * Y_{k-1}) mod D recurrence.
const hashModulus = 65537

// aParams are the four A_p constants TS 38.213 §10.1 assigns by
// CORESET index parity; selected here by CORESET id modulo 4.
var aParams = [4]uint64{39827, 39829, 40503, 40504}

// modPow computes base^exp mod mod by repeated squaring, used to
// evaluate the Y_k recurrence in closed form instead of iterating it
// slot by slot: Y_k = A_p^(k+1) * Y_{-1} mod D.
func modPow(base, exp, mod uint64) uint64 {
	base %= mod
	result := uint64(1)
	for exp > 0 {
		if exp&1 == 1 {
			result = (result * base) % mod
		}
		exp >>= 1
		base = (base * base) % mod
	}
	return result
}

// hashingSeed computes Y_k for the search space's owning CORESET at
// the given slot, with Y_{-1} = n_RNTI (0 for a common search space).
func hashingSeed(nRNTI uint32, coresetID uint8, slotCount uint32) uint32 {
	a := aParams[coresetID%4]
	yk := modPow(a, uint64(slotCount)+1, hashModulus) * uint64(nRNTI) % hashModulus
	return uint32(yk)
}

// candidateStarts returns the CCE-index starting points this
// allocator will try, in order, for the given search space and
// aggregation level, per TS 38.213 §10.1: candidate m starts at CCE
// L*((Y_k + floor(m*N_CCE/(L*M))) mod floor(N_CCE/L)), walked for
// m = 0..M-1 where M is the configured candidate count at this
// aggregation level (or floor(N_CCE/L) if the search space leaves it
// unconfigured, i.e. monitor every aligned candidate).
func candidateStarts(ss *gridcfg.SearchSpaceInfo, rnti uint32, aggrLevel uint8, slotCount uint32) []int {
	nofCCEs := ss.CORESET.NofCCEs()
	L := int(aggrLevel)
	if L == 0 || nofCCEs < L {
		return nil
	}
	nofSlotsPerL := nofCCEs / L
	if nofSlotsPerL == 0 {
		return nil
	}
	m := int(ss.Cfg.NofCandidates[aggrLevel])
	if m == 0 {
		m = nofSlotsPerL
	}

	nRNTI := rnti
	if ss.Cfg.IsCommon {
		nRNTI = 0
	}
	yk := int(hashingSeed(nRNTI, ss.CORESET.ID, slotCount))

	starts := make([]int, 0, m)
	for mi := 0; mi < m; mi++ {
		slot := (yk + (mi*nofCCEs)/(L*m)) % nofSlotsPerL
		starts = append(starts, slot*L)
	}
	return starts
}

func maskFor(start, count int) cceMask {
	var m cceMask
	for i := start; i < start+count; i++ {
		m |= 1 << uint(i)
	}
	return m
}

// allocAny reserves the first free candidate at the requested
// aggregation level, or returns nil if the CORESET has no room left.
func (a *Allocator) allocAny(ss *gridcfg.SearchSpaceInfo, rnti uint32, aggrLevel uint8) *Allocation {
	used := a.used[ss.CORESET.ID]
	for _, start := range candidateStarts(ss, rnti, aggrLevel, a.slotCount) {
		m := maskFor(start, int(aggrLevel))
		if used&m != 0 {
			continue
		}
		a.used[ss.CORESET.ID] = used | m
		alloc := &Allocation{
			RNTI:             rnti,
			SearchSpaceID:    ss.Cfg.ID,
			AggregationLevel: aggrLevel,
			CCEStart:         start,
			CCECount:         int(aggrLevel),
		}
		a.stack = append(a.stack, alloc)
		return alloc
	}
	return nil
}

// AllocDL reserves a PDCCH candidate for a DL grant. Returns nil if no
// candidate is free at the requested aggregation level.
func (a *Allocator) AllocDL(ss *gridcfg.SearchSpaceInfo, rnti uint32, aggrLevel uint8) *Allocation {
	return a.allocAny(ss, rnti, aggrLevel)
}

// AllocUL reserves a PDCCH candidate for a UL grant. PDCCH occasions
// for UL grants are drawn from the same CORESET CCE space as DL, since
// both are carried on the DL control channel.
func (a *Allocator) AllocUL(ss *gridcfg.SearchSpaceInfo, rnti uint32, aggrLevel uint8) *Allocation {
	return a.allocAny(ss, rnti, aggrLevel)
}

// CancelLast rolls back the most recent reservation made by this
// allocator. Used by the UE cell grid allocator to undo a PDCCH grant
// when the subsequent PUCCH/UCI or MCS/TBS search fails, keeping the
// whole grant transactionally atomic.
func (a *Allocator) CancelLast(coresetID uint8) {
	if len(a.stack) == 0 {
		return
	}
	last := a.stack[len(a.stack)-1]
	a.stack = a.stack[:len(a.stack)-1]
	m := maskFor(last.CCEStart, last.CCECount)
	a.used[coresetID] &^= m
}

// Count returns how many PDCCH candidates are currently reserved in
// this slot, used by the slot driver to enforce the output list's
// capacity limit before attempting a new grant.
func (a *Allocator) Count() int { return len(a.stack) }
