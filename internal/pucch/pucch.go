// Package pucch implements the UCI allocator: it reserves PUCCH
// feedback opportunities for HARQ-ACK and CSI bits, enforces the
// configured HARQ-bit cap per UCI occasion (spec §9's 2-bit Open
// Question, kept as policy), and multiplexes pending UCI onto a PUSCH
// grant when one becomes available on the same slot.
package pucch

import (
	"sync"
)

// Format mirrors the two PUCCH formats this scheduler distinguishes:
// format 1 for a small HARQ-only payload, format 2 once CSI bits or an
// over-the-cap HARQ bit count force a larger payload.
type Format uint8

const (
	Format1 Format = iota
	Format2
)

// Reservation is the accumulated UCI state for one UE on one slot.
type Reservation struct {
	HARQBits int
	CSIBits  int
	Format   Format
}

func (r *Reservation) upgradeIfNeeded() (upgraded bool) {
	if r.Format == Format2 {
		return false
	}
	if r.HARQBits > 2 || r.CSIBits > 0 {
		r.Format = Format2
		return true
	}
	return false
}

type slotKey struct {
	slotCount uint32
	rnti      uint32
}

// Allocator is the per-cell UCI allocator. It is reset slot-by-slot by
// the slot driver dropping reservations whose slot has scrolled out of
// the ring window; reservations are keyed by (slot, rnti) so multiple
// UEs sharing a PUCCH occasion don't collide in this bookkeeping.
type Allocator struct {
	mu           sync.Mutex
	reservations map[slotKey]*Reservation
}

// NewAllocator returns an empty UCI allocator.
func NewAllocator() *Allocator {
	return &Allocator{reservations: make(map[slotKey]*Reservation)}
}

// AllocHARQ reserves one HARQ-ACK bit for rnti on the given slot. If
// isCSISlot is true and the configured cap would be exceeded, the
// reservation is refused (spec §13: the 2-bit cap only binds on CSI
// reporting slots). It returns the resulting PUCCH format and whether
// the reservation succeeded. A false result upgrades nothing and must
// be treated as "try the next k1 candidate".
func (a *Allocator) AllocHARQ(slotCount, rnti uint32, isCSISlot bool, maxHARQBitsPerUCI int, pucchFormat2Upgrades func()) (Format, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := slotKey{slotCount: slotCount, rnti: rnti}
	res, ok := a.reservations[key]
	if !ok {
		res = &Reservation{}
		a.reservations[key] = res
	}

	if isCSISlot && maxHARQBitsPerUCI > 0 && res.HARQBits >= maxHARQBitsPerUCI {
		return res.Format, false
	}

	res.HARQBits++
	if res.upgradeIfNeeded() && pucchFormat2Upgrades != nil {
		pucchFormat2Upgrades()
	}
	return res.Format, true
}

// AllocCSI reserves CSI-report bits on the given slot, forcing a
// format-2 upgrade.
func (a *Allocator) AllocCSI(slotCount, rnti uint32, bits int) Format {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := slotKey{slotCount: slotCount, rnti: rnti}
	res, ok := a.reservations[key]
	if !ok {
		res = &Reservation{}
		a.reservations[key] = res
	}
	res.CSIBits += bits
	res.upgradeIfNeeded()
	return res.Format
}

// TakeForPUSCH removes and returns the pending UCI reservation for
// rnti on the given slot so it can be multiplexed onto a PUSCH grant
// instead of transmitted on PUCCH. Returns ok=false if nothing was
// pending.
func (a *Allocator) TakeForPUSCH(slotCount, rnti uint32) (Reservation, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := slotKey{slotCount: slotCount, rnti: rnti}
	res, ok := a.reservations[key]
	if !ok {
		return Reservation{}, false
	}
	delete(a.reservations, key)
	return *res, true
}

// DAI computes the downlink-assignment-index value to place in a DCI
// format 0_1 grant, mod-4 per TS 38.213 §9.1.3. totalHARQBitsAcrossCells
// is the sum of HARQ-ACK bits scheduled for this UE's UCI occasion
// across every serving cell (a single-cell deployment passes the
// HARQBits of the reservation TakeForPUSCH returned).
func DAI(totalHARQBitsAcrossCells int) uint8 {
	if totalHARQBitsAcrossCells == 0 {
		return 3
	}
	return uint8((totalHARQBitsAcrossCells - 1) % 4)
}

// Forget drops any reservation recorded for the given slot count,
// called by the slot driver once that slot has been emitted and
// scrolled out of the ring window.
func (a *Allocator) Forget(slotCount uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for k := range a.reservations {
		if k.slotCount == slotCount {
			delete(a.reservations, k)
		}
	}
}
