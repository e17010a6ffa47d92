// Package ue is the per-cell UE repository: it stores each user's
// dedicated configuration, cross-carrier state and HARQ entities
// behind a single mutex, and notifies subscribers (such as the slot
// driver) when a user is added, reconfigured or removed.
package ue

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/signalsfoundry/du-scheduler/internal/gridcfg"
	"github.com/signalsfoundry/du-scheduler/internal/harq"
)

var (
	ErrUEExists       = errors.New("ue: index already exists")
	ErrUENotFound     = errors.New("ue: index not found")
	ErrUEBadInput     = errors.New("ue: invalid ue definition")
	ErrUEPendingRemoval = errors.New("ue: index is pending removal")
)

// Index identifies a UE within this cell's repository. It is distinct
// from the RNTI: the index is a stable local handle, the RNTI is the
// over-the-air identity and may be reassigned across a UE's lifetime
// (e.g. TC-RNTI -> C-RNTI during random access).
type Index uint16

// LCID identifies one downlink logical channel (TS 38.321 §6.2.1); the
// dl_buffer_state_indication external interface input reports RLC
// buffer occupancy per LCID.
type LCID uint8

// LCGID identifies one logical-channel group (TS 38.321 §6.1.3.1); the
// ul_bsr_indication external interface input reports UL buffer
// occupancy aggregated per LCG, not per LCID.
type LCGID uint8

// MaxLCGs is the number of logical-channel groups a buffer status
// report can address (a 3-bit LCG id field).
const MaxLCGs = 8

// EventType indicates what kind of change happened in the repository.
type EventType int

const (
	EventUECreated EventType = iota
	EventUEReconfigured
	EventUERemoved
)

// Event is emitted to subscribers when a UE's lifecycle state changes.
type Event struct {
	Type  EventType
	Index Index
	RNTI  uint32
}

// DedicatedConfig is the per-UE RRC-configured overlay on top of the
// cell's common BWP/SearchSpace configuration.
type DedicatedConfig struct {
	ActiveDLBWP gridcfg.BWPCommon
	ActiveULBWP gridcfg.BWPCommon
	CSIReportOffset uint32
	CSIReportPeriodSlots uint32
}

// IsCSISlot reports whether the given slot count is a CSI-RS reporting
// occasion for this UE, per the offset/period pair in its dedicated
// config (spec §13's CSI-slot interaction with the PUCCH HARQ-bit cap).
func (d DedicatedConfig) IsCSISlot(slotCount uint32) bool {
	if d.CSIReportPeriodSlots == 0 {
		return false
	}
	return (slotCount-d.CSIReportOffset)%d.CSIReportPeriodSlots == 0
}

// UE is one user's full scheduling state on this cell.
type UE struct {
	Index Index
	RNTI  uint32

	Cfg DedicatedConfig

	DLHARQ *harq.Entity
	ULHARQ *harq.Entity

	pendingSR      bool
	srPendingSlot  uint32
	pendingRemoval bool

	dlBuffers     map[LCID]uint32
	ulBuffers     [MaxLCGs]uint32
	pendingMACCEs map[uint8]bool

	widebandCQI  uint8
	ewmaPrimed   bool
	puschSNREWMA float64
}

// ResetSRIndication clears the pending scheduling-request flag,
// called once a UL grant has been successfully allocated for this UE
// (spec §13's "SR reset on successful PUSCH allocation").
func (u *UE) ResetSRIndication() { u.pendingSR = false }

// SetSRIndication marks that this UE has signalled a scheduling request.
func (u *UE) SetSRIndication() { u.pendingSR = true }

// SetSRIndicationAtSlot marks a scheduling request pending and records
// the slot it was raised on, used by the uci_indication handler so the
// SR's age can be tracked against the UE's configured SR periodicity.
func (u *UE) SetSRIndicationAtSlot(slotCount uint32) {
	u.pendingSR = true
	u.srPendingSlot = slotCount
}

// HasPendingSR reports whether a scheduling request is outstanding.
func (u *UE) HasPendingSR() bool { return u.pendingSR }

// SRPendingSlot returns the slot count an outstanding SR was raised
// on; only meaningful while HasPendingSR is true.
func (u *UE) SRPendingSlot() uint32 { return u.srPendingSlot }

// SetDLBufferState records a dl_buffer_state_indication: the RLC
// buffer occupancy, in bytes, currently queued on lcid.
func (u *UE) SetDLBufferState(lcid LCID, bytes uint32) {
	if u.dlBuffers == nil {
		u.dlBuffers = make(map[LCID]uint32)
	}
	u.dlBuffers[lcid] = bytes
}

// DLBufferBytes returns the last reported DL buffer occupancy for lcid.
func (u *UE) DLBufferBytes(lcid LCID) uint32 { return u.dlBuffers[lcid] }

// DLBufferLCIDs returns every logical channel with a non-zero DL
// buffer, in ascending LCID order — a lower LCID carries higher
// scheduling priority (TS 38.321's SRB-before-DRB convention), which
// is the order the UE cell grid allocator fills a transport block in.
func (u *UE) DLBufferLCIDs() []LCID {
	out := make([]LCID, 0, len(u.dlBuffers))
	for lcid, bytes := range u.dlBuffers {
		if bytes > 0 {
			out = append(out, lcid)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// TotalDLBufferBytes sums the queued DL bytes across every logical channel.
func (u *UE) TotalDLBufferBytes() uint32 {
	var total uint32
	for _, b := range u.dlBuffers {
		total += b
	}
	return total
}

// ConsumeDLBuffer removes up to bytes from lcid's DL buffer, as a
// transport block is filled, and returns how much was actually drained.
func (u *UE) ConsumeDLBuffer(lcid LCID, bytes uint32) uint32 {
	have := u.dlBuffers[lcid]
	if bytes >= have {
		delete(u.dlBuffers, lcid)
		return have
	}
	u.dlBuffers[lcid] = have - bytes
	return bytes
}

// SetULBufferStatus records one (lcg-id, bytes) pair of a decoded
// ul_bsr_indication. Indices outside the 3-bit LCG space are ignored.
func (u *UE) SetULBufferStatus(lcg LCGID, bytes uint32) {
	if int(lcg) >= len(u.ulBuffers) {
		return
	}
	u.ulBuffers[lcg] = bytes
}

// ULBufferBytes returns the last reported UL buffer occupancy for lcg.
func (u *UE) ULBufferBytes(lcg LCGID) uint32 {
	if int(lcg) >= len(u.ulBuffers) {
		return 0
	}
	return u.ulBuffers[lcg]
}

// TotalULBufferBytes sums the reported UL bytes across every LCG.
func (u *UE) TotalULBufferBytes() uint32 {
	var total uint32
	for _, b := range u.ulBuffers {
		total += b
	}
	return total
}

// MarkMACCEPending records a dl_mac_ce_indication: a MAC control
// element of the given CE-LCID (TS 38.321 Table 6.2.1-1) is queued
// ahead of this UE's data.
func (u *UE) MarkMACCEPending(ceLCID uint8) {
	if u.pendingMACCEs == nil {
		u.pendingMACCEs = make(map[uint8]bool)
	}
	u.pendingMACCEs[ceLCID] = true
}

// HasPendingMACCE reports whether ceLCID is still queued.
func (u *UE) HasPendingMACCE(ceLCID uint8) bool { return u.pendingMACCEs[ceLCID] }

// ClearMACCE marks a MAC control element as transmitted.
func (u *UE) ClearMACCE(ceLCID uint8) { delete(u.pendingMACCEs, ceLCID) }

// SetWidebandCQI records the wideband CQI decoded from a 4-bit
// CSI-part-1 payload (TS 38.214 Table 5.2.2.1-2, 0..15).
func (u *UE) SetWidebandCQI(cqi uint8) { u.widebandCQI = cqi }

// WidebandCQI returns the latest reported wideband CQI.
func (u *UE) WidebandCQI() uint8 { return u.widebandCQI }

// UpdatePUSCHSNREWMA folds a freshly reported PUSCH SNR sample (dB)
// into the exponential moving average the MCS-selection policy reads,
// with smoothing factor alpha in (0, 1]; the first sample primes the
// average outright rather than blending against a zero baseline.
func (u *UE) UpdatePUSCHSNREWMA(sampleDB, alpha float64) {
	if !u.ewmaPrimed {
		u.puschSNREWMA = sampleDB
		u.ewmaPrimed = true
		return
	}
	u.puschSNREWMA = alpha*sampleDB + (1-alpha)*u.puschSNREWMA
}

// PUSCHSNREWMA returns the current PUSCH SNR moving average (dB).
func (u *UE) PUSCHSNREWMA() float64 { return u.puschSNREWMA }

// Repository is the thread-safe per-cell UE store.
type Repository struct {
	mu sync.RWMutex

	ues map[Index]*UE

	subs []func(Event)
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{ues: make(map[Index]*UE)}
}

// AddUE inserts a newly created UE. Returns ErrUEExists if the index
// is already present.
func (r *Repository) AddUE(u *UE) error {
	if u == nil || u.RNTI == 0 {
		return fmt.Errorf("%w", ErrUEBadInput)
	}
	r.mu.Lock()
	if _, exists := r.ues[u.Index]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: index=%d", ErrUEExists, u.Index)
	}
	r.ues[u.Index] = u
	subs := append([]func(Event){}, r.subs...)
	r.mu.Unlock()

	event := Event{Type: EventUECreated, Index: u.Index, RNTI: u.RNTI}
	for _, sub := range subs {
		sub(event)
	}
	return nil
}

// Get returns the UE with the given index, or nil if not present.
func (r *Repository) Get(idx Index) *UE {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ues[idx]
}

// Contains reports whether idx is a known UE.
func (r *Repository) Contains(idx Index) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ues[idx]
	return ok
}

// Reconfigure applies a new dedicated configuration to an existing UE.
func (r *Repository) Reconfigure(idx Index, cfg DedicatedConfig) error {
	r.mu.Lock()
	u, ok := r.ues[idx]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: index=%d", ErrUENotFound, idx)
	}
	u.Cfg = cfg
	subs := append([]func(Event){}, r.subs...)
	rnti := u.RNTI
	r.mu.Unlock()

	event := Event{Type: EventUEReconfigured, Index: idx, RNTI: rnti}
	for _, sub := range subs {
		sub(event)
	}
	return nil
}

// ScheduleRemoval marks a UE as pending deletion; it stays visible to
// the scheduler (so outstanding HARQ processes still drain) but new
// grants must no longer be issued to it. RemoveDrained performs the
// actual deletion once the slot driver confirms no HARQ process is
// outstanding.
func (r *Repository) ScheduleRemoval(idx Index) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.ues[idx]
	if !ok {
		return fmt.Errorf("%w: index=%d", ErrUENotFound, idx)
	}
	u.pendingRemoval = true
	return nil
}

// HasOutstandingHARQ reports whether any DL or UL process of this UE
// is not in the empty state.
func (u *UE) HasOutstandingHARQ() bool {
	for i := uint8(0); i < harq.MaxProcesses; i++ {
		if p := u.DLHARQ.Process(i); p != nil && !p.Empty() {
			return true
		}
		if p := u.ULHARQ.Process(i); p != nil && !p.Empty() {
			return true
		}
	}
	return false
}

// RemoveDrained deletes every UE marked pending removal that has no
// outstanding HARQ process, as required at a slot boundary, and
// notifies subscribers of each removal at the moment it actually
// happens rather than when it was merely requested. It returns the
// indices actually removed.
func (r *Repository) RemoveDrained() []Index {
	r.mu.Lock()
	var removed []Index
	var events []Event
	for idx, u := range r.ues {
		if u.pendingRemoval && !u.HasOutstandingHARQ() {
			delete(r.ues, idx)
			removed = append(removed, idx)
			events = append(events, Event{Type: EventUERemoved, Index: idx, RNTI: u.RNTI})
		}
	}
	subs := append([]func(Event){}, r.subs...)
	r.mu.Unlock()

	for _, event := range events {
		for _, sub := range subs {
			sub(event)
		}
	}
	return removed
}

// PendingRemoval reports whether idx has been marked for deletion.
func (r *Repository) PendingRemoval(idx Index) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.ues[idx]
	return ok && u.pendingRemoval
}

// List returns a snapshot slice of every UE currently tracked,
// including those pending removal.
func (r *Repository) List() []*UE {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]*UE, 0, len(r.ues))
	for _, u := range r.ues {
		res = append(res, u)
	}
	return res
}

// Count returns the number of UEs currently tracked.
func (r *Repository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ues)
}

// Subscribe registers a callback for repository lifecycle events. It
// returns an unsubscribe function.
func (r *Repository) Subscribe(fn func(Event)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, fn)
	idx := len(r.subs) - 1

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if idx < 0 || idx >= len(r.subs) {
			return
		}
		r.subs = append(r.subs[:idx], r.subs[idx+1:]...)
		idx = -1
	}
}
