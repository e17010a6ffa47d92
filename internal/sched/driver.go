package sched

import (
	"context"
	"time"

	"github.com/signalsfoundry/du-scheduler/internal/events"
	"github.com/signalsfoundry/du-scheduler/internal/gridcfg"
	"github.com/signalsfoundry/du-scheduler/internal/grid"
	"github.com/signalsfoundry/du-scheduler/internal/logging"
	"github.com/signalsfoundry/du-scheduler/internal/observability"
	"github.com/signalsfoundry/du-scheduler/internal/pucch"
	"github.com/signalsfoundry/du-scheduler/internal/ra"
	"github.com/signalsfoundry/du-scheduler/internal/result"
	"github.com/signalsfoundry/du-scheduler/internal/slotpoint"
	"github.com/signalsfoundry/du-scheduler/internal/ue"
)

// SlotBudget is the real-time processing budget a single slot's
// pipeline must complete within (spec §5).
const SlotBudget = 250 * time.Microsecond

// Driver owns one cell's per-slot pipeline: advance the resource
// allocator ring, drain this slot's events, run the RA/SIB/paging
// schedulers, hand control to the caller-supplied UE data-scheduling
// policy, then emit the finished result.
type Driver struct {
	CellIndex uint8
	Cfg       *gridcfg.CellConfig

	Ring   *grid.CellAllocator
	UCI    *pucch.Allocator
	UEs    *ue.Repository
	Events *events.Manager
	SIB1   *ra.SIB1Scheduler
	Paging *ra.PagingScheduler
	RA     *ra.Tracker
	// RNTIAlloc hands out TC-RNTIs for Msg3 grants, per TS 38.321
	// Table 7.1-1's 0x0001..0xFFEF C-RNTI/TC-RNTI range.
	RNTIAlloc *ra.RNTIAllocator

	Metrics *observability.SchedulerCollector
	Log     logging.Logger

	capacity result.Capacity
}

// NewDriver builds a slot driver from its component parts. capacity
// defaults to result.DefaultCapacity() when the zero value is passed.
func NewDriver(cellIndex uint8, cfg *gridcfg.CellConfig, ring *grid.CellAllocator, uci *pucch.Allocator, ues *ue.Repository, ev *events.Manager, capacity result.Capacity) *Driver {
	if capacity == (result.Capacity{}) {
		capacity = result.DefaultCapacity()
	}
	d := &Driver{
		CellIndex: cellIndex,
		Cfg:       cfg,
		Ring:      ring,
		UCI:       uci,
		UEs:       ues,
		Events:    ev,
		SIB1:      ra.NewSIB1Scheduler(uint32(cfg.SIB1PeriodSlots), 0),
		Paging:    ra.NewPagingScheduler(uint32(cfg.PagingPeriodSlots)),
		RA:        ra.NewTracker(),
		RNTIAlloc: ra.NewRNTIAllocator(1, 0xFFEF),
		Log:       logging.Noop(),
		capacity:  capacity,
	}
	ues.Subscribe(d.onUEEvent)
	return d
}

// onUEEvent reacts to a UE repository lifecycle event: a removed UE's
// RNTI is released back to the TC-RNTI/C-RNTI pool so it can be
// reassigned to a future random-access attempt, and every transition
// is logged for observability.
func (d *Driver) onUEEvent(ev ue.Event) {
	ctx := context.Background()
	switch ev.Type {
	case ue.EventUECreated:
		d.Log.Info(ctx, "ue added", logging.Any("ue_index", ev.Index), logging.Any("rnti", ev.RNTI))
	case ue.EventUEReconfigured:
		d.Log.Debug(ctx, "ue reconfigured", logging.Any("ue_index", ev.Index))
	case ue.EventUERemoved:
		d.RNTIAlloc.Release(ev.RNTI)
		d.Log.Info(ctx, "ue removed after harq drain",
			logging.Any("ue_index", ev.Index), logging.Any("rnti", ev.RNTI),
			logging.String("correlation_id", events.NewCorrelationID()))
	}
}

// IngestPRACHDetection submits a detected PRACH preamble to this
// cell's event queue, opening a RAR/Msg3 sequence for it (spec §4.8).
func (d *Driver) IngestPRACHDetection(occ ra.PRACHOccasion) bool {
	return d.Events.EnqueueCellSpecific(d.CellIndex, func() {
		d.RA.AddOccasion(occ)
	})
}

// IngestCRC submits a ul_crc_indication for this cell.
func (d *Driver) IngestCRC(ind events.CRCIndication) bool {
	return d.Events.EnqueueCRC(d.CellIndex, d.UEs.Get, ind, d.Cfg.Expert.PUSCHSNREWMAAlpha, d.onRLF)
}

// IngestUCI submits a uci_indication for this cell.
func (d *Driver) IngestUCI(ind events.UCIIndication) bool {
	return d.Events.EnqueueUCI(d.CellIndex, d.UEs.Get, ind, d.onRLF)
}

// IngestBSR submits a ul_bsr_indication.
func (d *Driver) IngestBSR(ind events.BSRIndication) bool {
	return d.Events.EnqueueBSR(d.UEs.Get, ind)
}

// IngestDLBufferState submits a dl_buffer_state_indication.
func (d *Driver) IngestDLBufferState(ind events.DLBufferStateIndication) bool {
	return d.Events.EnqueueDLBufferState(d.UEs.Get, ind)
}

// IngestMACCE submits a dl_mac_ce_indication.
func (d *Driver) IngestMACCE(ind events.MACCEIndication) bool {
	return d.Events.EnqueueMACCE(d.UEs.Get, ind)
}

// onRLF logs and counts a radio-link-failure crossing reported by a
// CRC or UCI indication handler.
func (d *Driver) onRLF(rlf events.RLFEvent) {
	d.Log.Warn(context.Background(), "radio link failure threshold crossed",
		logging.Any("ue_index", rlf.UEIndex),
		logging.String("direction", rlf.Direction.String()),
		logging.String("correlation_id", events.NewCorrelationID()))
	if d.Metrics != nil {
		d.Metrics.RLFIndications.WithLabelValues(cellLabel(d.CellIndex), rlf.Direction.String()).Inc()
	}
}

// scheduleBroadcastPDSCH places a SIB1/paging/RAR PDSCH within
// CORESET#0's RB and symbol limits on the current DL slot grid,
// reporting whether the placement succeeded — the grid may already be
// occupied, in which case the caller skips this occasion this slot.
func (d *Driver) scheduleBroadcastPDSCH(kind result.PDSCHKind, rnti uint32, res *result.Result) bool {
	slotGrid, err := d.Ring.DL(0)
	if err != nil {
		return false
	}
	crbs := d.Cfg.CORESET0.CRBs
	symbols := d.Cfg.CORESET0.Symbols
	if err := slotGrid.Fill(symbols, crbs); err != nil {
		return false
	}
	res.DL.PDSCHs = append(res.DL.PDSCHs, result.PDSCHEntry{
		Kind: kind, RNTI: rnti, CRBs: crbs, Symbols: symbols,
	})
	return true
}

// allocateMsg3Grant reserves the UL grant embedded in a RAR's payload,
// a fixed k2 slots after the RAR PDSCH (spec §4.8); this scheduler
// simplifies Msg3 placement to CORESET#0's own RB span.
func (d *Driver) allocateMsg3Grant(tcRNTI uint32) (ra.Msg3Grant, bool) {
	ulGrid, err := d.Ring.UL(int(d.Cfg.Expert.Msg3K2Slots))
	if err != nil {
		return ra.Msg3Grant{}, false
	}
	crbs := d.Cfg.CORESET0.CRBs
	symbols := d.Cfg.CORESET0.Symbols
	if err := ulGrid.Fill(symbols, crbs); err != nil {
		return ra.Msg3Grant{}, false
	}
	return ra.Msg3Grant{TCRNTI: tcRNTI, CRBs: crbs, Slot: ulGrid.Slot()}, true
}

// TickFunc is invoked once per slot with the allocator and the
// in-progress result, so the caller's UE data-scheduling policy (out
// of scope for this package, spec.md's Non-goals) can issue grants
// via Allocator.AllocateDLGrant/AllocateULGrant before the slot closes.
type TickFunc func(a *Allocator, res *result.Result)

// RunSlot advances the ring to slot, drains this slot's events, places
// SIB1/paging occasions, invokes tick for UE-driven grants, then
// returns the finished result. The duration of the whole call is
// measured, returned as the elapsed value and, when Metrics is set,
// recorded there, with a deadline miss counted when it exceeds
// SlotBudget.
func (d *Driver) RunSlot(slot slotpoint.SlotPoint, tick TickFunc) (*result.Result, time.Duration) {
	start := nowFunc()

	d.Ring.Advance(slot)
	d.Events.RunCommon()
	d.Events.RunCellSpecific(d.CellIndex)
	d.UCI.Forget(slot.Add(-1).Count())

	res := &result.Result{CellIndex: d.CellIndex, Slot: slot}
	ctx := context.Background()

	if d.SIB1.ShouldSchedule(slot) {
		if !d.scheduleBroadcastPDSCH(result.PDSCHKindSIB, ra.SIRNTI, res) {
			d.Log.Warn(ctx, "sib1: coreset#0 unavailable this slot",
				logging.String("correlation_id", events.NewCorrelationID()))
		}
	}
	if d.Paging.ShouldSchedule(slot) {
		if !d.scheduleBroadcastPDSCH(result.PDSCHKindPaging, ra.PRNTI, res) {
			d.Log.Warn(ctx, "paging: coreset#0 unavailable this slot",
				logging.String("correlation_id", events.NewCorrelationID()))
		}
	}

	if d.Cfg.PRACH.PeriodSlots > 0 && (int(slot.Count())-d.Cfg.PRACH.SlotOffset)%d.Cfg.PRACH.PeriodSlots == 0 {
		res.UL.PRACHOccasions = append(res.UL.PRACHOccasions, result.PRACHOccasionEntry{
			SymbolStart: uint32(d.Cfg.PRACH.SymbolStart),
		})
	}

	// Attempt the RAR on the first DL-eligible slot inside the RA
	// window for every preamble not yet served (spec §4.8); Msg3's
	// grant is carried in the same RAR payload once the RAR lands.
	for _, raRNTI := range d.RA.Pending() {
		tcRNTI, err := d.RNTIAlloc.Allocate()
		if err != nil {
			d.Log.Warn(ctx, "ra: tc-rnti pool exhausted", logging.Any("ra_rnti", raRNTI))
			continue
		}
		if !d.scheduleBroadcastPDSCH(result.PDSCHKindRAR, raRNTI, res) {
			d.RNTIAlloc.Release(tcRNTI)
			continue
		}
		d.RA.MarkRARSent(raRNTI, tcRNTI, slot)
		if grant, ok := d.allocateMsg3Grant(tcRNTI); ok {
			res.UL.Msg3Grants = append(res.UL.Msg3Grants, grant)
		}
	}

	responseWindow := uint32(d.Cfg.PRACH.ResponseWindowSlots)
	if responseWindow == 0 {
		responseWindow = 10
	}
	for _, expired := range d.RA.ExpireStale(slot, responseWindow) {
		d.Log.Warn(ctx, "ra: rar response window expired",
			logging.Any("ra_rnti", expired.RARNTI),
			logging.String("correlation_id", events.NewCorrelationID()))
	}

	// Deletion, and the resulting EventUERemoved notification to
	// onUEEvent, happens inside RemoveDrained itself.
	d.UEs.RemoveDrained()

	alloc := NewAllocator(d.CellIndex, d.Cfg, d.Ring, d.UCI, d.UEs, res, d.capacity, d.Log)
	if tick != nil {
		tick(alloc, res)
	}

	elapsed := nowFunc().Sub(start)
	if d.Metrics != nil {
		cellLabel := cellLabel(d.CellIndex)
		d.Metrics.ObserveSlotDuration(cellLabel, elapsed)
		if elapsed > SlotBudget {
			d.Metrics.RTDeadlineMiss.WithLabelValues(cellLabel).Inc()
		}
	}
	return res, elapsed
}

// nowFunc is a seam for deterministic tests; production code always
// uses time.Now.
var nowFunc = time.Now

func cellLabel(cellIndex uint8) string {
	const hextable = "0123456789abcdef"
	return "cell-" + string([]byte{hextable[cellIndex%16]})
}
