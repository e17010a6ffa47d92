// Package sched implements the UE cell grid allocator — the
// transactional per-grant allocation logic that reserves PDCCH, PUCCH
// and PDSCH/PUSCH resources for one UE in one slot — and the slot
// driver that sequences the whole per-slot pipeline around it.
package sched

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/signalsfoundry/du-scheduler/internal/dciproto"
	"github.com/signalsfoundry/du-scheduler/internal/gridcfg"
	"github.com/signalsfoundry/du-scheduler/internal/grid"
	"github.com/signalsfoundry/du-scheduler/internal/harq"
	"github.com/signalsfoundry/du-scheduler/internal/logging"
	"github.com/signalsfoundry/du-scheduler/internal/mcs"
	"github.com/signalsfoundry/du-scheduler/internal/pdcch"
	"github.com/signalsfoundry/du-scheduler/internal/pucch"
	"github.com/signalsfoundry/du-scheduler/internal/result"
	"github.com/signalsfoundry/du-scheduler/internal/slotpoint"
	"github.com/signalsfoundry/du-scheduler/internal/ue"
)

// Recoverable runtime conditions (spec §7's first error class): none
// of these indicate a programming error, they mean this particular
// grant could not be placed this slot and the caller should try again
// later or drop the request.
var (
	ErrUEInactive            = errors.New("sched: ue carrier is inactive")
	ErrSearchSpaceNotFound   = errors.New("sched: no valid search space for grant")
	ErrSearchSpaceWrongBWP   = errors.New("sched: search space not valid for active bwp")
	ErrDCIFormatMismatchRetx = errors.New("sched: retransmission would require a dci format change")
	ErrDirectionDisabled     = errors.New("sched: slot is not enabled for the requested direction")
	ErrNoSpaceOutputList     = errors.New("sched: no space available in scheduler output list")
	ErrCRBOutOfLimits        = errors.New("sched: crbs are outside the valid limits")
	ErrRetxCRBLengthChanged  = errors.New("sched: number of crbs must remain constant across retransmissions")
	ErrGridCollision         = errors.New("sched: no space available in the resource grid")
	ErrNoSpacePDCCH          = errors.New("sched: no space available in pdcch")
	ErrNoSpacePUCCH          = errors.New("sched: no space available in pucch")
	ErrNoMCSFeasible         = errors.New("sched: no mcs keeps the code rate at or below 0.95")
	ErrTimeDomainIndexOutOfRange = errors.New("sched: time domain resource index out of range for this bwp")
)

// DLGrantRequest describes a candidate DL allocation the caller (the
// UE data scheduler policy, not implemented here since spec.md scopes
// it out) wants placed.
type DLGrantRequest struct {
	UEIndex  ue.Index
	SSID     uint8
	CRBs     gridcfg.CRBInterval
	Symbols  gridcfg.SymbolInterval
	MCS      uint8
	AggregationLevel uint8
	HARQProcessID    uint8 // only meaningful when retransmitting
	IsRetx   bool
	// TimeDomainIndex selects the row of the active DL BWP's PDSCH
	// time-domain resource-allocation table to take k0 (the PDCCH to
	// PDSCH slot offset) from. Ignored, with k0 defaulting to 0, when
	// the BWP carries no time-domain table.
	TimeDomainIndex uint8
}

// ULGrantRequest describes a candidate UL allocation.
type ULGrantRequest struct {
	UEIndex  ue.Index
	SSID     uint8
	CRBs     gridcfg.CRBInterval
	Symbols  gridcfg.SymbolInterval
	MCS      uint8
	AggregationLevel uint8
	HARQProcessID    uint8
	IsRetx   bool
	// TimeDomainIndex selects the row of the active UL BWP's PUSCH
	// time-domain resource-allocation table to take k2 (the PDCCH to
	// PUSCH slot offset) from. Ignored, with k2 defaulting to 0, when
	// the BWP carries no time-domain table.
	TimeDomainIndex uint8
}

// Allocator is the per-cell, per-slot UE cell grid allocator. One
// instance is constructed by the slot driver for every slot it
// processes and discarded once that slot's result has been emitted.
type Allocator struct {
	cellIndex uint8
	cfg       *gridcfg.CellConfig
	ring      *grid.CellAllocator
	pdcchAlloc *pdcch.Allocator
	uci       *pucch.Allocator
	ues       *ue.Repository
	res       *result.Result
	capacity  result.Capacity
	log       logging.Logger
}

// NewAllocator builds a per-slot allocator. uci is shared across the
// slots inside the ring window (it is keyed by slot count internally),
// while pdcchAlloc is always fresh for the current PDCCH slot.
func NewAllocator(cellIndex uint8, cfg *gridcfg.CellConfig, ring *grid.CellAllocator, uci *pucch.Allocator, ues *ue.Repository, res *result.Result, capacity result.Capacity, log logging.Logger) *Allocator {
	if log == nil {
		log = logging.Noop()
	}
	return &Allocator{
		cellIndex:  cellIndex,
		cfg:        cfg,
		ring:       ring,
		pdcchAlloc: pdcch.NewAllocatorAt(res.Slot.Count()),
		uci:        uci,
		ues:        ues,
		res:        res,
		capacity:   capacity,
		log:        log,
	}
}

// resolveTimeDomainK returns the k0/k2 slot offset named by the given
// row of a PDSCH/PUSCH time-domain resource-allocation table. A BWP
// left without a time-domain table schedules every grant at the
// PDCCH's own slot (k=0), so an empty table is not an error.
func resolveTimeDomainK(table []gridcfg.TimeDomainResource, index uint8) (int, error) {
	if len(table) == 0 {
		return 0, nil
	}
	if int(index) >= len(table) {
		return 0, ErrTimeDomainIndexOutOfRange
	}
	return int(table[index].K), nil
}

func (a *Allocator) resolveActiveUE(idx ue.Index) (*ue.UE, error) {
	u := a.ues.Get(idx)
	if u == nil {
		return nil, fmt.Errorf("%w: index=%d", ErrUEInactive, idx)
	}
	if a.ues.PendingRemoval(idx) {
		return nil, fmt.Errorf("%w: index=%d pending removal", ErrUEInactive, idx)
	}
	return u, nil
}

// AllocateDLGrant runs the full transactional DL allocation sequence.
// It returns (true, nil) on success, (false, err) when err is one of
// the recoverable conditions above — the caller should treat false as
// "try again a later slot", not as a fault.
func (a *Allocator) AllocateDLGrant(req DLGrantRequest) (bool, error) {
	u, err := a.resolveActiveUE(req.UEIndex)
	if err != nil {
		return false, err
	}

	ss := a.cfg.ResolveSearchSpace(req.SSID, u.Cfg.ActiveDLBWP, u.Cfg.ActiveULBWP)
	if ss == nil {
		return false, fmt.Errorf("%w: ss_id=%d", ErrSearchSpaceNotFound, req.SSID)
	}
	if ss.BWPID != u.Cfg.ActiveDLBWP.ID {
		return false, fmt.Errorf("%w: ss_id=%d", ErrSearchSpaceWrongBWP, req.SSID)
	}

	var h *harq.Process
	if req.IsRetx {
		h = u.DLHARQ.Process(req.HARQProcessID)
		if h == nil || h.Empty() {
			return false, fmt.Errorf("%w: no outstanding dl harq process %d", ErrUEInactive, req.HARQProcessID)
		}
		if h.LastAllocParams().DCIFormat != ss.Cfg.DLFormat {
			return false, ErrDCIFormatMismatchRetx
		}
		if h.LastAllocParams().NofCRBs != req.CRBs.Length {
			return false, ErrRetxCRBLengthChanged
		}
	} else {
		h = u.DLHARQ.FindEmpty()
		if h == nil {
			return false, fmt.Errorf("%w: no free dl harq process", ErrUEInactive)
		}
	}

	if a.res.DLFull(a.capacity) {
		return false, ErrNoSpaceOutputList
	}
	if !ss.DLCRBLims.Contains(req.CRBs) {
		return false, ErrCRBOutOfLimits
	}

	k0, err := resolveTimeDomainK(ss.PDSCHTimeDomain, req.TimeDomainIndex)
	if err != nil {
		return false, err
	}
	pdschSlot, err := a.ring.DL(k0)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDirectionDisabled, err)
	}
	if pdschSlot.Collides(req.Symbols, req.CRBs) {
		return false, ErrGridCollision
	}

	pdcchGrant := a.pdcchAlloc.AllocDL(ss, u.RNTI, req.AggregationLevel)
	if pdcchGrant == nil {
		return false, ErrNoSpacePDCCH
	}

	var k1 uint8
	var pucchFmt pucch.Format
	allocated := false
	slotCount := pdschSlot.Slot().Count()
	isCSI := u.Cfg.IsCSISlot(slotCount)
	for _, candidate := range ss.Cfg.K1Candidates {
		fmtUsed, ok := a.uci.AllocHARQ(slotCount+uint32(candidate), u.RNTI, isCSI, int(a.cfg.Expert.MaxHARQBitsPerUCI), nil)
		if !ok {
			continue
		}
		k1 = candidate
		pucchFmt = fmtUsed
		allocated = true
		break
	}
	if !allocated {
		a.pdcchAlloc.CancelLast(ss.CORESET.ID)
		return false, ErrNoSpacePUCCH
	}

	adjustedMCS := req.MCS
	if len(a.res.DL.CSIRS) > 0 && adjustedMCS > 0 {
		adjustedMCS--
	}

	var mcsResult mcs.Result
	if req.IsRetx {
		mcsResult = mcs.Result{MCS: h.LastAllocParams().MCS, TBSBytes: h.LastAllocParams().TBSBytes}
	} else {
		res, ok := mcs.Compute(adjustedMCS, req.CRBs.Length)
		if !ok {
			a.pdcchAlloc.CancelLast(ss.CORESET.ID)
			return false, ErrNoMCSFeasible
		}
		mcsResult = res
	}

	if err := pdschSlot.Fill(req.Symbols, req.CRBs); err != nil {
		a.pdcchAlloc.CancelLast(ss.CORESET.ID)
		return false, fmt.Errorf("%w: %v", ErrGridCollision, err)
	}

	params := harq.AllocParams{DCIFormat: ss.Cfg.DLFormat, MCS: mcsResult.MCS, TBSBytes: mcsResult.TBSBytes, NofCRBs: req.CRBs.Length}
	feedbackSlot := pdschSlot.Slot().Add(int(k1))
	if req.IsRetx {
		h.NewRetx(pdschSlot.Slot(), feedbackSlot, 0)
	} else {
		h.NewTx(pdschSlot.Slot(), feedbackSlot, a.cfg.Expert.MaxHARQRetxs, 0, params)
	}

	dci := dciproto.NewDL(ss.Cfg.DLFormat, u.RNTI, dciproto.DLCommon{
		FreqDomain:    dciproto.FrequencyDomainAssignment{StartCRB: req.CRBs.Start, NofCRBs: req.CRBs.Length},
		MCS:           mcsResult.MCS,
		RV:            h.RV(),
		HARQProcessID: h.ID,
		PDSCHToHARQFeedbackTiming: k1,
	}, nil)

	a.res.DL.PDCCHs = append(a.res.DL.PDCCHs, result.PDCCHEntry{
		RNTI: u.RNTI, SearchSpaceID: ss.Cfg.ID, AggregationLevel: req.AggregationLevel,
		CCEStart: pdcchGrant.CCEStart, DCI: dci,
	})
	// Step 10 (new transmissions only): pack the transport block with
	// logical-channel buffer bytes in priority order (ascending LCID)
	// until it is full or every buffer is drained. A retransmission
	// carries the original bytes already accounted for, so it fills
	// nothing fresh.
	var filledBytes int
	if !req.IsRetx {
		remaining := mcsResult.TBSBytes
		for _, lcid := range u.DLBufferLCIDs() {
			if remaining <= 0 {
				break
			}
			drained := u.ConsumeDLBuffer(lcid, uint32(remaining))
			filledBytes += int(drained)
			remaining -= int(drained)
		}
	}

	a.res.DL.PDSCHs = append(a.res.DL.PDSCHs, result.PDSCHEntry{
		Kind: result.PDSCHKindUE, RNTI: u.RNTI, CRBs: req.CRBs, Symbols: req.Symbols,
		MCS: mcsResult.MCS, TBSBytes: mcsResult.TBSBytes, RV: h.RV(), NewData: !req.IsRetx,
		HARQProcessID: h.ID, FilledBytes: filledBytes,
	})
	resPUCCHFormat := result.PUCCHFormat1
	if pucchFmt == pucch.Format2 {
		resPUCCHFormat = result.PUCCHFormat2
	}
	a.res.UL.PUCCHs = append(a.res.UL.PUCCHs, result.PUCCHEntry{RNTI: u.RNTI, Format: resPUCCHFormat, HARQBits: 1})

	a.log.Debug(context.Background(), "dl grant placed",
		logging.Any("rnti", u.RNTI), logging.Any("harq_id", h.ID),
		logging.String("tbs", humanize.Bytes(uint64(mcsResult.TBSBytes))),
		logging.String("filled", humanize.Bytes(uint64(filledBytes))))

	return true, nil
}

// AllocateULGrant runs the full transactional UL allocation sequence,
// symmetric to AllocateDLGrant with UL-specific timing, DAI computation
// and UCI-on-PUSCH multiplexing.
func (a *Allocator) AllocateULGrant(req ULGrantRequest) (bool, error) {
	u, err := a.resolveActiveUE(req.UEIndex)
	if err != nil {
		return false, err
	}

	ss := a.cfg.ResolveSearchSpace(req.SSID, u.Cfg.ActiveDLBWP, u.Cfg.ActiveULBWP)
	if ss == nil {
		return false, fmt.Errorf("%w: ss_id=%d", ErrSearchSpaceNotFound, req.SSID)
	}
	if ss.BWPID != u.Cfg.ActiveDLBWP.ID {
		return false, fmt.Errorf("%w: ss_id=%d", ErrSearchSpaceWrongBWP, req.SSID)
	}

	var h *harq.Process
	if req.IsRetx {
		h = u.ULHARQ.Process(req.HARQProcessID)
		if h == nil || h.Empty() {
			return false, fmt.Errorf("%w: no outstanding ul harq process %d", ErrUEInactive, req.HARQProcessID)
		}
		if h.LastAllocParams().DCIFormat != ss.Cfg.ULFormat {
			return false, ErrDCIFormatMismatchRetx
		}
		if h.LastAllocParams().NofCRBs != req.CRBs.Length {
			return false, ErrRetxCRBLengthChanged
		}
	} else {
		h = u.ULHARQ.FindEmpty()
		if h == nil {
			return false, fmt.Errorf("%w: no free ul harq process", ErrUEInactive)
		}
	}

	if a.res.ULFull(a.capacity) {
		return false, ErrNoSpaceOutputList
	}
	if !ss.ULCRBLims.Contains(req.CRBs) {
		return false, ErrCRBOutOfLimits
	}

	k2, err := resolveTimeDomainK(ss.PUSCHTimeDomain, req.TimeDomainIndex)
	if err != nil {
		return false, err
	}
	puschSlotGrid, err := a.ring.UL(k2)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrDirectionDisabled, err)
	}
	if puschSlotGrid.Collides(req.Symbols, req.CRBs) {
		return false, ErrGridCollision
	}

	pdcchGrant := a.pdcchAlloc.AllocUL(ss, u.RNTI, req.AggregationLevel)
	if pdcchGrant == nil {
		return false, ErrNoSpacePDCCH
	}

	var mcsResult mcs.Result
	if req.IsRetx {
		mcsResult = mcs.Result{MCS: h.LastAllocParams().MCS, TBSBytes: h.LastAllocParams().TBSBytes}
	} else {
		res, ok := mcs.Compute(req.MCS, req.CRBs.Length)
		if !ok {
			a.pdcchAlloc.CancelLast(ss.CORESET.ID)
			return false, ErrNoMCSFeasible
		}
		mcsResult = res
	}

	if err := puschSlotGrid.Fill(req.Symbols, req.CRBs); err != nil {
		a.pdcchAlloc.CancelLast(ss.CORESET.ID)
		return false, fmt.Errorf("%w: %v", ErrGridCollision, err)
	}

	params := harq.AllocParams{DCIFormat: ss.Cfg.ULFormat, MCS: mcsResult.MCS, TBSBytes: mcsResult.TBSBytes, NofCRBs: req.CRBs.Length}
	if req.IsRetx {
		h.NewRetx(puschSlotGrid.Slot(), puschSlotGrid.Slot(), 0)
	} else {
		h.NewTx(puschSlotGrid.Slot(), puschSlotGrid.Slot(), a.cfg.Expert.MaxHARQRetxs, 0, params)
	}

	var dai uint8
	multiplexedHARQBits, multiplexedCSIBits := 0, 0
	if ss.Cfg.ULFormat == dciproto.FormatCF0_1 {
		if reservation, ok := a.uci.TakeForPUSCH(puschSlotGrid.Slot().Count(), u.RNTI); ok {
			dai = pucch.DAI(reservation.HARQBits)
			multiplexedHARQBits = reservation.HARQBits
			multiplexedCSIBits = reservation.CSIBits
		} else {
			dai = pucch.DAI(0)
		}
	}

	dci := dciproto.NewUL(ss.Cfg.ULFormat, u.RNTI, dciproto.ULCommon{
		FreqDomain:    dciproto.FrequencyDomainAssignment{StartCRB: req.CRBs.Start, NofCRBs: req.CRBs.Length},
		MCS:           mcsResult.MCS,
		RV:            h.RV(),
		HARQProcessID: h.ID,
		DAI:           dai,
	}, nil)

	a.res.DL.PDCCHs = append(a.res.DL.PDCCHs, result.PDCCHEntry{
		RNTI: u.RNTI, SearchSpaceID: ss.Cfg.ID, AggregationLevel: req.AggregationLevel,
		CCEStart: pdcchGrant.CCEStart, DCI: dci,
	})
	a.res.UL.PUSCHs = append(a.res.UL.PUSCHs, result.PUSCHEntry{
		RNTI: u.RNTI, CRBs: req.CRBs, Symbols: req.Symbols,
		MCS: mcsResult.MCS, TBSBytes: mcsResult.TBSBytes, RV: h.RV(), NewData: !req.IsRetx,
		HARQProcessID: h.ID, MultiplexedUCIHARQBits: multiplexedHARQBits, MultiplexedUCICSIBits: multiplexedCSIBits,
	})

	u.ResetSRIndication()

	a.log.Debug(context.Background(), "ul grant placed",
		logging.Any("rnti", u.RNTI), logging.Any("harq_id", h.ID),
		logging.String("tbs", humanize.Bytes(uint64(mcsResult.TBSBytes))))

	return true, nil
}

// Slot returns the PDCCH-anchor slot this allocator's ring window is
// currently centred on.
func (a *Allocator) Slot() slotpoint.SlotPoint { return a.ring.Anchor() }
