package events

import (
	"github.com/signalsfoundry/du-scheduler/internal/ue"
)

// Direction distinguishes which link direction an RLFEvent was raised on.
type Direction int

const (
	DirectionDL Direction = iota
	DirectionUL
)

func (d Direction) String() string {
	if d == DirectionUL {
		return "ul"
	}
	return "dl"
}

// RLFEvent reports that a UE's consecutive-KO counter has crossed the
// configured radio-link-failure threshold on one direction.
type RLFEvent struct {
	UEIndex   ue.Index
	Direction Direction
}

// BSRType enumerates the MAC CE subheader variants a ul_bsr_indication
// may carry (TS 38.321 §6.1.3.1).
type BSRType int

const (
	BSRShort BSRType = iota
	BSRLong
	BSRShortTruncated
	BSRLongTruncated
)

// ReportedLCG is one (lcg-id, bytes) pair decoded from a buffer status
// report.
type ReportedLCG struct {
	LCGID ue.LCGID
	Bytes uint32
}

// BSRIndication is the decoded ul_bsr_indication external interface
// input (spec.md §6): a UE's uplink buffer-status report, broken down
// by logical-channel group.
type BSRIndication struct {
	UEIndex  ue.Index
	CRNTI    uint32
	Type     BSRType
	Reported []ReportedLCG
}

// Apply atomically updates the UE's per-LCG UL buffer counters (spec
// §4.7: "atomically update per-LCH byte counters").
func (b BSRIndication) Apply(u *ue.UE) {
	for _, r := range b.Reported {
		u.SetULBufferStatus(r.LCGID, r.Bytes)
	}
}

// DLBufferStateIndication is the decoded dl_buffer_state_indication
// external interface input: the RLC layer's current buffer occupancy
// for one logical channel of one UE.
type DLBufferStateIndication struct {
	UEIndex ue.Index
	LCID    ue.LCID
	Bytes   uint32
}

// Apply updates the UE's DL buffer counter for the indicated LCID.
func (d DLBufferStateIndication) Apply(u *ue.UE) { u.SetDLBufferState(d.LCID, d.Bytes) }

// MACCEIndication is the decoded dl_mac_ce_indication external
// interface input: a MAC control element is queued ahead of this UE's
// data.
type MACCEIndication struct {
	UEIndex ue.Index
	CELCID  uint8
}

// Apply marks the control element pending on the UE.
func (m MACCEIndication) Apply(u *ue.UE) { u.MarkMACCEPending(m.CELCID) }

// CRCEntry is one UE's UL CRC outcome within a ul_crc_indication batch.
type CRCEntry struct {
	UEIndex ue.Index
	HARQID  uint8
	Success bool
	SNRDB   float64
}

// CRCIndication is the decoded ul_crc_indication external interface
// input: a batch of per-UE PUSCH CRC outcomes received on SlotRx.
type CRCIndication struct {
	Cell    uint8
	SlotRx  uint32
	Entries []CRCEntry
}

// Apply routes every entry to the named UE's UL HARQ entity and folds
// the reported SNR into its PUSCH SNR EWMA (spec §4.7: "route to the
// user's UL HARQ at that slot... feed SNR EWMA"). It returns one
// RLFEvent per UE whose consecutive-KO counter crossed the configured
// threshold as a result.
func (c CRCIndication) Apply(lookup func(ue.Index) *ue.UE, snrEWMAAlpha float64) []RLFEvent {
	var rlf []RLFEvent
	for _, e := range c.Entries {
		u := lookup(e.UEIndex)
		if u == nil {
			continue
		}
		u.UpdatePUSCHSNREWMA(e.SNRDB, snrEWMAAlpha)
		if _, triggered := u.ULHARQ.Resolve(e.HARQID, e.Success); triggered {
			rlf = append(rlf, RLFEvent{UEIndex: e.UEIndex, Direction: DirectionUL})
		}
	}
	return rlf
}

// UCIVariant tags which PUCCH/PUSCH-UCI payload shape a uci_indication
// PDU carries (spec.md §6).
type UCIVariant int

const (
	UCIVariantPUCCHF0F1 UCIVariant = iota
	UCIVariantPUSCH
	UCIVariantPUCCHF2F3F4
)

// UCIPDU is one decoded uci_indication payload for one UE.
type UCIPDU struct {
	UEIndex ue.Index
	Variant UCIVariant

	HARQBits     []bool // true = ACK; positionally matched to HARQ processes awaiting feedback
	SRDetected   bool   // pucch_f0f1 only: single-bit SR present/absent
	SRBits       []bool // pucch_f2f3f4 only: bit position 0 is the SR bit
	CSIPart1Bits []bool // pusch / pucch_f2f3f4: the first 4 bits decode as wideband CQI
	SNRDB        float64
}

func decodeWidebandCQI(csiPart1 []bool) (cqi uint8, ok bool) {
	if len(csiPart1) < 4 {
		return 0, false
	}
	for i := 0; i < 4; i++ {
		if csiPart1[i] {
			cqi |= 1 << uint(3-i)
		}
	}
	return cqi, true
}

func resolveHARQBits(u *ue.UE, bits []bool) (rlf bool) {
	ids := u.DLHARQ.AwaitingFeedbackIDs()
	for i, acked := range bits {
		if i >= len(ids) {
			break
		}
		if _, triggered := u.DLHARQ.Resolve(ids[i], acked); triggered {
			rlf = true
		}
	}
	return rlf
}

// Apply decodes one UCI PDU against its UE: for PUCCH-F0/F1 it
// processes HARQ bits and the scheduling request; for PUSCH-UCI it
// processes HARQ bits and CSI-part-1; for PUCCH-F2/F3/F4 it processes
// HARQ, the SR bit at position 0, and CSI-part-1 — matching the
// dispatch spec.md §4.7 lists for uci_indication. It reports whether
// this UE's DL consecutive-KO threshold tripped RLF.
func (p UCIPDU) Apply(u *ue.UE, slotRx uint32) (rlf bool) {
	switch p.Variant {
	case UCIVariantPUCCHF0F1:
		if p.SRDetected {
			u.SetSRIndicationAtSlot(slotRx)
		}
		return resolveHARQBits(u, p.HARQBits)
	case UCIVariantPUSCH:
		if cqi, ok := decodeWidebandCQI(p.CSIPart1Bits); ok {
			u.SetWidebandCQI(cqi)
		}
		return resolveHARQBits(u, p.HARQBits)
	case UCIVariantPUCCHF2F3F4:
		if len(p.SRBits) > 0 && p.SRBits[0] {
			u.SetSRIndicationAtSlot(slotRx)
		}
		if cqi, ok := decodeWidebandCQI(p.CSIPart1Bits); ok {
			u.SetWidebandCQI(cqi)
		}
		return resolveHARQBits(u, p.HARQBits)
	default:
		return false
	}
}

// UCIIndication is the decoded uci_indication external interface
// input: a batch of per-UE UCI payloads received on SlotRx.
type UCIIndication struct {
	Cell   uint8
	SlotRx uint32
	PDUs   []UCIPDU
}

// Apply processes every PDU in the batch, returning one RLFEvent per
// UE whose DL consecutive-KO threshold tripped.
func (ind UCIIndication) Apply(lookup func(ue.Index) *ue.UE) []RLFEvent {
	var rlf []RLFEvent
	for _, pdu := range ind.PDUs {
		u := lookup(pdu.UEIndex)
		if u == nil {
			continue
		}
		if pdu.Apply(u, ind.SlotRx) {
			rlf = append(rlf, RLFEvent{UEIndex: pdu.UEIndex, Direction: DirectionDL})
		}
	}
	return rlf
}

// EnqueueBSR submits a ul_bsr_indication to the common queue — BSR
// mutates the UE repository's buffer state, not cell-pinned grid
// state, so it belongs on the common tier (spec §4.7).
func (m *Manager) EnqueueBSR(lookup func(ue.Index) *ue.UE, ind BSRIndication) bool {
	return m.EnqueueCommon(func() {
		if u := lookup(ind.UEIndex); u != nil {
			ind.Apply(u)
		}
	})
}

// EnqueueDLBufferState submits a dl_buffer_state_indication to the
// common queue.
func (m *Manager) EnqueueDLBufferState(lookup func(ue.Index) *ue.UE, ind DLBufferStateIndication) bool {
	return m.EnqueueCommon(func() {
		if u := lookup(ind.UEIndex); u != nil {
			ind.Apply(u)
		}
	})
}

// EnqueueMACCE submits a dl_mac_ce_indication to the common queue.
func (m *Manager) EnqueueMACCE(lookup func(ue.Index) *ue.UE, ind MACCEIndication) bool {
	return m.EnqueueCommon(func() {
		if u := lookup(ind.UEIndex); u != nil {
			ind.Apply(u)
		}
	})
}

// EnqueueCRC submits a ul_crc_indication to the named cell's queue —
// CRC outcomes are cell-pinned grid state (spec §4.7). onRLF, if
// non-nil, is invoked once per UE whose consecutive-KO threshold
// tripped as the queued event is applied.
func (m *Manager) EnqueueCRC(cell uint8, lookup func(ue.Index) *ue.UE, ind CRCIndication, snrEWMAAlpha float64, onRLF func(RLFEvent)) bool {
	return m.EnqueueCellSpecific(cell, func() {
		for _, rlf := range ind.Apply(lookup, snrEWMAAlpha) {
			if onRLF != nil {
				onRLF(rlf)
			}
		}
	})
}

// EnqueueUCI submits a uci_indication to the named cell's queue.
func (m *Manager) EnqueueUCI(cell uint8, lookup func(ue.Index) *ue.UE, ind UCIIndication, onRLF func(RLFEvent)) bool {
	return m.EnqueueCellSpecific(cell, func() {
		for _, rlf := range ind.Apply(lookup) {
			if onRLF != nil {
				onRLF(rlf)
			}
		}
	})
}
