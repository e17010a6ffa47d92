package events

import (
	"testing"

	"github.com/signalsfoundry/du-scheduler/internal/harq"
	"github.com/signalsfoundry/du-scheduler/internal/slotpoint"
	"github.com/signalsfoundry/du-scheduler/internal/ue"
)

var rvSeq = []uint8{0, 2, 3, 1}

func newTestUE(idx ue.Index, rnti uint32) *ue.UE {
	return &ue.UE{
		Index:  idx,
		RNTI:   rnti,
		DLHARQ: harq.NewEntity(rvSeq, 4),
		ULHARQ: harq.NewEntity(rvSeq, 4),
	}
}

func TestBSRIndicationUpdatesPerLCGBuffers(t *testing.T) {
	u := newTestUE(1, 0x4601)
	ind := BSRIndication{
		UEIndex: 1, CRNTI: 0x4601, Type: BSRShort,
		Reported: []ReportedLCG{{LCGID: 0, Bytes: 120}, {LCGID: 3, Bytes: 40}},
	}
	ind.Apply(u)

	if u.ULBufferBytes(0) != 120 || u.ULBufferBytes(3) != 40 {
		t.Fatalf("expected both reported lcgs to be recorded")
	}
}

func TestDLBufferStateIndicationUpdatesLCID(t *testing.T) {
	u := newTestUE(1, 0x4601)
	DLBufferStateIndication{UEIndex: 1, LCID: 4, Bytes: 500}.Apply(u)
	if u.DLBufferBytes(4) != 500 {
		t.Fatalf("expected lcid 4's buffer to be updated")
	}
}

func TestMACCEIndicationMarksPending(t *testing.T) {
	u := newTestUE(1, 0x4601)
	MACCEIndication{UEIndex: 1, CELCID: 0x39}.Apply(u)
	if !u.HasPendingMACCE(0x39) {
		t.Fatalf("expected the ce to be marked pending")
	}
}

func TestCRCIndicationResolvesULHARQAndFeedsEWMA(t *testing.T) {
	u := newTestUE(1, 0x4601)
	slot := slotpoint.New(1, 0, 0, 0)
	p := u.ULHARQ.FindAvailable()
	p.NewTx(slot, slot, 4, 0, harq.AllocParams{MCS: 5, TBSBytes: 1000})

	ind := CRCIndication{
		Cell: 0, SlotRx: slot.Count(),
		Entries: []CRCEntry{{UEIndex: 1, HARQID: p.ID, Success: true, SNRDB: 18}},
	}
	lookup := func(idx ue.Index) *ue.UE {
		if idx == 1 {
			return u
		}
		return nil
	}
	rlf := ind.Apply(lookup, 0.3)
	if len(rlf) != 0 {
		t.Errorf("did not expect rlf after a successful crc")
	}
	if !p.Empty() {
		t.Errorf("expected the ul harq process to return to empty after a successful crc")
	}
	if got := u.PUSCHSNREWMA(); got != 18 {
		t.Errorf("expected the first snr sample to prime the ewma, got %v", got)
	}
}

func TestCRCIndicationTriggersRLFAfterConsecutiveKOs(t *testing.T) {
	u := &ue.UE{Index: 1, RNTI: 0x4601, DLHARQ: harq.NewEntity(rvSeq, 4), ULHARQ: harq.NewEntity(rvSeq, 1)}
	slot := slotpoint.New(1, 0, 0, 0)
	lookup := func(ue.Index) *ue.UE { return u }

	p := u.ULHARQ.FindAvailable()
	p.NewTx(slot, slot, 0, 0, harq.AllocParams{MCS: 5, TBSBytes: 1000})
	rlf := CRCIndication{Entries: []CRCEntry{{UEIndex: 1, HARQID: p.ID, Success: false, SNRDB: 5}}}.Apply(lookup, 0.3)
	if len(rlf) != 1 {
		t.Fatalf("expected the single nack to trip rlf with a consecutive-ko threshold of 1, got %v", rlf)
	}
	if rlf[0].Direction != DirectionUL {
		t.Errorf("expected an ul rlf event")
	}
}

func TestUCIIndicationPUCCHF0F1ResolvesHARQAndSR(t *testing.T) {
	u := newTestUE(1, 0x4601)
	slot := slotpoint.New(1, 0, 0, 0)
	p := u.DLHARQ.FindAvailable()
	p.NewTx(slot, slot.Add(4), 4, 0, harq.AllocParams{MCS: 5, TBSBytes: 1000})

	ind := UCIIndication{
		SlotRx: slot.Add(4).Count(),
		PDUs: []UCIPDU{{
			UEIndex: 1, Variant: UCIVariantPUCCHF0F1,
			HARQBits: []bool{false}, SRDetected: true,
		}},
	}
	lookup := func(ue.Index) *ue.UE { return u }
	ind.Apply(lookup)

	if !u.HasPendingSR() {
		t.Errorf("expected the sr bit to mark a pending scheduling request")
	}
	if !p.PendingRetx() {
		t.Errorf("expected the nack to schedule a retransmission")
	}
}

func TestUCIIndicationPUSCHDecodesWidebandCQI(t *testing.T) {
	u := newTestUE(1, 0x4601)
	pdu := UCIPDU{
		UEIndex: 1, Variant: UCIVariantPUSCH,
		CSIPart1Bits: []bool{true, false, true, true}, // 1011 = 11
	}
	pdu.Apply(u, 0)
	if u.WidebandCQI() != 11 {
		t.Fatalf("expected wideband cqi 11, got %d", u.WidebandCQI())
	}
}

func TestUCIIndicationPUCCHF2F3F4SRBitAndCSI(t *testing.T) {
	u := newTestUE(1, 0x4601)
	pdu := UCIPDU{
		UEIndex: 1, Variant: UCIVariantPUCCHF2F3F4,
		SRBits:       []bool{true},
		CSIPart1Bits: []bool{false, false, false, true}, // 0001 = 1
	}
	pdu.Apply(u, 0)
	if !u.HasPendingSR() {
		t.Errorf("expected bit 0 of the f2/f3/f4 payload to raise an sr")
	}
	if u.WidebandCQI() != 1 {
		t.Errorf("expected wideband cqi 1, got %d", u.WidebandCQI())
	}
}

func TestEnqueueCRCRoutesThroughCellQueueAndOnRLF(t *testing.T) {
	u := &ue.UE{Index: 1, RNTI: 0x4601, DLHARQ: harq.NewEntity(rvSeq, 4), ULHARQ: harq.NewEntity(rvSeq, 1)}
	slot := slotpoint.New(1, 0, 0, 0)
	p := u.ULHARQ.FindAvailable()
	p.NewTx(slot, slot, 0, 0, harq.AllocParams{MCS: 5, TBSBytes: 1000})

	m := NewManager(4, []uint8{0}, nil)
	lookup := func(ue.Index) *ue.UE { return u }

	var gotRLF []RLFEvent
	ind := CRCIndication{Entries: []CRCEntry{{UEIndex: 1, HARQID: p.ID, Success: false}}}
	if !m.EnqueueCRC(0, lookup, ind, 0.3, func(r RLFEvent) { gotRLF = append(gotRLF, r) }) {
		t.Fatalf("expected the crc indication to enqueue")
	}
	m.RunCellSpecific(0)
	if len(gotRLF) != 1 {
		t.Errorf("expected the rlf callback to fire once the event ran, got %v", gotRLF)
	}
}
