package ue

import (
	"testing"

	"github.com/signalsfoundry/du-scheduler/internal/harq"
	"github.com/signalsfoundry/du-scheduler/internal/slotpoint"
)

var rvSeq = []uint8{0, 2, 3, 1}

func newTestUE(idx Index, rnti uint32) *UE {
	return &UE{
		Index:  idx,
		RNTI:   rnti,
		DLHARQ: harq.NewEntity(rvSeq, 4),
		ULHARQ: harq.NewEntity(rvSeq, 4),
	}
}

func TestAddUEThenGet(t *testing.T) {
	r := NewRepository()
	u := newTestUE(1, 0x4601)
	if err := r.AddUE(u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := r.Get(1); got == nil || got.RNTI != 0x4601 {
		t.Errorf("expected to retrieve the added UE")
	}
}

func TestAddUEDuplicateIndexFails(t *testing.T) {
	r := NewRepository()
	r.AddUE(newTestUE(1, 0x4601))
	if err := r.AddUE(newTestUE(1, 0x4602)); err == nil {
		t.Errorf("expected an error for a duplicate index")
	}
}

func TestScheduleRemovalDefersUntilHARQDrains(t *testing.T) {
	r := NewRepository()
	u := newTestUE(1, 0x4601)
	r.AddUE(u)

	slot := slotpoint.New(1, 0, 0, 0)
	p := u.DLHARQ.FindAvailable()
	p.NewTx(slot, slot.Add(4), 4, 0, harq.AllocParams{MCS: 1, TBSBytes: 100})

	r.ScheduleRemoval(1)
	removed := r.RemoveDrained()
	if len(removed) != 0 {
		t.Fatalf("expected no removal while HARQ is outstanding")
	}
	if !r.Contains(1) {
		t.Errorf("expected the UE to remain visible while draining")
	}

	u.DLHARQ.Resolve(p.ID, true)
	removed = r.RemoveDrained()
	if len(removed) != 1 {
		t.Errorf("expected the UE to be removed once HARQ drained")
	}
	if r.Contains(1) {
		t.Errorf("expected the UE to be gone after draining")
	}
}

func TestScheduleRemovalFiresNoEventUntilActuallyDrained(t *testing.T) {
	r := NewRepository()
	u := newTestUE(1, 0x4601)
	r.AddUE(u)

	var got []Event
	unsub := r.Subscribe(func(e Event) { got = append(got, e) })
	defer unsub()

	slot := slotpoint.New(1, 0, 0, 0)
	p := u.DLHARQ.FindAvailable()
	p.NewTx(slot, slot.Add(4), 4, 0, harq.AllocParams{MCS: 1, TBSBytes: 100})

	if err := r.ScheduleRemoval(1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no event while removal is merely requested, got %+v", got)
	}

	removed := r.RemoveDrained()
	if len(removed) != 0 || len(got) != 0 {
		t.Fatalf("expected no removal or event while HARQ is outstanding")
	}

	u.DLHARQ.Resolve(p.ID, true)
	removed = r.RemoveDrained()
	if len(removed) != 1 {
		t.Fatalf("expected the UE to be removed once HARQ drained")
	}
	if len(got) != 1 || got[0].Type != EventUERemoved || got[0].Index != 1 || got[0].RNTI != 0x4601 {
		t.Fatalf("expected exactly one EventUERemoved fired at actual deletion, got %+v", got)
	}
}

func TestSubscribeReceivesCreationEvent(t *testing.T) {
	r := NewRepository()
	var got []Event
	unsub := r.Subscribe(func(e Event) { got = append(got, e) })
	defer unsub()

	r.AddUE(newTestUE(2, 0x4602))
	if len(got) != 1 || got[0].Type != EventUECreated {
		t.Errorf("expected a single creation event, got %+v", got)
	}
}

func TestResetSRIndication(t *testing.T) {
	u := newTestUE(1, 0x4601)
	u.SetSRIndication()
	if !u.HasPendingSR() {
		t.Fatalf("expected SR flag to be set")
	}
	u.ResetSRIndication()
	if u.HasPendingSR() {
		t.Errorf("expected SR flag to be cleared")
	}
}

func TestIsCSISlot(t *testing.T) {
	cfg := DedicatedConfig{CSIReportOffset: 2, CSIReportPeriodSlots: 10}
	if !cfg.IsCSISlot(12) {
		t.Errorf("expected slot 12 to be a CSI occasion for offset=2 period=10")
	}
	if cfg.IsCSISlot(13) {
		t.Errorf("did not expect slot 13 to be a CSI occasion")
	}
}

func TestDLBufferLCIDsOrderedByPriorityAndExcludesEmpty(t *testing.T) {
	u := newTestUE(1, 0x4601)
	u.SetDLBufferState(5, 100)
	u.SetDLBufferState(1, 200)
	u.SetDLBufferState(3, 0)

	got := u.DLBufferLCIDs()
	want := []LCID{1, 5}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected %v in ascending priority order, got %v", want, got)
	}
	if total := u.TotalDLBufferBytes(); total != 300 {
		t.Errorf("expected total 300, got %d", total)
	}
}

func TestConsumeDLBufferDrainsAndClears(t *testing.T) {
	u := newTestUE(1, 0x4601)
	u.SetDLBufferState(1, 150)

	drained := u.ConsumeDLBuffer(1, 100)
	if drained != 100 || u.DLBufferBytes(1) != 50 {
		t.Fatalf("expected a partial drain leaving 50 bytes, got drained=%d remaining=%d", drained, u.DLBufferBytes(1))
	}

	drained = u.ConsumeDLBuffer(1, 999)
	if drained != 50 {
		t.Errorf("expected the final drain to return only what remained, got %d", drained)
	}
	if lcids := u.DLBufferLCIDs(); len(lcids) != 0 {
		t.Errorf("expected the buffer to be empty once fully drained, got %v", lcids)
	}
}

func TestULBufferStatusPerLCG(t *testing.T) {
	u := newTestUE(1, 0x4601)
	u.SetULBufferStatus(0, 10)
	u.SetULBufferStatus(2, 20)
	u.SetULBufferStatus(99, 1000) // out of range, must be ignored

	if u.ULBufferBytes(0) != 10 || u.ULBufferBytes(2) != 20 {
		t.Fatalf("expected per-lcg byte counters to be retained independently")
	}
	if total := u.TotalULBufferBytes(); total != 30 {
		t.Errorf("expected total 30, got %d", total)
	}
}

func TestMACCEPendingLifecycle(t *testing.T) {
	u := newTestUE(1, 0x4601)
	u.MarkMACCEPending(0x3a)
	if !u.HasPendingMACCE(0x3a) {
		t.Fatalf("expected the ce to be pending")
	}
	u.ClearMACCE(0x3a)
	if u.HasPendingMACCE(0x3a) {
		t.Errorf("expected the ce to be cleared")
	}
}

func TestPUSCHSNREWMAPrimesOnFirstSample(t *testing.T) {
	u := newTestUE(1, 0x4601)
	u.UpdatePUSCHSNREWMA(10, 0.3)
	if got := u.PUSCHSNREWMA(); got != 10 {
		t.Fatalf("expected the first sample to prime the average outright, got %v", got)
	}
	u.UpdatePUSCHSNREWMA(20, 0.5)
	if got := u.PUSCHSNREWMA(); got != 15 {
		t.Errorf("expected 0.5*20+0.5*10=15, got %v", got)
	}
}

func TestSetSRIndicationAtSlotRecordsSlot(t *testing.T) {
	u := newTestUE(1, 0x4601)
	u.SetSRIndicationAtSlot(42)
	if !u.HasPendingSR() || u.SRPendingSlot() != 42 {
		t.Errorf("expected a pending sr recorded at slot 42")
	}
}
