package harq

import (
	"testing"

	"github.com/signalsfoundry/du-scheduler/internal/slotpoint"
)

var rvSeq = []uint8{0, 2, 3, 1}

func TestNewTxThenAckEmptiesProcess(t *testing.T) {
	e := NewEntity(rvSeq, 4)
	p := e.FindAvailable()
	if p == nil {
		t.Fatalf("expected an available process")
	}
	slot := slotpoint.New(1, 0, 0, 0)
	p.NewTx(slot, slot.Add(4), 4, 0, AllocParams{MCS: 10, TBSBytes: 2000})

	if p.Empty() {
		t.Errorf("expected process to be waiting for feedback, not empty")
	}
	tbs, rlf := e.Resolve(p.ID, true)
	if tbs != 2000 {
		t.Errorf("expected tbs 2000, got %d", tbs)
	}
	if rlf {
		t.Errorf("did not expect RLF after a single ack")
	}
	if !p.Empty() {
		t.Errorf("expected process to return to empty after ack")
	}
}

func TestNackSchedulesRetxAndAdvancesRV(t *testing.T) {
	e := NewEntity(rvSeq, 10)
	p := e.FindAvailable()
	slot := slotpoint.New(1, 0, 0, 0)
	p.NewTx(slot, slot.Add(4), 4, 0, AllocParams{MCS: 10, TBSBytes: 1500})

	e.Resolve(p.ID, false)
	if !p.PendingRetx() {
		t.Fatalf("expected process to be pending retransmission after a nack")
	}

	p.NewRetx(slot.Add(8), slot.Add(12), 1)
	if p.RV() != rvSeq[1] {
		t.Errorf("expected RV sequence to advance to index 1 (%d), got %d", rvSeq[1], p.RV())
	}
}

func TestConsecutiveKOsTriggersRLF(t *testing.T) {
	e := NewEntity(rvSeq, 2)
	p := e.FindAvailable()
	slot := slotpoint.New(1, 0, 0, 0)

	p.NewTx(slot, slot.Add(4), 0, 0, AllocParams{MCS: 5, TBSBytes: 500})
	_, rlf := e.Resolve(p.ID, false)
	if rlf {
		t.Errorf("did not expect RLF after first KO")
	}

	p = e.FindAvailable()
	p.NewTx(slot.Add(8), slot.Add(12), 0, 0, AllocParams{MCS: 5, TBSBytes: 500})
	_, rlf = e.Resolve(p.ID, false)
	if !rlf {
		t.Errorf("expected RLF after reaching the configured consecutive-KO threshold")
	}
}

func TestFindAvailablePrefersPendingRetx(t *testing.T) {
	e := NewEntity(rvSeq, 10)
	slot := slotpoint.New(1, 0, 0, 0)

	first := e.Process(0)
	first.NewTx(slot, slot.Add(4), 4, 0, AllocParams{MCS: 1, TBSBytes: 100})
	e.Resolve(0, false)

	next := e.FindAvailable()
	if next.ID != 0 {
		t.Errorf("expected FindAvailable to prioritise the process awaiting retx, got id %d", next.ID)
	}
}

func TestFindEmptySkipsPendingRetx(t *testing.T) {
	e := NewEntity(rvSeq, 10)
	slot := slotpoint.New(1, 0, 0, 0)

	retxProc := e.Process(0)
	retxProc.NewTx(slot, slot.Add(4), 4, 0, AllocParams{MCS: 1, TBSBytes: 100})
	e.Resolve(0, false)
	if !retxProc.PendingRetx() {
		t.Fatalf("expected process 0 to be pending retransmission")
	}

	empty := e.FindEmpty()
	if empty == nil {
		t.Fatalf("expected an empty process despite process 0 pending retx")
	}
	if empty.ID == retxProc.ID {
		t.Errorf("expected FindEmpty to skip the process pending retx, got id %d", empty.ID)
	}
	if !empty.Empty() {
		t.Errorf("expected FindEmpty's result to be genuinely empty")
	}
}

func TestFindEmptyReturnsNilWhenAllPendingOrBusy(t *testing.T) {
	e := NewEntity(rvSeq, 10)
	slot := slotpoint.New(1, 0, 0, 0)

	for i := range e.processes {
		p := e.Process(uint8(i))
		p.NewTx(slot, slot.Add(4), 4, 0, AllocParams{MCS: 1, TBSBytes: 100})
		e.Resolve(uint8(i), false)
	}

	if e.FindEmpty() != nil {
		t.Errorf("expected no empty process once every process is pending retx")
	}
}

func TestRetxExhaustedAfterMaxRetx(t *testing.T) {
	e := NewEntity(rvSeq, 100)
	p := e.Process(0)
	slot := slotpoint.New(1, 0, 0, 0)
	p.NewTx(slot, slot.Add(4), 1, 0, AllocParams{MCS: 1, TBSBytes: 10})
	p.NewRetx(slot.Add(8), slot.Add(12), 1)
	if !p.RetxExhausted() {
		t.Errorf("expected retx budget of 1 to be exhausted after one retransmission")
	}
}

func TestAwaitingFeedbackIDsOrderedAscending(t *testing.T) {
	e := NewEntity(rvSeq, 10)
	slot := slotpoint.New(1, 0, 0, 0)

	p5 := e.Process(5)
	p5.NewTx(slot, slot.Add(4), 4, 0, AllocParams{MCS: 1, TBSBytes: 10})
	p2 := e.Process(2)
	p2.NewTx(slot, slot.Add(4), 4, 0, AllocParams{MCS: 1, TBSBytes: 10})

	ids := e.AwaitingFeedbackIDs()
	if len(ids) != 2 || ids[0] != 2 || ids[1] != 5 {
		t.Fatalf("expected [2 5] in ascending id order, got %v", ids)
	}

	e.Resolve(2, true)
	ids = e.AwaitingFeedbackIDs()
	if len(ids) != 1 || ids[0] != 5 {
		t.Errorf("expected only process 5 to remain outstanding, got %v", ids)
	}
}
