package pdcch

import (
	"testing"

	"github.com/signalsfoundry/du-scheduler/internal/gridcfg"
)

func testSearchSpace() *gridcfg.SearchSpaceInfo {
	return &gridcfg.SearchSpaceInfo{
		Cfg:     gridcfg.SearchSpaceConfig{ID: 1},
		CORESET: gridcfg.CORESETConfig{ID: 1, CRBs: gridcfg.CRBInterval{Start: 0, Length: 16}},
	}
}

func TestAllocDLReservesDistinctCandidates(t *testing.T) {
	a := NewAllocator()
	ss := testSearchSpace()

	first := a.AllocDL(ss, 0x4601, 4)
	if first == nil {
		t.Fatalf("expected first allocation to succeed")
	}
	second := a.AllocDL(ss, 0x4602, 4)
	if second == nil {
		t.Fatalf("expected second allocation to succeed")
	}
	if first.CCEStart == second.CCEStart {
		t.Errorf("expected distinct CCE ranges for concurrent candidates")
	}
}

func TestAllocDLExhaustsCORESET(t *testing.T) {
	a := NewAllocator()
	ss := testSearchSpace() // 16 CCEs total

	for i := 0; i < 4; i++ {
		if a.AllocDL(ss, uint32(i), 4) == nil {
			t.Fatalf("expected allocation %d of 4 to succeed", i)
		}
	}
	if a.AllocDL(ss, 99, 4) != nil {
		t.Errorf("expected the CORESET to be exhausted")
	}
}

func TestCancelLastFreesCCEs(t *testing.T) {
	a := NewAllocator()
	ss := testSearchSpace()

	alloc := a.AllocDL(ss, 0x4601, 16)
	if alloc == nil {
		t.Fatalf("expected a full-CORESET allocation to succeed")
	}
	if a.AllocDL(ss, 0x4602, 1) != nil {
		t.Fatalf("expected the CORESET to be full")
	}

	a.CancelLast(ss.CORESET.ID)
	if a.AllocDL(ss, 0x4602, 16) == nil {
		t.Errorf("expected CancelLast to free the reserved CCEs")
	}
}

func TestAllocatorCount(t *testing.T) {
	a := NewAllocator()
	ss := testSearchSpace()
	a.AllocDL(ss, 1, 2)
	a.AllocDL(ss, 2, 2)
	if a.Count() != 2 {
		t.Errorf("expected count 2, got %d", a.Count())
	}
}

// The next two tests pin the TS 38.213 hashing formula's output against
// hand-computed Y_k values for this search space's CORESET (id=1, so
// A_p=39829) and a 16-CCE/aggregation-level-4 candidate set (nofSlotsPerL=4).
func TestCandidateStartsVariesWithSlotCount(t *testing.T) {
	ss := testSearchSpace()

	onSlot0 := NewAllocatorAt(0).AllocDL(ss, 0x4601, 4)
	onSlot1 := NewAllocatorAt(1).AllocDL(ss, 0x4601, 4)
	if onSlot0 == nil || onSlot1 == nil {
		t.Fatalf("expected both allocations to succeed")
	}
	if onSlot0.CCEStart != 8 {
		t.Errorf("expected slot 0's first candidate at CCE 8, got %d", onSlot0.CCEStart)
	}
	if onSlot1.CCEStart != 0 {
		t.Errorf("expected slot 1's first candidate at CCE 0, got %d", onSlot1.CCEStart)
	}
}

func TestCandidateStartsVariesWithRNTI(t *testing.T) {
	ss := testSearchSpace()

	forFirstUE := NewAllocatorAt(0).AllocDL(ss, 0x4601, 4)
	forSecondUE := NewAllocatorAt(0).AllocDL(ss, 0x4602, 4)
	if forFirstUE == nil || forSecondUE == nil {
		t.Fatalf("expected both allocations to succeed")
	}
	if forFirstUE.CCEStart != 8 {
		t.Errorf("expected the first UE's candidate at CCE 8, got %d", forFirstUE.CCEStart)
	}
	if forSecondUE.CCEStart != 12 {
		t.Errorf("expected the second UE's candidate at CCE 12, got %d", forSecondUE.CCEStart)
	}
}
