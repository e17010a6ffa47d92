package result

import "testing"

func TestDLFullRespectsBothLists(t *testing.T) {
	cap := Capacity{MaxDLPDCCHs: 2, MaxDLPDSCHs: 2}
	r := &Result{}
	r.DL.PDCCHs = append(r.DL.PDCCHs, PDCCHEntry{}, PDCCHEntry{})
	if !r.DLFull(cap) {
		t.Errorf("expected DL to be reported full once PDCCHs hit capacity")
	}
}

func TestULFullRespectsPUSCHCapacity(t *testing.T) {
	cap := Capacity{MaxDLPDCCHs: 1, MaxULPUSCHs: 1}
	r := &Result{}
	r.UL.PUSCHs = append(r.UL.PUSCHs, PUSCHEntry{})
	if !r.ULFull(cap) {
		t.Errorf("expected UL to be reported full once PUSCHs hit capacity")
	}
}

func TestDefaultCapacityIsPositive(t *testing.T) {
	cap := DefaultCapacity()
	if cap.MaxDLPDCCHs <= 0 || cap.MaxULPUSCHs <= 0 {
		t.Errorf("expected positive default capacities, got %+v", cap)
	}
}
