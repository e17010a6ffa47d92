package gridcfg

import "testing"

func TestCRBIntervalContains(t *testing.T) {
	outer := CRBInterval{Start: 0, Length: 100}
	inner := CRBInterval{Start: 10, Length: 20}
	if !outer.Contains(inner) {
		t.Errorf("expected outer to contain inner")
	}
	outside := CRBInterval{Start: 90, Length: 20}
	if outer.Contains(outside) {
		t.Errorf("expected outer not to contain an interval extending past its end")
	}
}

func TestCORESETNofCCEs(t *testing.T) {
	c := CORESETConfig{CRBs: CRBInterval{Start: 0, Length: 48}}
	if got := c.NofCCEs(); got != 48 {
		t.Errorf("expected 48 CCEs, got %d", got)
	}
}

func TestResolveSearchSpaceUnknownID(t *testing.T) {
	cfg := &CellConfig{SearchSpaces: map[uint8]SearchSpaceConfig{}}
	if info := cfg.ResolveSearchSpace(3, BWPCommon{}, BWPCommon{}); info != nil {
		t.Errorf("expected nil for unknown SearchSpace id")
	}
}

func TestResolveSearchSpaceUsesCORESET0(t *testing.T) {
	cfg := &CellConfig{
		CORESET0: CORESETConfig{ID: 0, CRBs: CRBInterval{Start: 0, Length: 48}},
		SearchSpaces: map[uint8]SearchSpaceConfig{
			0: {ID: 0, CORESETID: 0, IsCommon: true},
		},
	}
	dlBWP := BWPCommon{ID: 0, CRBs: CRBInterval{Start: 0, Length: 106}}
	ulBWP := BWPCommon{ID: 0, CRBs: CRBInterval{Start: 0, Length: 106}}
	info := cfg.ResolveSearchSpace(0, dlBWP, ulBWP)
	if info == nil {
		t.Fatalf("expected a resolved SearchSpaceInfo")
	}
	if info.CORESET.CRBs.Length != 48 {
		t.Errorf("expected CORESET#0 to be used, got length %d", info.CORESET.CRBs.Length)
	}
	if !info.DLCRBLims.Contains(CRBInterval{Start: 0, Length: 48}) {
		t.Errorf("expected DL CRB limits to cover the CORESET span")
	}
}

func TestResolveSearchSpaceUnknownCORESET(t *testing.T) {
	cfg := &CellConfig{
		CORESETs: map[uint8]CORESETConfig{},
		SearchSpaces: map[uint8]SearchSpaceConfig{
			2: {ID: 2, CORESETID: 1},
		},
	}
	if info := cfg.ResolveSearchSpace(2, BWPCommon{}, BWPCommon{}); info != nil {
		t.Errorf("expected nil when the referenced CORESET is missing")
	}
}

func TestDefaultSchedulerExpertConfig(t *testing.T) {
	e := DefaultSchedulerExpertConfig()
	if e.MaxHARQBitsPerUCI != 2 {
		t.Errorf("expected the 2-bit PUCCH cap to remain the default, got %d", e.MaxHARQBitsPerUCI)
	}
	if len(e.PDSCHRVSequence) != 4 {
		t.Errorf("expected a 4-entry RV sequence, got %d", len(e.PDSCHRVSequence))
	}
}
