package mcs

import "testing"

func TestComputeRespectsCodeRateCap(t *testing.T) {
	res, ok := Compute(27, 10)
	if !ok {
		t.Fatalf("expected a feasible MCS for 10 PRBs")
	}
	if res.CodeRate > MaxCodeRate {
		t.Errorf("expected code rate <= %.2f, got %.4f", MaxCodeRate, res.CodeRate)
	}
}

func TestComputeSearchesDownwardFromRequested(t *testing.T) {
	res, ok := Compute(27, 1)
	if !ok {
		t.Fatalf("expected at least MCS 0 to be feasible for a single PRB")
	}
	if res.MCS > 27 {
		t.Errorf("did not expect the search to exceed the requested MCS")
	}
}

func TestComputeTBSGrowsWithPRBCount(t *testing.T) {
	small, ok := Compute(10, 4)
	if !ok {
		t.Fatalf("expected small allocation to be feasible")
	}
	large, ok := Compute(10, 40)
	if !ok {
		t.Fatalf("expected large allocation to be feasible")
	}
	if large.TBSBytes <= small.TBSBytes {
		t.Errorf("expected TBS to grow with PRB count: small=%d large=%d", small.TBSBytes, large.TBSBytes)
	}
}

func TestComputeClampsOutOfRangeMCS(t *testing.T) {
	res, ok := Compute(200, 20)
	if !ok {
		t.Fatalf("expected a feasible MCS after clamping")
	}
	if int(res.MCS) > MaxMCSIndex {
		t.Errorf("expected clamped MCS to stay within the table")
	}
}
