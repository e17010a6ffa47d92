package pucch

import "testing"

func TestAllocHARQBelowCapSucceeds(t *testing.T) {
	a := NewAllocator()
	_, ok := a.AllocHARQ(100, 0x4601, true, 2, nil)
	if !ok {
		t.Fatalf("expected the first HARQ bit to be accepted")
	}
}

func TestAllocHARQCapOnlyAppliesOnCSISlot(t *testing.T) {
	a := NewAllocator()
	a.AllocHARQ(100, 0x4601, false, 2, nil)
	a.AllocHARQ(100, 0x4601, false, 2, nil)
	_, ok := a.AllocHARQ(100, 0x4601, false, 2, nil)
	if !ok {
		t.Errorf("expected the cap to be ignored on a non-CSI slot")
	}
}

func TestAllocHARQCapEnforcedOnCSISlot(t *testing.T) {
	a := NewAllocator()
	a.AllocHARQ(100, 0x4601, true, 2, nil)
	a.AllocHARQ(100, 0x4601, true, 2, nil)
	_, ok := a.AllocHARQ(100, 0x4601, true, 2, nil)
	if ok {
		t.Errorf("expected the third HARQ bit to be refused on a CSI slot with a cap of 2")
	}
}

func TestFormatUpgradesPastTwoBits(t *testing.T) {
	a := NewAllocator()
	upgrades := 0
	a.AllocHARQ(100, 0x4601, false, 2, func() { upgrades++ })
	a.AllocHARQ(100, 0x4601, false, 2, func() { upgrades++ })
	fmt, _ := a.AllocHARQ(100, 0x4601, false, 2, func() { upgrades++ })
	if fmt != Format2 {
		t.Errorf("expected format to upgrade to format 2 past two HARQ bits")
	}
	if upgrades != 1 {
		t.Errorf("expected exactly one upgrade notification, got %d", upgrades)
	}
}

func TestTakeForPUSCHRemovesReservation(t *testing.T) {
	a := NewAllocator()
	a.AllocHARQ(100, 0x4601, false, 2, nil)
	res, ok := a.TakeForPUSCH(100, 0x4601)
	if !ok || res.HARQBits != 1 {
		t.Fatalf("expected to take a 1-bit reservation, got ok=%v res=%+v", ok, res)
	}
	if _, ok := a.TakeForPUSCH(100, 0x4601); ok {
		t.Errorf("expected the reservation to be gone after being taken once")
	}
}

func TestDAIComputation(t *testing.T) {
	if got := DAI(0); got != 3 {
		t.Errorf("expected DAI 3 when no HARQ bits are scheduled yet, got %d", got)
	}
	if got := DAI(1); got != 0 {
		t.Errorf("expected DAI 0 for the first scheduled bit, got %d", got)
	}
	if got := DAI(5); got != 0 {
		t.Errorf("expected DAI to wrap mod 4, got %d", got)
	}
}

func TestForgetDropsSlot(t *testing.T) {
	a := NewAllocator()
	a.AllocHARQ(100, 0x4601, false, 2, nil)
	a.Forget(100)
	if _, ok := a.TakeForPUSCH(100, 0x4601); ok {
		t.Errorf("expected Forget to clear the reservation")
	}
}
