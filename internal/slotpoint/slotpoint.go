// Package slotpoint implements the (numerology, SFN, subframe, slot)
// tuple used to address a single transmission opportunity on the radio
// grid, with modular arithmetic over the 1024-SFN hyperframe described
// in TS 38.211.
package slotpoint

import "fmt"

const (
	// SubframesPerFrame is fixed by the NR frame structure.
	SubframesPerFrame = 10
	// FramesPerHyperframe is the SFN wrap-around period.
	FramesPerHyperframe = 1024
	// MaxNumerology is the highest subcarrier-spacing index supported
	// (μ=4 → 240 kHz SCS, 16 slots/subframe).
	MaxNumerology = 4
)

// SlotsPerSubframe returns 2^numerology slots per 1ms subframe.
func SlotsPerSubframe(numerology uint8) uint32 {
	return uint32(1) << numerology
}

// SlotPoint identifies one slot of a cell operating at a fixed
// numerology. The zero value is the invalid slot point; use New or
// NewFromCount to build a valid one.
type SlotPoint struct {
	numerology uint8
	count      uint32 // offset into the hyperframe, 0..nofSlotsPerHyperframe-1
	valid      bool
}

// nofSlotsPerHyperframe is the modulus of the count field for a given
// numerology.
func nofSlotsPerHyperframe(numerology uint8) uint32 {
	return uint32(FramesPerHyperframe) * uint32(SubframesPerFrame) * SlotsPerSubframe(numerology)
}

// New builds a SlotPoint from its decomposed fields. It panics if any
// field is out of range for the given numerology — these are
// programming errors, not runtime conditions (spec §7).
func New(numerology uint8, sfn uint16, subframe uint8, slotInSubframe uint32) SlotPoint {
	if numerology > MaxNumerology {
		panic(fmt.Sprintf("slotpoint: numerology %d exceeds max %d", numerology, MaxNumerology))
	}
	if int(sfn) >= FramesPerHyperframe {
		panic(fmt.Sprintf("slotpoint: sfn %d out of range", sfn))
	}
	if int(subframe) >= SubframesPerFrame {
		panic(fmt.Sprintf("slotpoint: subframe %d out of range", subframe))
	}
	if slotInSubframe >= SlotsPerSubframe(numerology) {
		panic(fmt.Sprintf("slotpoint: slot %d out of range for numerology %d", slotInSubframe, numerology))
	}
	slotsPerFrame := SubframesPerFrame * SlotsPerSubframe(numerology)
	count := uint32(sfn)*slotsPerFrame + uint32(subframe)*SlotsPerSubframe(numerology) + slotInSubframe
	return SlotPoint{numerology: numerology, count: count, valid: true}
}

// NewFromCount builds a SlotPoint directly from a packed hyperframe
// count, reducing it modulo the hyperframe length.
func NewFromCount(numerology uint8, count uint32) SlotPoint {
	mod := nofSlotsPerHyperframe(numerology)
	return SlotPoint{numerology: numerology, count: count % mod, valid: true}
}

// Valid reports whether this SlotPoint was constructed via New/NewFromCount.
func (s SlotPoint) Valid() bool { return s.valid }

// Numerology returns the subcarrier-spacing index.
func (s SlotPoint) Numerology() uint8 { return s.numerology }

// SFN returns the system frame number (0..1023).
func (s SlotPoint) SFN() uint16 {
	slotsPerFrame := SubframesPerFrame * SlotsPerSubframe(s.numerology)
	return uint16(s.count / slotsPerFrame)
}

// Subframe returns the subframe index within the frame (0..9).
func (s SlotPoint) Subframe() uint8 {
	slotsPerFrame := SubframesPerFrame * SlotsPerSubframe(s.numerology)
	withinFrame := s.count % slotsPerFrame
	return uint8(withinFrame / SlotsPerSubframe(s.numerology))
}

// SlotIndex returns the slot index within the subframe.
func (s SlotPoint) SlotIndex() uint32 {
	return s.count % SlotsPerSubframe(s.numerology)
}

// Count returns the packed hyperframe offset. Exposed for ring-index
// arithmetic in internal/grid; callers outside this package should
// otherwise prefer Add/Sub.
func (s SlotPoint) Count() uint32 { return s.count }

// Add returns the slot point k slots ahead (k may be negative),
// wrapping around the hyperframe.
func (s SlotPoint) Add(k int) SlotPoint {
	mod := int64(nofSlotsPerHyperframe(s.numerology))
	next := (int64(s.count) + int64(k)) % mod
	if next < 0 {
		next += mod
	}
	return SlotPoint{numerology: s.numerology, count: uint32(next), valid: true}
}

// Sub returns the signed distance (in slots) from other to s, i.e.
// s == other.Add(s.Sub(other)), using the shortest path around the
// hyperframe. Numerology must match.
func (s SlotPoint) Sub(other SlotPoint) int {
	mod := int64(nofSlotsPerHyperframe(s.numerology))
	diff := int64(s.count) - int64(other.count)
	diff = ((diff % mod) + mod) % mod
	if diff > mod/2 {
		diff -= mod
	}
	return int(diff)
}

// Equal reports slot equality honouring wrap-around distance (i.e.
// zero distance), matching spec §3's "equality honours wrap-around
// distance" requirement.
func (s SlotPoint) Equal(other SlotPoint) bool {
	return s.valid && other.valid && s.numerology == other.numerology && s.Sub(other) == 0
}

// Before reports whether s occurs strictly before other, using the
// same shortest-path wrap-around ordering as Sub.
func (s SlotPoint) Before(other SlotPoint) bool {
	return s.Sub(other) < 0
}

// After reports whether s occurs strictly after other.
func (s SlotPoint) After(other SlotPoint) bool {
	return s.Sub(other) > 0
}

// String renders "sfn.subframe.slot" for logs.
func (s SlotPoint) String() string {
	if !s.valid {
		return "invalid"
	}
	return fmt.Sprintf("%d.%d.%d", s.SFN(), s.Subframe(), s.SlotIndex())
}
