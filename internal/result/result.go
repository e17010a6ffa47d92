// Package result defines the per-slot scheduler output: the set of
// PDCCH, PDSCH and PUCCH/PUSCH/PRACH entries the slot driver emits
// once it has finished allocating a slot, mirroring the external
// interface spec.md §6 fixes bit-exact across the process boundary.
package result

import (
	"github.com/signalsfoundry/du-scheduler/internal/dciproto"
	"github.com/signalsfoundry/du-scheduler/internal/gridcfg"
	"github.com/signalsfoundry/du-scheduler/internal/ra"
	"github.com/signalsfoundry/du-scheduler/internal/slotpoint"
)

// PDCCHEntry is one scheduled PDCCH transmission.
type PDCCHEntry struct {
	RNTI             uint32
	SearchSpaceID    uint8
	AggregationLevel uint8
	CCEStart         int
	DCI              dciproto.DCI
}

// PDSCHKind distinguishes the origin of a DL data allocation.
type PDSCHKind uint8

const (
	PDSCHKindUE PDSCHKind = iota
	PDSCHKindSIB
	PDSCHKindRAR
	PDSCHKindPaging
)

// PDSCHEntry is one scheduled DL data transmission.
type PDSCHEntry struct {
	Kind     PDSCHKind
	RNTI     uint32
	CRBs     gridcfg.CRBInterval
	Symbols  gridcfg.SymbolInterval
	MCS      uint8
	TBSBytes int
	RV       uint8
	NewData  bool
	HARQProcessID uint8
	// FilledBytes is how many logical-channel buffer bytes were packed
	// into this transport block (spec §4.6 step 10); zero for a
	// retransmission, since it carries no fresh RLC bytes.
	FilledBytes int
}

// PUCCHFormat mirrors pucch.Format without importing that package,
// keeping the result model dependency-light for downstream consumers.
type PUCCHFormat uint8

const (
	PUCCHFormat1 PUCCHFormat = iota
	PUCCHFormat2
)

// PUCCHEntry is one scheduled UL control transmission.
type PUCCHEntry struct {
	RNTI     uint32
	Format   PUCCHFormat
	HARQBits int
	CSIBits  int
}

// PUSCHEntry is one scheduled UL data transmission.
type PUSCHEntry struct {
	RNTI     uint32
	CRBs     gridcfg.CRBInterval
	Symbols  gridcfg.SymbolInterval
	MCS      uint8
	TBSBytes int
	RV       uint8
	NewData  bool
	HARQProcessID uint8
	MultiplexedUCIHARQBits int
	MultiplexedUCICSIBits  int
}

// PRACHOccasionEntry reports a PRACH occasion reserved this slot so
// downstream consumers know not to schedule UL data over it.
type PRACHOccasionEntry struct {
	SymbolStart uint32
	FreqIndex   uint32
}

// CSIRSEntry marks a CSI-RS resource transmitted this slot, which the
// UE cell grid allocator consults for the adjusted-MCS back-off (spec §13).
type CSIRSEntry struct {
	RNTI    uint32
	CRBs    gridcfg.CRBInterval
	Symbols gridcfg.SymbolInterval
}

// DLResult bundles everything scheduled in the downlink direction for one slot.
type DLResult struct {
	PDCCHs []PDCCHEntry
	PDSCHs []PDSCHEntry
	CSIRS  []CSIRSEntry
}

// ULResult bundles everything scheduled in the uplink direction for one slot.
type ULResult struct {
	PUCCHs []PUCCHEntry
	PUSCHs []PUSCHEntry
	PRACHOccasions []PRACHOccasionEntry
	Msg3Grants []ra.Msg3Grant
}

// Capacity bounds how many entries each list in a Result may hold; the
// allocator must check these before attempting a grant (spec §4.10's
// "No space available in scheduler output list" condition).
type Capacity struct {
	MaxDLPDCCHs int
	MaxDLPDSCHs int
	MaxULPUCCHs int
	MaxULPUSCHs int
}

// DefaultCapacity mirrors a typical 106-PRB, 4-antenna-port cell's
// practical per-slot entry limits.
func DefaultCapacity() Capacity {
	return Capacity{MaxDLPDCCHs: 16, MaxDLPDSCHs: 16, MaxULPUCCHs: 16, MaxULPUSCHs: 16}
}

// Result is the full output of one slot's scheduling pass for one cell.
type Result struct {
	CellIndex uint8
	Slot      slotpoint.SlotPoint
	DL        DLResult
	UL        ULResult
}

// DLFull reports whether the DL result lists have reached the
// configured capacity.
func (r *Result) DLFull(cap Capacity) bool {
	return len(r.DL.PDCCHs) >= cap.MaxDLPDCCHs || len(r.DL.PDSCHs) >= cap.MaxDLPDSCHs
}

// ULFull reports whether a UL grant has no room left: either the PDCCH
// list (which carries the grant's DCI) or the PUSCH list has reached the
// configured capacity.
func (r *Result) ULFull(cap Capacity) bool {
	return len(r.DL.PDCCHs) >= cap.MaxDLPDCCHs || len(r.UL.PUSCHs) >= cap.MaxULPUSCHs
}
