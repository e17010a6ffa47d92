// Package dciproto defines the DCI payload as a tagged variant: one
// Go struct per format (TS 38.212 §7.3.1) wrapped in a DCI value that
// carries its format tag alongside the decoded fields the allocator
// needs to hand to the PDSCH/PUSCH builders. Borrowing the pattern of a
// small closed set of payload kinds dispatched by a tag field keeps the
// allocator's switch statements exhaustive and panics loudly on an
// unhandled addition rather than silently doing nothing.
package dciproto

import (
	"fmt"

	"github.com/signalsfoundry/du-scheduler/internal/gridcfg"
)

// Format mirrors gridcfg.DCIFormat; re-exported here so callers that
// only need wire-level types don't have to import gridcfg.
type Format = gridcfg.DCIFormat

const (
	FormatUnknown  = gridcfg.DCIFormatUnknown
	FormatTcF1_0   = gridcfg.DCITcRNTIF1_0
	FormatCF1_0    = gridcfg.DCICRNTIF1_0
	FormatCF1_1    = gridcfg.DCICRNTIF1_1
	FormatTcF0_0   = gridcfg.DCITcRNTIF0_0
	FormatCF0_0    = gridcfg.DCICRNTIF0_0
	FormatCF0_1    = gridcfg.DCICRNTIF0_1
)

// FrequencyDomainAssignment carries the resource-indication-value
// encoding of a CRB allocation; the allocator fills it directly from a
// gridcfg.CRBInterval at build time.
type FrequencyDomainAssignment struct {
	StartCRB int
	NofCRBs  int
}

// TimeDomainAssignment indexes a row of the active PDSCH/PUSCH
// time-domain-resource-allocation table (spec §3 "Data Model").
type TimeDomainAssignment struct {
	RowIndex int
}

// DLCommon carries the fields shared by every DL DCI format.
type DLCommon struct {
	FreqDomain FrequencyDomainAssignment
	TimeDomain TimeDomainAssignment
	VRBToPRBInterleaved bool
	MCS        uint8
	NDI        bool
	RV         uint8
	HARQProcessID uint8
	DAI        uint8
	TPCCommand uint8
	PUCCHResourceIndicator uint8
	PDSCHToHARQFeedbackTiming uint8 // k1, indexed into the SearchSpace's k1 candidate list
}

// ULCommon carries the fields shared by every UL DCI format.
type ULCommon struct {
	FreqDomain FrequencyDomainAssignment
	TimeDomain TimeDomainAssignment
	FrequencyHoppingFlag bool
	MCS        uint8
	NDI        bool
	RV         uint8
	HARQProcessID uint8
	DAI        uint8
	TPCCommand uint8
}

// TcRNTIDL10 is DCI format 1_0 scrambled with a TC-RNTI (Msg4 / RAR-follow-up).
type TcRNTIDL10 struct{ DLCommon }

// CRNTIDL10 is DCI format 1_0 scrambled with a C-RNTI (fallback DL grant).
type CRNTIDL10 struct{ DLCommon }

// CRNTIDL11 is DCI format 1_1, the non-fallback DL grant with per-UE
// RRC-configured fields beyond what 1_0 carries.
type CRNTIDL11 struct {
	DLCommon
	AntennaPorts uint8
	DMRSSequenceInitialization bool
}

// TcRNTIUL00 is DCI format 0_0 scrambled with a TC-RNTI (Msg3 retransmission grant).
type TcRNTIUL00 struct{ ULCommon }

// CRNTIUL00 is DCI format 0_0 scrambled with a C-RNTI (fallback UL grant).
type CRNTIUL00 struct{ ULCommon }

// CRNTIUL01 is DCI format 0_1, the non-fallback UL grant.
type CRNTIUL01 struct {
	ULCommon
	SRSResourceIndicator uint8
}

// DCI is the tagged variant exchanged between the allocator and the
// PDCCH/PDSCH/PUSCH builders. Exactly one of the payload fields is
// meaningful, selected by Format.
type DCI struct {
	Format Format
	RNTI   uint32

	TcF1_0 *TcRNTIDL10
	CF1_0  *CRNTIDL10
	CF1_1  *CRNTIDL11
	TcF0_0 *TcRNTIUL00
	CF0_0  *CRNTIUL00
	CF0_1  *CRNTIUL01
}

// NewDL builds a DL DCI of the given format, panicking on an
// unsupported format since the caller is expected to have already
// resolved the SearchSpace's configured format (a contract violation
// if it passes something else).
func NewDL(format Format, rnti uint32, common DLCommon, ext func(*CRNTIDL11)) DCI {
	switch format {
	case FormatTcF1_0:
		return DCI{Format: format, RNTI: rnti, TcF1_0: &TcRNTIDL10{common}}
	case FormatCF1_0:
		return DCI{Format: format, RNTI: rnti, CF1_0: &CRNTIDL10{common}}
	case FormatCF1_1:
		d := &CRNTIDL11{DLCommon: common}
		if ext != nil {
			ext(d)
		}
		return DCI{Format: format, RNTI: rnti, CF1_1: d}
	default:
		panic(fmt.Sprintf("dciproto: %s is not a DL DCI format", format))
	}
}

// NewUL builds a UL DCI of the given format.
func NewUL(format Format, rnti uint32, common ULCommon, ext func(*CRNTIUL01)) DCI {
	switch format {
	case FormatTcF0_0:
		return DCI{Format: format, RNTI: rnti, TcF0_0: &TcRNTIUL00{common}}
	case FormatCF0_0:
		return DCI{Format: format, RNTI: rnti, CF0_0: &CRNTIUL00{common}}
	case FormatCF0_1:
		d := &CRNTIUL01{ULCommon: common}
		if ext != nil {
			ext(d)
		}
		return DCI{Format: format, RNTI: rnti, CF0_1: d}
	default:
		panic(fmt.Sprintf("dciproto: %s is not a UL DCI format", format))
	}
}

// IsDL reports whether the DCI's format targets the DL direction.
func (d DCI) IsDL() bool {
	switch d.Format {
	case FormatTcF1_0, FormatCF1_0, FormatCF1_1:
		return true
	default:
		return false
	}
}

// RV returns the redundancy version carried by whichever payload is set.
func (d DCI) RV() uint8 {
	switch {
	case d.TcF1_0 != nil:
		return d.TcF1_0.RV
	case d.CF1_0 != nil:
		return d.CF1_0.RV
	case d.CF1_1 != nil:
		return d.CF1_1.RV
	case d.TcF0_0 != nil:
		return d.TcF0_0.RV
	case d.CF0_0 != nil:
		return d.CF0_0.RV
	case d.CF0_1 != nil:
		return d.CF0_1.RV
	default:
		panic("dciproto: RV called on an empty DCI")
	}
}

// HARQProcessID returns the HARQ process id carried by whichever
// payload is set.
func (d DCI) HARQProcessID() uint8 {
	switch {
	case d.TcF1_0 != nil:
		return d.TcF1_0.HARQProcessID
	case d.CF1_0 != nil:
		return d.CF1_0.HARQProcessID
	case d.CF1_1 != nil:
		return d.CF1_1.HARQProcessID
	case d.TcF0_0 != nil:
		return d.TcF0_0.HARQProcessID
	case d.CF0_0 != nil:
		return d.CF0_0.HARQProcessID
	case d.CF0_1 != nil:
		return d.CF0_1.HARQProcessID
	default:
		panic("dciproto: HARQProcessID called on an empty DCI")
	}
}
