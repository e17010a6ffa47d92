// Package mcs computes the modulation-and-coding scheme and transport
// block size for a grant, searching downward from a requested MCS
// index for the highest index whose resulting code rate does not
// exceed 0.95 (TS 38.214 §5.1.3, simplified to a single CQI table).
package mcs

import "math"

// Entry is one row of the 64-QAM MCS table (TS 38.214 Table 5.1.3.1-1).
type Entry struct {
	Modulation   uint8   // Qm: bits per symbol
	CodeRateX1024 uint16 // target code rate R, scaled by 1024
}

// Table is the subset of the 64-QAM CQI table this scheduler uses; it
// covers MCS indices 0..27.
var Table = [...]Entry{
	{2, 120}, {2, 157}, {2, 193}, {2, 251}, {2, 308}, {2, 379}, {2, 449}, {2, 526},
	{2, 602}, {2, 679}, {4, 340}, {4, 378}, {4, 434}, {4, 490}, {4, 553}, {4, 616},
	{4, 658}, {6, 466}, {6, 517}, {6, 567}, {6, 616}, {6, 666}, {6, 719}, {6, 772},
	{6, 822}, {6, 873}, {6, 910}, {6, 948},
}

// MaxMCSIndex is the highest valid index into Table.
const MaxMCSIndex = len(Table) - 1

// MaxCodeRate is the ceiling spec §4.6 imposes on any accepted grant.
const MaxCodeRate = 0.95

// Result is the outcome of a successful MCS/TBS search.
type Result struct {
	MCS      uint8
	TBSBytes int
	CodeRate float64
}

// symbolsREPerPRB is the resource elements per PRB the TBS estimate
// assumes after subtracting DMRS overhead for a typical PDSCH/PUSCH
// allocation (12 subcarriers * 10 usable data symbols out of 14, a
// fixed approximation rather than a full DMRS-position calculation).
const symbolsREPerPRB = 120

// tbsQuantumBytes is the granularity TBS values are rounded down to,
// mirroring the original implementation's byte-aligned TB sizes for
// the regime this scheduler targets.
const tbsQuantumBytes = 8

// computeTBS returns the transport block size in bytes for a given
// MCS index and PRB count, and the resulting code rate.
func computeTBS(mcsIdx uint8, nofPRB int) (tbsBytes int, codeRate float64) {
	e := Table[mcsIdx]
	nRE := symbolsREPerPRB * nofPRB
	nInfoBits := float64(nRE) * float64(e.Modulation) * (float64(e.CodeRateX1024) / 1024.0)
	tbsBits := int(math.Floor(nInfoBits/8.0)) * 8 // keep byte-aligned bit count
	tbsBytes = tbsBits / 8
	// Round down to the configured quantum, floor at one quantum so a
	// non-empty allocation never yields a zero-byte TB.
	if tbsBytes >= tbsQuantumBytes {
		tbsBytes -= tbsBytes % tbsQuantumBytes
	} else {
		tbsBytes = tbsQuantumBytes
	}
	codeRate = float64(tbsBytes*8) / (float64(nRE) * float64(e.Modulation))
	return tbsBytes, codeRate
}

// Compute searches downward from requestedMCS for the highest MCS
// index whose resulting code rate is at most MaxCodeRate, returning
// ok=false if even MCS 0 fails (the grant's PRB count is too small for
// any code rate in the table to clear the cap).
func Compute(requestedMCS uint8, nofPRB int) (Result, bool) {
	if int(requestedMCS) > MaxMCSIndex {
		requestedMCS = uint8(MaxMCSIndex)
	}
	for mcsIdx := int(requestedMCS); mcsIdx >= 0; mcsIdx-- {
		tbs, rate := computeTBS(uint8(mcsIdx), nofPRB)
		if rate <= MaxCodeRate {
			return Result{MCS: uint8(mcsIdx), TBSBytes: tbs, CodeRate: rate}, true
		}
	}
	return Result{}, false
}
