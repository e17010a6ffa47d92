// Package gridcfg holds the frozen, DU-local radio configuration
// records the scheduler reads but never mutates at runtime: numerology,
// BWP layout, CORESET/SearchSpace definitions and per-UE dedicated
// configuration. These are the structs loaded once at process start by
// internal/config and handed to the scheduler as a read-only record
// (spec.md §6, "CLI surface is not part of the core; it is consumed as
// a frozen configuration record at startup").
package gridcfg

// DCIFormat enumerates the DCI payload variants named in spec.md §3.
type DCIFormat uint8

const (
	DCIFormatUnknown DCIFormat = iota
	DCITcRNTIF1_0
	DCICRNTIF1_0
	DCICRNTIF1_1
	DCITcRNTIF0_0
	DCICRNTIF0_0
	DCICRNTIF0_1
)

func (f DCIFormat) String() string {
	switch f {
	case DCITcRNTIF1_0:
		return "tc-rnti-f1_0"
	case DCICRNTIF1_0:
		return "c-rnti-f1_0"
	case DCICRNTIF1_1:
		return "c-rnti-f1_1"
	case DCITcRNTIF0_0:
		return "tc-rnti-f0_0"
	case DCICRNTIF0_0:
		return "c-rnti-f0_0"
	case DCICRNTIF0_1:
		return "c-rnti-f0_1"
	default:
		return "unknown"
	}
}

// CRBInterval is a half-open [Start, Start+Length) range of common
// resource blocks.
type CRBInterval struct {
	Start  int `yaml:"start"`
	Length int `yaml:"length"`
}

// Contains reports whether other lies entirely within this interval.
func (c CRBInterval) Contains(other CRBInterval) bool {
	return other.Start >= c.Start && other.Start+other.Length <= c.Start+c.Length
}

// End returns the first CRB index beyond the interval.
func (c CRBInterval) End() int { return c.Start + c.Length }

// SymbolInterval is a half-open [Start, Start+Length) range of OFDM
// symbols within a slot (0..13).
type SymbolInterval struct {
	Start  int `yaml:"start"`
	Length int `yaml:"length"`
}

// TimeDomainResource is one row of a PDSCH/PUSCH time-domain resource
// allocation table: a k0/k2 slot offset plus the symbols it occupies.
type TimeDomainResource struct {
	K uint8          `yaml:"k"` // k0 for DL, k2 for UL
	Symbols SymbolInterval `yaml:"symbols"`
}

// CORESETConfig describes one control-resource set.
type CORESETConfig struct {
	ID      uint8          `yaml:"id"`
	CRBs    CRBInterval    `yaml:"crbs"`
	Symbols SymbolInterval `yaml:"symbols"`
}

// NofCCEs returns the number of control-channel elements the CORESET
// provides: one CCE per CRB in this simplified single-CORESET model (one
// CCE = 1 CRB x all CORESET symbols).
func (c CORESETConfig) NofCCEs() int {
	return c.CRBs.Length
}

// SearchSpaceConfig describes one SearchSpace a UE monitors.
type SearchSpaceConfig struct {
	ID         uint8  `yaml:"id"`
	CORESETID  uint8  `yaml:"coreset_id"`
	IsCommon   bool   `yaml:"is_common"`   // Type0/Type1 CSS vs UE-specific
	IsRASS     bool   `yaml:"is_ra_ss"`    // the ra-SearchSpace used for RAR/Msg3
	DLFormat   DCIFormat `yaml:"dl_format"`
	ULFormat   DCIFormat `yaml:"ul_format"`
	// NofCandidates[L] is the number of PDCCH candidates monitored at
	// aggregation level L (only powers of two 1,2,4,8,16 are valid keys).
	NofCandidates map[uint8]uint8 `yaml:"nof_candidates"`
	K1Candidates  []uint8         `yaml:"k1_candidates"`
}

// BWPCommon is shared by DL and UL BWPs: the CRB span and the
// time-domain resource-allocation table.
type BWPCommon struct {
	ID         uint8                 `yaml:"id"`
	CRBs       CRBInterval           `yaml:"crbs"`
	SCS        uint8                 `yaml:"scs"` // numerology μ
	TimeDomain []TimeDomainResource  `yaml:"time_domain"`
}

// PRACHConfig describes the PRACH occasions the RA scheduler must
// recognise and publish as UL reservations.
type PRACHConfig struct {
	ConfigIndex    uint8 `yaml:"config_index"`
	PeriodSlots    int   `yaml:"period_slots"`
	SlotOffset     int   `yaml:"slot_offset"`
	SymbolStart    int   `yaml:"symbol_start"`
	NofPreambles   int   `yaml:"nof_preambles"`
	// ResponseWindowSlots is ra-ResponseWindow (TS 38.213 §8.2): how
	// many slots after the PRACH occasion the RAR may still be sent.
	ResponseWindowSlots int `yaml:"response_window_slots"`
}

// CellConfig is the frozen per-cell configuration record.
type CellConfig struct {
	CellIndex   uint8  `yaml:"cell_index"`
	PCI         uint16 `yaml:"pci"`
	Numerology  uint8  `yaml:"numerology"`
	NofCRBs     int    `yaml:"nof_crbs"`

	InitialDLBWP BWPCommon `yaml:"initial_dl_bwp"`
	InitialULBWP BWPCommon `yaml:"initial_ul_bwp"`

	CORESET0 CORESETConfig `yaml:"coreset0"`
	CORESETs map[uint8]CORESETConfig    `yaml:"coresets"`
	SearchSpaces map[uint8]SearchSpaceConfig `yaml:"search_spaces"`

	SearchSpace0ID   uint8 `yaml:"search_space0_id"`
	RASearchSpaceID  uint8 `yaml:"ra_search_space_id"`
	SIB1PeriodSlots  int   `yaml:"sib1_period_slots"`
	PagingPeriodSlots int  `yaml:"paging_period_slots"`

	PRACH PRACHConfig `yaml:"prach"`

	Expert SchedulerExpertConfig `yaml:"expert"`
}

// SchedulerExpertConfig is the set of implementation-policy knobs spec
// §9's Open Questions say must stay config-driven rather than hard-coded.
type SchedulerExpertConfig struct {
	MaxHARQRetxs          uint8    `yaml:"max_harq_retxs"`
	MaxConsecutiveHARQKOs uint32   `yaml:"max_consecutive_harq_kos"`
	HARQRTTTimeoutSlots   uint32   `yaml:"harq_rtt_timeout_slots"`
	MaxHARQBitsPerUCI     uint8    `yaml:"max_harq_bits_per_uci"` // spec §9 Open Question: kept at 2 until lifted
	PDSCHRVSequence       []uint8  `yaml:"pdsch_rv_sequence"`
	PUSCHRVSequence       []uint8  `yaml:"pusch_rv_sequence"`
	RingCapacitySlots     uint32   `yaml:"ring_capacity_slots"`
	// PUSCHSNREWMAAlpha is the smoothing factor applied to each fresh
	// ul_crc_indication SNR sample folded into a UE's PUSCH SNR EWMA.
	PUSCHSNREWMAAlpha    float64 `yaml:"pusch_snr_ewma_alpha"`
	// Msg3K2Slots is the fixed k2 timing offset from the RAR PDSCH to
	// the Msg3 UL grant this scheduler assumes (spec §4.8).
	Msg3K2Slots          uint8   `yaml:"msg3_k2_slots"`
}

// DefaultSchedulerExpertConfig mirrors the conservative defaults a
// fresh cell boots with before any override is applied.
func DefaultSchedulerExpertConfig() SchedulerExpertConfig {
	return SchedulerExpertConfig{
		MaxHARQRetxs:          4,
		MaxConsecutiveHARQKOs: 4,
		HARQRTTTimeoutSlots:   8,
		MaxHARQBitsPerUCI:     2,
		PDSCHRVSequence:       []uint8{0, 2, 3, 1},
		PUSCHRVSequence:       []uint8{0, 2, 3, 1},
		RingCapacitySlots:     40,
		PUSCHSNREWMAAlpha:     0.3,
		Msg3K2Slots:           4,
	}
}

// SearchSpaceInfo is the resolved view of a SearchSpace the allocator
// actually consumes: the SearchSpaceConfig plus the BWP/CORESET-derived
// limits and time-domain tables it depends on.
type SearchSpaceInfo struct {
	Cfg        SearchSpaceConfig
	CORESET    CORESETConfig
	BWPID      uint8
	DLCRBLims  CRBInterval
	ULCRBLims  CRBInterval
	PDSCHTimeDomain []TimeDomainResource
	PUSCHTimeDomain []TimeDomainResource
}

// ResolveSearchSpace looks up a SearchSpace by ID and resolves its
// derived fields against the cell's BWP/CORESET configuration. Returns
// nil if the SearchSpace or its CORESET is unknown.
func (c *CellConfig) ResolveSearchSpace(ssID uint8, activeDLBWP, activeULBWP BWPCommon) *SearchSpaceInfo {
	ssCfg, ok := c.SearchSpaces[ssID]
	if !ok {
		return nil
	}
	var coreset CORESETConfig
	if ssCfg.CORESETID == 0 {
		coreset = c.CORESET0
	} else {
		cs, ok := c.CORESETs[ssCfg.CORESETID]
		if !ok {
			return nil
		}
		coreset = cs
	}
	return &SearchSpaceInfo{
		Cfg:             ssCfg,
		CORESET:         coreset,
		BWPID:           activeDLBWP.ID,
		DLCRBLims:       activeDLBWP.CRBs,
		ULCRBLims:       activeULBWP.CRBs,
		PDSCHTimeDomain: activeDLBWP.TimeDomain,
		PUSCHTimeDomain: activeULBWP.TimeDomain,
	}
}
