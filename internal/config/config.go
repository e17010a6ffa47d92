// Package config loads the frozen cell configuration the scheduler
// runs with. It is read once at process start and handed to the
// scheduler as an immutable record (spec.md §6): nothing in this
// package is consulted again once the slot loop has started.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/du-scheduler/internal/gridcfg"
)

// ProcessConfig is the top-level document a gnbsched process loads: a
// logging/tracing/metrics section plus one CellConfig per cell the
// process owns.
type ProcessConfig struct {
	Logging LoggingConfig          `yaml:"logging"`
	Tracing TracingConfig          `yaml:"tracing"`
	Metrics MetricsConfig          `yaml:"metrics"`
	Cells   []gridcfg.CellConfig   `yaml:"cells"`
}

// LoggingConfig configures internal/logging.New.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// TracingConfig configures internal/observability.InitTracing.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// MetricsConfig configures the Prometheus metrics HTTP endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns a single-cell process configuration with the
// scheduler's conservative default expert-config knobs, usable
// out-of-the-box for local testing without a config file.
func Default() ProcessConfig {
	return ProcessConfig{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Enabled: true, Addr: ":9090"},
		Cells: []gridcfg.CellConfig{
			{
				CellIndex:  0,
				Numerology: 1,
				NofCRBs:    106,
				InitialDLBWP: gridcfg.BWPCommon{ID: 0, CRBs: gridcfg.CRBInterval{Start: 0, Length: 106}, SCS: 1},
				InitialULBWP: gridcfg.BWPCommon{ID: 0, CRBs: gridcfg.CRBInterval{Start: 0, Length: 106}, SCS: 1},
				CORESET0:     gridcfg.CORESETConfig{ID: 0, CRBs: gridcfg.CRBInterval{Start: 0, Length: 48}, Symbols: gridcfg.SymbolInterval{Start: 0, Length: 2}},
				SearchSpaces: map[uint8]gridcfg.SearchSpaceConfig{
					0: {ID: 0, CORESETID: 0, IsCommon: true, DLFormat: gridcfg.DCICRNTIF1_0},
					1: {ID: 1, CORESETID: 0, DLFormat: gridcfg.DCICRNTIF1_1, ULFormat: gridcfg.DCICRNTIF0_1, K1Candidates: []uint8{4, 5, 6, 7}},
					2: {ID: 2, CORESETID: 0, IsCommon: true, IsRASS: true, DLFormat: gridcfg.DCITcRNTIF1_0},
				},
				SearchSpace0ID:    0,
				RASearchSpaceID:   2,
				SIB1PeriodSlots:   160,
				PagingPeriodSlots: 320,
				Expert:            gridcfg.DefaultSchedulerExpertConfig(),
			},
		},
	}
}

// Load reads and parses a ProcessConfig from the YAML document at path.
func Load(path string) (ProcessConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ProcessConfig{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return ProcessConfig{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if len(cfg.Cells) == 0 {
		return ProcessConfig{}, fmt.Errorf("config: %s defines no cells", path)
	}
	return cfg, nil
}
