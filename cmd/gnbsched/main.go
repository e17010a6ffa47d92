// Command gnbsched runs the DU-side slot scheduler as a standalone
// process: it loads a cell configuration, wires one slot driver per
// cell, and paces them against a tick source (real-time or
// accelerated) via the timectrl package.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/du-scheduler/internal/config"
	"github.com/signalsfoundry/du-scheduler/internal/events"
	"github.com/signalsfoundry/du-scheduler/internal/grid"
	"github.com/signalsfoundry/du-scheduler/internal/logging"
	"github.com/signalsfoundry/du-scheduler/internal/observability"
	"github.com/signalsfoundry/du-scheduler/internal/pucch"
	"github.com/signalsfoundry/du-scheduler/internal/result"
	"github.com/signalsfoundry/du-scheduler/internal/sched"
	"github.com/signalsfoundry/du-scheduler/internal/slotpoint"
	"github.com/signalsfoundry/du-scheduler/internal/ue"
	"github.com/signalsfoundry/du-scheduler/timectrl"
)

var (
	flagConfigPath  string
	flagTick        time.Duration
	flagAccelerated bool
	flagDuration    time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "gnbsched",
		Short: "gnbsched runs the DU radio slot scheduler core",
		Long:  "gnbsched drives per-cell slot schedulers: PDCCH/PDSCH/PUCCH/RAR allocation against a configured cell grid.",
		RunE:  run,
	}

	root.Flags().StringVar(&flagConfigPath, "config", "", "path to a cell configuration YAML file (uses built-in defaults when empty)")
	root.Flags().DurationVar(&flagTick, "tick", time.Millisecond, "wall-clock duration of one scheduler tick")
	root.Flags().BoolVar(&flagAccelerated, "accelerated", false, "pace ticks as fast as the loop can run instead of at wall-clock tick intervals")
	root.Flags().DurationVar(&flagDuration, "duration", 0, "stop after this much time has elapsed (0 runs until interrupted)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg := config.Default()
	if flagConfigPath != "" {
		loaded, err := config.Load(flagConfigPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	log := logging.New(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
	})

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "du-scheduler",
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
	}, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, log)

	collector, err := observability.NewSchedulerCollector(nil)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error(ctx, "metrics server exited", logging.Any("error", err.Error()))
			}
		}()
		log.Info(ctx, "metrics endpoint listening", logging.String("addr", cfg.Metrics.Addr))
	}

	drivers := make([]*sched.Driver, 0, len(cfg.Cells))
	cellSlots := make([]uint32, 0, len(cfg.Cells))
	cellIndexes := make([]uint8, 0, len(cfg.Cells))
	for i := range cfg.Cells {
		cellCfg := &cfg.Cells[i]
		cellIndexes = append(cellIndexes, cellCfg.CellIndex)
	}

	eventMgr := events.NewManager(256, cellIndexes, func(cell uint8, reason events.DropReason) {
		collector.EventsDropped.WithLabelValues(cellLabelFor(cell), reason.String()).Inc()
	})

	for i := range cfg.Cells {
		cellCfg := &cfg.Cells[i]
		ring := grid.NewCellAllocator(int(cellCfg.Expert.RingCapacitySlots), cellCfg.NofCRBs, cellCfg.NofCRBs)
		uci := pucch.NewAllocator()
		repo := ue.NewRepository()

		driver := sched.NewDriver(cellCfg.CellIndex, cellCfg, ring, uci, repo, eventMgr, result.DefaultCapacity())
		driver.Metrics = collector
		driver.Log = log.With(logging.Any("cell", cellCfg.CellIndex))

		drivers = append(drivers, driver)
		cellSlots = append(cellSlots, 0)
	}

	mode := timectrl.RealTime
	if flagAccelerated {
		mode = timectrl.Accelerated
	}
	tc := timectrl.NewTimeController(time.Now().UTC(), flagTick, mode)

	tc.AddListener(func(time.Time) {
		for i, driver := range drivers {
			numerology := cfg.Cells[i].Numerology
			slot := slotpoint.NewFromCount(numerology, cellSlots[i])
			driver.RunSlot(slot, nil)
			cellSlots[i]++
		}
	})

	log.Info(ctx, "starting slot scheduler",
		logging.Any("cells", len(drivers)),
		logging.String("tick", flagTick.String()),
		logging.Any("accelerated", flagAccelerated),
	)
	done := tc.Start(flagDuration)
	<-done
	log.Info(ctx, "slot scheduler stopped")
	return nil
}

func cellLabelFor(cellIndex uint8) string {
	const hextable = "0123456789abcdef"
	return "cell-" + string([]byte{hextable[cellIndex%16]})
}
