package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SchedulerCollector bundles the Prometheus metrics emitted by the slot
// driver and its allocators. One collector is shared by every cell owned
// by the process.
type SchedulerCollector struct {
	gatherer prometheus.Gatherer

	SlotDuration    *prometheus.HistogramVec
	RTDeadlineMiss  *prometheus.CounterVec
	NoSpacePDCCH    *prometheus.CounterVec
	NoSpacePUCCH    *prometheus.CounterVec
	NoSpacePUSCH    *prometheus.CounterVec
	NoMCSFeasible   *prometheus.CounterVec
	GridCollisions  *prometheus.CounterVec
	PUCCHFormat2Ups *prometheus.CounterVec
	RLFIndications  *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
	ActiveUEs       *prometheus.GaugeVec
	HARQConsecKOs   *prometheus.GaugeVec
}

// NewSchedulerCollector registers scheduler metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSchedulerCollector(reg prometheus.Registerer) (*SchedulerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	slotDuration, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sched_slot_duration_seconds",
		Help:    "Wall-clock duration of a single slot's scheduling pipeline.",
		Buckets: []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01},
	}, []string{"cell"}), "sched_slot_duration_seconds")
	if err != nil {
		return nil, err
	}

	rtMiss, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sched_rt_deadline_misses_total",
		Help: "Number of slots whose pipeline exceeded the real-time processing budget.",
	}, []string{"cell"}), "sched_rt_deadline_misses_total")
	if err != nil {
		return nil, err
	}

	noSpacePDCCH, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sched_no_space_pdcch_total",
		Help: "Grants abandoned because no PDCCH candidate was free.",
	}, []string{"cell"}), "sched_no_space_pdcch_total")
	if err != nil {
		return nil, err
	}

	noSpacePUCCH, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sched_no_space_pucch_total",
		Help: "DL grants abandoned because no PUCCH/UCI opportunity was available.",
	}, []string{"cell"}), "sched_no_space_pucch_total")
	if err != nil {
		return nil, err
	}

	noSpacePUSCH, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sched_no_space_pusch_total",
		Help: "UL grants abandoned because the PUSCH result list was full.",
	}, []string{"cell"}), "sched_no_space_pusch_total")
	if err != nil {
		return nil, err
	}

	noMCS, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sched_no_mcs_feasible_total",
		Help: "Grants abandoned because no MCS kept the code rate at or below 0.95.",
	}, []string{"cell", "direction"}), "sched_no_mcs_feasible_total")
	if err != nil {
		return nil, err
	}

	collisions, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sched_grid_collisions_total",
		Help: "Grid collisions detected before an allocation was attempted.",
	}, []string{"cell", "direction"}), "sched_grid_collisions_total")
	if err != nil {
		return nil, err
	}

	pucchUpgrades, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sched_pucch_format2_upgrades_total",
		Help: "PUCCH reservations upgraded from format-1 to format-2 to fit accumulated UCI bits.",
	}, []string{"cell"}), "sched_pucch_format2_upgrades_total")
	if err != nil {
		return nil, err
	}

	rlf, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sched_rlf_indications_total",
		Help: "Radio-link-failure indications raised upstream.",
	}, []string{"cell", "cause"}), "sched_rlf_indications_total")
	if err != nil {
		return nil, err
	}

	eventsDropped, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sched_events_dropped_total",
		Help: "Events dropped because their queue was full or their cell was not registered; events naming an unknown UE index are skipped without being counted here.",
	}, []string{"cell", "reason"}), "sched_events_dropped_total")
	if err != nil {
		return nil, err
	}

	activeUEs, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sched_active_ues",
		Help: "Number of UEs currently held in the per-cell repository.",
	}, []string{"cell"}), "sched_active_ues")
	if err != nil {
		return nil, err
	}

	consecKOs, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sched_harq_consecutive_kos",
		Help: "Current consecutive HARQ-KO count for the worst UE on the cell.",
	}, []string{"cell"}), "sched_harq_consecutive_kos")
	if err != nil {
		return nil, err
	}

	return &SchedulerCollector{
		gatherer:        gatherer,
		SlotDuration:    slotDuration,
		RTDeadlineMiss:  rtMiss,
		NoSpacePDCCH:    noSpacePDCCH,
		NoSpacePUCCH:    noSpacePUCCH,
		NoSpacePUSCH:    noSpacePUSCH,
		NoMCSFeasible:   noMCS,
		GridCollisions:  collisions,
		PUCCHFormat2Ups: pucchUpgrades,
		RLFIndications:  rlf,
		EventsDropped:   eventsDropped,
		ActiveUEs:       activeUEs,
		HARQConsecKOs:   consecKOs,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SchedulerCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SchedulerCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveSlotDuration records how long a cell's per-slot pipeline took.
func (c *SchedulerCollector) ObserveSlotDuration(cell string, d time.Duration) {
	if c == nil || c.SlotDuration == nil {
		return
	}
	c.SlotDuration.WithLabelValues(cell).Observe(d.Seconds())
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
