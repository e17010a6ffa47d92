package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewSchedulerCollectorRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()

	c1, err := NewSchedulerCollector(reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c2, err := NewSchedulerCollector(reg)
	if err != nil {
		t.Fatalf("second registration should reuse existing collectors, got error: %v", err)
	}
	if c1.SlotDuration != c2.SlotDuration {
		t.Errorf("expected re-registration to return the same histogram vec")
	}
}

func TestObserveSlotDurationNilSafe(t *testing.T) {
	var c *SchedulerCollector
	c.ObserveSlotDuration("cell-0", 0)
}

func TestActiveUEsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewSchedulerCollector(reg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.ActiveUEs.WithLabelValues("cell-0").Set(3)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	found := false
	for _, mf := range metrics {
		if mf.GetName() == "sched_active_ues" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected sched_active_ues to be gathered")
	}
}
