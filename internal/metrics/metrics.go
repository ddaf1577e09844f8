package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haatos/runkeeper/internal/build"
)

const namespace = "runkeeper"

// Collector is a build.Listener exporting lifecycle counters.
type Collector struct {
	saves     *prometheus.CounterVec
	deletions *prometheus.CounterVec
	running   prometheus.Gauge

	mu      sync.Mutex
	tracked map[*build.Record]struct{}
}

func NewCollector() *Collector {
	return &Collector{
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "build_saves_total",
			Help:      "Counts build saves by status and result.",
		}, []string{"status", "result"}),
		deletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "build_deletions_total",
			Help:      "Counts deleted builds by job.",
		}, []string{"job"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "builds_running",
			Help:      "Number of builds currently running.",
		}),
		tracked: make(map[*build.Record]struct{}),
	}
}

// Register adds the collector's metrics to reg.
func (mc *Collector) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{mc.saves, mc.deletions, mc.running} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (mc *Collector) OnSaved(r *build.Record) error {
	status := r.Status()
	mc.saves.WithLabelValues(status.String(), string(r.Result())).Inc()

	mc.mu.Lock()
	defer mc.mu.Unlock()
	_, ok := mc.tracked[r]
	switch {
	case status == build.StatusRunning && !ok:
		mc.tracked[r] = struct{}{}
		mc.running.Inc()
	case status != build.StatusRunning && ok:
		delete(mc.tracked, r)
		mc.running.Dec()
	}
	return nil
}

func (mc *Collector) OnDeleted(r *build.Record, storage string) error {
	mc.deletions.WithLabelValues(r.Job().Name()).Inc()

	mc.mu.Lock()
	defer mc.mu.Unlock()
	if _, ok := mc.tracked[r]; ok {
		delete(mc.tracked, r)
		mc.running.Dec()
	}
	return nil
}
