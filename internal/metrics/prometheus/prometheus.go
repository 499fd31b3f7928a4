package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"finos/internal/core"
	"finos/internal/metrics"
)

var syncStates = []core.SyncState{core.SyncIdle, core.SyncSyncing, core.SyncSuccess, core.SyncError}

// Collector implements metrics.Collector for Prometheus.
type Collector struct {
	ingestCalls   *prometheus.CounterVec
	ingestLatency *prometheus.HistogramVec

	circuitOpens *prometheus.CounterVec
	circuitState *prometheus.GaugeVec

	syncTransitions *prometheus.CounterVec
	syncState       *prometheus.GaugeVec

	dashboardLookups *prometheus.CounterVec
	ingestEvents     *prometheus.CounterVec
}

// NewCollector creates the metric vectors under namespace. Call Register to
// expose them.
func NewCollector(namespace string) *Collector {
	return &Collector{
		ingestCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingest_calls_total",
				Help:      "Total number of ingestion backend calls per operation and outcome",
			},
			[]string{"operation", "status"},
		),
		ingestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ingest_call_duration_seconds",
				Help:      "Ingestion backend call latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		circuitOpens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_opens_total",
				Help:      "Total number of circuit breaker opens",
			},
			[]string{"name"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"name"},
		),
		syncTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_transitions_total",
				Help:      "Total number of sync status transitions per target state",
			},
			[]string{"state"},
		),
		syncState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sync_state",
				Help:      "1 for the current sync state, 0 otherwise",
			},
			[]string{"state"},
		),
		dashboardLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dashboard_lookups_total",
				Help:      "Total number of dashboard memo lookups by result",
			},
			[]string{"result"},
		),
		ingestEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ingest_events_total",
				Help:      "Total number of ingestion events consumed by outcome",
			},
			[]string{"status"},
		),
	}
}

// Register registers all metrics with the given registry.
func (c *Collector) Register(registry *prometheus.Registry) error {
	collectors := []prometheus.Collector{
		c.ingestCalls,
		c.ingestLatency,
		c.circuitOpens,
		c.circuitState,
		c.syncTransitions,
		c.syncState,
		c.dashboardLookups,
		c.ingestEvents,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) RecordIngestCall(operation string, success bool, duration time.Duration) {
	c.ingestCalls.WithLabelValues(operation, outcome(success)).Inc()
	c.ingestLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

func (c *Collector) RecordCircuitState(name string, state metrics.CircuitState) {
	c.circuitState.WithLabelValues(name).Set(float64(state))
	if state == metrics.CircuitOpen {
		c.circuitOpens.WithLabelValues(name).Inc()
	}
}

func (c *Collector) RecordSyncState(state core.SyncState) {
	c.syncTransitions.WithLabelValues(string(state)).Inc()
	for _, s := range syncStates {
		v := 0.0
		if s == state {
			v = 1
		}
		c.syncState.WithLabelValues(string(s)).Set(v)
	}
}

func (c *Collector) RecordDashboard(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.dashboardLookups.WithLabelValues(result).Inc()
}

func (c *Collector) RecordIngestEvent(success bool) {
	c.ingestEvents.WithLabelValues(outcome(success)).Inc()
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
