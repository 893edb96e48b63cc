// Package metrics defines the Prometheus collectors of the vault.
//
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "custody"

type Metrics struct {
	operations    *prometheus.CounterVec
	swapDuration  prometheus.Histogram
	totalDeposits prometheus.Gauge
	capacityLimit prometheus.Gauge
	unallocated   *prometheus.GaugeVec
	events        *prometheus.CounterVec
	outboxPending prometheus.Gauge
}

// New creates the collectors and registers them with r.
func New(r prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Vault operations by kind and outcome.",
		}, []string{"op", "outcome"}),
		swapDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "swap_duration_seconds",
			Help:      "Latency of the exchange leg of non-reference deposits.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		totalDeposits: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_deposits",
			Help:      "Global total in reference-asset native units (float approximation).",
		}),
		capacityLimit: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "capacity_limit",
			Help:      "Capacity limit in comparison units (float approximation).",
		}),
		unallocated: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unallocated_custody",
			Help:      "Amounts held in custody but credited to no account.",
		}, []string{"asset"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Outbox events by publish outcome.",
		}, []string{"outcome"}),
		outboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_pending",
			Help:      "Events waiting in the outbox.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.operations,
		m.swapDuration,
		m.totalDeposits,
		m.capacityLimit,
		m.unallocated,
		m.events,
		m.outboxPending,
	} {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Operation counts one finished operation; reason is "ok" on success.
func (m *Metrics) Operation(op, reason string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, reason).Inc()
}

func (m *Metrics) ObserveSwap(d time.Duration) {
	if m == nil {
		return
	}
	m.swapDuration.Observe(d.Seconds())
}

func (m *Metrics) SetTotal(total *uint256.Int) {
	if m == nil {
		return
	}
	m.totalDeposits.Set(total.Float64())
}

func (m *Metrics) SetLimit(limit *uint256.Int) {
	if m == nil {
		return
	}
	m.capacityLimit.Set(limit.Float64())
}

func (m *Metrics) SetUnallocated(asset string, amount *uint256.Int) {
	if m == nil {
		return
	}
	m.unallocated.WithLabelValues(asset).Set(amount.Float64())
}

func (m *Metrics) EventPublished() {
	if m == nil {
		return
	}
	m.events.WithLabelValues("published").Inc()
}

func (m *Metrics) EventFailed() {
	if m == nil {
		return
	}
	m.events.WithLabelValues("failed").Inc()
}

func (m *Metrics) SetOutboxPending(n int) {
	if m == nil {
		return
	}
	m.outboxPending.Set(float64(n))
}
