// Package metrics instruments the engine with Prometheus collectors. Every
// method is nil-receiver safe so the engine can run uninstrumented.
package metrics

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
)

type Collector struct {
	fills         *prometheus.CounterVec
	volume        *prometheus.CounterVec
	restingOrders prometheus.Gauge
	cancels       prometheus.Counter
	rejectedCalls prometheus.Counter
}

// NewCollector builds the collectors and registers them on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchange",
			Name:      "fills_total",
			Help:      "Settled fills by sold asset.",
		}, []string{"asset"}),
		volume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchange",
			Name:      "volume_total",
			Help:      "Settled volume in units of the sold asset.",
		}, []string{"asset"}),
		restingOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "exchange",
			Name:      "resting_orders",
			Help:      "Orders currently linked in the book.",
		}),
		cancels: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "exchange",
			Name:      "cancels_total",
			Help:      "Orders cancelled by their owner.",
		}),
		rejectedCalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "exchange",
			Name:      "rejected_calls_total",
			Help:      "Public calls that aborted and rolled back.",
		}),
	}
	reg.MustRegister(c.fills, c.volume, c.restingOrders, c.cancels, c.rejectedCalls)
	return c
}

// Fill records one settlement of q units of the sold asset.
func (c *Collector) Fill(asset string, q *big.Int) {
	if c == nil {
		return
	}
	f, _ := new(big.Float).SetInt(q).Float64()
	c.fills.WithLabelValues(asset).Inc()
	c.volume.WithLabelValues(asset).Add(f)
}

func (c *Collector) OrderRested() {
	if c == nil {
		return
	}
	c.restingOrders.Inc()
}

func (c *Collector) OrderRetired() {
	if c == nil {
		return
	}
	c.restingOrders.Dec()
}

// OrderCancelled counts the cancel; the paired DeleteOffer drops the gauge.
func (c *Collector) OrderCancelled() {
	if c == nil {
		return
	}
	c.cancels.Inc()
}

func (c *Collector) CallRejected() {
	if c == nil {
		return
	}
	c.rejectedCalls.Inc()
}
