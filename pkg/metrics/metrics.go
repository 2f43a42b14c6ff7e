// Package metrics exposes the exchange's Prometheus instruments.
// Every method is safe on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "predict"

type Metrics struct {
	registry *prometheus.Registry

	ordersCreated   *prometheus.CounterVec
	ordersCancelled prometheus.Counter
	fillLegs        *prometheus.CounterVec
	fills           prometheus.Counter
	fees            *prometheus.CounterVec
	claims          prometheus.Counter
	rejections      *prometheus.CounterVec
	opTime          *prometheus.HistogramVec
	restingOrders   prometheus.Gauge
	apiRequests     *prometheus.CounterVec
}

// New creates and registers every instrument on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders placed on the book",
		}, []string{"side"}),
		ordersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_cancelled_total",
			Help:      "Orders cancelled by their owner or the escape hatch",
		}),
		fills: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fills_total",
			Help:      "Fills against resting orders",
		}),
		fillLegs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fill_legs_total",
			Help:      "Settled fill legs by kind",
		}, []string{"leg"}),
		fees: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fees_collected",
			Help:      "Fees collected, in whole cash units",
		}, []string{"kind"}),
		claims: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Proceeds claims paid out",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Rejected calls by operation",
		}, []string{"op"}),
		opTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_seconds",
			Help:      "Time spent inside the exchange serializer",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"op"}),
		restingOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resting_orders",
			Help:      "Orders currently on the book",
		}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "REST requests by route and status code",
		}, []string{"route", "code"}),
	}
	m.registry.MustRegister(
		m.ordersCreated, m.ordersCancelled, m.fills, m.fillLegs, m.fees,
		m.claims, m.rejections, m.opTime, m.restingOrders, m.apiRequests,
	)
	return m
}

// Registry returns the underlying registry, for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) OrderCreated(side string) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(side).Inc()
}

func (m *Metrics) OrderCancelled() {
	if m == nil {
		return
	}
	m.ordersCancelled.Inc()
}

// Fill records one fill and the kinds of its legs.
func (m *Metrics) Fill(legs ...string) {
	if m == nil {
		return
	}
	m.fills.Inc()
	for _, l := range legs {
		m.fillLegs.WithLabelValues(l).Inc()
	}
}

// Fees adds collected creator and reporting fees.
func (m *Metrics) Fees(creator, reporting float64) {
	if m == nil {
		return
	}
	if creator > 0 {
		m.fees.WithLabelValues("creator").Add(creator)
	}
	if reporting > 0 {
		m.fees.WithLabelValues("reporting").Add(reporting)
	}
}

func (m *Metrics) Claim() {
	if m == nil {
		return
	}
	m.claims.Inc()
}

func (m *Metrics) Rejected(op string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(op).Inc()
}

// ObserveOp records how long op held the serializer.
func (m *Metrics) ObserveOp(op string, start time.Time) {
	if m == nil {
		return
	}
	m.opTime.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) SetResting(n int) {
	if m == nil {
		return
	}
	m.restingOrders.Set(float64(n))
}

func (m *Metrics) APIRequest(route string, code string) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(route, code).Inc()
}
