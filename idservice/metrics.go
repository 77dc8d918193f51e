package idservice

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	registrations *prometheus.CounterVec
	challenges    *prometheus.CounterVec
	verifications *prometheus.CounterVec
	requests      *prometheus.HistogramVec
	principals    prometheus.GaugeFunc
}

// NewMetrics creates collectors in a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pqportal",
			Subsystem: "identity",
			Name:      "registrations_total",
			Help:      "Registration attempts by result.",
		}, []string{"result"}),
		challenges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pqportal",
			Subsystem: "identity",
			Name:      "challenges_total",
			Help:      "Challenge requests by result.",
		}, []string{"result"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pqportal",
			Subsystem: "identity",
			Name:      "verifications_total",
			Help:      "Signature verifications by result.",
		}, []string{"result"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pqportal",
			Subsystem: "identity",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and status code.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}
	m.registry.MustRegister(
		m.registrations,
		m.challenges,
		m.verifications,
		m.requests,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) watchPrincipals(count func() int) {
	if m == nil {
		return
	}
	m.principals = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "pqportal",
		Subsystem: "identity",
		Name:      "principals",
		Help:      "Registered principals.",
	}, func() float64 { return float64(count()) })
	m.registry.MustRegister(m.principals)
}

func (m *Metrics) registration(result string) {
	if m != nil {
		m.registrations.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) challenge(result string) {
	if m != nil {
		m.challenges.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) verification(result string) {
	if m != nil {
		m.verifications.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) observe(route string, code int, since time.Time) {
	if m != nil {
		m.requests.WithLabelValues(route, strconv.Itoa(code)).Observe(time.Since(since).Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
