// Package metrics exposes prometheus collectors for the coordinator's load
// chain, trace queries and fan-out sub-requests. Every method is safe on a
// nil receiver so instrumentation stays optional.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Stage labels the load-chain step a load metric refers to.
type Stage string

const (
	StageRoot       Stage = "root"
	StageDefinition Stage = "definition"
	StageResolve    Stage = "resolve"
)

// Metrics holds the registered collectors.
type Metrics struct {
	loadsTotal       *prometheus.CounterVec
	queriesTotal     *prometheus.CounterVec
	subRequestsTotal *prometheus.CounterVec
	queryInFlight    prometheus.Gauge
}

// New creates and registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		loadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tracegrid",
			Name:      "loads_total",
			Help:      "Load chain outcomes by stage and result.",
		}, []string{"stage", "result"}),
		queriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tracegrid",
			Name:      "queries_total",
			Help:      "Trace query outcomes.",
		}, []string{"result"}),
		subRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tracegrid",
			Name:      "subrequests_total",
			Help:      "Fan-out group fetch outcomes.",
		}, []string{"result"}),
		queryInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tracegrid",
			Name:      "query_in_flight",
			Help:      "Whether a trace query is currently running.",
		}),
	}
	reg.MustRegister(m.loadsTotal, m.queriesTotal, m.subRequestsTotal, m.queryInFlight)
	return m
}

// LoadSucceeded records a load chain that reached Ready.
func (m *Metrics) LoadSucceeded() {
	if m == nil {
		return
	}
	m.loadsTotal.WithLabelValues(string(StageResolve), "success").Inc()
}

// LoadFailed records a load chain failure at the given stage.
func (m *Metrics) LoadFailed(stage Stage) {
	if m == nil {
		return
	}
	m.loadsTotal.WithLabelValues(string(stage), "failure").Inc()
}

// QueryStarted marks a trace query as in flight.
func (m *Metrics) QueryStarted() {
	if m == nil {
		return
	}
	m.queryInFlight.Inc()
}

// QueryFinished clears the in-flight marker.
func (m *Metrics) QueryFinished() {
	if m == nil {
		return
	}
	m.queryInFlight.Dec()
}

// QuerySucceeded records a completed trace query.
func (m *Metrics) QuerySucceeded() {
	if m == nil {
		return
	}
	m.queriesTotal.WithLabelValues("success").Inc()
}

// QueryFailed records a failed trace query.
func (m *Metrics) QueryFailed() {
	if m == nil {
		return
	}
	m.queriesTotal.WithLabelValues("failure").Inc()
}

// SubRequestSucceeded records one successful group fetch.
func (m *Metrics) SubRequestSucceeded() {
	if m == nil {
		return
	}
	m.subRequestsTotal.WithLabelValues("success").Inc()
}

// SubRequestFailed records one failed group fetch.
func (m *Metrics) SubRequestFailed() {
	if m == nil {
		return
	}
	m.subRequestsTotal.WithLabelValues("failure").Inc()
}
