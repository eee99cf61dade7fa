// Package metrics owns the prometheus collectors sitehost exports.
//
// A Recorder carries its own registry so tests and multiple managers never
// collide on global registration. Every method is safe on a nil Recorder.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sitehost"

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20}

// Recorder records deployment and API metrics.
type Recorder struct {
	registry        *prometheus.Registry
	deployResults   *prometheus.CounterVec
	deployDuration  prometheus.Histogram
	projectsLive    prometheus.Gauge
	tunnelResults   *prometheus.CounterVec
	teardowns       *prometheus.CounterVec
	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New builds a Recorder with process and Go runtime collectors attached.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		deployResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "results_total",
			Help:      "Deploy outcomes by error kind (success when none).",
		}, []string{"outcome"}),
		deployDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "duration_seconds",
			Help:      "Time from deploy request to live project.",
			Buckets:   histogramBuckets,
		}),
		projectsLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "projects_live",
			Help:      "Projects currently registered.",
		}),
		tunnelResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tunnel",
			Name:      "results_total",
			Help:      "Tunnel attempt outcomes.",
		}, []string{"state"}),
		teardowns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deploy",
			Name:      "teardowns_total",
			Help:      "Completed teardowns by trigger.",
		}, []string{"trigger"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Count of processed control API requests.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution of control API handlers.",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.deployResults,
		r.deployDuration,
		r.projectsLive,
		r.tunnelResults,
		r.teardowns,
		r.requestTotal,
		r.requestDuration,
	)
	return r
}

// Handler serves the exposition format for this recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry for tests.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// DeployFinished records one deploy outcome. outcome is "success" or an error kind.
func (r *Recorder) DeployFinished(outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.deployResults.WithLabelValues(outcome).Inc()
	if outcome == "success" {
		r.deployDuration.Observe(elapsed.Seconds())
	}
}

// SetLive records the number of registered projects.
func (r *Recorder) SetLive(n int) {
	if r == nil {
		return
	}
	r.projectsLive.Set(float64(n))
}

// TunnelResult records a tunnel attempt outcome.
func (r *Recorder) TunnelResult(state string) {
	if r == nil {
		return
	}
	r.tunnelResults.WithLabelValues(state).Inc()
}

// Teardown records a completed teardown.
func (r *Recorder) Teardown(trigger string) {
	if r == nil {
		return
	}
	r.teardowns.WithLabelValues(trigger).Inc()
}

// ObserveRequest records one control API request.
func (r *Recorder) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if r == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	r.requestTotal.With(labels).Inc()
	r.requestDuration.With(labels).Observe(elapsed.Seconds())
}
