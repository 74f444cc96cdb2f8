// Package metrics exposes Prometheus collectors for the render orchestrator.
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "avatarforge"

// Admission results.
const (
	AdmissionAccepted = "accepted"
	AdmissionBusy     = "busy"
	AdmissionError    = "error"
)

// Recorder owns a private registry so tests and multiple servers never clash
// on the global one.
type Recorder struct {
	registry      *prometheus.Registry
	admissions    *prometheus.CounterVec
	jobs          *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	stageDuration *prometheus.HistogramVec
	active        prometheus.Gauge
	heals         prometheus.Counter
}

// New registers every collector plus the Go and process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		admissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admissions_total",
				Help:      "Render job admission attempts by result",
			},
			[]string{"result"},
		),
		jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Finished render jobs by kind and terminal status",
			},
			[]string{"kind", "outcome"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Wall time from admission to epilogue",
				Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"kind"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Time spent in each pipeline stage",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"stage", "result"},
		),
		active: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "job_active",
				Help:      "1 while this process runs a render job (at most one exists)",
			},
		),
		heals: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_heals_total",
				Help:      "Stale active job records reset after the lock was found free",
			},
		),
	}
	r.registry.MustRegister(
		r.admissions,
		r.jobs,
		r.jobDuration,
		r.stageDuration,
		r.active,
		r.heals,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Handler serves the exposition format for this recorder's registry.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Admission counts one admission attempt.
func (r *Recorder) Admission(result string) {
	if r == nil {
		return
	}
	r.admissions.WithLabelValues(result).Inc()
}

// JobStarted marks the runner active.
func (r *Recorder) JobStarted() {
	if r == nil {
		return
	}
	r.active.Set(1)
}

// JobFinished records the terminal outcome and clears the active gauge.
func (r *Recorder) JobFinished(kind, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.active.Set(0)
	r.jobs.WithLabelValues(kind, outcome).Inc()
	r.jobDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveStage records one stage timing.
func (r *Recorder) ObserveStage(stage string, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.stageDuration.WithLabelValues(stage, result).Observe(elapsed.Seconds())
}

// Heal counts a stale status reset.
func (r *Recorder) Heal() {
	if r == nil {
		return
	}
	r.heals.Inc()
}
