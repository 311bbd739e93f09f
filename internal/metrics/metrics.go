package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eventhub/internal/domain"
)

// Recorder owns the scrape metrics. A nil Recorder records nothing.
type Recorder struct {
	Registry *prometheus.Registry

	runs        *prometheus.CounterVec
	records     *prometheus.CounterVec
	retired     *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
}

func New() *Recorder {
	r := &Recorder{Registry: prometheus.NewRegistry()}
	r.runs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventhub",
		Name:      "scrape_runs_total",
		Help:      "Source runs by terminal status",
	}, []string{"source", "status"})
	r.records = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventhub",
		Name:      "reconciled_records_total",
		Help:      "Records reconciled by outcome",
	}, []string{"source", "outcome"})
	r.retired = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "eventhub",
		Name:      "retired_events_total",
		Help:      "Events moved to inactive",
	}, []string{"source"})
	r.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "eventhub",
		Name:      "scrape_run_duration_seconds",
		Help:      "Wall time of a source run",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"source"})
	r.lastSuccess = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "eventhub",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last successful run",
	}, []string{"source"})
	r.Registry.MustRegister(r.runs, r.records, r.retired, r.duration, r.lastSuccess)
	return r
}

func (r *Recorder) ObserveRecord(source, outcome string) {
	if r == nil {
		return
	}
	r.records.WithLabelValues(source, outcome).Inc()
}

// ObserveRun records the terminal state of one source run.
func (r *Recorder) ObserveRun(s domain.RunSummary, took time.Duration, finished time.Time) {
	if r == nil {
		return
	}
	status := string(domain.RunSuccess)
	if s.Failed() {
		status = string(domain.RunError)
	}
	r.runs.WithLabelValues(s.Source, status).Inc()
	r.duration.WithLabelValues(s.Source).Observe(took.Seconds())
	if s.Inactive > 0 {
		r.retired.WithLabelValues(s.Source).Add(float64(s.Inactive))
	}
	if !s.Failed() {
		r.lastSuccess.WithLabelValues(s.Source).Set(float64(finished.Unix()))
	}
}

func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{})
}
