package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fusion-flap/flap-w7x-mdsplus/pkg/assemble"
)

const namespace = "flap_w7x"

// Metrics holds the service metrics on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	NodeReads        *prometheus.CounterVec
	NodeSamples      *prometheus.CounterVec
	NodeReadDuration *prometheus.HistogramVec
	Requests         *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	PrefetchJobs     *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		NodeReads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "node",
				Name:      "reads_total",
				Help:      "Node reads by source (cache or remote)",
			},
			[]string{"source"},
		),
		NodeSamples: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "node",
				Name:      "samples_total",
				Help:      "Samples read by source",
			},
			[]string{"source"},
		),
		NodeReadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "node",
				Name:      "read_duration_seconds",
				Help:      "Duration of a single node read",
				Buckets:   []float64{.001, .01, .05, .1, .5, 1, 5, 15, 60},
			},
			[]string{"source"},
		),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "requests",
				Name:      "total",
				Help:      "Data requests by source and outcome",
			},
			[]string{"source", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "requests",
				Name:      "duration_seconds",
				Help:      "Data request duration",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		PrefetchJobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "prefetch",
				Name:      "jobs_total",
				Help:      "Processed prefetch jobs by outcome",
			},
			[]string{"status"},
		),
	}
	m.Registry.MustRegister(
		m.NodeReads,
		m.NodeSamples,
		m.NodeReadDuration,
		m.Requests,
		m.RequestDuration,
		m.PrefetchJobs,
		prometheus.NewGoCollector(),
	)
	return m
}

// ObserveNode records one node read. It has the signature of
// w7x.Reader.Observer.
func (m *Metrics) ObserveNode(ev assemble.NodeEvent) {
	m.NodeReads.WithLabelValues(ev.Source).Inc()
	m.NodeSamples.WithLabelValues(ev.Source).Add(float64(ev.Samples))
	m.NodeReadDuration.WithLabelValues(ev.Source).Observe(ev.Duration.Seconds())
}

func (m *Metrics) ObserveRequest(source string, d time.Duration, err error) {
	m.Requests.WithLabelValues(source, status(err)).Inc()
	m.RequestDuration.WithLabelValues(source).Observe(d.Seconds())
}

func (m *Metrics) ObservePrefetch(err error) {
	m.PrefetchJobs.WithLabelValues(status(err)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
