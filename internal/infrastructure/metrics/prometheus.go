package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type PrometheusRecorder struct {
	counters  *prometheus.CounterVec
	histogram *prometheus.HistogramVec
}

// NewPrometheusRecorder registers the crosspay collectors on reg
func NewPrometheusRecorder(reg prometheus.Registerer) Recorder {
	counters := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crosspay",
			Name:      "events_total",
			Help:      "crosspay event counters",
		},
		[]string{"type", LabelChain},
	)

	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "crosspay",
			Name:      "latency_seconds",
			Help:      "crosspay operation latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", LabelChain},
	)

	reg.MustRegister(counters, histogram)

	return &PrometheusRecorder{
		counters:  counters,
		histogram: histogram,
	}
}

func (p *PrometheusRecorder) IncCounter(name string, labels map[string]string) {
	p.counters.With(prometheus.Labels{
		"type":     name,
		LabelChain: labels[LabelChain],
	}).Inc()
}

func (p *PrometheusRecorder) ObserveLatency(name string, d time.Duration, labels map[string]string) {
	p.histogram.With(prometheus.Labels{
		"operation": name,
		LabelChain:  labels[LabelChain],
	}).Observe(d.Seconds())
}

// ChainLabels is a helper for the common single-label case
func ChainLabels(chainID int64) map[string]string {
	return map[string]string{LabelChain: formatChain(chainID)}
}
