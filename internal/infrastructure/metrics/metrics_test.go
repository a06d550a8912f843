package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatherCounter(t *testing.T, reg *prometheus.Registry, eventType, chain string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "crosspay_events_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["type"] == eventType && labels[LabelChain] == chain {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestPrometheusRecorder_CountsAndObserves(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.IncCounter(EventCandidateDropped, ChainLabels(10))
	rec.IncCounter(EventCandidateDropped, ChainLabels(10))
	rec.IncCounter(EventPollCheck, nil)
	rec.ObserveLatency(OpBridgeQuote, 150*time.Millisecond, ChainLabels(8453))

	assert.Equal(t, float64(2), gatherCounter(t, reg, EventCandidateDropped, "10"))
	assert.Equal(t, float64(1), gatherCounter(t, reg, EventPollCheck, ""))

	families, err := reg.Gather()
	require.NoError(t, err)
	var samples uint64
	for _, mf := range families {
		if mf.GetName() == "crosspay_latency_seconds" {
			for _, m := range mf.GetMetric() {
				samples += m.GetHistogram().GetSampleCount()
			}
		}
	}
	assert.Equal(t, uint64(1), samples)
}

func TestPrometheusRecorder_DoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewPrometheusRecorder(reg)
	assert.Panics(t, func() { _ = NewPrometheusRecorder(reg) })
}

func TestNoopRecorder(t *testing.T) {
	var rec Recorder = NoopRecorder{}
	rec.IncCounter("x", nil)
	rec.ObserveLatency("y", time.Second, map[string]string{LabelChain: "1"})
	assert.Equal(t, "", formatChain(0))
	assert.Equal(t, "137", formatChain(137))
}
