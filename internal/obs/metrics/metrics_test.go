package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNewWithRegistryRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.RateLimitWaitSeconds.WithLabelValues("openai", "gpt-4").Observe(0.25)
	m.RunsTotal.WithLabelValues("completed").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	var found bool
	for _, f := range families {
		if f.GetName() == "runs_total" {
			found = true
			require.Len(t, f.Metric, 1)
			require.Equal(t, float64(1), f.Metric[0].GetCounter().GetValue())
		}
	}
	require.True(t, found, "runs_total should be registered")
}

func TestNewWithNilRegistryDoesNotPanic(t *testing.T) {
	require.NotPanics(t, func() {
		_ = NewWithRegistry(nil)
	})
}
