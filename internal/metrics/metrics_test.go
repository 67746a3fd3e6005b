package metrics

import (
    "testing"

    "github.com/stretchr/testify/require"
)

func TestRegisterDefaultIsIdempotent(t *testing.T) {
    RegisterDefault()
    RegisterDefault()
    OptimizationRuns.WithLabelValues("route", "ok").Inc()
    families, err := Registry.Gather()
    require.NoError(t, err)
    found := false
    for _, f := range families {
        if f.GetName() == "optimization_runs_total" {
            found = true
            require.GreaterOrEqual(t, f.GetMetric()[0].GetCounter().GetValue(), 1.0)
        }
    }
    require.True(t, found, "optimization_runs_total not gathered")
}
