package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegistryCounts(t *testing.T) {
	reg := Default()
	require.Same(t, reg, Default())

	reg.Observe("cdp", "position", 200, time.Millisecond)
	reg.Observe("", "", 500, time.Millisecond)
	reg.RecordThrottle("tx", "")
	reg.RecordEvent(" ")

	require.Equal(t, float64(1), testutil.ToFloat64(reg.requests.WithLabelValues("cdp", "position", "200")))
	require.Equal(t, float64(1), testutil.ToFloat64(reg.requests.WithLabelValues("unknown", "unknown", "500")))
	require.Equal(t, float64(1), testutil.ToFloat64(reg.throttles.WithLabelValues("tx", "unknown")))
	require.Equal(t, float64(1), testutil.ToFloat64(reg.events.WithLabelValues("unknown")))

	var nilRegistry *Registry
	nilRegistry.RecordEvent("x")
}
