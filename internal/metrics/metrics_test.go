package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSetCircuitBreakerState(t *testing.T) {
	SetCircuitBreakerState("test_cb", "open")
	assert.Equal(t, 2.0, testutil.ToFloat64(breakerState.WithLabelValues("test_cb")))
	SetCircuitBreakerState("test_cb", "half-open")
	assert.Equal(t, 1.0, testutil.ToFloat64(breakerState.WithLabelValues("test_cb")))
	SetCircuitBreakerState("test_cb", "bogus")
	assert.Equal(t, 1.0, testutil.ToFloat64(breakerState.WithLabelValues("test_cb")))

	RecordCircuitBreakerTrip("test_cb", "threshold_exceeded")
	assert.Equal(t, 1.0, testutil.ToFloat64(breakerTrips.WithLabelValues("test_cb", "threshold_exceeded")))
}

func TestObserveSweepSkipsZeroCounts(t *testing.T) {
	before := testutil.ToFloat64(sweepFiles.WithLabelValues("test_mode", "renamed"))
	ObserveSweep("test_mode", SweepCounts{Scanned: 3, Renamed: 2}, 1.5)

	assert.Equal(t, before+2, testutil.ToFloat64(sweepFiles.WithLabelValues("test_mode", "renamed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(sweepFiles.WithLabelValues("test_mode", "failed")))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "error", statusClass(0))
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "5xx", statusClass(503))
}
