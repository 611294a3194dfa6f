package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestMetrics(t *testing.T) {
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("create_booking")
		IncBookingCreated()
		IncConflict()
		IncTransition("confirmed")
		ObserveSweep(2, 1, 0, 0.01)
		IncNotification("telegram", false)
	})
}

func TestCounters(t *testing.T) {
	before := value(t, bookingConflicts)
	IncConflict()
	assert.Equal(t, before+1, value(t, bookingConflicts))

	beforeFreed := value(t, sweepItems.WithLabelValues("freed"))
	ObserveSweep(0, 3, 0, 0)
	assert.Equal(t, beforeFreed+3, value(t, sweepItems.WithLabelValues("freed")))

	beforeErr := value(t, notifications.WithLabelValues("sheets", "error"))
	IncNotification("sheets", false)
	assert.Equal(t, beforeErr+1, value(t, notifications.WithLabelValues("sheets", "error")))

	beforeBot := value(t, botUpdates.WithLabelValues("/pending"))
	ObserveBotUpdate("/pending", 0.002)
	assert.Equal(t, beforeBot+1, value(t, botUpdates.WithLabelValues("/pending")))
}
