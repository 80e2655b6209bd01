package hostcore

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, vec.WithLabelValues(labels...).Write(m))
	return m.GetCounter().GetValue()
}

func TestPrometheusMetricsRecordsEventsPerHost(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusMetrics(reg)

	a := m.Observer("backend-a")
	b := m.Observer("backend-b")

	a.OnHostMarkedUnhealthy(errors.New("boom"))
	a.OnHostRevived()
	a.OnHostMarkedExpired(3)
	a.OnExpiredHostRevived(3)
	a.OnExpiredHostRemoved(2)
	a.OnActiveHostRemoved(1)

	b.OnHostMarkedUnhealthy(errors.New("boom"))

	assert.Equal(t, float64(1), counterValue(t, m.markedUnhealthy, "backend-a"))
	assert.Equal(t, float64(1), counterValue(t, m.revived, "backend-a"))
	assert.Equal(t, float64(1), counterValue(t, m.markedExpired, "backend-a"))
	assert.Equal(t, float64(1), counterValue(t, m.expiredRevived, "backend-a"))
	assert.Equal(t, float64(2), counterValue(t, m.expiredRemoved, "backend-a"))
	assert.Equal(t, float64(1), counterValue(t, m.activeRemoved, "backend-a"))

	assert.Equal(t, float64(1), counterValue(t, m.markedUnhealthy, "backend-b"))
	assert.Equal(t, float64(0), counterValue(t, m.revived, "backend-b"))
}
