package telemetry

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Tick()
	m.Tick()
	m.SetEstimate("a", []float64{3, 4})
	m.SetResidual(1e-9)
	m.ObserveUpdate("merge", 3*time.Microsecond)

	assert.Equal(t, 2., testutil.ToFloat64(m.ticks))
	assert.Equal(t, 5., testutil.ToFloat64(m.estimateNorm.WithLabelValues("a")))
	assert.Equal(t, 1e-9, testutil.ToFloat64(m.residual))
	assert.Equal(t, 1, testutil.CollectAndCount(m.updateSeconds))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "gmtns_loop_ticks_total 2"))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Tick()
		m.SetEstimate("b", nil)
		m.SetResidual(0)
		m.ObserveUpdate("merge", time.Second)
	})
}
