package metric

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistryRegistersCoreMetrics(t *testing.T) {
	registry := NewMetricsRegistry()

	require.NotNil(t, registry.CoreMetrics())
	registry.CoreMetrics().EventsDropped.Inc()
	registry.CoreMetrics().ConnectionsLive.Set(3)

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, fam := range families {
		names[fam.GetName()] = true
	}
	assert.True(t, names["stagelink_router_events_dropped_total"])
	assert.True(t, names["stagelink_router_connections_live"])
}

func TestRegisterCounterRejectsDuplicates(t *testing.T) {
	registry := NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stagelink",
		Subsystem: "clock",
		Name:      "ticks_total",
		Help:      "test counter",
	})

	require.NoError(t, registry.RegisterCounter("clock", "ticks", counter))
	assert.Error(t, registry.RegisterCounter("clock", "ticks", counter))
}

func TestUnregisterAllowsReRegistration(t *testing.T) {
	registry := NewMetricsRegistry()

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "stagelink",
		Subsystem: "clock",
		Name:      "armed",
		Help:      "test gauge",
	})

	require.NoError(t, registry.RegisterGauge("clock", "armed", gauge))
	assert.True(t, registry.Unregister("clock", "armed"))
	assert.False(t, registry.Unregister("clock", "armed"))
	assert.NoError(t, registry.RegisterGauge("clock", "armed", gauge))
}

func TestHandlerServesExposition(t *testing.T) {
	registry := NewMetricsRegistry()
	registry.CoreMetrics().RouterRebuilds.Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	registry.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "stagelink_router_rebuilds_total")
}
