package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyLabelsByRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegisterer(reg)

	r := chi.NewRouter()
	r.Use(m.Latency)
	r.Post("/contacts/requests/{requestID}/respond", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	req := httptest.NewRequest(http.MethodPost, "/contacts/requests/abc/respond", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	count, err := testutil.GatherAndCount(reg, "chatline_http_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	families, err := reg.Gather()
	require.NoError(t, err)
	labels := map[string]string{}
	for _, mf := range families {
		if mf.GetName() != "chatline_http_request_duration_seconds" {
			continue
		}
		for _, lp := range mf.GetMetric()[0].GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
	}
	assert.Equal(t, "/contacts/requests/{requestID}/respond", labels["route"])
	assert.Equal(t, "4xx", labels["status"])
}

func TestBreakerGauge(t *testing.T) {
	m := NewWithRegisterer(prometheus.NewRegistry())
	m.SetBreakerOpen("kafka-audit", true)
	assert.InDelta(t, 1, testutil.ToFloat64(m.BreakerState.WithLabelValues("kafka-audit")), 0)
	m.SetBreakerOpen("kafka-audit", false)
	assert.InDelta(t, 0, testutil.ToFloat64(m.BreakerState.WithLabelValues("kafka-audit")), 0)
}
