package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"alertbridge/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestCollector_RecordsHTTPMetrics(t *testing.T) {
	collector, err := NewCollector()
	require.NoError(t, err)

	handlerInvoked := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerInvoked = true
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	collector.InstrumentHandler(handler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.True(t, handlerInvoked)
	assert.Equal(t, http.StatusAccepted, rr.Code)

	body := scrape(t, collector)
	assert.Contains(t, body, `alertbridge_http_requests_total{method="GET",path="/test",status="202"} 1`)
	assert.Contains(t, body, `alertbridge_http_request_duration_seconds_count{method="GET",path="/test",status="202"} 1`)
}

func TestCollector_UsesRoutePattern(t *testing.T) {
	collector, err := NewCollector()
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(collector.InstrumentHandler)
	r.Post("/api/v1/alerts/{connectorID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/alerts/"+id, nil))
	}

	body := scrape(t, collector)
	assert.Contains(t, body, `alertbridge_http_requests_total{method="POST",path="/api/v1/alerts/{connectorID}",status="202"} 2`)
}

func TestCollector_ConnectorMetrics(t *testing.T) {
	collector, err := NewCollector()
	require.NoError(t, err)

	collector.AlertIngested("pega", models.SeverityCritical, false)
	collector.AlertIngested("pega", models.SeverityCritical, true)
	collector.Dispatched("n8n", models.PathWebhook, "success", 20*time.Millisecond)
	collector.Probed("pega", "read:cases", true)
	collector.Probed("pega", "read:assignments", false)

	body := scrape(t, collector)
	assert.Contains(t, body, `alertbridge_connector_alerts_ingested_total{duplicate="false",severity="critical",type="pega"} 1`)
	assert.Contains(t, body, `alertbridge_connector_alerts_ingested_total{duplicate="true",severity="critical",type="pega"} 1`)
	assert.Contains(t, body, `alertbridge_connector_dispatches_total{outcome="success",path="webhook",type="n8n"} 1`)
	assert.Contains(t, body, `alertbridge_connector_dispatch_duration_seconds_count{path="webhook",type="n8n"} 1`)
	assert.Contains(t, body, `alertbridge_connector_scope_granted{scope="read:cases",type="pega"} 1`)
	assert.Contains(t, body, `alertbridge_connector_scope_granted{scope="read:assignments",type="pega"} 0`)
}
