package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareCountsRequests(t *testing.T) {
	metrics := NewMetrics()

	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Get("/articles", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/articles", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `pubdesk_http_requests_total{code="200",route="/articles"} 3`)
	assert.True(t, strings.Contains(body, "pubdesk_http_request_duration_seconds"))
}

func TestMiddlewareTracksInFlightRequests(t *testing.T) {
	metrics := NewMetrics()

	var during float64
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = gaugeValue(t, metrics, "pubdesk_http_requests_in_flight")
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	metrics.Middleware(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, 1.0, during)
	assert.Equal(t, 0.0, gaugeValue(t, metrics, "pubdesk_http_requests_in_flight"))
}

func TestStatusRecorderUnwrapsForResponseController(t *testing.T) {
	rec := httptest.NewRecorder()
	recorder := statusRecorder{ResponseWriter: rec, status: http.StatusOK}

	u, ok := interface{}(&recorder).(interface{ Unwrap() http.ResponseWriter })
	require.True(t, ok, "response controller needs Unwrap to reach the connection")
	assert.Same(t, rec, u.Unwrap())
}

func gaugeValue(t *testing.T, m *Metrics, name string) float64 {
	t.Helper()
	families, err := m.registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == name {
			return family.GetMetric()[0].GetGauge().GetValue()
		}
	}
	return 0
}

func TestNilMetricsAreInert(t *testing.T) {
	var metrics *Metrics

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	rec := httptest.NewRecorder()
	metrics.Middleware(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	rec = httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
