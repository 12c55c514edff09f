package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_New(t *testing.T) {
	m := New()
	assert.NotNil(t, m.SourceFetchesTotal)
	assert.NotNil(t, m.SourceDuration)
	assert.NotNil(t, m.StarvationTotal)
	assert.NotNil(t, m.ReportsTotal)
	assert.NotNil(t, m.HTTPRequestsTotal)
}

func TestMetrics_ObserveFetch(t *testing.T) {
	m := New()
	m.ObserveFetch("approvals", true, 15*time.Millisecond)
	m.ObserveFetch("approvals", false, time.Millisecond)
	m.ObserveFetch("approvals", true, time.Millisecond)

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `govpulse_source_fetches_total{result="ok",source="approvals"} 2`)
	assert.Contains(t, body, `govpulse_source_fetches_total{result="error",source="approvals"} 1`)
	assert.Contains(t, body, "govpulse_source_fetch_duration_seconds")
}

func TestMetrics_ObserveStarvation(t *testing.T) {
	m := New()
	m.ObserveStarvation()
	assert.Contains(t, getMetricsBody(t, m), "govpulse_signal_starvation_total 1")
}

func TestMetrics_RecordReport(t *testing.T) {
	m := New()
	m.RecordReport("api", "ok")
	m.RecordReport("cli", "starved")

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `govpulse_reports_total{outcome="ok",surface="api"} 1`)
	assert.Contains(t, body, `govpulse_reports_total{outcome="starved",surface="cli"} 1`)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.RecordHTTP("GET", "200")
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `govpulse_http_requests_total{code="200",method="GET"} 1`)
}

func getMetricsBody(t *testing.T, m *Metrics) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	body, _ := io.ReadAll(rr.Body)
	return strings.TrimSpace(string(body))
}
