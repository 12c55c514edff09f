package govpulsesdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"govpulse/internal/signal"
)

func TestProjectsSendsOverrides(t *testing.T) {
	var gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/signals/projects", r.URL.Path)
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(ProjectSignals{Items: []signal.ProjectRow{{ProjectID: "proj-1", RAG: signal.RAGRed}}})
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	c.BearerToken = "tok"
	risk, breach := 2, 5
	got, err := c.Projects(context.Background(), Query{Scope: "all", RiskDays: &risk, BreachDays: &breach})
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, signal.RAGRed, got.Items[0].RAG)
	assert.Equal(t, "breach_days=5&risk_days=2&scope=all", gotQuery)
	assert.Equal(t, "Bearer tok", gotAuth)
}

func TestStarvationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"code":"signal_starvation","message":"no signal source could be read","details":{"approvals":"status 502"}}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Portfolio(context.Background(), Query{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.Starved())
	assert.Equal(t, "status 502", apiErr.Details["approvals"])
}

func TestComparePortfolioPostsPrior(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body struct {
			Prior signal.PortfolioRollup `json:"prior"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		cur := signal.Rollup(nil, &body.Prior)
		_ = json.NewEncoder(w).Encode(PortfolioSignals{Portfolio: cur})
	}))
	defer srv.Close()

	got, err := New(srv.URL).ComparePortfolio(context.Background(), Query{}, signal.PortfolioRollup{ProjectCount: 3})
	require.NoError(t, err)
	require.NotNil(t, got.Portfolio.Deltas)
	assert.Equal(t, signal.Down, got.Portfolio.Deltas.ProjectCount.Direction)
}
