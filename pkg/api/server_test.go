package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/nodewatch/pkg/ledger"
	"github.com/cuemby/nodewatch/pkg/metrics"
	"github.com/cuemby/nodewatch/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRefresher returns a canned report and remembers the owner
type stubRefresher struct {
	report *types.BatchReport
	owner  string
}

func (s *stubRefresher) Refresh(ctx context.Context, owner string) *types.BatchReport {
	s.owner = owner
	return s.report
}

func doRequest(t *testing.T, h http.Handler, method, path, owner string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if owner != "" {
		req.Header.Set(OwnerHeader, owner)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRefreshHandler(t *testing.T) {
	tests := []struct {
		name        string
		report      *types.BatchReport
		wantCode    int
		wantStatus  string
		wantUpdated int
		wantErrors  int
	}{
		{
			name: "nothing changed",
			report: &types.BatchReport{
				Results: map[string]*types.ReconciliationResult{"n1": {NodeID: "n1"}},
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name: "updates with unit errors",
			report: &types.BatchReport{
				Results:      map[string]*types.ReconciliationResult{"n1": {}, "n2": {}},
				UpdatedCount: 1,
				ErrorCount:   1,
				Errors:       []types.BatchError{{Scope: types.ScopeNode, NodeID: "n2", Kind: "transient", Message: "timeout"}},
			},
			wantCode:    http.StatusOK,
			wantStatus:  "ok",
			wantUpdated: 1,
			wantErrors:  1,
		},
		{
			name: "batch failed",
			report: &types.BatchReport{
				Results:    map[string]*types.ReconciliationResult{},
				Err:        ledger.Unavailable(errors.New("connection refused")),
				ErrorCount: 1,
				Errors:     []types.BatchError{{Scope: types.ScopeBatch, Kind: "unavailable", Message: "connection refused"}},
			},
			wantCode:   http.StatusBadGateway,
			wantStatus: "failed",
			wantErrors: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubRefresher{report: tt.report}
			s := NewServer(stub)

			w := doRequest(t, s.Handler(), http.MethodPost, "/nodes/refresh-all-status", "alice")
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, "alice", stub.owner)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var resp RefreshResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.wantUpdated, resp.Updated)
			assert.Len(t, resp.Errors, tt.wantErrors)
			assert.NotNil(t, resp.Errors)
		})
	}
}

func TestRefreshHandler_RequiresOwner(t *testing.T) {
	stub := &stubRefresher{report: &types.BatchReport{}}
	s := NewServer(stub)

	w := doRequest(t, s.Handler(), http.MethodPost, "/nodes/refresh-all-status", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, stub.owner)
}

func TestRefreshHandler_MethodNotAllowed(t *testing.T) {
	s := NewServer(&stubRefresher{report: &types.BatchReport{}})

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		w := doRequest(t, s.Handler(), method, "/nodes/refresh-all-status", "alice")
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, method)
		assert.Equal(t, http.MethodPost, w.Header().Get("Allow"))
	}
}

func TestHealthEndpoints(t *testing.T) {
	s := NewServer(&stubRefresher{report: &types.BatchReport{}})

	metrics.RegisterComponent(metrics.ComponentStorage, true, "")
	metrics.RegisterComponent(metrics.ComponentLedger, true, "")

	w := doRequest(t, s.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var health metrics.HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)

	w = doRequest(t, s.Handler(), http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)

	metrics.UpdateComponent(metrics.ComponentLedger, false, "indexer unreachable")
	t.Cleanup(func() { metrics.UpdateComponent(metrics.ComponentLedger, true, "") })

	w = doRequest(t, s.Handler(), http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	w = doRequest(t, s.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doRequest(t, s.Handler(), http.MethodPost, "/health", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := NewServer(&stubRefresher{report: &types.BatchReport{}})

	_ = doRequest(t, s.Handler(), http.MethodPost, "/nodes/refresh-all-status", "alice")
	w := doRequest(t, s.Handler(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "nodewatch_api_requests_total")
}
