package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetHealth(t *testing.T) {
	t.Helper()
	healthChecker = newHealthChecker()
}

func TestRegisterComponent(t *testing.T) {
	resetHealth(t)

	RegisterComponent(ComponentStorage, true, "bolt")

	require.Len(t, healthChecker.components, 1)
	comp := healthChecker.components[ComponentStorage]
	assert.True(t, comp.Healthy)
	assert.Equal(t, "bolt", comp.Message)
	assert.False(t, comp.Updated.IsZero())
}

func TestUpdateComponent(t *testing.T) {
	resetHealth(t)

	RegisterComponent(ComponentLedger, true, "")
	UpdateComponent(ComponentLedger, false, "list jobs failed")

	comp := healthChecker.components[ComponentLedger]
	assert.False(t, comp.Healthy)
	assert.Equal(t, "list jobs failed", comp.Message)
}

func TestGetHealth(t *testing.T) {
	tests := []struct {
		name       string
		components map[string]bool
		wantStatus string
	}{
		{
			name:       "no components",
			components: map[string]bool{},
			wantStatus: "healthy",
		},
		{
			name:       "all healthy",
			components: map[string]bool{ComponentStorage: true, ComponentLedger: true},
			wantStatus: "healthy",
		},
		{
			name:       "ledger unhealthy",
			components: map[string]bool{ComponentStorage: true, ComponentLedger: false},
			wantStatus: "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth(t)
			SetVersion("test")
			for name, healthy := range tt.components {
				RegisterComponent(name, healthy, "msg")
			}

			health := GetHealth()
			assert.Equal(t, tt.wantStatus, health.Status)
			assert.Len(t, health.Components, len(tt.components))
			assert.Equal(t, "test", health.Version)
		})
	}
}

func TestGetReadiness(t *testing.T) {
	t.Run("all critical ready", func(t *testing.T) {
		resetHealth(t)
		RegisterComponent(ComponentStorage, true, "")
		RegisterComponent(ComponentLedger, true, "")

		readiness := GetReadiness()
		assert.Equal(t, "ready", readiness.Status)
		assert.Empty(t, readiness.Message)
	})

	t.Run("ledger not registered", func(t *testing.T) {
		resetHealth(t)
		RegisterComponent(ComponentStorage, true, "")

		readiness := GetReadiness()
		assert.Equal(t, "not_ready", readiness.Status)
		assert.Equal(t, "not registered", readiness.Components[ComponentLedger])
		assert.NotEmpty(t, readiness.Message)
	})

	t.Run("storage unhealthy", func(t *testing.T) {
		resetHealth(t)
		RegisterComponent(ComponentStorage, false, "closed")
		RegisterComponent(ComponentLedger, true, "")

		readiness := GetReadiness()
		assert.Equal(t, "not_ready", readiness.Status)
		assert.Equal(t, "not ready: closed", readiness.Components[ComponentStorage])
	})

	t.Run("api is not critical", func(t *testing.T) {
		resetHealth(t)
		RegisterComponent(ComponentStorage, true, "")
		RegisterComponent(ComponentLedger, true, "")
		RegisterComponent(ComponentAPI, false, "bind failed")

		assert.Equal(t, "ready", GetReadiness().Status)
	})
}

func TestHealthHandler(t *testing.T) {
	resetHealth(t)
	RegisterComponent(ComponentLedger, false, "unreachable")

	w := httptest.NewRecorder()
	HealthHandler()(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var health HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&health))
	assert.Equal(t, "unhealthy", health.Status)
	assert.Equal(t, "unhealthy: unreachable", health.Components[ComponentLedger])
}

func TestReadyHandler(t *testing.T) {
	resetHealth(t)
	RegisterComponent(ComponentStorage, true, "")
	RegisterComponent(ComponentLedger, true, "")

	w := httptest.NewRecorder()
	ReadyHandler()(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var readiness HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&readiness))
	assert.Equal(t, "ready", readiness.Status)
}
