package api

import (
	"net/http"

	"github.com/cuemby/nodewatch/pkg/metrics"
)

// healthHandler implements the /health endpoint: 503 when any registered
// component is unhealthy
func healthHandler(w http.ResponseWriter, r *http.Request) {
	health := metrics.GetHealth()
	code := http.StatusOK
	if health.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, health)
}

// readyHandler implements the /ready endpoint: 503 until storage and the
// ledger have both reported healthy
func readyHandler(w http.ResponseWriter, r *http.Request) {
	readiness := metrics.GetReadiness()
	code := http.StatusOK
	if readiness.Status != "ready" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, readiness)
}
