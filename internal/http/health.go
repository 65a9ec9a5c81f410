package http

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	checks     map[string]string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   "bloom-alert",
		"checks":    result.checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates, in order: shutting-down > database > cache and breaker.
// A missing weather key is reported in checks only; pages and reports still work without it.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	checks := map[string]string{}
	if IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal", checks}
	}

	if h.weather != nil && h.weather.Configured() {
		checks["weatherApi"] = "configured"
	} else {
		checks["weatherApi"] = "not_configured"
	}

	if err := h.reports.Ping(ctx); err != nil {
		checks["database"] = "unhealthy"
		return healthResult{"unhealthy", http.StatusServiceUnavailable, "database_unreachable", checks}
	}
	checks["database"] = "healthy"

	result := healthResult{"healthy", http.StatusOK, "", checks}
	if h.cachePing != nil {
		if h.cachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
			result.status, result.reason = "degraded", "cache_unreachable"
		}
	}
	if h.breakerState != nil {
		state := h.breakerState()
		checks["circuitBreaker"] = state
		if state == "open" && result.reason == "" {
			result.status, result.reason = "degraded", "circuit_open"
		}
	}
	return result
}
