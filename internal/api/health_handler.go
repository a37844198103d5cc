package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mybank/internal/api/response"
	"mybank/internal/database"
	"mybank/pkg/cache"
	"mybank/pkg/circuitbreaker"
	"mybank/pkg/logger"
)

const healthCheckTimeout = 2 * time.Second

type HealthHandler struct {
	store   *database.Store
	cache   cache.Cache
	logger  logger.Logger
	version string
}

type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Services  map[string]interface{} `json:"services"`
	Version   string                 `json:"version"`
}

// NewHealthHandler builds the probe endpoints. c may be nil when caching is off.
func NewHealthHandler(store *database.Store, c cache.Cache, logger logger.Logger, version string) *HealthHandler {
	return &HealthHandler{
		store:   store,
		cache:   c,
		logger:  logger,
		version: version,
	}
}

func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HealthCheck)
	r.Get("/health/live", h.LivenessCheck)
	r.Get("/health/ready", h.ReadinessCheck)
}

func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	services := map[string]interface{}{
		"database": h.checkDatabase(r.Context()),
	}
	if h.cache != nil {
		services["cache"] = h.checkCache(r.Context())
	}

	status := "healthy"
	for _, service := range services {
		if s, ok := service.(map[string]interface{}); ok && s["status"] != "healthy" {
			status = "degraded"
			break
		}
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	response.JSON(w, code, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Services:  services,
		Version:   h.version,
	})
}

func (h *HealthHandler) checkDatabase(ctx context.Context) map[string]interface{} {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	breaker := h.store.BreakerState()
	if err := h.store.DB().PingContext(ctx); err != nil {
		return map[string]interface{}{
			"status":  "unhealthy",
			"error":   err.Error(),
			"breaker": breaker.String(),
		}
	}

	stats := h.store.DB().Stats()
	status := "healthy"
	if breaker != circuitbreaker.StateClosed {
		status = "recovering"
	}
	return map[string]interface{}{
		"status":           status,
		"driver":           h.store.Driver(),
		"breaker":          breaker.String(),
		"open_connections": stats.OpenConnections,
		"in_use":           stats.InUse,
		"idle":             stats.Idle,
		"wait_count":       stats.WaitCount,
		"wait_duration":    stats.WaitDuration.String(),
	}
}

// checkCache reports on the optional cache. A broken cache degrades the
// service but does not make it unready.
func (h *HealthHandler) checkCache(ctx context.Context) map[string]interface{} {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := h.cache.Ping(ctx); err != nil {
		return map[string]interface{}{
			"status": "unhealthy",
			"error":  err.Error(),
		}
	}
	return map[string]interface{}{"status": "healthy"}
}

func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
	})
}

func (h *HealthHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	db := h.checkDatabase(r.Context())
	body := map[string]interface{}{
		"timestamp": time.Now().UTC(),
	}
	if db["status"] == "unhealthy" {
		body["status"] = "not_ready"
		body["issues"] = []string{"database: " + db["error"].(string)}
		response.JSON(w, http.StatusServiceUnavailable, body)
		return
	}
	body["status"] = "ready"
	response.JSON(w, http.StatusOK, body)
}
