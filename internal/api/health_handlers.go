package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthChecker defines the interface for components that can be health checked.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// healthCheckTimeout bounds dependency pings during a health probe.
const healthCheckTimeout = 2 * time.Second

// HealthHandlers provides the health check endpoint.
type HealthHandlers struct {
	dbChecker    HealthChecker
	redisChecker HealthChecker
	logger       *slog.Logger
}

// HealthHandlersConfig configures the health check handler. Checkers are
// optional: DBChecker is nil when the service runs without a database
// (in-memory mode), RedisChecker is nil when REDIS_ADDR is unset.
type HealthHandlersConfig struct {
	DBChecker    HealthChecker
	RedisChecker HealthChecker
	Logger       *slog.Logger
}

// NewHealthHandlers creates a new health check handler.
func NewHealthHandlers(config HealthHandlersConfig) *HealthHandlers {
	return &HealthHandlers{
		dbChecker:    config.DBChecker,
		redisChecker: config.RedisChecker,
		logger:       config.Logger,
	}
}

// HealthResponse represents the JSON response for health checks. Redis is
// reported only when a Redis checker is configured.
type HealthResponse struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Redis     string `json:"redis,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Health handles GET /health.
// Returns 200 with each configured dependency reported "connected",
// 500 with "disconnected" entries when any check fails.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	response := HealthResponse{
		Status:    "ok",
		Database:  "connected",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	if h.dbChecker != nil {
		if err := h.dbChecker.HealthCheck(ctx); err != nil {
			h.logger.ErrorContext(ctx, "database health check failed", "error", err)
			response.Status = "error"
			response.Database = "disconnected"
			status = http.StatusInternalServerError
		}
	}

	if h.redisChecker != nil {
		response.Redis = "connected"
		if err := h.redisChecker.HealthCheck(ctx); err != nil {
			h.logger.ErrorContext(ctx, "redis health check failed", "error", err)
			response.Status = "error"
			response.Redis = "disconnected"
			status = http.StatusInternalServerError
		}
	}

	writeJSON(w, r.Context(), status, response)
}
