package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/linemk/order-service/internal/lib/circuitbreaker"
)

// Pinger проверка доступности БД
type Pinger interface {
	Ping(ctx context.Context) error
}

// IdentityChecker проверка доступности сервиса авторизации
type IdentityChecker interface {
	Health(ctx context.Context) bool
}

// BreakerReporter отдаёт состояние выключателей соседних сервисов
type BreakerReporter interface {
	Snapshots() []circuitbreaker.Snapshot
}

type HealthResponse struct {
	Success   bool                      `json:"success"`
	Message   string                    `json:"message"`
	Timestamp string                    `json:"timestamp"`
	Checks    map[string]string         `json:"checks"`
	Breakers  []circuitbreaker.Snapshot `json:"breakers"`
}

const (
	checkUp   = "up"
	checkDown = "down"
)

// HealthHandler обрабатывает GET /api/orders/health.
// Недоступная БД даёт 503, недоступный сервис авторизации только отражается в checks.
func HealthHandler(log *slog.Logger, db Pinger, identity IdentityChecker, breakers BreakerReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.HealthHandler"
		logger := log.With(slog.String("op", op))

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := HealthResponse{
			Success:   true,
			Message:   "Order Service is running",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    map[string]string{"database": checkUp, "identity": checkUp},
			Breakers:  breakers.Snapshots(),
		}
		status := http.StatusOK

		if err := db.Ping(ctx); err != nil {
			logger.Error("database ping failed", slog.Any("error", err))
			resp.Success = false
			resp.Message = "Order Service is unhealthy"
			resp.Checks["database"] = checkDown
			status = http.StatusServiceUnavailable
		}
		if !identity.Health(ctx) {
			logger.Warn("identity service is unavailable")
			resp.Checks["identity"] = checkDown
		}

		writeJSON(w, logger, status, resp)
	}
}
