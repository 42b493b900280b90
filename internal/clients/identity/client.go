package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/linemk/order-service/internal/lib/circuitbreaker"
	"github.com/linemk/order-service/internal/lib/metrics"
)

const clientName = "identity"

var errUnhealthy = errors.New("auth service reported unhealthy")

// Client проверка доступности auth-service.
// Других операций с пользователями сервис заказов не выполняет.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	metrics    *metrics.Metrics
	log        *slog.Logger
}

func New(log *slog.Logger, baseURL string, timeout time.Duration, breaker *circuitbreaker.CircuitBreaker, m *metrics.Metrics) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
		metrics:    m,
		log:        log.With(slog.String("client", clientName)),
	}
}

// Health true, если GET /auth/health ответил 200 и success=true; ошибки не пробрасываются
func (c *Client) Health(ctx context.Context) bool {
	const op = "clients.identity.Health"

	err := c.breaker.Execute(func() error {
		return c.check(ctx)
	})
	c.metrics.ClientCalls.WithLabelValues(clientName, "health", metrics.Outcome(err)).Inc()

	if err != nil {
		c.log.Warn("auth service health check failed", slog.String("op", op), slog.Any("error", err))
		return false
	}
	return true
}

func (c *Client) check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", errUnhealthy, resp.StatusCode)
	}

	var body struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if !body.Success {
		return errUnhealthy
	}
	return nil
}
