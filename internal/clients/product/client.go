package product

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/linemk/order-service/internal/domain/models"
	"github.com/linemk/order-service/internal/lib/circuitbreaker"
	"github.com/linemk/order-service/internal/lib/metrics"
)

const clientName = "product"

var (
	ErrNotFound    = errors.New("product not found")
	ErrUnavailable = errors.New("product service unavailable")
)

// StockOperation вид изменения остатка
type StockOperation string

const (
	StockAdd      StockOperation = "add"
	StockSubtract StockOperation = "subtract"
	StockSet      StockOperation = "set"
)

func (op StockOperation) Valid() bool {
	switch op {
	case StockAdd, StockSubtract, StockSet:
		return true
	}
	return false
}

// envelope ответа product-service: {success, data, message}
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type stockRequest struct {
	Quantity  int            `json:"quantity"`
	Operation StockOperation `json:"operation"`
}

// Client HTTP-клиент каталога товаров.
// Ошибки сети и 5xx превращаются в ErrUnavailable, 404/400 и success=false в ErrNotFound.
// Повторов нет.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	metrics    *metrics.Metrics
	log        *slog.Logger
}

func New(log *slog.Logger, baseURL string, timeout time.Duration, breaker *circuitbreaker.CircuitBreaker, m *metrics.Metrics) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: breaker,
		metrics: m,
		log:     log.With(slog.String("client", clientName)),
	}
}

// GetProduct получает текущую карточку товара
func (c *Client) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	const op = "clients.product.GetProduct"

	var product models.Product
	err := c.execute("get_product", func() error {
		return c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(id), nil, &product)
	})
	if err != nil {
		c.log.Warn("failed to get product", slog.String("op", op), slog.String("product_id", id), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &product, nil
}

// AdjustStock меняет остаток товара и возвращает обновлённую карточку
func (c *Client) AdjustStock(ctx context.Context, id string, quantity int, operation StockOperation) (*models.Product, error) {
	const op = "clients.product.AdjustStock"

	if !operation.Valid() {
		return nil, fmt.Errorf("%s: unknown stock operation %q", op, operation)
	}

	body, err := json.Marshal(stockRequest{Quantity: quantity, Operation: operation})
	if err != nil {
		return nil, fmt.Errorf("%s: marshal: %w", op, err)
	}

	var product models.Product
	err = c.execute("adjust_stock_"+string(operation), func() error {
		return c.do(ctx, http.MethodPatch, "/products/"+url.PathEscape(id)+"/stock", body, &product)
	})
	if err != nil {
		c.log.Warn("failed to update stock",
			slog.String("op", op),
			slog.String("product_id", id),
			slog.Int("quantity", quantity),
			slog.String("operation", string(operation)),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &product, nil
}

// execute прогоняет вызов через выключатель.
// ErrNotFound - ответ сервиса, а не его отказ, поэтому выключатель его не учитывает.
func (c *Client) execute(operation string, fn func() error) error {
	var notFound error

	err := c.breaker.Execute(func() error {
		err := fn()
		if errors.Is(err, ErrNotFound) {
			notFound = err
			return nil
		}
		return err
	})

	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen):
		err = fmt.Errorf("%w: %w", ErrUnavailable, err)
	case err == nil:
		err = notFound
	}

	c.metrics.ClientCalls.WithLabelValues(clientName, operation, callOutcome(err)).Inc()
	return err
}

func callOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return metrics.OutcomeFailure
	}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, dst any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: status %d", ErrNotFound, resp.StatusCode)
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrUnavailable, err)
	}
	if !env.Success || len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("%w: %s", ErrNotFound, env.Message)
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("%w: decode product: %w", ErrUnavailable, err)
	}
	return nil
}
