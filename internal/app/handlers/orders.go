package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/linemk/order-service/internal/domain/models"
	"github.com/linemk/order-service/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/order-service/internal/service"
)

// OrderItemRequest строка заказа
type OrderItemRequest struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"min=1,max=2147483647"`
}

type ShippingAddressRequest struct {
	Name       string `json:"name" validate:"required,max=255"`
	Phone      string `json:"phone" validate:"required,max=32"`
	Street     string `json:"street" validate:"required,max=500"`
	City       string `json:"city" validate:"required,max=255"`
	District   string `json:"district" validate:"omitempty,max=255"`
	PostalCode string `json:"postalCode" validate:"required,max=20"`
	Country    string `json:"country" validate:"omitempty,max=255"`
}

// CreateOrderRequest тело POST /api/orders
type CreateOrderRequest struct {
	Items           []OrderItemRequest     `json:"items" validate:"required,min=1,dive"`
	ShippingAddress ShippingAddressRequest `json:"shippingAddress" validate:"required"`
	Notes           *string                `json:"notes" validate:"omitempty,max=2000"`
}

// UpdateStatusRequest тело PATCH /api/orders/{id}/status
type UpdateStatusRequest struct {
	Status          string `json:"status" validate:"required,oneof=pending confirmed shipped delivered cancelled"`
	CancelledReason string `json:"cancelledReason" validate:"max=500"`
}

// CancelOrderRequest тело POST /api/orders/{id}/cancel, может отсутствовать
type CancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// CreateOrderHandler обрабатывает POST /api/orders.
// Пользователь берётся из контекста, который заполняет JWT middleware.
func CreateOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CreateOrderHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("userID not found in context")
			respondError(w, r, logger, http.StatusUnauthorized, "unauthorized")
			return
		}
		logger = logger.With(slog.String("user_id", userID))

		var req CreateOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Warn("invalid request: decoding error", slog.Any("error", err))
			respondError(w, r, logger, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validate.Struct(req); err != nil {
			logger.Warn("invalid request: validation error", slog.Any("error", err))
			respondError(w, r, logger, http.StatusBadRequest, validationMessage(err))
			return
		}

		in := service.CreateOrderInput{
			UserID: userID,
			Items:  make([]service.OrderLine, 0, len(req.Items)),
			ShippingAddress: models.ShippingAddress{
				Name:       req.ShippingAddress.Name,
				Phone:      req.ShippingAddress.Phone,
				Street:     req.ShippingAddress.Street,
				City:       req.ShippingAddress.City,
				District:   req.ShippingAddress.District,
				PostalCode: req.ShippingAddress.PostalCode,
				Country:    req.ShippingAddress.Country,
			},
			Notes: req.Notes,
		}
		for _, item := range req.Items {
			in.Items = append(in.Items, service.OrderLine{ProductID: item.ProductID, Quantity: item.Quantity})
		}

		order, err := orderService.CreateOrder(r.Context(), in)
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}

		respondOK(w, logger, http.StatusCreated, order, nil, "Order placed successfully")
	}
}

// ListOrdersHandler обрабатывает GET /api/orders?page=&limit=&status=
func ListOrdersHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListOrdersHandler"
		logger := log.With(slog.String("op", op))

		page, limit, err := pagination(r)
		if err != nil {
			respondError(w, r, logger, http.StatusBadRequest, err.Error())
			return
		}
		status := models.OrderStatus(r.URL.Query().Get("status"))

		orders, meta, err := orderService.ListOrders(r.Context(), page, limit, status)
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}

		respondOK(w, logger, http.StatusOK, nonNil(orders), &meta, "")
	}
}

// MyOrdersHandler обрабатывает GET /api/orders/my
func MyOrdersHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.MyOrdersHandler"
		logger := log.With(slog.String("op", op))

		userID, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("userID not found in context")
			respondError(w, r, logger, http.StatusUnauthorized, "unauthorized")
			return
		}

		listUserOrders(w, r, logger, orderService, userID)
	}
}

// UserOrdersHandler обрабатывает GET /api/orders/user/{userId}
func UserOrdersHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.UserOrdersHandler"
		logger := log.With(slog.String("op", op))

		userID := chi.URLParam(r, "userId")
		if userID == "" {
			respondError(w, r, logger, http.StatusBadRequest, "userId parameter is required")
			return
		}

		listUserOrders(w, r, logger, orderService, userID)
	}
}

func listUserOrders(w http.ResponseWriter, r *http.Request, logger *slog.Logger, orderService service.OrderService, userID string) {
	page, limit, err := pagination(r)
	if err != nil {
		respondError(w, r, logger, http.StatusBadRequest, err.Error())
		return
	}

	orders, meta, err := orderService.ListOrdersByUser(r.Context(), userID, page, limit)
	if err != nil {
		respondServiceError(w, r, logger, err)
		return
	}

	respondOK(w, logger, http.StatusOK, nonNil(orders), &meta, "")
}

// OrderStatsHandler обрабатывает GET /api/orders/stats
func OrderStatsHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.OrderStatsHandler"
		logger := log.With(slog.String("op", op))

		counts, err := orderService.CountByStatus(r.Context())
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}

		respondOK(w, logger, http.StatusOK, counts, nil, "")
	}
}

// GetOrderHandler обрабатывает GET /api/orders/{id}
func GetOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.GetOrderHandler"
		logger := log.With(slog.String("op", op))

		id, ok := orderIDParam(w, r, logger)
		if !ok {
			return
		}

		order, err := orderService.GetOrder(r.Context(), id)
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}

		respondOK(w, logger, http.StatusOK, order, nil, "")
	}
}

// GetOrderByNumberHandler обрабатывает GET /api/orders/number/{orderNumber}
func GetOrderByNumberHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.GetOrderByNumberHandler"
		logger := log.With(slog.String("op", op))

		number := chi.URLParam(r, "orderNumber")
		if number == "" {
			respondError(w, r, logger, http.StatusBadRequest, "orderNumber parameter is required")
			return
		}

		order, err := orderService.GetOrderByNumber(r.Context(), number)
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}

		respondOK(w, logger, http.StatusOK, order, nil, "")
	}
}

// UpdateOrderStatusHandler обрабатывает PATCH /api/orders/{id}/status
func UpdateOrderStatusHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.UpdateOrderStatusHandler"
		logger := log.With(slog.String("op", op))

		id, ok := orderIDParam(w, r, logger)
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Warn("invalid request: decoding error", slog.Any("error", err))
			respondError(w, r, logger, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validate.Struct(req); err != nil {
			logger.Warn("invalid request: validation error", slog.Any("error", err))
			respondError(w, r, logger, http.StatusBadRequest, validationMessage(err))
			return
		}

		order, err := orderService.UpdateStatus(r.Context(), id, models.OrderStatus(req.Status), req.CancelledReason)
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}

		respondOK(w, logger, http.StatusOK, order, nil, "Order status updated to "+string(order.Status))
	}
}

// CancelOrderHandler обрабатывает POST /api/orders/{id}/cancel
func CancelOrderHandler(log *slog.Logger, orderService service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CancelOrderHandler"
		logger := log.With(slog.String("op", op))

		id, ok := orderIDParam(w, r, logger)
		if !ok {
			return
		}

		var req CancelOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			logger.Warn("invalid request: decoding error", slog.Any("error", err))
			respondError(w, r, logger, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validate.Struct(req); err != nil {
			respondError(w, r, logger, http.StatusBadRequest, validationMessage(err))
			return
		}

		order, err := orderService.CancelOrder(r.Context(), id, req.Reason)
		if err != nil {
			respondServiceError(w, r, logger, err)
			return
		}

		respondOK(w, logger, http.StatusOK, order, nil, "Order cancelled")
	}
}

// orderIDParam достаёт {id} и проверяет, что это uuid
func orderIDParam(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (string, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		logger.Warn("invalid order id", slog.String("id", raw))
		respondError(w, r, logger, http.StatusBadRequest, "Validation failed (uuid is expected)")
		return "", false
	}
	return id.String(), true
}

func nonNil(orders []*models.Order) []*models.Order {
	if orders == nil {
		return []*models.Order{}
	}
	return orders
}
