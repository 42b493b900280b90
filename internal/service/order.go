package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/linemk/order-service/internal/clients/product"
	"github.com/linemk/order-service/internal/domain/models"
	"github.com/linemk/order-service/internal/events"
	"github.com/linemk/order-service/internal/lib/metrics"
	"github.com/linemk/order-service/internal/storage"
	"github.com/shopspring/decimal"
)

// сколько раз пробуем новый номер при коллизии order_number
const maxNumberAttempts = 3

// MaxLineQuantity верхняя граница количества в строке, колонка quantity INTEGER
const MaxLineQuantity = math.MaxInt32

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// OrderConfig параметры расчёта и нумерации заказов
type OrderConfig struct {
	FreeShippingThreshold decimal.Decimal
	DefaultShippingCost   decimal.Decimal
	OrderNumberPrefix     string
	DefaultCountry        string
	DefaultPageLimit      int
	MaxPageLimit          int
}

// ProductDirectory каталог товаров, к которому обращается сервис заказов
type ProductDirectory interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	AdjustStock(ctx context.Context, id string, quantity int, operation product.StockOperation) (*models.Product, error)
}

// OrderLine строка запроса на создание заказа
type OrderLine struct {
	ProductID string
	Quantity  int
}

type CreateOrderInput struct {
	UserID          string
	Items           []OrderLine
	ShippingAddress models.ShippingAddress
	Notes           *string
}

type OrderService interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error)
	UpdateStatus(ctx context.Context, id string, status models.OrderStatus, reason string) (*models.Order, error)
	CancelOrder(ctx context.Context, id string, reason string) (*models.Order, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*models.Order, error)
	ListOrders(ctx context.Context, page, limit int, status models.OrderStatus) ([]*models.Order, models.PageMeta, error)
	ListOrdersByUser(ctx context.Context, userID string, page, limit int) ([]*models.Order, models.PageMeta, error)
	CountByStatus(ctx context.Context) (map[models.OrderStatus]int, error)
}

type orderService struct {
	log       *slog.Logger
	db        *sql.DB
	orders    storage.OrderStorage
	products  ProductDirectory
	publisher events.Publisher
	metrics   *metrics.Metrics
	cfg       OrderConfig
	numbers   *OrderNumberGenerator
	now       func() time.Time
}

func NewOrderService(
	log *slog.Logger,
	db *sql.DB,
	orders storage.OrderStorage,
	products ProductDirectory,
	publisher events.Publisher,
	m *metrics.Metrics,
	cfg OrderConfig,
) OrderService {
	if cfg.DefaultPageLimit <= 0 {
		cfg.DefaultPageLimit = defaultPageLimit
	}
	if cfg.MaxPageLimit <= 0 {
		cfg.MaxPageLimit = maxPageLimit
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	return &orderService{
		log:       log,
		db:        db,
		orders:    orders,
		products:  products,
		publisher: publisher,
		metrics:   m,
		cfg:       cfg,
		numbers:   NewOrderNumberGenerator(cfg.OrderNumberPrefix),
		now:       time.Now,
	}
}

// CreateOrder проверяет все позиции, резервирует остатки и сохраняет заказ.
// Если резерв или запись в БД не удались, уже списанный остаток возвращается.
func (s *orderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	const op = "service.OrderService.CreateOrder"
	logger := s.log.With(
		slog.String("op", op),
		slog.String("user_id", in.UserID),
		slog.Int("lines", len(in.Items)),
	)
	logger.Info("creating order")

	if len(in.Items) == 0 {
		s.creationFailed(ErrEmptyOrder)
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyOrder)
	}
	for _, line := range in.Items {
		if line.Quantity < 1 || line.Quantity > MaxLineQuantity {
			s.creationFailed(ErrInvalidQuantity)
			return nil, fmt.Errorf("%s: product %s: %w", op, line.ProductID, ErrInvalidQuantity)
		}
	}

	now := s.now().UTC()

	items, subtotal, err := s.priceLines(ctx, logger, in.Items, now)
	if err != nil {
		s.creationFailed(err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.reserveStock(ctx, logger, items); err != nil {
		s.creationFailed(err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	shippingCost := s.shippingCost(subtotal)
	address := in.ShippingAddress
	if strings.TrimSpace(address.Country) == "" {
		address.Country = s.cfg.DefaultCountry
	}

	order := &models.Order{
		ID:              uuid.NewString(),
		UserID:          in.UserID,
		Status:          models.StatusPending,
		Subtotal:        subtotal,
		ShippingCost:    shippingCost,
		TotalAmount:     subtotal.Add(shippingCost),
		ShippingAddress: address,
		Notes:           in.Notes,
		StatusHistory:   models.StatusHistory{},
		CreatedAt:       now,
		UpdatedAt:       now,
		Items:           items,
	}
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
	}

	if err := s.persistOrder(ctx, logger, order); err != nil {
		s.releaseStock(ctx, logger, order.Items)
		s.creationFailed(err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.OrdersCreated.Inc()
	s.publish(ctx, logger, events.NewOrderCreated(order))

	logger.Info("order created",
		slog.String("order_id", order.ID),
		slog.String("order_number", order.OrderNumber),
		slog.String("total", order.TotalAmount.String()),
	)
	return order, nil
}

// priceLines проверяет товары и остатки, фиксирует цену и считает subtotal.
// Остаток сверяется с суммой по всем строкам одного товара.
func (s *orderService) priceLines(ctx context.Context, logger *slog.Logger, lines []OrderLine, now time.Time) ([]models.OrderItem, decimal.Decimal, error) {
	cache := make(map[string]*models.Product, len(lines))
	requested := make(map[string]int, len(lines))
	items := make([]models.OrderItem, 0, len(lines))
	subtotal := decimal.Zero

	for _, line := range lines {
		p, ok := cache[line.ProductID]
		if !ok {
			var err error
			p, err = s.products.GetProduct(ctx, line.ProductID)
			if err == nil && p == nil {
				err = product.ErrNotFound
			}
			if err != nil {
				logger.Warn("product lookup failed", slog.String("product_id", line.ProductID), slog.Any("error", err))
				return nil, decimal.Zero, &ProductNotFoundError{ProductID: line.ProductID, Err: err}
			}
			cache[line.ProductID] = p
		}

		// уже учтённое не превышает остаток, поэтому разность не переполняется
		if line.Quantity > p.Stock-requested[line.ProductID] {
			logger.Warn("insufficient stock",
				slog.String("product_id", line.ProductID),
				slog.Int("available", p.Stock),
				slog.Int("requested", requested[line.ProductID]+line.Quantity),
			)
			return nil, decimal.Zero, &InsufficientStockError{
				ProductID:   line.ProductID,
				ProductName: p.Name,
				Available:   p.Stock,
				Requested:   requested[line.ProductID] + line.Quantity,
			}
		}
		requested[line.ProductID] += line.Quantity

		unit := p.Unit
		if unit == "" {
			unit = models.DefaultUnit
		}
		total := p.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		subtotal = subtotal.Add(total)

		items = append(items, models.OrderItem{
			ID:           uuid.NewString(),
			ProductID:    line.ProductID,
			ProductName:  p.Name,
			ProductImage: p.Image,
			Quantity:     line.Quantity,
			Unit:         unit,
			UnitPrice:    p.Price,
			TotalPrice:   total,
			CreatedAt:    now,
		})
	}

	return items, subtotal, nil
}

// reserveStock списывает остаток построчно; при сбое возвращает уже списанное
func (s *orderService) reserveStock(ctx context.Context, logger *slog.Logger, items []models.OrderItem) error {
	for i, item := range items {
		_, err := s.products.AdjustStock(ctx, item.ProductID, item.Quantity, product.StockSubtract)
		s.metrics.StockAdjustments.WithLabelValues(string(product.StockSubtract), metrics.Outcome(err)).Inc()
		if err != nil {
			logger.Error("failed to reserve stock",
				slog.String("product_id", item.ProductID),
				slog.Int("quantity", item.Quantity),
				slog.Any("error", err),
			)
			s.releaseStock(ctx, logger, items[:i])
			return fmt.Errorf("product %s: %w: %w", item.ProductID, ErrStockReservation, err)
		}
	}
	return nil
}

// releaseStock возвращает остаток по каждой позиции; ошибки только логируются
func (s *orderService) releaseStock(ctx context.Context, logger *slog.Logger, items []models.OrderItem) {
	ctx = context.WithoutCancel(ctx)
	for _, item := range items {
		_, err := s.products.AdjustStock(ctx, item.ProductID, item.Quantity, product.StockAdd)
		s.metrics.StockAdjustments.WithLabelValues(string(product.StockAdd), metrics.Outcome(err)).Inc()
		if err != nil {
			logger.Error("failed to release stock",
				slog.String("product_id", item.ProductID),
				slog.Int("quantity", item.Quantity),
				slog.Any("error", err),
			)
		}
	}
}

func (s *orderService) shippingCost(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(s.cfg.FreeShippingThreshold) {
		return decimal.Zero
	}
	return s.cfg.DefaultShippingCost
}

// persistOrder сохраняет заказ, при коллизии номера пробует новый
func (s *orderService) persistOrder(ctx context.Context, logger *slog.Logger, order *models.Order) error {
	var err error
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		order.OrderNumber = s.numbers.Next()
		err = s.insertOrder(ctx, logger, order)
		if !errors.Is(err, storage.ErrOrderNumberExists) {
			return err
		}
		logger.Warn("order number collision",
			slog.String("order_number", order.OrderNumber),
			slog.Int("attempt", attempt),
		)
	}
	return err
}

// insertOrder пишет заголовок и позиции в одной транзакции
func (s *orderService) insertOrder(ctx context.Context, logger *slog.Logger, order *models.Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := s.orders.CreateOrder(ctx, tx, order); err != nil {
		rollback(logger, tx)
		if !errors.Is(err, storage.ErrOrderNumberExists) {
			logger.Error("failed to create order", slog.Any("error", err))
		}
		return fmt.Errorf("failed to create order: %w", err)
	}

	if err := s.orders.CreateOrderItems(ctx, tx, order.ID, order.Items); err != nil {
		rollback(logger, tx)
		logger.Error("failed to create order items", slog.Any("error", err))
		return fmt.Errorf("failed to create order items: %w", err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// UpdateStatus переводит заказ в новый статус под блокировкой строки.
// При отмене после коммита возвращает остаток по каждой позиции.
func (s *orderService) UpdateStatus(ctx context.Context, id string, status models.OrderStatus, reason string) (*models.Order, error) {
	const op = "service.OrderService.UpdateStatus"
	logger := s.log.With(
		slog.String("op", op),
		slog.String("order_id", id),
		slog.String("status", string(status)),
	)
	logger.Info("updating order status")

	if !status.Valid() {
		return nil, fmt.Errorf("%s: %q: %w", op, status, ErrInvalidStatus)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error("failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}

	order, err := s.orders.LockOrderByIDTx(ctx, tx, id)
	if err != nil {
		rollback(logger, tx)
		if errors.Is(err, storage.ErrOrderNotFound) {
			logger.Warn("order not found")
			return nil, fmt.Errorf("%s: %w", op, ErrOrderNotFound)
		}
		logger.Error("failed to lock order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to lock order: %w", op, err)
	}

	previous := order.Status
	if err := order.ApplyTransition(status, reason, s.now().UTC()); err != nil {
		rollback(logger, tx)
		logger.Warn("status transition rejected", slog.String("from", string(previous)))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.orders.UpdateOrderStatus(ctx, tx, order); err != nil {
		rollback(logger, tx)
		logger.Error("failed to update order status", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to update order status: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		logger.Error("failed to commit transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	s.metrics.StatusTransitions.WithLabelValues(string(previous), string(status)).Inc()

	if status == models.StatusCancelled {
		s.releaseStock(ctx, logger, order.Items)
	}
	s.publish(ctx, logger, events.NewStatusChanged(order, previous))

	logger.Info("order status updated", slog.String("from", string(previous)))
	return order, nil
}

func (s *orderService) CancelOrder(ctx context.Context, id string, reason string) (*models.Order, error) {
	return s.UpdateStatus(ctx, id, models.StatusCancelled, reason)
}

func (s *orderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	const op = "service.OrderService.GetOrder"

	order, err := s.orders.GetOrderByID(ctx, id)
	if err != nil {
		return nil, s.lookupError(op, err)
	}
	return order, nil
}

func (s *orderService) GetOrderByNumber(ctx context.Context, number string) (*models.Order, error) {
	const op = "service.OrderService.GetOrderByNumber"

	order, err := s.orders.GetOrderByNumber(ctx, number)
	if err != nil {
		return nil, s.lookupError(op, err)
	}
	return order, nil
}

func (s *orderService) lookupError(op string, err error) error {
	if errors.Is(err, storage.ErrOrderNotFound) {
		return fmt.Errorf("%s: %w", op, ErrOrderNotFound)
	}
	s.log.Error("failed to get order", slog.String("op", op), slog.Any("error", err))
	return fmt.Errorf("%s: %w", op, err)
}

// ListOrders страница всех заказов, опционально по статусу
func (s *orderService) ListOrders(ctx context.Context, page, limit int, status models.OrderStatus) ([]*models.Order, models.PageMeta, error) {
	const op = "service.OrderService.ListOrders"

	if status != "" && !status.Valid() {
		return nil, models.PageMeta{}, fmt.Errorf("%s: %q: %w", op, status, ErrInvalidStatus)
	}
	return s.list(ctx, op, storage.OrderFilter{Status: status}, page, limit)
}

func (s *orderService) ListOrdersByUser(ctx context.Context, userID string, page, limit int) ([]*models.Order, models.PageMeta, error) {
	const op = "service.OrderService.ListOrdersByUser"
	return s.list(ctx, op, storage.OrderFilter{UserID: userID}, page, limit)
}

func (s *orderService) list(ctx context.Context, op string, filter storage.OrderFilter, page, limit int) ([]*models.Order, models.PageMeta, error) {
	page, limit = s.normalizePage(page, limit)
	filter.Limit = limit
	filter.Offset = models.Offset(page, limit)

	orders, total, err := s.orders.ListOrders(ctx, filter)
	if err != nil {
		s.log.Error("failed to list orders", slog.String("op", op), slog.Any("error", err))
		return nil, models.PageMeta{}, fmt.Errorf("%s: %w", op, err)
	}
	return orders, models.NewPageMeta(page, limit, total), nil
}

func (s *orderService) normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = s.cfg.DefaultPageLimit
	}
	if limit > s.cfg.MaxPageLimit {
		limit = s.cfg.MaxPageLimit
	}
	// (page-1)*limit не должен переполнять int
	if maxPage := math.MaxInt / limit; page > maxPage {
		page = maxPage
	}
	return page, limit
}

// CountByStatus количество заказов по каждому статусу, отсутствующие равны 0
func (s *orderService) CountByStatus(ctx context.Context) (map[models.OrderStatus]int, error) {
	const op = "service.OrderService.CountByStatus"

	counts, err := s.orders.CountByStatus(ctx)
	if err != nil {
		s.log.Error("failed to count orders", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result := make(map[models.OrderStatus]int, len(models.AllStatuses()))
	for _, st := range models.AllStatuses() {
		result[st] = counts[st]
	}
	return result, nil
}

// publish отправляет событие после коммита; сбой доставки не отменяет операцию
func (s *orderService) publish(ctx context.Context, logger *slog.Logger, evt events.OrderEvent) {
	if err := s.publisher.Publish(context.WithoutCancel(ctx), evt); err != nil {
		logger.Warn("order event not delivered", slog.String("type", evt.Type), slog.Any("error", err))
	}
}

func (s *orderService) creationFailed(err error) {
	s.metrics.CreationFailures.WithLabelValues(failureReason(err)).Inc()
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrEmptyOrder):
		return "empty_order"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrStockReservation):
		return "reservation_failed"
	default:
		return "persistence_failed"
	}
}

func rollback(logger *slog.Logger, tx *sql.Tx) {
	if rbErr := tx.Rollback(); rbErr != nil {
		logger.Error("transaction rollback failed", slog.Any("error", rbErr))
	}
}
