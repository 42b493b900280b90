package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/linemk/order-service/internal/domain/models"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderNumberExists = errors.New("order number already exists")
	ErrOrderLocked       = errors.New("resource is locked, please try again")
)

// коды ошибок PostgreSQL
const (
	pqUniqueViolation  = "23505"
	pqLockNotAvailable = "55P03"
)

// OrderFilter условия выборки списка заказов; пустые поля не фильтруют
type OrderFilter struct {
	Status models.OrderStatus
	UserID string
	Limit  int
	Offset int
}

// OrderStorage описывает методы для работы с заказами.
type OrderStorage interface {
	// CreateOrder вставляет заголовок заказа в рамках транзакции.
	CreateOrder(ctx context.Context, tx *sql.Tx, order *models.Order) error
	// CreateOrderItems вставляет позиции заказа в рамках той же транзакции.
	CreateOrderItems(ctx context.Context, tx *sql.Tx, orderID string, items []models.OrderItem) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*models.Order, error)
	// LockOrderByIDTx блокирует строку заказа до конца транзакции.
	LockOrderByIDTx(ctx context.Context, tx *sql.Tx, id string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, tx *sql.Tx, order *models.Order) error
	// ListOrders возвращает страницу заказов (новые первыми) и общее число подходящих.
	ListOrders(ctx context.Context, filter OrderFilter) ([]*models.Order, int, error)
	CountByStatus(ctx context.Context) (map[models.OrderStatus]int, error)
	Ping(ctx context.Context) error
}

// общий интерфейс *sql.DB и *sql.Tx для чтения
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// orderRepository — реализация OrderStorage поверх PostgreSQL.
type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт новый репозиторий заказов.
func NewOrderRepository(db *sql.DB) OrderStorage {
	return &orderRepository{db: db}
}

const orderColumns = `id, order_number, user_id, status, subtotal, shipping_cost, total_amount,
	shipping_address, notes, cancelled_reason, status_history,
	confirmed_at, shipped_at, delivered_at, cancelled_at, created_at, updated_at`

const itemColumns = `id, order_id, product_id, product_name, product_image, quantity, unit,
	unit_price, total_price, created_at`

func (r *orderRepository) CreateOrder(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	const op = "storage.order.CreateOrder"

	query := `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := tx.ExecContext(ctx, query,
		order.ID, order.OrderNumber, order.UserID, order.Status,
		order.Subtotal, order.ShippingCost, order.TotalAmount,
		order.ShippingAddress, order.Notes, order.CancelledReason, order.StatusHistory,
		order.ConfirmedAt, order.ShippedAt, order.DeliveredAt, order.CancelledAt,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return fmt.Errorf("%s: %w", op, ErrOrderNumberExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *orderRepository) CreateOrderItems(ctx context.Context, tx *sql.Tx, orderID string, items []models.OrderItem) error {
	const op = "storage.order.CreateOrderItems"

	query := `INSERT INTO order_items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	for _, item := range items {
		_, err := tx.ExecContext(ctx, query,
			item.ID, orderID, item.ProductID, item.ProductName, item.ProductImage,
			item.Quantity, item.Unit, item.UnitPrice, item.TotalPrice, item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("%s: product %s: %w", op, item.ProductID, err)
		}
	}
	return nil
}

func (r *orderRepository) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	const op = "storage.order.GetOrderByID"

	order, err := r.getOrder(ctx, r.db, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return order, nil
}

func (r *orderRepository) GetOrderByNumber(ctx context.Context, number string) (*models.Order, error) {
	const op = "storage.order.GetOrderByNumber"

	order, err := r.getOrder(ctx, r.db, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, number)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return order, nil
}

func (r *orderRepository) LockOrderByIDTx(ctx context.Context, tx *sql.Tx, id string) (*models.Order, error) {
	const op = "storage.order.LockOrderByIDTx"

	order, err := r.getOrder(ctx, tx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE NOWAIT`, id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqLockNotAvailable {
			return nil, fmt.Errorf("%s: %w", op, ErrOrderLocked)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return order, nil
}

func (r *orderRepository) getOrder(ctx context.Context, q queryer, query string, arg any) (*models.Order, error) {
	order, err := scanOrder(q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	items, err := r.loadItems(ctx, q, []string{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]
	if order.Items == nil {
		order.Items = []models.OrderItem{}
	}
	return order, nil
}

func (r *orderRepository) UpdateOrderStatus(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	const op = "storage.order.UpdateOrderStatus"

	query := `UPDATE orders SET status = $1, cancelled_reason = $2, status_history = $3,
		confirmed_at = $4, shipped_at = $5, delivered_at = $6, cancelled_at = $7, updated_at = $8
		WHERE id = $9`

	res, err := tx.ExecContext(ctx, query,
		order.Status, order.CancelledReason, order.StatusHistory,
		order.ConfirmedAt, order.ShippedAt, order.DeliveredAt, order.CancelledAt,
		order.UpdatedAt, order.ID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, ErrOrderNotFound)
	}
	return nil
}

func (r *orderRepository) ListOrders(ctx context.Context, filter OrderFilter) ([]*models.Order, int, error) {
	const op = "storage.order.ListOrders"

	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("%s: count: %w", op, err)
	}

	args = append(args, filter.Limit, filter.Offset)
	query := `SELECT ` + orderColumns + ` FROM orders` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	orders := make([]*models.Order, 0, filter.Limit)
	ids := make([]string, 0, filter.Limit)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: scan: %w", op, err)
		}
		orders = append(orders, order)
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	if len(ids) == 0 {
		return orders, total, nil
	}

	items, err := r.loadItems(ctx, r.db, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	for _, order := range orders {
		order.Items = items[order.ID]
		if order.Items == nil {
			order.Items = []models.OrderItem{}
		}
	}

	return orders, total, nil
}

// CountByStatus возвращает счётчик для каждого известного статуса, отсутствующие = 0
func (r *orderRepository) CountByStatus(ctx context.Context) (map[models.OrderStatus]int, error) {
	const op = "storage.order.CountByStatus"

	counts := make(map[models.OrderStatus]int, len(models.AllStatuses()))
	for _, s := range models.AllStatuses() {
		counts[s] = 0
	}

	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status models.OrderStatus
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return counts, nil
}

func (r *orderRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// loadItems грузит позиции сразу для нескольких заказов
func (r *orderRepository) loadItems(ctx context.Context, q queryer, orderIDs []string) (map[string][]models.OrderItem, error) {
	query := `SELECT ` + itemColumns + ` FROM order_items WHERE order_id = ANY($1) ORDER BY created_at, id`

	rows, err := q.QueryContext(ctx, query, pq.Array(orderIDs))
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	defer rows.Close()

	items := make(map[string][]models.OrderItem, len(orderIDs))
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.ProductImage,
			&item.Quantity, &item.Unit, &item.UnitPrice, &item.TotalPrice, &item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items[item.OrderID] = append(items[item.OrderID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	order := &models.Order{}
	err := row.Scan(
		&order.ID, &order.OrderNumber, &order.UserID, &order.Status,
		&order.Subtotal, &order.ShippingCost, &order.TotalAmount,
		&order.ShippingAddress, &order.Notes, &order.CancelledReason, &order.StatusHistory,
		&order.ConfirmedAt, &order.ShippedAt, &order.DeliveredAt, &order.CancelledAt,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if order.StatusHistory == nil {
		order.StatusHistory = models.StatusHistory{}
	}
	return order, nil
}
