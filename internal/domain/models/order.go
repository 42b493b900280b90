package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCancelReason используется, если при отмене причина не указана
const DefaultCancelReason = "No reason provided"

// DefaultUnit единица измерения позиции, если товар её не указывает
const DefaultUnit = "kg"

var ErrInvalidTransition = errors.New("invalid status transition")

// TransitionError описывает недопустимый переход статуса.
type TransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Order представляет заказ вместе с позициями
type Order struct {
	ID              string          `json:"id"`
	OrderNumber     string          `json:"orderNumber"`
	UserID          string          `json:"userId"`
	Status          OrderStatus     `json:"status"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	ShippingCost    decimal.Decimal `json:"shippingCost"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	Notes           *string         `json:"notes,omitempty"`
	CancelledReason *string         `json:"cancelledReason,omitempty"`
	StatusHistory   StatusHistory   `json:"statusHistory"`
	ConfirmedAt     *time.Time      `json:"confirmedAt,omitempty"`
	ShippedAt       *time.Time      `json:"shippedAt,omitempty"`
	DeliveredAt     *time.Time      `json:"deliveredAt,omitempty"`
	CancelledAt     *time.Time      `json:"cancelledAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	Items           []OrderItem     `json:"items"`
}

// OrderItem позиция заказа; цена и данные товара фиксируются в момент заказа
type OrderItem struct {
	ID           string          `json:"id"`
	OrderID      string          `json:"orderId"`
	ProductID    string          `json:"productId"`
	ProductName  string          `json:"productName"`
	ProductImage *string         `json:"productImage,omitempty"`
	Quantity     int             `json:"quantity"`
	Unit         string          `json:"unit"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	TotalPrice   decimal.Decimal `json:"totalPrice"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// ShippingAddress адрес доставки, хранится в jsonb
type ShippingAddress struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Street     string `json:"street"`
	City       string `json:"city"`
	District   string `json:"district,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

func (a ShippingAddress) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *ShippingAddress) Scan(src any) error {
	return scanJSON(src, a)
}

// StatusHistoryEntry одна запись журнала переходов
type StatusHistoryEntry struct {
	Status    OrderStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Reason    *string     `json:"reason,omitempty"`
}

// StatusHistory журнал переходов, только дописывается
type StatusHistory []StatusHistoryEntry

func (h StatusHistory) Value() (driver.Value, error) {
	if h == nil {
		h = StatusHistory{}
	}
	return json.Marshal(h)
}

func (h *StatusHistory) Scan(src any) error {
	return scanJSON(src, h)
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
}

// ApplyTransition переводит заказ в статус next.
// Выставляет ровно одну временную метку фазы и дописывает запись в журнал.
// Для отмены сохраняет причину (или DefaultCancelReason).
func (o *Order) ApplyTransition(next OrderStatus, reason string, now time.Time) error {
	if !o.Status.CanTransitionTo(next) {
		return &TransitionError{From: o.Status, To: next}
	}

	var entryReason *string
	switch next {
	case StatusConfirmed:
		setOnce(&o.ConfirmedAt, now)
	case StatusShipped:
		setOnce(&o.ShippedAt, now)
	case StatusDelivered:
		setOnce(&o.DeliveredAt, now)
	case StatusCancelled:
		setOnce(&o.CancelledAt, now)
		if reason == "" {
			reason = DefaultCancelReason
		}
		o.CancelledReason = &reason
		entryReason = &reason
	}

	o.Status = next
	o.UpdatedAt = now
	o.StatusHistory = append(o.StatusHistory, StatusHistoryEntry{
		Status:    next,
		Timestamp: now,
		Reason:    entryReason,
	})
	return nil
}

func setOnce(field **time.Time, now time.Time) {
	if *field != nil {
		return
	}
	t := now
	*field = &t
}

// ItemsTotal сумма totalPrice по позициям
func (o *Order) ItemsTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range o.Items {
		sum = sum.Add(item.TotalPrice)
	}
	return sum
}
