package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/linemk/order-service/internal/domain/models"
	"github.com/linemk/order-service/internal/lib/metrics"
	"github.com/shopspring/decimal"
)

const (
	TypeOrderCreated       = "order.created"
	TypeOrderStatusChanged = "order.status_changed"
)

// OrderEvent событие жизненного цикла заказа
type OrderEvent struct {
	Type           string             `json:"type"`
	OrderID        string             `json:"orderId"`
	OrderNumber    string             `json:"orderNumber"`
	UserID         string             `json:"userId"`
	Status         models.OrderStatus `json:"status"`
	PreviousStatus models.OrderStatus `json:"previousStatus,omitempty"`
	TotalAmount    decimal.Decimal    `json:"totalAmount"`
	Reason         string             `json:"reason,omitempty"`
	OccurredAt     time.Time          `json:"occurredAt"`
}

func NewOrderCreated(order *models.Order) OrderEvent {
	return OrderEvent{
		Type:        TypeOrderCreated,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		OccurredAt:  order.CreatedAt,
	}
}

func NewStatusChanged(order *models.Order, previous models.OrderStatus) OrderEvent {
	evt := OrderEvent{
		Type:           TypeOrderStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		Status:         order.Status,
		PreviousStatus: previous,
		TotalAmount:    order.TotalAmount,
		OccurredAt:     order.UpdatedAt,
	}
	if order.Status == models.StatusCancelled && order.CancelledReason != nil {
		evt.Reason = *order.CancelledReason
	}
	return evt
}

// Publisher доставляет события заказов во внешний мир
type Publisher interface {
	Publish(ctx context.Context, evt OrderEvent) error
}

// NopPublisher ничего не делает
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, OrderEvent) error { return nil }

// Sink именованный получатель для MultiPublisher
type Sink struct {
	Name      string
	Publisher Publisher
}

// MultiPublisher рассылает событие всем получателям.
// Ошибка одного получателя не мешает остальным, ошибки объединяются.
type MultiPublisher struct {
	sinks   []Sink
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewMultiPublisher(log *slog.Logger, m *metrics.Metrics, sinks ...Sink) *MultiPublisher {
	return &MultiPublisher{
		sinks:   sinks,
		metrics: m,
		log:     log,
	}
}

func (p *MultiPublisher) Publish(ctx context.Context, evt OrderEvent) error {
	const op = "events.MultiPublisher.Publish"

	var errs []error
	for _, sink := range p.sinks {
		err := sink.Publisher.Publish(ctx, evt)
		p.metrics.EventsPublish.WithLabelValues(sink.Name, metrics.Outcome(err)).Inc()
		if err != nil {
			p.log.Error("failed to publish order event",
				slog.String("op", op),
				slog.String("sink", sink.Name),
				slog.String("type", evt.Type),
				slog.String("order_id", evt.OrderID),
				slog.Any("error", err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name, err))
		}
	}
	return errors.Join(errs...)
}
