package models_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/linemk/order-service/internal/domain/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransitionTo_AllPairs(t *testing.T) {
	allowed := map[models.OrderStatus][]models.OrderStatus{
		models.StatusPending:   {models.StatusConfirmed, models.StatusCancelled},
		models.StatusConfirmed: {models.StatusShipped, models.StatusCancelled},
		models.StatusShipped:   {models.StatusDelivered},
	}

	for _, from := range models.AllStatuses() {
		for _, to := range models.AllStatuses() {
			expected := false
			for _, s := range allowed[from] {
				if s == to {
					expected = true
				}
			}
			assert.Equal(t, expected, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestOrderStatus_Valid(t *testing.T) {
	assert.True(t, models.StatusShipped.Valid())
	assert.False(t, models.OrderStatus("refunded").Valid())
	assert.False(t, models.OrderStatus("").Valid())
}

func TestOrderStatus_IsTerminal(t *testing.T) {
	assert.True(t, models.StatusDelivered.IsTerminal())
	assert.True(t, models.StatusCancelled.IsTerminal())
	assert.False(t, models.StatusPending.IsTerminal())
	assert.False(t, models.OrderStatus("unknown").IsTerminal())
}

func TestAllowedNext_ReturnsCopy(t *testing.T) {
	next := models.StatusPending.AllowedNext()
	next[0] = models.StatusDelivered
	assert.True(t, models.StatusPending.CanTransitionTo(models.StatusConfirmed))
}

func TestApplyTransition_FullLifecycle(t *testing.T) {
	order := &models.Order{Status: models.StatusPending}
	t1 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	t3 := t2.Add(time.Hour)

	require.NoError(t, order.ApplyTransition(models.StatusConfirmed, "", t1))
	require.NotNil(t, order.ConfirmedAt)
	assert.Nil(t, order.ShippedAt)

	require.NoError(t, order.ApplyTransition(models.StatusShipped, "", t2))
	require.NoError(t, order.ApplyTransition(models.StatusDelivered, "", t3))

	// метки предыдущих фаз не перезаписываются
	assert.Equal(t, t1, *order.ConfirmedAt)
	assert.Equal(t, t2, *order.ShippedAt)
	assert.Equal(t, t3, *order.DeliveredAt)
	assert.Nil(t, order.CancelledAt)
	assert.Equal(t, models.StatusDelivered, order.Status)
	assert.Equal(t, t3, order.UpdatedAt)

	require.Len(t, order.StatusHistory, 3)
	assert.Equal(t, models.StatusConfirmed, order.StatusHistory[0].Status)
	assert.Equal(t, models.StatusDelivered, order.StatusHistory[2].Status)
	assert.Nil(t, order.StatusHistory[1].Reason)
}

func TestApplyTransition_CancelWithReason(t *testing.T) {
	order := &models.Order{Status: models.StatusConfirmed}
	now := time.Now()

	err := order.ApplyTransition(models.StatusCancelled, "out of stock", now)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCancelled, order.Status)
	require.NotNil(t, order.CancelledReason)
	assert.Equal(t, "out of stock", *order.CancelledReason)
	require.NotNil(t, order.CancelledAt)
	require.Len(t, order.StatusHistory, 1)
	require.NotNil(t, order.StatusHistory[0].Reason)
	assert.Equal(t, "out of stock", *order.StatusHistory[0].Reason)
}

func TestApplyTransition_CancelDefaultReason(t *testing.T) {
	order := &models.Order{Status: models.StatusPending}

	require.NoError(t, order.ApplyTransition(models.StatusCancelled, "", time.Now()))
	require.NotNil(t, order.CancelledReason)
	assert.Equal(t, models.DefaultCancelReason, *order.CancelledReason)
}

func TestApplyTransition_Invalid(t *testing.T) {
	order := &models.Order{Status: models.StatusPending}

	err := order.ApplyTransition(models.StatusShipped, "", time.Now())
	assert.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidTransition))

	var trErr *models.TransitionError
	require.True(t, errors.As(err, &trErr))
	assert.Equal(t, models.StatusPending, trErr.From)
	assert.Equal(t, models.StatusShipped, trErr.To)

	// заказ не изменился
	assert.Equal(t, models.StatusPending, order.Status)
	assert.Empty(t, order.StatusHistory)
	assert.Nil(t, order.ShippedAt)
}

func TestApplyTransition_TerminalStates(t *testing.T) {
	for _, status := range []models.OrderStatus{models.StatusDelivered, models.StatusCancelled} {
		for _, next := range models.AllStatuses() {
			order := &models.Order{Status: status}
			err := order.ApplyTransition(next, "", time.Now())
			assert.True(t, errors.Is(err, models.ErrInvalidTransition), "%s -> %s", status, next)
		}
	}
}

func TestItemsTotal(t *testing.T) {
	order := &models.Order{Items: []models.OrderItem{
		{TotalPrice: decimal.NewFromInt(200)},
		{TotalPrice: decimal.RequireFromString("10.50")},
	}}
	assert.True(t, decimal.RequireFromString("210.50").Equal(order.ItemsTotal()))
}

func TestShippingAddress_ValueScan(t *testing.T) {
	addr := models.ShippingAddress{
		Name:       "Ivan",
		Phone:      "+7000",
		Street:     "Lenina 1",
		City:       "Moscow",
		PostalCode: "101000",
		Country:    "RU",
	}

	raw, err := addr.Value()
	require.NoError(t, err)

	var scanned models.ShippingAddress
	require.NoError(t, scanned.Scan(raw))
	assert.Equal(t, addr, scanned)

	var fromString models.ShippingAddress
	require.NoError(t, fromString.Scan(string(raw.([]byte))))
	assert.Equal(t, addr, fromString)

	assert.Error(t, scanned.Scan(42))
}

func TestStatusHistory_NilValue(t *testing.T) {
	var h models.StatusHistory
	raw, err := h.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), raw)
}

func TestNewPageMeta(t *testing.T) {
	cases := []struct {
		total, limit, pages int
	}{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{95, 20, 5},
	}
	for _, c := range cases {
		meta := models.NewPageMeta(1, c.limit, c.total)
		assert.Equal(t, c.pages, meta.TotalPages, "total=%d limit=%d", c.total, c.limit)
	}
	assert.Equal(t, 0, models.NewPageMeta(1, 0, 10).TotalPages)
}

func TestOffset(t *testing.T) {
	assert.Equal(t, 0, models.Offset(1, 10))
	assert.Equal(t, 20, models.Offset(3, 10))
	assert.Equal(t, 0, models.Offset(0, 10))
	assert.Equal(t, 0, models.Offset(3, 0))
	assert.Equal(t, math.MaxInt, models.Offset(math.MaxInt/10, 100))
}
