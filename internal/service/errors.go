package service

import (
	"errors"
	"fmt"

	"github.com/linemk/order-service/internal/domain/models"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = models.ErrInvalidTransition
	ErrEmptyOrder        = errors.New("order must contain at least one item")
	ErrInvalidQuantity   = errors.New("quantity must be a positive integer")
	ErrInvalidStatus     = errors.New("invalid order status")
	ErrStockReservation  = errors.New("failed to reserve stock")
)

// ProductNotFoundError товар не найден или каталог недоступен
type ProductNotFoundError struct {
	ProductID string
	Err       error
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("Product %s not found", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool {
	return target == ErrProductNotFound
}

func (e *ProductNotFoundError) Unwrap() error {
	return e.Err
}

// InsufficientStockError запрошено больше, чем есть на складе
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Insufficient stock for product %s", e.ProductName)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
