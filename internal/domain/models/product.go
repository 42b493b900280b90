package models

import "github.com/shopspring/decimal"

// Product снимок товара из каталога (product-service), локально не хранится
type Product struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"stock"`
	Image      *string         `json:"imageUrl,omitempty"`
	Unit       string          `json:"unit,omitempty"`
	IsActive   bool            `json:"isActive"`
	IsFeatured bool            `json:"isFeatured"`
}
