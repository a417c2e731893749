// Package cart содержит хранилища корзины покупателя: сессионное для
// анонимных пользователей и привязанное к аккаунту для авторизованных.
package cart

import (
	"context"

	"github.com/shopspring/decimal"
)

// Line описывает одну позицию корзины.
type Line struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Total возвращает стоимость позиции.
func (l Line) Total() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Store описывает общий набор операций над корзиной, одинаковый для
// сессионного и аккаунтного хранилищ.
type Store interface {
	Add(ctx context.Context, productID int64, quantity int, price decimal.Decimal) error
	UpdateQuantity(ctx context.Context, productID int64, delta int) error
	Remove(ctx context.Context, productID int64) error
	Items(ctx context.Context) ([]Line, error)
	TotalPrice(ctx context.Context) (decimal.Decimal, error)
	ItemCount(ctx context.Context) (int, error)
}

// TotalOf суммирует стоимость позиций.
func TotalOf(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Total())
	}
	return total
}

// CountOf суммирует количество товара в позициях.
func CountOf(lines []Line) int {
	count := 0
	for _, l := range lines {
		count += l.Quantity
	}
	return count
}
