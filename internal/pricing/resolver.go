// Package pricing содержит расчёт цены товара с учётом скидок.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/marketplace-system/internal/model"
)

var hundred = decimal.NewFromInt(100)

// PriorityDiscount выбирает действующую скидку с наибольшим весом типа.
// Скидка действует, если она активна, её тип активен и момент now попадает
// в окно [DateStart, DateEnd]; пустая DateStart означает "всегда началась".
// При равном весе выбирается скидка с меньшим идентификатором, чтобы выбор
// был детерминированным.
func PriorityDiscount(discounts []model.Discount, now time.Time) *model.Discount {
	var best *model.Discount
	for i := range discounts {
		d := &discounts[i]
		if !d.IsActive || !d.Type.IsActive {
			continue
		}
		if d.DateStart != nil && d.DateStart.After(now) {
			continue
		}
		if d.DateEnd.Before(now) {
			continue
		}
		if best == nil || d.Type.Weight > best.Type.Weight ||
			(d.Type.Weight == best.Type.Weight && d.ID < best.ID) {
			best = d
		}
	}
	return best
}

// Resolve возвращает цену товара с учётом приоритетной скидки и саму скидку.
// Итоговая цена не может опуститься ниже 1% от исходной, то есть скидка
// никогда не превышает 99%. Если действующих скидок нет или у выбранной
// скидки не заполнен размер, возвращается исходная цена без скидки.
func Resolve(basePrice decimal.Decimal, discounts []model.Discount, now time.Time) (decimal.Decimal, *model.Discount) {
	d := PriorityDiscount(discounts, now)
	if d == nil {
		return basePrice, nil
	}

	var newPrice decimal.Decimal
	switch {
	case d.Percent != nil:
		newPrice = basePrice.Sub(basePrice.Mul(*d.Percent).Div(hundred))
	case d.Value != nil:
		newPrice = basePrice.Sub(*d.Value)
	default:
		return basePrice, nil
	}

	floor := basePrice.Div(hundred)
	if newPrice.LessThan(floor) {
		newPrice = floor
	}

	return newPrice.Round(2), d
}
