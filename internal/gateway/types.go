// Package gateway содержит клиент платёжного шлюза и его мок-эндпоинт.
package gateway

import (
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/marketplace-system/internal/validation"
)

// StatusPaid — статус успешной оплаты в ответе шлюза. Любое другое значение
// трактуется как отказ.
const StatusPaid = "paid"

// PaymentRequest — запрос оплаты, отправляемый шлюзу.
type PaymentRequest struct {
	OrderNumber int64           `json:"order_number"`
	BankCard    string          `json:"bank_card"`
	Price       decimal.Decimal `json:"price"`
}

// Valid сообщает, проходит ли запрос граничную валидацию.
func (r PaymentRequest) Valid() bool {
	return r.OrderNumber >= 1 &&
		validation.IsValidCardNumber(r.BankCard) &&
		r.Price.IsPositive()
}

// PaymentStatus — ответ шлюза о результате оплаты.
type PaymentStatus struct {
	OrderNumber int64  `json:"order_number"`
	Status      string `json:"status"`
}

// Valid сообщает, является ли ответ корректным статусным сообщением.
func (s PaymentStatus) Valid() bool {
	return s.OrderNumber >= 1 && s.Status != "" && len(s.Status) <= 20
}
