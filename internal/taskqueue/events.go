package taskqueue

import (
	"encoding/json"

	"github.com/mmeshcher/marketplace-system/internal/gateway"
)

// EventKind — закрытый набор исходов задачи оплаты.
type EventKind int

const (
	// EventSucceeded — задача выполнила обмен со шлюзом и вернула результат.
	EventSucceeded EventKind = iota
	// EventFailed — задача завершилась транспортной ошибкой.
	EventFailed
	// EventRevoked — задача отозвана при остановке воркера.
	EventRevoked
)

// String возвращает имя исхода для логов.
func (k EventKind) String() string {
	switch k {
	case EventSucceeded:
		return "succeeded"
	case EventFailed:
		return "failed"
	case EventRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// Event описывает исход одной задачи оплаты. Result заполняется только для
// успешно выполненных задач; Args всегда содержит исходный запрос.
type Event struct {
	Kind   EventKind
	Result json.RawMessage
	Args   gateway.PaymentRequest
}
