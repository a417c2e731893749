package taskqueue

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/mmeshcher/marketplace-system/internal/gateway"
)

// Monitor — долгоживущий наблюдатель событий задач оплаты. Обрабатывает
// закрытый набор исходов одним типизированным обработчиком и сводит оба пути
// доставки результата к одной и той же финализации заказа.
type Monitor struct {
	events    <-chan Event
	finalizer Finalizer
	logger    *zap.Logger
}

// NewMonitor создаёт монитор событий задач.
func NewMonitor(events <-chan Event, finalizer Finalizer, logger *zap.Logger) *Monitor {
	return &Monitor{
		events:    events,
		finalizer: finalizer,
		logger:    logger,
	}
}

// Run обрабатывает события до отмены контекста и завершается без ошибки.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("task monitor stopped")
			return nil
		case ev := <-m.events:
			m.handle(ctx, ev)
		}
	}
}

// handle применяет исход задачи к заказу. Нечитаемые данные и неизвестные
// заказы — молчаливый no-op, не ошибка.
func (m *Monitor) handle(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventSucceeded:
		var st gateway.PaymentStatus
		if json.Unmarshal(ev.Result, &st) == nil && st.Valid() {
			m.finalize(ctx, st.OrderNumber, st.Status == gateway.StatusPaid)
			return
		}

		// Результат не является статусным сообщением: шлюз отклонил запрос
		// без статуса. Заказ определяется по аргументам задачи и
		// завершается как неоплаченный.
		if ev.Args.Valid() {
			m.finalize(ctx, ev.Args.OrderNumber, false)
		}
	case EventFailed, EventRevoked:
		if ev.Args.Valid() {
			m.finalize(ctx, ev.Args.OrderNumber, false)
		}
	}
}

func (m *Monitor) finalize(ctx context.Context, orderNumber int64, success bool) {
	if err := m.finalizer.FinalizeOrder(ctx, orderNumber, success); err != nil {
		m.logger.Error("finalize order from task event",
			zap.Int64("order", orderNumber), zap.Error(err))
	}
}
