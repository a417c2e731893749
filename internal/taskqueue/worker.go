package taskqueue

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/marketplace-system/internal/gateway"
)

const dequeueTimeout = time.Second

// GatewayClient описывает HTTP-вызов шлюза, выполняемый воркером.
type GatewayClient interface {
	Execute(ctx context.Context, req gateway.PaymentRequest) (json.RawMessage, int, error)
}

// Finalizer применяет результат оплаты к заказу. Повторное применение к уже
// завершённому заказу обязано быть no-op.
type Finalizer interface {
	FinalizeOrder(ctx context.Context, orderNumber int64, success bool) error
}

// Worker — пул воркеров, выполняющих задачи оплаты. Каждый результат обмена
// со шлюзом применяется к заказу синхронно и дополнительно публикуется как
// событие для монитора: финализация идемпотентна, второе применение — no-op.
type Worker struct {
	queue     *Queue
	gateway   GatewayClient
	finalizer Finalizer
	events    chan<- Event
	workers   int
	logger    *zap.Logger
}

// NewWorker создаёт пул из workers воркеров.
func NewWorker(queue *Queue, gw GatewayClient, finalizer Finalizer, events chan<- Event, workers int, logger *zap.Logger) *Worker {
	if workers < 1 {
		workers = 1
	}
	return &Worker{
		queue:     queue,
		gateway:   gw,
		finalizer: finalizer,
		events:    events,
		workers:   workers,
		logger:    logger,
	}
}

// Run запускает пул и блокируется до отмены контекста.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for i := 0; i < w.workers; i++ {
		g.Go(func() error {
			w.loop(ctx)
			return nil
		})
	}

	return g.Wait()
}

func (w *Worker) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		req, err := w.queue.Dequeue(ctx, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("dequeue payment task", zap.Error(err))
			continue
		}
		if req == nil {
			continue
		}

		w.process(ctx, *req)
	}
}

func (w *Worker) process(ctx context.Context, req gateway.PaymentRequest) {
	body, statusCode, err := w.gateway.Execute(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			// Воркер остановлен посреди задачи: задача отзывается.
			w.emit(Event{Kind: EventRevoked, Args: req})
			return
		}
		w.logger.Warn("payment gateway call failed",
			zap.Int64("order", req.OrderNumber), zap.Error(err))
		w.emit(Event{Kind: EventFailed, Args: req})
		return
	}

	// Синхронный путь применения результата: 2xx со статусным телом
	// применяется как есть, любой другой код — однозначный отказ.
	if statusCode >= 200 && statusCode < 300 {
		var st gateway.PaymentStatus
		if json.Unmarshal(body, &st) == nil && st.Valid() {
			if err := w.finalizer.FinalizeOrder(ctx, st.OrderNumber, st.Status == gateway.StatusPaid); err != nil {
				w.logger.Error("finalize order", zap.Int64("order", st.OrderNumber), zap.Error(err))
			}
		}
	} else {
		if err := w.finalizer.FinalizeOrder(ctx, req.OrderNumber, false); err != nil {
			w.logger.Error("finalize order", zap.Int64("order", req.OrderNumber), zap.Error(err))
		}
	}

	w.emit(Event{Kind: EventSucceeded, Result: body, Args: req})
}

func (w *Worker) emit(ev Event) {
	select {
	case w.events <- ev:
	default:
		w.logger.Warn("task event dropped", zap.String("kind", ev.Kind.String()),
			zap.Int64("order", ev.Args.OrderNumber))
	}
}
