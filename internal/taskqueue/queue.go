// Package taskqueue содержит очередь задач оплаты, пул воркеров и монитор
// событий задач, применяющий результаты оплаты к заказам.
package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mmeshcher/marketplace-system/internal/gateway"
)

const queueKey = "payment_tasks"

// Queue — очередь запросов оплаты в списке Redis. Задачи переживают
// перезапуск процесса: воркер забирает их при следующем старте.
type Queue struct {
	client *redis.Client
}

// NewQueue создаёт очередь поверх указанного клиента Redis.
func NewQueue(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// Enqueue кладёт запрос оплаты в очередь.
func (q *Queue) Enqueue(ctx context.Context, req gateway.PaymentRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	if err := q.client.LPush(ctx, queueKey, data).Err(); err != nil {
		return fmt.Errorf("lpush task: %w", err)
	}

	return nil
}

// Dequeue блокирующе забирает запрос из очереди. Возвращает (nil, nil) по
// таймауту ожидания; задачи с нечитаемым телом молча отбрасываются.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*gateway.PaymentRequest, error) {
	res, err := q.client.BRPop(ctx, timeout, queueKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("brpop task: %w", err)
	}

	// BRPOP возвращает пару ключ/значение.
	if len(res) != 2 {
		return nil, nil
	}

	var req gateway.PaymentRequest
	if err := json.Unmarshal([]byte(res[1]), &req); err != nil {
		return nil, nil
	}

	return &req, nil
}
