package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mmeshcher/marketplace-system/internal/gateway"
)

func setupQueue(t *testing.T) *Queue {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewQueue(client)
}

func TestQueue_EnqueueDequeue(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	want := validArgs(12)
	if err := q.Enqueue(ctx, want); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	got, err := q.Dequeue(ctx, time.Second)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if got == nil || got.OrderNumber != 12 || got.BankCard != "12345678" {
		t.Fatalf("unexpected task: %+v", got)
	}
	if !got.Price.Equal(want.Price) {
		t.Fatalf("price = %s, want %s", got.Price, want.Price)
	}
}

type stubGateway struct {
	body   json.RawMessage
	status int
	err    error
}

func (g *stubGateway) Execute(ctx context.Context, req gateway.PaymentRequest) (json.RawMessage, int, error) {
	return g.body, g.status, g.err
}

func runWorkerOnce(t *testing.T, q *Queue, gw GatewayClient, f Finalizer) Event {
	t.Helper()

	events := make(chan Event, 1)
	w := NewWorker(q, gw, f, events, 1, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx)
	}()

	var ev Event
	select {
	case ev = <-events:
	case <-time.After(3 * time.Second):
		t.Fatal("no event emitted")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("worker run: %v", err)
	}

	return ev
}

func TestWorker_SuccessfulExchange(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, validArgs(12)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	body, _ := json.Marshal(gateway.PaymentStatus{OrderNumber: 12, Status: gateway.StatusPaid})
	gw := &stubGateway{body: body, status: http.StatusOK}
	f := &stubFinalizer{}

	ev := runWorkerOnce(t, q, gw, f)

	if ev.Kind != EventSucceeded {
		t.Fatalf("event kind = %s, want succeeded", ev.Kind)
	}
	if string(ev.Result) != string(body) {
		t.Fatalf("event result = %s, want gateway body", ev.Result)
	}

	calls := f.callList()
	if len(calls) != 1 || calls[0].orderNumber != 12 || !calls[0].success {
		t.Fatalf("calls = %+v, want synchronous successful finalize", calls)
	}
}

func TestWorker_GatewayRejection(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, validArgs(12)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	body, _ := json.Marshal(gateway.PaymentStatus{OrderNumber: 12, Status: "error"})
	gw := &stubGateway{body: body, status: http.StatusBadRequest}
	f := &stubFinalizer{}

	ev := runWorkerOnce(t, q, gw, f)

	// Не-2xx ответ — однозначный отказ по синхронному пути.
	calls := f.callList()
	if len(calls) != 1 || calls[0].success {
		t.Fatalf("calls = %+v, want failed finalize", calls)
	}
	// Событие всё равно публикуется с телом ответа для монитора.
	if ev.Kind != EventSucceeded {
		t.Fatalf("event kind = %s, want succeeded", ev.Kind)
	}
}

func TestWorker_TransportError(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, validArgs(12)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	gw := &stubGateway{err: errors.New("connection refused")}
	f := &stubFinalizer{}

	ev := runWorkerOnce(t, q, gw, f)

	if ev.Kind != EventFailed {
		t.Fatalf("event kind = %s, want failed", ev.Kind)
	}
	if ev.Args.OrderNumber != 12 {
		t.Fatalf("event args order = %d, want 12", ev.Args.OrderNumber)
	}
	// Синхронный путь ничего не применяет: отказ доставит монитор.
	if calls := f.callList(); len(calls) != 0 {
		t.Fatalf("calls = %+v, want none", calls)
	}
}
