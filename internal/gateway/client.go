package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/marketplace-system/internal/validation"
)

// ErrInvalidCardNumber возвращается при неверном формате номера карты.
var ErrInvalidCardNumber = errors.New("invalid bank card number")

// Queue описывает очередь задач, в которую клиент кладёт запросы оплаты.
type Queue interface {
	Enqueue(ctx context.Context, req PaymentRequest) error
}

// Client инкапсулирует взаимодействие с платёжным шлюзом: постановку запроса
// в очередь задач и сам HTTP-вызов, выполняемый воркером.
type Client struct {
	queue      Queue
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент шлюза по указанному адресу.
func NewClient(queue Queue, baseURL string) *Client {
	return &Client{
		queue:   queue,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Submit ставит запрос оплаты в очередь задач, не дожидаясь результата.
// Номер карты нормализуется удалением пробелов и проверяется только по формату.
func (c *Client) Submit(ctx context.Context, orderNumber int64, price decimal.Decimal, cardNumber string) error {
	card := strings.ReplaceAll(cardNumber, " ", "")
	if !validation.IsValidCardNumber(card) {
		return ErrInvalidCardNumber
	}

	req := PaymentRequest{
		OrderNumber: orderNumber,
		BankCard:    card,
		Price:       price,
	}

	if err := c.queue.Enqueue(ctx, req); err != nil {
		return fmt.Errorf("enqueue payment: %w", err)
	}

	return nil
}

// Execute выполняет HTTP-вызов шлюза из воркера и возвращает тело ответа
// вместе с кодом статуса. Ответ с любым кодом — результат задачи, ошибка
// возвращается только при транспортном сбое.
func (c *Client) Execute(ctx context.Context, req PaymentRequest) (json.RawMessage, int, error) {
	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/pay", bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	return respBody, resp.StatusCode, nil
}
