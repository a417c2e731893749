package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const sessionCartTTL = 30 * 24 * time.Hour

// Sessions создаёт сессионные корзины поверх общего клиента Redis.
type Sessions struct {
	client *redis.Client
}

// NewSessions создаёт фабрику сессионных корзин.
func NewSessions(client *redis.Client) *Sessions {
	return &Sessions{client: client}
}

// Store возвращает корзину для указанного идентификатора сессии.
func (s *Sessions) Store(sessionID string) *SessionStore {
	return &SessionStore{
		client: s.client,
		key:    fmt.Sprintf("session_cart:%s", sessionID),
	}
}

// SessionStore хранит корзину анонимного покупателя в хэше Redis:
// поле — идентификатор предложения товара, значение — позиция в JSON.
type SessionStore struct {
	client *redis.Client
	key    string
}

type sessionEntry struct {
	Quantity int             `json:"qty"`
	Price    decimal.Decimal `json:"price"`
}

func (s *SessionStore) field(productID int64) string {
	return strconv.FormatInt(productID, 10)
}

func (s *SessionStore) get(ctx context.Context, productID int64) (*sessionEntry, error) {
	data, err := s.client.HGet(ctx, s.key, s.field(productID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("hget: %w", err)
	}

	var e sessionEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal entry: %w", err)
	}
	return &e, nil
}

func (s *SessionStore) put(ctx context.Context, productID int64, e sessionEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	if err := s.client.HSet(ctx, s.key, s.field(productID), data).Err(); err != nil {
		return fmt.Errorf("hset: %w", err)
	}
	if err := s.client.Expire(ctx, s.key, sessionCartTTL).Err(); err != nil {
		return fmt.Errorf("expire: %w", err)
	}
	return nil
}

// Add увеличивает количество позиции или создаёт её с указанной ценой.
func (s *SessionStore) Add(ctx context.Context, productID int64, quantity int, price decimal.Decimal) error {
	existing, err := s.get(ctx, productID)
	if err != nil {
		return err
	}

	if existing != nil {
		existing.Quantity += quantity
		return s.put(ctx, productID, *existing)
	}

	return s.put(ctx, productID, sessionEntry{Quantity: quantity, Price: price})
}

// UpdateQuantity прибавляет знаковую дельту к количеству позиции.
// Позиция с неположительным итогом удаляется.
func (s *SessionStore) UpdateQuantity(ctx context.Context, productID int64, delta int) error {
	existing, err := s.get(ctx, productID)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}

	existing.Quantity += delta
	if existing.Quantity <= 0 {
		return s.Remove(ctx, productID)
	}
	return s.put(ctx, productID, *existing)
}

// Remove удаляет позицию из корзины.
func (s *SessionStore) Remove(ctx context.Context, productID int64) error {
	if err := s.client.HDel(ctx, s.key, s.field(productID)).Err(); err != nil {
		return fmt.Errorf("hdel: %w", err)
	}
	return nil
}

// Items возвращает позиции корзины.
func (s *SessionStore) Items(ctx context.Context) ([]Line, error) {
	raw, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall: %w", err)
	}

	lines := make([]Line, 0, len(raw))
	for field, value := range raw {
		productID, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse product id %q: %w", field, err)
		}

		var e sessionEntry
		if err := json.Unmarshal([]byte(value), &e); err != nil {
			return nil, fmt.Errorf("unmarshal entry: %w", err)
		}

		lines = append(lines, Line{
			ProductID: productID,
			Quantity:  e.Quantity,
			Price:     e.Price,
		})
	}

	return lines, nil
}

// TotalPrice возвращает суммарную стоимость корзины.
func (s *SessionStore) TotalPrice(ctx context.Context) (decimal.Decimal, error) {
	lines, err := s.Items(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return TotalOf(lines), nil
}

// ItemCount возвращает количество товара в корзине.
func (s *SessionStore) ItemCount(ctx context.Context) (int, error) {
	lines, err := s.Items(ctx)
	if err != nil {
		return 0, err
	}
	return CountOf(lines), nil
}

// Clear удаляет корзину целиком.
func (s *SessionStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("del: %w", err)
	}
	return nil
}
