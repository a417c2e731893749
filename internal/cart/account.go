package cart

import (
	"context"

	"github.com/shopspring/decimal"
)

// AccountRepository описывает операции репозитория над корзиной аккаунта.
// Мутации пересчитывают денормализованные итоги корзины в одной транзакции
// с изменением позиции.
type AccountRepository interface {
	AddCartItem(ctx context.Context, userID, productID int64, quantity int, price decimal.Decimal) error
	ChangeCartItemQuantity(ctx context.Context, userID, productID int64, delta int) error
	RemoveCartItem(ctx context.Context, userID, productID int64) error
	GetCartLines(ctx context.Context, userID int64) ([]Line, error)
	GetCartTotals(ctx context.Context, userID int64) (decimal.Decimal, int, error)
}

// AccountStore реализует Store поверх строк корзины авторизованного
// пользователя в базе данных.
type AccountStore struct {
	repo   AccountRepository
	userID int64
}

// NewAccountStore создаёт корзину для указанного пользователя.
func NewAccountStore(repo AccountRepository, userID int64) *AccountStore {
	return &AccountStore{
		repo:   repo,
		userID: userID,
	}
}

// Add добавляет товар в корзину или увеличивает количество существующей позиции.
func (s *AccountStore) Add(ctx context.Context, productID int64, quantity int, price decimal.Decimal) error {
	return s.repo.AddCartItem(ctx, s.userID, productID, quantity, price)
}

// UpdateQuantity прибавляет знаковую дельту к количеству позиции.
func (s *AccountStore) UpdateQuantity(ctx context.Context, productID int64, delta int) error {
	return s.repo.ChangeCartItemQuantity(ctx, s.userID, productID, delta)
}

// Remove удаляет позицию из корзины.
func (s *AccountStore) Remove(ctx context.Context, productID int64) error {
	return s.repo.RemoveCartItem(ctx, s.userID, productID)
}

// Items возвращает позиции корзины.
func (s *AccountStore) Items(ctx context.Context) ([]Line, error) {
	return s.repo.GetCartLines(ctx, s.userID)
}

// TotalPrice возвращает денормализованную стоимость корзины.
func (s *AccountStore) TotalPrice(ctx context.Context) (decimal.Decimal, error) {
	total, _, err := s.repo.GetCartTotals(ctx, s.userID)
	return total, err
}

// ItemCount возвращает денормализованное количество товара в корзине.
func (s *AccountStore) ItemCount(ctx context.Context) (int, error) {
	_, count, err := s.repo.GetCartTotals(ctx, s.userID)
	return count, err
}
