// Package service реализует бизнес-логику сервиса маркетплейса.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/marketplace-system/internal/cache"
	"github.com/mmeshcher/marketplace-system/internal/cart"
	"github.com/mmeshcher/marketplace-system/internal/gateway"
	"github.com/mmeshcher/marketplace-system/internal/model"
	"github.com/mmeshcher/marketplace-system/internal/pricing"
	"github.com/mmeshcher/marketplace-system/internal/repository"
)

// ErrInvalidCredentials возвращается при неверной паре email и пароль.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrNotForSale возвращается при попытке положить в корзину снятое с продажи предложение.
var ErrNotForSale = errors.New("offer is not for sale")

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	cart.AccountRepository

	Close() error

	CreateUser(ctx context.Context, email string, passwordHash []byte) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)

	CreateOrder(ctx context.Context, userID int64) (*model.Order, error)
	GetActiveOrder(ctx context.Context, userID int64) (*model.Order, error)
	ListDeliveries(ctx context.Context) ([]model.Delivery, error)
	SetOrderDelivery(ctx context.Context, userID, deliveryID int64, addr model.Address) (*model.Order, error)
	SetOrderPaymentMethod(ctx context.Context, userID int64, method model.PaymentMethod) error
	GetOrdersByUser(ctx context.Context, userID int64) ([]repository.OrderHistory, error)
	FinalizeOrder(ctx context.Context, orderNumber int64, success bool) error

	GetShopBySlug(ctx context.Context, slug string) (*model.Shop, error)
	GetProductBySlug(ctx context.Context, slug string) (*model.Product, error)
	UpdateProduct(ctx context.Context, p model.Product) (*model.Product, error)
	GetDiscountsForProduct(ctx context.Context, productID int64) ([]model.Discount, error)
	GetOffer(ctx context.Context, offerID int64) (*model.ProductOnShop, error)
	GetOffersForProduct(ctx context.Context, productSlug string) ([]model.ProductOnShop, error)
	GetMinPrice(ctx context.Context, productSlug string) (decimal.Decimal, error)
	SetOfferPrice(ctx context.Context, offerID int64, price decimal.Decimal) (prev, curr *model.ProductOnShop, productSlug string, err error)
	AddReview(ctx context.Context, userID int64, productSlug, text string) (*model.Review, error)
	GetReviews(ctx context.Context, productSlug string) ([]model.Review, error)
	CountReviews(ctx context.Context, productSlug string) (int, error)
	GetTags(ctx context.Context, productSlug string) ([]model.Tag, error)
	ListImportJobsByStatus(ctx context.Context, status model.ImportJobStatus) ([]model.ImportJob, error)
	UpdateImportJob(ctx context.Context, jobID int64, status model.ImportJobStatus, jobErrors string) error
}

// Service содержит бизнес-логику сервиса маркетплейса.
type Service struct {
	repo        Repository
	sessions    *cart.Sessions
	gateway     *gateway.Client
	cache       cache.Cache
	invalidator *cache.Invalidator
	logger      *zap.Logger
}

// NewService создаёт новый сервис.
func NewService(repo Repository, sessions *cart.Sessions, gw *gateway.Client, c cache.Cache, inv *cache.Invalidator, logger *zap.Logger) *Service {
	return &Service{
		repo:        repo,
		sessions:    sessions,
		gateway:     gw,
		cache:       c,
		invalidator: inv,
		logger:      logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, email, password string) (int64, error) {
	hashed := hashPassword(email, password)
	id, err := s.repo.CreateUser(ctx, email, hashed)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет email и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (int64, error) {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, ErrInvalidCredentials
		}
		return 0, err
	}

	hashed := hashPassword(email, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return 0, ErrInvalidCredentials
	}

	return u.ID, nil
}

func hashPassword(email, password string) []byte {
	sum := sha256.Sum256([]byte(email + ":" + password))
	return sum[:]
}

// CartFor возвращает корзину запроса: аккаунтную для авторизованного
// пользователя, сессионную для анонимного.
func (s *Service) CartFor(userID int64, sessionID string) cart.Store {
	if userID > 0 {
		return cart.NewAccountStore(s.repo, userID)
	}
	return s.sessions.Store(sessionID)
}

// AddToCart кладёт предложение товара в корзину. Цена позиции фиксируется
// в момент добавления с учётом приоритетной скидки.
func (s *Service) AddToCart(ctx context.Context, store cart.Store, offerID int64, quantity int) error {
	offer, err := s.repo.GetOffer(ctx, offerID)
	if err != nil {
		return err
	}
	if !offer.ForSale {
		return ErrNotForSale
	}

	discounts, err := s.repo.GetDiscountsForProduct(ctx, offer.ProductID)
	if err != nil {
		return err
	}

	price, _ := pricing.Resolve(offer.Price, discounts, time.Now())

	return store.Add(ctx, offer.ID, quantity, price)
}

// MergeSessionCart переносит сессионную корзину в аккаунтную при входе.
// Существующие позиции складываются по количеству, сессионная корзина
// после переноса очищается.
func (s *Service) MergeSessionCart(ctx context.Context, sessionID string, userID int64) error {
	store := s.sessions.Store(sessionID)

	lines, err := store.Items(ctx)
	if err != nil {
		return err
	}

	for _, l := range lines {
		if err := s.repo.AddCartItem(ctx, userID, l.ProductID, l.Quantity, l.Price); err != nil {
			return err
		}
	}

	return store.Clear(ctx)
}

// CreateOrder открывает проход оформления заказа для активной корзины пользователя.
func (s *Service) CreateOrder(ctx context.Context, userID int64) (*model.Order, error) {
	return s.repo.CreateOrder(ctx, userID)
}

// ListDeliveries возвращает доступные варианты доставки.
func (s *Service) ListDeliveries(ctx context.Context) ([]model.Delivery, error) {
	return s.repo.ListDeliveries(ctx)
}

// SetOrderDelivery выбирает доставку и адрес для незавершённого заказа.
func (s *Service) SetOrderDelivery(ctx context.Context, userID, deliveryID int64, addr model.Address) (*model.Order, error) {
	return s.repo.SetOrderDelivery(ctx, userID, deliveryID, addr)
}

// SetOrderPaymentMethod выбирает способ оплаты незавершённого заказа.
func (s *Service) SetOrderPaymentMethod(ctx context.Context, userID int64, method model.PaymentMethod) error {
	return s.repo.SetOrderPaymentMethod(ctx, userID, method)
}

// PayOrder ставит оплату незавершённого заказа в очередь платёжного шлюза.
// Возвращает номер заказа, оплата которого поставлена в очередь.
func (s *Service) PayOrder(ctx context.Context, userID int64, cardNumber string) (int64, error) {
	order, err := s.repo.GetActiveOrder(ctx, userID)
	if err != nil {
		return 0, err
	}

	if err := s.gateway.Submit(ctx, order.ID, order.TotalPrice, cardNumber); err != nil {
		return 0, err
	}

	return order.ID, nil
}

// GetOrdersByUser возвращает историю заказов пользователя с результатами оплат.
func (s *Service) GetOrdersByUser(ctx context.Context, userID int64) ([]repository.OrderHistory, error) {
	return s.repo.GetOrdersByUser(ctx, userID)
}

// FinalizeOrder фиксирует результат оплаты заказа. Повторный вызов для уже
// завершённого заказа — no-op.
func (s *Service) FinalizeOrder(ctx context.Context, orderNumber int64, success bool) error {
	return s.repo.FinalizeOrder(ctx, orderNumber, success)
}
