package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/marketplace-system/internal/cache"
	"github.com/mmeshcher/marketplace-system/internal/model"
	"github.com/mmeshcher/marketplace-system/internal/pricing"
)

// ProductView — кэшируемое представление карточки товара с минимальной ценой
// по магазинам после применения приоритетной скидки.
type ProductView struct {
	ID             int64           `json:"id"`
	Model          string          `json:"model"`
	Description    string          `json:"description"`
	Slug           string          `json:"slug"`
	Code           string          `json:"code"`
	Manufacturer   string          `json:"manufacturer"`
	LimitedEdition bool            `json:"limited_edition"`
	Price          decimal.Decimal `json:"price"`
	Discount       string          `json:"discount,omitempty"`
	Tags           []string        `json:"tags"`
}

// ShopView — кэшируемое представление магазина.
type ShopView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Slug        string `json:"slug"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
}

// OfferView — кэшируемое представление предложения товара в магазине.
type OfferView struct {
	ID       int64           `json:"id"`
	ShopID   int64           `json:"shop_id"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// ReviewView — кэшируемое представление отзыва.
type ReviewView struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// cached читает значение из кэша по ключу, а при промахе загружает его,
// кладёт в кэш и возвращает. Ошибки записи в кэш логируются и не прерывают чтение.
func cached[T any](ctx context.Context, s *Service, key string, load func(ctx context.Context) (T, error)) (T, error) {
	var v T

	data, err := s.cache.Get(ctx, key)
	if err == nil {
		if err := json.Unmarshal(data, &v); err == nil {
			return v, nil
		}
		s.logger.Warn("corrupt cache entry", zap.String("key", key))
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	v, err = load(ctx)
	if err != nil {
		return v, err
	}

	if data, err := json.Marshal(v); err == nil {
		if err := s.cache.Set(ctx, key, data); err != nil {
			s.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
	}

	return v, nil
}

// GetProduct возвращает представление товара из кэша или собирает его из БД.
func (s *Service) GetProduct(ctx context.Context, slug string) (ProductView, error) {
	return cached(ctx, s, cache.ProductKey(slug), func(ctx context.Context) (ProductView, error) {
		var view ProductView

		p, err := s.repo.GetProductBySlug(ctx, slug)
		if err != nil {
			return view, err
		}

		view = ProductView{
			ID:             p.ID,
			Model:          p.Model,
			Description:    p.Description,
			Slug:           p.Slug,
			Code:           p.Code,
			Manufacturer:   p.Manufacturer,
			LimitedEdition: p.LimitedEdition,
			Tags:           []string{},
		}

		price, winner, err := s.discountedMinPrice(ctx, p)
		if err == nil {
			view.Price = price
			if winner != nil {
				view.Discount = winner.Name
			}
		}

		tags, err := s.repo.GetTags(ctx, slug)
		if err != nil {
			return view, err
		}
		for _, t := range tags {
			view.Tags = append(view.Tags, t.Name)
		}

		return view, nil
	})
}

// discountedMinPrice возвращает минимальную цену товара по магазинам после
// применения приоритетной скидки.
func (s *Service) discountedMinPrice(ctx context.Context, p *model.Product) (decimal.Decimal, *model.Discount, error) {
	base, err := s.repo.GetMinPrice(ctx, p.Slug)
	if err != nil {
		return decimal.Zero, nil, err
	}

	discounts, err := s.repo.GetDiscountsForProduct(ctx, p.ID)
	if err != nil {
		return decimal.Zero, nil, err
	}

	price, winner := pricing.Resolve(base, discounts, time.Now())
	return price, winner, nil
}

// GetMinPrice возвращает минимальную цену товара с учётом скидки, из кэша
// или из БД.
func (s *Service) GetMinPrice(ctx context.Context, slug string) (decimal.Decimal, error) {
	return cached(ctx, s, cache.MinPriceKey(slug), func(ctx context.Context) (decimal.Decimal, error) {
		p, err := s.repo.GetProductBySlug(ctx, slug)
		if err != nil {
			return decimal.Zero, err
		}
		price, _, err := s.discountedMinPrice(ctx, p)
		return price, err
	})
}

// GetShop возвращает представление магазина из кэша или из БД.
func (s *Service) GetShop(ctx context.Context, slug string) (ShopView, error) {
	return cached(ctx, s, cache.ShopKey(slug), func(ctx context.Context) (ShopView, error) {
		var view ShopView

		shop, err := s.repo.GetShopBySlug(ctx, slug)
		if err != nil {
			return view, err
		}

		return ShopView{
			ID:          shop.ID,
			Name:        shop.Name,
			Description: shop.Description,
			Slug:        shop.Slug,
			Phone:       shop.Phone,
			Email:       shop.Email,
		}, nil
	})
}

// GetOffers возвращает предложения товара по магазинам из кэша или из БД.
func (s *Service) GetOffers(ctx context.Context, slug string) ([]OfferView, error) {
	return cached(ctx, s, cache.ProductOnShopsKey(slug), func(ctx context.Context) ([]OfferView, error) {
		offers, err := s.repo.GetOffersForProduct(ctx, slug)
		if err != nil {
			return nil, err
		}

		views := make([]OfferView, 0, len(offers))
		for _, o := range offers {
			views = append(views, OfferView{
				ID:       o.ID,
				ShopID:   o.ShopID,
				Quantity: o.Quantity,
				Price:    o.Price,
			})
		}
		return views, nil
	})
}

// GetReviews возвращает отзывы о товаре из кэша или из БД.
func (s *Service) GetReviews(ctx context.Context, slug string) ([]ReviewView, error) {
	return cached(ctx, s, cache.AllCommentsKey(slug), func(ctx context.Context) ([]ReviewView, error) {
		reviews, err := s.repo.GetReviews(ctx, slug)
		if err != nil {
			return nil, err
		}

		views := make([]ReviewView, 0, len(reviews))
		for _, r := range reviews {
			views = append(views, ReviewView{
				ID:        r.ID,
				UserID:    r.UserID,
				Text:      r.Text,
				CreatedAt: r.CreatedAt,
			})
		}
		return views, nil
	})
}

// CountReviews возвращает число отзывов о товаре из кэша или из БД.
func (s *Service) CountReviews(ctx context.Context, slug string) (int, error) {
	return cached(ctx, s, cache.CountCommentsKey(slug), func(ctx context.Context) (int, error) {
		return s.repo.CountReviews(ctx, slug)
	})
}

// AddReview сохраняет отзыв о товаре и сбрасывает кэш отзывов.
func (s *Service) AddReview(ctx context.Context, userID int64, slug, text string) (*model.Review, error) {
	review, err := s.repo.AddReview(ctx, userID, slug, text)
	if err != nil {
		return nil, err
	}

	s.invalidator.ReviewSaved(ctx, slug)

	return review, nil
}

// UpdateProduct сохраняет карточку товара и сбрасывает её представление,
// если изменилось хотя бы одно из отображаемых полей.
func (s *Service) UpdateProduct(ctx context.Context, p model.Product) error {
	prev, err := s.repo.UpdateProduct(ctx, p)
	if err != nil {
		return err
	}

	curr := p
	curr.Slug = prev.Slug
	s.invalidator.ProductSaved(ctx, prev, &curr)

	return nil
}

// SetOfferPrice обновляет цену предложения и сбрасывает представления
// предложений и минимальной цены товара при её изменении.
func (s *Service) SetOfferPrice(ctx context.Context, offerID int64, price decimal.Decimal) error {
	prev, curr, productSlug, err := s.repo.SetOfferPrice(ctx, offerID, price)
	if err != nil {
		return err
	}

	s.invalidator.ProductOnShopSaved(ctx, productSlug, prev, curr)

	return nil
}
