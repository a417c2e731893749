package cache

import (
	"context"

	"go.uber.org/zap"

	"github.com/mmeshcher/marketplace-system/internal/model"
)

// Invalidator удаляет производные ключи кэша при изменении исходных сущностей.
// Вызывается явно из путей записи. Инвалидация — best effort: ошибка кэша
// логируется и не прерывает запись.
type Invalidator struct {
	cache  Cache
	logger *zap.Logger
}

// NewInvalidator создаёт инвалидатор поверх указанного кэша.
func NewInvalidator(cache Cache, logger *zap.Logger) *Invalidator {
	return &Invalidator{
		cache:  cache,
		logger: logger,
	}
}

func (i *Invalidator) delete(ctx context.Context, keys ...string) {
	if err := i.cache.Delete(ctx, keys...); err != nil {
		i.logger.Warn("cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

// ShopSaved сбрасывает представление магазина.
func (i *Invalidator) ShopSaved(ctx context.Context, slug string) {
	i.delete(ctx, ShopKey(slug))
}

// ProductSaved сбрасывает представление товара, если изменилось хотя бы одно
// из полей, попадающих в представление.
func (i *Invalidator) ProductSaved(ctx context.Context, prev, curr *model.Product) {
	if prev != nil && !productViewChanged(prev, curr) {
		return
	}
	i.delete(ctx, ProductKey(curr.Slug))
}

func productViewChanged(prev, curr *model.Product) bool {
	return prev.Model != curr.Model ||
		prev.Description != curr.Description ||
		prev.Code != curr.Code ||
		prev.Manufacturer != curr.Manufacturer ||
		prev.IsActive != curr.IsActive
}

// ProductOnShopSaved сбрасывает представления предложений и минимальной цены,
// если изменилась цена или признак продажи.
func (i *Invalidator) ProductOnShopSaved(ctx context.Context, productSlug string, prev, curr *model.ProductOnShop) {
	if prev != nil && prev.Price.Equal(curr.Price) && prev.ForSale == curr.ForSale {
		return
	}
	i.delete(ctx, ProductOnShopsKey(productSlug), MinPriceKey(productSlug))
}

// TagSaved сбрасывает представление тегов товара.
func (i *Invalidator) TagSaved(ctx context.Context, productSlug string) {
	i.delete(ctx, TagsKey(productSlug))
}

// ReviewSaved сбрасывает представления отзывов товара.
func (i *Invalidator) ReviewSaved(ctx context.Context, productSlug string) {
	i.delete(ctx,
		CountCommentsKey(productSlug),
		AllCommentsKey(productSlug),
		CommentsKey(productSlug),
	)
}

// DiscountsChanged сбрасывает представления, зависящие от скидок товара.
func (i *Invalidator) DiscountsChanged(ctx context.Context, productSlug string) {
	i.delete(ctx, ProductKey(productSlug), MinPriceKey(productSlug))
}
