package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/marketplace-system/internal/model"
)

func setupCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisCache(client), mr
}

func TestRedisCache_GetSetDelete(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	if _, err := c.Get(ctx, ProductKey("phone")); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}

	if err := c.Set(ctx, ProductKey("phone"), []byte(`{"model":"phone"}`)); err != nil {
		t.Fatalf("set: %v", err)
	}

	data, err := c.Get(ctx, ProductKey("phone"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != `{"model":"phone"}` {
		t.Fatalf("unexpected value: %s", data)
	}

	if err := c.Delete(ctx, ProductKey("phone")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := c.Get(ctx, ProductKey("phone")); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss after delete, got %v", err)
	}
}

func TestInvalidator_ProductSaved_WatchedFields(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()
	inv := NewInvalidator(c, zap.NewNop())

	seed := func() {
		if err := c.Set(ctx, ProductKey("phone"), []byte("view")); err != nil {
			t.Fatalf("set: %v", err)
		}
	}

	prev := &model.Product{Slug: "phone", Model: "Phone", Description: "old"}

	// Изменение поля, не входящего в представление, кэш не трогает.
	seed()
	curr := *prev
	curr.LimitedEdition = true
	inv.ProductSaved(ctx, prev, &curr)
	if _, err := c.Get(ctx, ProductKey("phone")); err != nil {
		t.Fatalf("cache entry must survive unwatched change: %v", err)
	}

	// Изменение описания сбрасывает ключ.
	seed()
	curr = *prev
	curr.Description = "new"
	inv.ProductSaved(ctx, prev, &curr)
	if _, err := c.Get(ctx, ProductKey("phone")); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss after watched change, got %v", err)
	}
}

func TestInvalidator_ProductOnShopSaved(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()
	inv := NewInvalidator(c, zap.NewNop())

	seed := func() {
		for _, key := range []string{ProductOnShopsKey("phone"), MinPriceKey("phone")} {
			if err := c.Set(ctx, key, []byte("view")); err != nil {
				t.Fatalf("set: %v", err)
			}
		}
	}

	prev := &model.ProductOnShop{Price: decimal.NewFromInt(100), ForSale: true}

	seed()
	curr := *prev
	curr.Quantity = 5
	inv.ProductOnShopSaved(ctx, "phone", prev, &curr)
	if _, err := c.Get(ctx, MinPriceKey("phone")); err != nil {
		t.Fatalf("cache entry must survive quantity change: %v", err)
	}

	seed()
	curr = *prev
	curr.Price = decimal.NewFromInt(90)
	inv.ProductOnShopSaved(ctx, "phone", prev, &curr)
	for _, key := range []string{ProductOnShopsKey("phone"), MinPriceKey("phone")} {
		if _, err := c.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
			t.Fatalf("expected %s invalidated, got %v", key, err)
		}
	}
}

func TestInvalidator_ReviewSaved(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()
	inv := NewInvalidator(c, zap.NewNop())

	keys := []string{CountCommentsKey("phone"), AllCommentsKey("phone"), CommentsKey("phone")}
	for _, key := range keys {
		if err := c.Set(ctx, key, []byte("view")); err != nil {
			t.Fatalf("set: %v", err)
		}
	}

	inv.ReviewSaved(ctx, "phone")

	for _, key := range keys {
		if _, err := c.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
			t.Fatalf("expected %s invalidated, got %v", key, err)
		}
	}
}
