// Package cache содержит кэш производных представлений каталога и
// логику его явной инвалидации на путях записи.
package cache

import (
	"context"
	"errors"
	"fmt"
)

// ErrCacheMiss возвращается, если значение по ключу отсутствует в кэше.
var ErrCacheMiss = errors.New("cache miss")

// Cache описывает контракт хранилища кэша представлений.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}

// Ключи кэша привязаны к slug сущности и имени представления.

func ShopKey(slug string) string           { return fmt.Sprintf("shop:%s", slug) }
func ProductKey(slug string) string        { return fmt.Sprintf("product:%s", slug) }
func ProductOnShopsKey(slug string) string { return fmt.Sprintf("product_on_shops:%s", slug) }
func MinPriceKey(slug string) string       { return fmt.Sprintf("min_price:%s", slug) }
func TagsKey(slug string) string           { return fmt.Sprintf("tags:%s", slug) }
func CountCommentsKey(slug string) string  { return fmt.Sprintf("count_comments:%s", slug) }
func AllCommentsKey(slug string) string    { return fmt.Sprintf("all_comments:%s", slug) }
func CommentsKey(slug string) string       { return fmt.Sprintf("comments:%s", slug) }
