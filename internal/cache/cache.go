// Package cache содержит короткоживущий кэш каталога поверх Redis.
//
// Кэш используется только для отображения каталога. Решение о возможности
// покупки всегда принимается транзакционно в хранилище, кэш на пути записи
// не применяется.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ntarasau/vapeshop-backend/internal/model"
)

const productsKey = "catalog:products"

// ErrMiss возвращается при отсутствии значения в кэше.
var ErrMiss = errors.New("cache miss")

// Cache хранит сериализованный каталог с TTL секундного масштаба.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New создаёт кэш каталога. TTL ограничивает устаревание витрины.
func New(addr string, ttl time.Duration) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &Cache{rdb: rdb, ttl: ttl}, nil
}

// Close закрывает соединение с Redis.
func (c *Cache) Close() error {
	return c.rdb.Close()
}

// GetProducts возвращает закэшированный каталог либо ErrMiss.
func (c *Cache) GetProducts(ctx context.Context) ([]model.Product, error) {
	data, err := c.rdb.Get(ctx, productsKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("get products: %w", err)
	}

	var products []model.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, fmt.Errorf("unmarshal products: %w", err)
	}
	return products, nil
}

// SetProducts сохраняет каталог в кэш.
func (c *Cache) SetProducts(ctx context.Context, products []model.Product) error {
	data, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("marshal products: %w", err)
	}
	if err := c.rdb.Set(ctx, productsKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set products: %w", err)
	}
	return nil
}

// Invalidate сбрасывает кэш каталога после мутаций товаров.
func (c *Cache) Invalidate(ctx context.Context) error {
	if err := c.rdb.Del(ctx, productsKey).Err(); err != nil {
		return fmt.Errorf("invalidate products: %w", err)
	}
	return nil
}
