// internal/service/checkout/infrastructure/redis_cart_adapter.go
package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"

	"orderflow/internal/events"
	"orderflow/internal/pkg/redis"
)

// CartRedisAdapter 实现 port.CartService。
// 购物车是一个 hash：field 为 skuCode，value 为条目 JSON。
type CartRedisAdapter struct {
	client *redis.Client
}

func NewCartRedisAdapter(client *redis.Client) *CartRedisAdapter {
	return &CartRedisAdapter{client: client}
}

func cartKey(userID, cartID string) string {
	return fmt.Sprintf("cart:{%s}:%s", userID, cartID)
}

// Items 解析购物车条目。
func (a *CartRedisAdapter) Items(ctx context.Context, userID, cartID string) ([]events.ItemLine, error) {
	fields, err := a.client.GetClient().HGetAll(ctx, cartKey(userID, cartID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load cart %s: %w", cartID, err)
	}

	items := make([]events.ItemLine, 0, len(fields))
	for sku, raw := range fields {
		var line events.ItemLine
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			return nil, fmt.Errorf("corrupt cart line for sku %s: %w", sku, err)
		}
		items = append(items, line)
	}
	return items, nil
}

// Clear 在下单后清空购物车。
func (a *CartRedisAdapter) Clear(ctx context.Context, userID, cartID string) error {
	return a.client.GetClient().Del(ctx, cartKey(userID, cartID)).Err()
}

// AddItem (测试和管理用) 向购物车写入一个条目。
func (a *CartRedisAdapter) AddItem(ctx context.Context, userID, cartID string, line events.ItemLine) error {
	raw, err := json.Marshal(line)
	if err != nil {
		return err
	}
	return a.client.GetClient().HSet(ctx, cartKey(userID, cartID), line.SkuCode, raw).Err()
}
