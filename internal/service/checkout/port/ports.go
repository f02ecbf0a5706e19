// internal/service/checkout/port/ports.go
package port

import (
	"context"

	"orderflow/internal/events"
	"orderflow/internal/service/checkout/domain"
)

// InventoryService 是对库存台账的出站端口。
type InventoryService interface {
	Reserve(ctx context.Context, orderID string, items []events.ItemLine) error
	// Release 是补偿路径，按 order+sku 幂等，可安全重复调用。
	Release(ctx context.Context, orderID string, items []events.ItemLine) error
}

// PaymentService 是对支付服务的出站端口。
type PaymentService interface {
	CreateOrder(ctx context.Context, orderID string, amount int64, currency string) (gatewayOrderID string, err error)
}

// CartService 解析购物车引用并在下单后清空。
type CartService interface {
	Items(ctx context.Context, userID, cartID string) ([]events.ItemLine, error)
	Clear(ctx context.Context, userID, cartID string) error
}

// SessionStore 持久化结算会话。
// Delete 返回本次调用是否真正删除了数据键：到期清理和正常完成
// 以它为交接点，保证每个会话只被清理一次。
type SessionStore interface {
	Save(ctx context.Context, s *domain.Session) error
	Find(ctx context.Context, key string) (*domain.Session, error)
	Delete(ctx context.Context, key string) (bool, error)
}

// IdempotencyStore 记录已见过的结算幂等键。
type IdempotencyStore interface {
	// Claim 尝试占用 key。返回 false 表示键已被更早的请求占用。
	Claim(ctx context.Context, key string) (bool, error)
	// Release 归还 key。结算明确失败且没有留下持久效果时调用，
	// 客户端带同一个键重试不会再被挡。
	Release(ctx context.Context, key string) error
}
