// internal/service/checkout/domain/session.go
package domain

import (
	"errors"
	"time"

	"orderflow/internal/events"
)

// Status 定义了结算会话的生命周期状态
type Status string

const (
	StatusProcessing Status = "PROCESSING" // 库存已预占，等待网关订单创建/支付
	StatusPending    Status = "PENDING"    // 异步支付模式：order-created 已发出，等待支付结果
	StatusCompleted  Status = "COMPLETED"  // 支付验证通过，订单已落地
	StatusExpired    Status = "EXPIRED"    // TTL 到期，预占已回收
)

// Session 是一次进行中的结算。
// 整条记录作为一个值读写，同一会话假定只有单个写入方（发起它的那次结算调用
// 或到期清理器，二者以数据键的删除为交接点）。
type Session struct {
	ID             string            `json:"id"`
	OrderID        string            `json:"orderId"`
	UserID         string            `json:"userId"`
	CartID         string            `json:"cartId,omitempty"`
	Items          []events.ItemLine `json:"items"`
	TotalAmount    int64             `json:"totalAmount"` // 最小货币单位
	Currency       string            `json:"currency"`
	GatewayOrderID string            `json:"gatewayOrderId,omitempty"`
	Status         Status            `json:"status"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// Key 返回会话的存储键：同步支付按网关订单号索引（客户端回调只带它），
// 异步模式退回订单号。
func (s *Session) Key() string {
	if s.GatewayOrderID != "" {
		return s.GatewayOrderID
	}
	return s.OrderID
}

// TotalOf 以最小货币单位计算订单总额。
// 同样的条目永远得到同样的结果，不经过浮点。
func TotalOf(items []events.ItemLine) (int64, error) {
	if len(items) == 0 {
		return 0, errors.New("checkout requires at least one item")
	}
	var total int64
	for _, line := range items {
		if line.SkuCode == "" || line.Quantity <= 0 {
			return 0, errors.New("item lines require a sku and positive quantity")
		}
		if line.UnitPrice < 0 {
			return 0, errors.New("item unit price must not be negative")
		}
		total += line.UnitPrice * int64(line.Quantity)
	}
	return total, nil
}
