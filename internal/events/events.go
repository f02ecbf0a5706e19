// internal/events/events.go
package events

import "time"

// 跨服务事件的载荷定义。每条消息都带 schema 版本号和分区键（orderId 或 skuCode），
// 生产方通过 outbox 发布，消费方按 event-id 消息头幂等去重。

// ItemLine 是订单条目的最小表示。
type ItemLine struct {
	SkuCode   string `json:"skuCode"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"` // 最小货币单位
}

// OrderCreated 发布到 order-created，结算编排器在异步支付模式下发出。
type OrderCreated struct {
	Version        int        `json:"version"`
	OrderID        string     `json:"orderId"`
	UserID         string     `json:"userId"`
	Items          []ItemLine `json:"items"`
	TotalAmount    int64      `json:"totalAmount"`
	Currency       string     `json:"currency"`
	GatewayOrderID string     `json:"gatewayOrderId,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// PaymentOrderCreated 发布到 payment-order-created。
// 异步支付模式下支付服务消费 order-created、在网关开单后发出，
// 结算服务据此把 PENDING 会话挂上网关订单号。
type PaymentOrderCreated struct {
	Version        int       `json:"version"`
	OrderID        string    `json:"orderId"`
	GatewayOrderID string    `json:"gatewayOrderId"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	CreatedAt      time.Time `json:"createdAt"`
}

// OrderPlaced 发布到 order-placed，支付验证通过后由结算服务发出。
type OrderPlaced struct {
	Version     int        `json:"version"`
	OrderID     string     `json:"orderId"`
	UserID      string     `json:"userId"`
	Items       []ItemLine `json:"items"`
	TotalAmount int64      `json:"totalAmount"`
	Currency    string     `json:"currency"`
	PlacedAt    time.Time  `json:"placedAt"`
}

// OrderCancelRequested 发布到 order-cancel，取消 saga 的触发命令。
// 库存服务和支付服务各自消费并执行补偿。
type OrderCancelRequested struct {
	Version     int        `json:"version"`
	OrderID     string     `json:"orderId"`
	Items       []ItemLine `json:"items"`
	RequestedAt time.Time  `json:"requestedAt"`
}

// InventoryLockRequest 发布到 inventory-lock-request，异步预占命令。
type InventoryLockRequest struct {
	Version int        `json:"version"`
	OrderID string     `json:"orderId"`
	Items   []ItemLine `json:"items"`
}

// InventoryLockFailed 发布到 inventory-lock-failed，预占被业务拒绝时发出。
type InventoryLockFailed struct {
	Version int    `json:"version"`
	OrderID string `json:"orderId"`
	SkuCode string `json:"skuCode"`
	Reason  string `json:"reason"`
}

// InventoryUpdated 发布到 inventory-updated，每次 reserve/release/update 之后发出，
// 描述该 SKU 的最新可用量。
type InventoryUpdated struct {
	Version        int       `json:"version"`
	SkuCode        string    `json:"skuCode"`
	Quantity       int       `json:"quantity"`
	Reserved       int       `json:"reserved"`
	AvailableStock int       `json:"availableStock"`
	OrderID        string    `json:"orderId,omitempty"` // 管理员绝对设置时为空
	UpdatedAt      time.Time `json:"updatedAt"`
}

// InventoryReleased 发布到 inventory-released，取消补偿的库存侧完成信号。
type InventoryReleased struct {
	Version    int       `json:"version"`
	OrderID    string    `json:"orderId"`
	ReleasedAt time.Time `json:"releasedAt"`
}

// PaymentSucceeded 发布到 payment-success。每笔支付至多发出一次。
type PaymentSucceeded struct {
	Version          int       `json:"version"`
	OrderID          string    `json:"orderId"`
	GatewayPaymentID string    `json:"gatewayPaymentId"`
	Amount           int64     `json:"amount"`
	Currency         string    `json:"currency"`
	Method           string    `json:"method"`
	PaidAt           time.Time `json:"paidAt"`
}

// PaymentRefunded 发布到 payment-refunded，取消补偿的支付侧完成信号。
type PaymentRefunded struct {
	Version          int       `json:"version"`
	OrderID          string    `json:"orderId"`
	GatewayRefundID  string    `json:"gatewayRefundId"`
	Amount           int64     `json:"amount"`
	RefundedAt       time.Time `json:"refundedAt"`
}

// OrderNotification 发布到 order-notifications，下游通知服务消费。
type OrderNotification struct {
	Version int    `json:"version"`
	OrderID string `json:"orderId"`
	UserID  string `json:"userId"`
	Kind    string `json:"kind"` // placed / paid / cancelled / failed
	Message string `json:"message"`
}
