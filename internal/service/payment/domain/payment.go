// internal/service/payment/domain/payment.go
package domain

import (
	"errors"
	"time"
)

// Status 定义了支付的生命周期状态
type Status string

const (
	StatusCreated  Status = "CREATED"  // 网关订单已创建，等待用户支付
	StatusVerified Status = "VERIFIED" // 客户端签名已验证，等待捕获确认
	StatusPaid     Status = "PAID"     // 已捕获。唯一允许触发下游成功事件的状态
	StatusFailed   Status = "FAILED"   // 支付失败
)

// Payment 是支付聚合根。
// 状态只能向前流转（FAILED 除外）；PAID 每笔支付至多设置一次。
type Payment struct {
	OrderID          string
	GatewayOrderID   string
	GatewayPaymentID string
	Amount           int64 // 最小货币单位
	Currency         string
	Status           Status
	Method           *MethodDetails
	RefundID         string
	RefundedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewPayment 为订单创建一笔待支付记录。
func NewPayment(orderID, gatewayOrderID string, amount int64, currency string) (*Payment, error) {
	if orderID == "" || gatewayOrderID == "" {
		return nil, errors.New("order id and gateway order id are required")
	}
	if amount <= 0 {
		return nil, errors.New("payment amount must be positive")
	}
	now := time.Now()
	return &Payment{
		OrderID:        orderID,
		GatewayOrderID: gatewayOrderID,
		Amount:         amount,
		Currency:       currency,
		Status:         StatusCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// MarkVerified 客户端签名验证通过。
func (p *Payment) MarkVerified() error {
	if p.Status != StatusCreated {
		return errors.New("payment can only be verified from CREATED state")
	}
	p.Status = StatusVerified
	p.UpdatedAt = time.Now()
	return nil
}

// IsPaid 判断是否已到达 PAID。
func (p *Payment) IsPaid() bool {
	return p.Status == StatusPaid
}

// IsRefunded 判断退款是否已执行过。
func (p *Payment) IsRefunded() bool {
	return p.RefundID != ""
}
