// internal/service/order/domain/order.go
package domain

import (
	"errors"
	"time"

	"orderflow/internal/events"
)

// Order 是订单聚合的根实体
type Order struct {
	ID          string
	UserID      string
	Items       []events.ItemLine
	TotalAmount int64
	Currency    string
	State       State
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// 工厂函数: NewOrder 从 order-created 事件创建订单实例
func NewOrder(evt *events.OrderCreated) (*Order, error) {
	if evt.OrderID == "" || len(evt.Items) == 0 {
		return nil, errors.New("cannot create order with empty required fields")
	}

	now := time.Now()
	return &Order{
		ID:          evt.OrderID,
		UserID:      evt.UserID,
		Items:       evt.Items,
		TotalAmount: evt.TotalAmount,
		Currency:    evt.Currency,
		State:       StatePendingPayment,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// CanRequestCancel 判断当前状态能否发起取消。
// CANCELLED、FAILED 是终态；CANCEL_REQUESTED 重复发起是无害的空操作，由调用方处理。
func (o *Order) CanRequestCancel() bool {
	switch o.State {
	case StateCreated, StatePendingPayment, StatePaid:
		return true
	}
	return false
}
