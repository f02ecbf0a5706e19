// internal/service/order/domain/repository.go
package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// OrderRepository 是订单的持久化接口。
// 状态流转都是条件更新：WHERE 带上期望的当前状态，命中返回 true。
// 消费者重复投递和多实例竞争都靠它收敛到恰好一次生效。
type OrderRepository interface {
	Create(tx *gorm.DB, o *Order) error
	Find(ctx context.Context, orderID string) (*Order, error)
	FindInTx(tx *gorm.DB, orderID string) (*Order, error)

	// Transition 将订单从 from 中任一状态流转到 to。命中返回 true。
	Transition(tx *gorm.DB, orderID string, from []State, to State) (bool, error)
}

// SagaRepository 是取消 saga 进度的持久化接口。
type SagaRepository interface {
	// Ensure 为订单建立 saga 行（已存在则只刷新 updated_at）。
	Ensure(tx *gorm.DB, orderID string) error

	// MarkInventoryReleased / MarkPaymentRefunded 以 upsert 置位，
	// 标志单向，重复置位是空操作。
	MarkInventoryReleased(tx *gorm.DB, orderID string) error
	MarkPaymentRefunded(tx *gorm.DB, orderID string) error

	Find(tx *gorm.DB, orderID string) (*SagaState, error)

	// FindStale 取 updated_at 早于 cutoff 且尚未两侧完成的 saga。
	FindStale(ctx context.Context, cutoff time.Time, limit int) ([]*SagaState, error)

	// Touch 刷新 updated_at，让刚被重驱的 saga 不会被下一轮立刻再选中。
	Touch(tx *gorm.DB, orderID string) error
}
