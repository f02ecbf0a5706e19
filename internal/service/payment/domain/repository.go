// internal/service/payment/domain/repository.go
package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// PaymentRepository 是支付记录的持久化接口。
// PAID 和退款的写入都是条件更新：由数据库保证至多生效一次，
// 这是 webhook 与对账任务竞争时不双发成功事件的根基。
type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	// CreateInTx 在调用方事务里落记录，异步模式的消费侧与去重记录同事务提交。
	CreateInTx(tx *gorm.DB, p *Payment) error
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Payment, error)
	FindByOrderID(ctx context.Context, orderID string) (*Payment, error)

	// MarkVerified 仅当仍处于 CREATED 时生效。
	MarkVerified(ctx context.Context, gatewayOrderID string) error

	// MarkPaid 条件更新 status <> PAID。命中返回 true，
	// 返回 false 说明另一条路径（webhook 或对账）已经先一步置为 PAID。
	MarkPaid(tx *gorm.DB, gatewayOrderID, gatewayPaymentID string, method *MethodDetails, paidAt time.Time) (bool, error)

	// MarkFailed 终态流转，不覆盖 PAID。
	MarkFailed(ctx context.Context, gatewayOrderID string) error

	// MarkRefunded 条件更新 refund_id 为空的行。命中返回 true。
	MarkRefunded(tx *gorm.DB, orderID, refundID string, refundedAt time.Time) (bool, error)

	// FindUnconfirmedBefore 取创建时间早于 cutoff、仍在 CREATED/VERIFIED 的支付，
	// 供对账任务轮询网关。
	FindUnconfirmedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Payment, error)
}
