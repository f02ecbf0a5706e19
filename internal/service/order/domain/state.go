// internal/service/order/domain/state.go
package domain

// State 定义了订单的生命周期状态
type State string

const (
	StateCreated         State = "CREATED"          // 订单已在系统中记录
	StatePendingPayment  State = "PENDING_PAYMENT"  // 等待支付结果
	StatePaid            State = "PAID"             // 已支付
	StateCancelRequested State = "CANCEL_REQUESTED" // 取消 saga 进行中，等待两侧补偿完成
	StateCancelled       State = "CANCELLED"        // 已取消，补偿全部完成
	StateFailed          State = "FAILED"           // 订单处理失败（库存拒绝、支付失败）
)
