// internal/service/order/domain/saga.go
package domain

import "time"

// SagaState 跟踪一个订单取消 saga 的补偿进度。
// 两个标志只允许 false→true 的单向跃迁：补偿完成信号重复到达时
// 置位是无害的空操作，乱序到达时先到的一侧先置位。
type SagaState struct {
	OrderID           string
	InventoryReleased bool
	PaymentRefunded   bool
	UpdatedAt         time.Time
}

// Completed 两侧补偿都已完成。
func (s *SagaState) Completed() bool {
	return s.InventoryReleased && s.PaymentRefunded
}
