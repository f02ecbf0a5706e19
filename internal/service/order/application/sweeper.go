// internal/service/order/application/sweeper.go
package application

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"orderflow/internal/pkg/metrics"
	"orderflow/internal/service/order/domain"
)

// Sweeper 重驱卡住的取消 saga：下游消费失败或补偿事件丢失时，
// 订单会停在 CANCEL_REQUESTED。周期性找出超过阈值没有进展的 saga，
// 重发 order-cancel 命令。下游按 order+sku / 支付号幂等，重驱无害。
type Sweeper struct {
	orc        *Orchestrator
	stuckAfter time.Duration
	batchSize  int
}

func NewSweeper(orc *Orchestrator, stuckAfter time.Duration, batchSize int) *Sweeper {
	return &Sweeper{orc: orc, stuckAfter: stuckAfter, batchSize: batchSize}
}

// Run 执行一轮扫描，由调度器周期调用。
// 单个 saga 失败只记日志，不中断本轮其余 saga。
func (s *Sweeper) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.stuckAfter)
	stale, err := s.orc.sagas.FindStale(ctx, cutoff, s.batchSize)
	if err != nil {
		return err
	}

	for _, saga := range stale {
		if err := s.redrive(ctx, saga); err != nil {
			log.Error().Err(err).Str("order_id", saga.OrderID).Msg("failed to redrive stuck saga")
		}
	}
	return nil
}

func (s *Sweeper) redrive(ctx context.Context, saga *domain.SagaState) error {
	order, err := s.orc.orders.Find(ctx, saga.OrderID)
	if err != nil {
		return err
	}

	return s.orc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 订单已离开 CANCEL_REQUESTED（完成或人工处理）：只刷新时间戳让它退出候选
		if order.State != domain.StateCancelRequested {
			return s.orc.sagas.Touch(tx, saga.OrderID)
		}

		if err := s.orc.appendCancelCommand(tx, order); err != nil {
			return err
		}
		// 刷新 updated_at，避免下一轮立刻再次选中
		if err := s.orc.sagas.Touch(tx, saga.OrderID); err != nil {
			return err
		}

		metrics.StuckSagasRetried.Inc()
		log.Warn().Str("order_id", saga.OrderID).
			Bool("inventory_released", saga.InventoryReleased).
			Bool("payment_refunded", saga.PaymentRefunded).
			Msg("stuck cancellation saga redriven")
		return nil
	})
}
