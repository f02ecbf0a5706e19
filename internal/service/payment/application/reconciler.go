// internal/service/payment/application/reconciler.go
package application

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"orderflow/internal/pkg/metrics"
	"orderflow/internal/service/payment/port"
)

// Reconciler 兜底 webhook 丢失：周期性轮询网关，
// 把网关侧已支付、本地仍未确认的记录补到 PAID。
// 只处理创建时间早于宽限期的记录，给正常的 webhook 到达留出窗口。
type Reconciler struct {
	svc            *Service
	reconcileAfter time.Duration
	batchSize      int
}

func NewReconciler(svc *Service, reconcileAfter time.Duration, batchSize int) *Reconciler {
	return &Reconciler{svc: svc, reconcileAfter: reconcileAfter, batchSize: batchSize}
}

// Run 执行一轮对账，由调度器周期调用。
// 单笔失败只记日志，不中断本轮其余记录。
func (r *Reconciler) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-r.reconcileAfter)
	pending, err := r.svc.repo.FindUnconfirmedBefore(ctx, cutoff, r.batchSize)
	if err != nil {
		return err
	}

	for _, payment := range pending {
		var status, gatewayPaymentID string
		err := r.svc.gatewayGuard.Do(ctx, func(ctx context.Context) error {
			var err error
			status, gatewayPaymentID, err = r.svc.gateway.FetchOrderStatus(ctx, payment.GatewayOrderID)
			return err
		})
		if err != nil {
			log.Warn().Err(err).Str("gateway_order_id", payment.GatewayOrderID).
				Msg("reconcile: gateway poll failed")
			continue
		}
		if status != port.GatewayStatusPaid {
			continue
		}

		// 轮询和写入之间 webhook 可能已经到达；ConfirmPaid 内部的条件更新
		// 保证只有一条路径完成跃迁并发出成功事件。
		transitioned, err := r.svc.ConfirmPaid(ctx, payment.GatewayOrderID, gatewayPaymentID, nil)
		if err != nil {
			log.Error().Err(err).Str("gateway_order_id", payment.GatewayOrderID).
				Msg("reconcile: confirm failed")
			continue
		}
		if transitioned {
			metrics.PaymentsReconciled.Inc()
			log.Info().Str("order_id", payment.OrderID).
				Str("gateway_order_id", payment.GatewayOrderID).
				Msg("payment reconciled from gateway poll")
		}
	}
	return nil
}
