// internal/service/order/application/orchestrator.go
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"orderflow/internal/events"
	"orderflow/internal/pkg/constants"
	"orderflow/internal/pkg/metrics"
	"orderflow/internal/pkg/outbox"
	"orderflow/internal/service/order/domain"
)

const aggregateType = "order"

// Orchestrator 驱动订单生命周期和取消 saga。
// 取消的补偿命令经由 outbox 发出；两侧的完成信号各自置位 saga 标志，
// 任一侧置位后检查是否齐活，齐活则在同一事务里把订单收敛到 CANCELLED。
type Orchestrator struct {
	db     *gorm.DB
	orders domain.OrderRepository
	sagas  domain.SagaRepository
	outbox *outbox.Store
	tracer trace.Tracer
}

func NewOrchestrator(db *gorm.DB, orders domain.OrderRepository, sagas domain.SagaRepository,
	store *outbox.Store, tracer trace.Tracer) *Orchestrator {
	return &Orchestrator{db: db, orders: orders, sagas: sagas, outbox: store, tracer: tracer}
}

// DB 暴露给消费者装配使用。
func (o *Orchestrator) DB() *gorm.DB {
	return o.db
}

// RequestCancellation 发起订单取消。
// 状态流转、saga 行建立和 order-cancel 命令在一个事务里落库。
// 订单已处于 CANCEL_REQUESTED 时是无害的空操作。
func (o *Orchestrator) RequestCancellation(ctx context.Context, orderID string) error {
	ctx, span := o.tracer.Start(ctx, "order.RequestCancellation")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	order, err := o.orders.Find(ctx, orderID)
	if err != nil {
		return err
	}

	return o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := o.orders.Transition(tx, orderID,
			[]domain.State{domain.StateCreated, domain.StatePendingPayment, domain.StatePaid},
			domain.StateCancelRequested)
		if err != nil {
			return err
		}
		if !ok {
			// 条件更新落空：重新读一次区分"已在取消中"和"终态不可取消"
			current, err := o.orders.Find(ctx, orderID)
			if err != nil {
				return err
			}
			if current.State == domain.StateCancelRequested {
				log.Info().Str("order_id", orderID).Msg("cancellation already in progress")
				return nil
			}
			return errors.Wrapf(domain.ErrInvalidTransition, "order %s is %s", orderID, current.State)
		}

		if err := o.sagas.Ensure(tx, orderID); err != nil {
			return err
		}
		if err := o.appendCancelCommand(tx, order); err != nil {
			return err
		}

		log.Info().Str("order_id", orderID).Msg("cancellation saga started")
		return nil
	})
}

// ApplyInventoryReleased 记录库存侧补偿完成，并在两侧齐活时完成 saga。
// 由 inventory-released 消费者在 inbox guard 的事务里调用。
func (o *Orchestrator) ApplyInventoryReleased(tx *gorm.DB, orderID string) error {
	if err := o.sagas.MarkInventoryReleased(tx, orderID); err != nil {
		return err
	}
	return o.completeIfDone(tx, orderID)
}

// ApplyPaymentRefunded 记录支付侧补偿完成，并在两侧齐活时完成 saga。
func (o *Orchestrator) ApplyPaymentRefunded(tx *gorm.DB, orderID string) error {
	if err := o.sagas.MarkPaymentRefunded(tx, orderID); err != nil {
		return err
	}
	return o.completeIfDone(tx, orderID)
}

// completeIfDone 两个标志都置位且订单仍在 CANCEL_REQUESTED 时收敛到 CANCELLED。
// 条件流转保证并发的两个完成信号只有一个真正执行收尾。
func (o *Orchestrator) completeIfDone(tx *gorm.DB, orderID string) error {
	saga, err := o.sagas.Find(tx, orderID)
	if err != nil {
		return err
	}
	if !saga.Completed() {
		return nil
	}

	ok, err := o.orders.Transition(tx, orderID,
		[]domain.State{domain.StateCancelRequested}, domain.StateCancelled)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	metrics.SagasCompleted.Inc()
	log.Info().Str("order_id", orderID).Msg("cancellation saga completed")

	order, err := o.orders.FindInTx(tx, orderID)
	if err != nil {
		return err
	}
	return o.appendNotification(tx, order.ID, order.UserID, "cancelled",
		fmt.Sprintf("order %s has been cancelled and refunded", orderID))
}

// PersistCreatedOrder 处理 order-created / order-placed：落一条 PENDING_PAYMENT 订单
// 并转发一条下单通知。由消费者在 inbox guard 的事务里调用。
func (o *Orchestrator) PersistCreatedOrder(tx *gorm.DB, order *domain.Order) error {
	if err := o.orders.Create(tx, order); err != nil {
		return err
	}
	return o.appendNotification(tx, order.ID, order.UserID, "placed",
		fmt.Sprintf("order %s has been placed", order.ID))
}

// ApplyPaymentSucceeded 处理 payment-success：PENDING_PAYMENT → PAID。
// 订单已是 PAID 或已进入取消流程时落空，不报错。
func (o *Orchestrator) ApplyPaymentSucceeded(tx *gorm.DB, evt *events.PaymentSucceeded) error {
	ok, err := o.orders.Transition(tx, evt.OrderID,
		[]domain.State{domain.StatePendingPayment}, domain.StatePaid)
	if err != nil {
		return err
	}
	if !ok {
		// 区分"订单在别的状态"和"下单事件还没到"：
		// 后者返回错误回滚，消息等重投，届时订单已落库
		if _, err := o.orders.FindInTx(tx, evt.OrderID); err != nil {
			return err
		}
		log.Debug().Str("order_id", evt.OrderID).Msg("payment-success arrived for non-pending order")
		return nil
	}

	order, err := o.orders.FindInTx(tx, evt.OrderID)
	if err != nil {
		return err
	}
	return o.appendNotification(tx, order.ID, order.UserID, "paid",
		fmt.Sprintf("payment for order %s is confirmed", order.ID))
}

// ApplyLockFailed 处理 inventory-lock-failed：异步预占被拒，订单转 FAILED。
func (o *Orchestrator) ApplyLockFailed(tx *gorm.DB, evt *events.InventoryLockFailed) error {
	ok, err := o.orders.Transition(tx, evt.OrderID,
		[]domain.State{domain.StateCreated, domain.StatePendingPayment}, domain.StateFailed)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	order, err := o.orders.FindInTx(tx, evt.OrderID)
	if err != nil {
		return err
	}
	return o.appendNotification(tx, order.ID, order.UserID, "failed",
		fmt.Sprintf("order %s failed: %s", order.ID, evt.Reason))
}

// appendCancelCommand 把 order-cancel 命令写进 outbox。
func (o *Orchestrator) appendCancelCommand(tx *gorm.DB, order *domain.Order) error {
	evt, err := outbox.NewEvent(aggregateType, order.ID, "order-cancel-requested",
		constants.TopicOrderCancel, order.ID, events.OrderCancelRequested{
			Version:     1,
			OrderID:     order.ID,
			Items:       order.Items,
			RequestedAt: time.Now().UTC(),
		})
	if err != nil {
		return err
	}
	return o.outbox.Append(tx, evt)
}

func (o *Orchestrator) appendNotification(tx *gorm.DB, orderID, userID, kind, message string) error {
	evt, err := outbox.NewEvent(aggregateType, orderID, "order-notification",
		constants.TopicOrderNotifications, orderID, events.OrderNotification{
			Version: 1,
			OrderID: orderID,
			UserID:  userID,
			Kind:    kind,
			Message: message,
		})
	if err != nil {
		return err
	}
	return o.outbox.Append(tx, evt)
}
