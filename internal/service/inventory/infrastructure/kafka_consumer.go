// internal/service/inventory/infrastructure/kafka_consumer.go
package infrastructure

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"gorm.io/gorm"

	"orderflow/internal/events"
	"orderflow/internal/pkg/inbox"
	"orderflow/internal/pkg/mq"
	"orderflow/internal/service/inventory/application"
	"orderflow/internal/service/inventory/domain"
)

// CancelConsumer 消费 order-cancel，释放订单预占并发出 inventory-released。
// 释放与去重记录、补偿完成事件同事务提交。
type CancelConsumer struct {
	svc   *application.Service
	guard *inbox.Guard
}

func NewCancelConsumer(svc *application.Service, guard *inbox.Guard) *CancelConsumer {
	return &CancelConsumer{svc: svc, guard: guard}
}

// Handle 实现 mq.MessageHandler。
func (c *CancelConsumer) Handle(ctx context.Context, msg kafka.Message) error {
	var evt events.OrderCancelRequested
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		// 无法解析的消息重投也不会成功，记录后跳过
		log.Error().Err(err).Str("topic", msg.Topic).Msg("skipping malformed cancel event")
		return nil
	}

	eventID := mq.GetHeader(msg, "event-id")
	if eventID == "" {
		eventID = "order-cancel:" + evt.OrderID
	}

	return c.guard.Execute(ctx, eventID, func(tx *gorm.DB) error {
		return c.svc.ReleaseForOrderInTx(tx, evt.OrderID, evt.Items)
	})
}

// LockRequestConsumer 消费 inventory-lock-request，执行异步预占。
// 业务拒绝（库存不足）不算处理失败：在同一事务里落一条
// inventory-lock-failed 事件并确认消息。
type LockRequestConsumer struct {
	svc   *application.Service
	guard *inbox.Guard
}

func NewLockRequestConsumer(svc *application.Service, guard *inbox.Guard) *LockRequestConsumer {
	return &LockRequestConsumer{svc: svc, guard: guard}
}

// Handle 实现 mq.MessageHandler。
func (c *LockRequestConsumer) Handle(ctx context.Context, msg kafka.Message) error {
	var req events.InventoryLockRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		log.Error().Err(err).Str("topic", msg.Topic).Msg("skipping malformed lock request")
		return nil
	}

	eventID := mq.GetHeader(msg, "event-id")
	if eventID == "" {
		eventID = "inventory-lock:" + req.OrderID
	}

	return c.guard.Execute(ctx, eventID, func(tx *gorm.DB) error {
		// 预占放进嵌套事务（savepoint）：部分条目失败时回滚全部预占，
		// 但外层的 lock-failed 事件和去重记录仍然提交。
		err := tx.Transaction(func(inner *gorm.DB) error {
			return c.svc.ReserveForOrderInTx(inner, req.OrderID, req.Items)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrInsufficientStock) {
			log.Warn().Str("order_id", req.OrderID).Msg("async lock rejected, emitting lock-failed")
			return c.svc.AppendLockFailedEvent(tx, req.OrderID, firstSku(req.Items), "insufficient stock")
		}
		return err
	})
}

func firstSku(items []events.ItemLine) string {
	if len(items) == 0 {
		return ""
	}
	return items[0].SkuCode
}
