// internal/service/order/infrastructure/kafka_consumer.go
package infrastructure

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"gorm.io/gorm"

	"orderflow/internal/events"
	"orderflow/internal/pkg/inbox"
	"orderflow/internal/pkg/mq"
	"orderflow/internal/service/order/application"
	"orderflow/internal/service/order/domain"
)

// eventIDOf 从消息头取 outbox 事件号，缺失时退回合成键。
func eventIDOf(msg kafka.Message, fallbackPrefix, orderID string) string {
	if id := mq.GetHeader(msg, "event-id"); id != "" {
		return id
	}
	return fallbackPrefix + ":" + orderID
}

// PlacementConsumer 消费 order-created 和 order-placed，把订单落进本地表。
type PlacementConsumer struct {
	orc   *application.Orchestrator
	guard *inbox.Guard
}

func NewPlacementConsumer(orc *application.Orchestrator, guard *inbox.Guard) *PlacementConsumer {
	return &PlacementConsumer{orc: orc, guard: guard}
}

// Handle 实现 mq.MessageHandler。两个主题的载荷字段兼容，共用一个处理器。
func (c *PlacementConsumer) Handle(ctx context.Context, msg kafka.Message) error {
	var evt events.OrderCreated
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		log.Error().Err(err).Str("topic", msg.Topic).Msg("skipping malformed order event")
		return nil
	}

	order, err := domain.NewOrder(&evt)
	if err != nil {
		log.Error().Err(err).Str("order_id", evt.OrderID).Msg("skipping invalid order event")
		return nil
	}

	return c.guard.Execute(ctx, eventIDOf(msg, "order-persist", evt.OrderID), func(tx *gorm.DB) error {
		return c.orc.PersistCreatedOrder(tx, order)
	})
}

// PaymentSuccessConsumer 消费 payment-success：订单转 PAID 并转发通知。
type PaymentSuccessConsumer struct {
	orc   *application.Orchestrator
	guard *inbox.Guard
}

func NewPaymentSuccessConsumer(orc *application.Orchestrator, guard *inbox.Guard) *PaymentSuccessConsumer {
	return &PaymentSuccessConsumer{orc: orc, guard: guard}
}

func (c *PaymentSuccessConsumer) Handle(ctx context.Context, msg kafka.Message) error {
	var evt events.PaymentSucceeded
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		log.Error().Err(err).Str("topic", msg.Topic).Msg("skipping malformed payment-success event")
		return nil
	}

	// 支付确认可能先于下单事件到达：编排器对找不到的订单返回错误，
	// 消息不被确认，等订单落库后重投
	return c.guard.Execute(ctx, eventIDOf(msg, "payment-success", evt.OrderID), func(tx *gorm.DB) error {
		return c.orc.ApplyPaymentSucceeded(tx, &evt)
	})
}

// CompensationConsumer 消费补偿完成信号（inventory-released / payment-refunded），
// 置位 saga 标志并在两侧齐活时完成取消。
type CompensationConsumer struct {
	orc   *application.Orchestrator
	guard *inbox.Guard
}

func NewCompensationConsumer(orc *application.Orchestrator, guard *inbox.Guard) *CompensationConsumer {
	return &CompensationConsumer{orc: orc, guard: guard}
}

// HandleInventoryReleased 实现 mq.MessageHandler。
func (c *CompensationConsumer) HandleInventoryReleased(ctx context.Context, msg kafka.Message) error {
	var evt events.InventoryReleased
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		log.Error().Err(err).Str("topic", msg.Topic).Msg("skipping malformed inventory-released event")
		return nil
	}

	return c.guard.Execute(ctx, eventIDOf(msg, "inventory-released", evt.OrderID), func(tx *gorm.DB) error {
		return c.orc.ApplyInventoryReleased(tx, evt.OrderID)
	})
}

// HandlePaymentRefunded 实现 mq.MessageHandler。
func (c *CompensationConsumer) HandlePaymentRefunded(ctx context.Context, msg kafka.Message) error {
	var evt events.PaymentRefunded
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		log.Error().Err(err).Str("topic", msg.Topic).Msg("skipping malformed payment-refunded event")
		return nil
	}

	return c.guard.Execute(ctx, eventIDOf(msg, "payment-refunded", evt.OrderID), func(tx *gorm.DB) error {
		return c.orc.ApplyPaymentRefunded(tx, evt.OrderID)
	})
}

// LockFailedConsumer 消费 inventory-lock-failed：异步预占被拒，订单转 FAILED。
type LockFailedConsumer struct {
	orc   *application.Orchestrator
	guard *inbox.Guard
}

func NewLockFailedConsumer(orc *application.Orchestrator, guard *inbox.Guard) *LockFailedConsumer {
	return &LockFailedConsumer{orc: orc, guard: guard}
}

func (c *LockFailedConsumer) Handle(ctx context.Context, msg kafka.Message) error {
	var evt events.InventoryLockFailed
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		log.Error().Err(err).Str("topic", msg.Topic).Msg("skipping malformed lock-failed event")
		return nil
	}

	return c.guard.Execute(ctx, eventIDOf(msg, "lock-failed", evt.OrderID), func(tx *gorm.DB) error {
		return c.orc.ApplyLockFailed(tx, &evt)
	})
}
