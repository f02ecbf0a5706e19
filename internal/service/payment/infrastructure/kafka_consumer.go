// internal/service/payment/infrastructure/kafka_consumer.go
package infrastructure

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"orderflow/internal/events"
	"orderflow/internal/pkg/mq"
	"orderflow/internal/service/payment/application"
)

// OrderCreatedConsumer 消费 order-created：异步支付模式下结算服务只发事件，
// 网关订单由这里创建，并以 payment-order-created 回报给结算服务。
type OrderCreatedConsumer struct {
	svc *application.Service
}

func NewOrderCreatedConsumer(svc *application.Service) *OrderCreatedConsumer {
	return &OrderCreatedConsumer{svc: svc}
}

// Handle 实现 mq.MessageHandler。
func (c *OrderCreatedConsumer) Handle(ctx context.Context, msg kafka.Message) error {
	var evt events.OrderCreated
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		log.Error().Err(err).Str("topic", msg.Topic).Msg("skipping malformed order-created event")
		return nil
	}

	eventID := mq.GetHeader(msg, "event-id")
	if eventID == "" {
		eventID = "order-created:" + evt.OrderID
	}

	return c.svc.HandleOrderCreated(ctx, eventID, evt)
}

// RefundConsumer 消费 order-cancel，对已支付的订单执行退款补偿。
// 网关调用与本地事务的协调在应用服务里完成，这里只负责解包和提取幂等键。
type RefundConsumer struct {
	svc *application.Service
}

func NewRefundConsumer(svc *application.Service) *RefundConsumer {
	return &RefundConsumer{svc: svc}
}

// Handle 实现 mq.MessageHandler。
func (c *RefundConsumer) Handle(ctx context.Context, msg kafka.Message) error {
	var evt events.OrderCancelRequested
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		log.Error().Err(err).Str("topic", msg.Topic).Msg("skipping malformed cancel event")
		return nil
	}

	eventID := mq.GetHeader(msg, "event-id")
	if eventID == "" {
		eventID = "order-cancel:" + evt.OrderID
	}

	return c.svc.HandleCancelRequested(ctx, eventID, evt.OrderID)
}
