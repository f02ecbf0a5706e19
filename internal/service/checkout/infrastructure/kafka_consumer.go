// internal/service/checkout/infrastructure/kafka_consumer.go
package infrastructure

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"orderflow/internal/events"
	"orderflow/internal/service/checkout/application"
)

// GatewayAttachConsumer 消费 payment-order-created，把异步模式下
// 支付服务开出的网关订单号挂回 PENDING 会话。
// 会话重写是同值覆盖，天然幂等，不需要 inbox 去重。
type GatewayAttachConsumer struct {
	svc *application.Service
}

func NewGatewayAttachConsumer(svc *application.Service) *GatewayAttachConsumer {
	return &GatewayAttachConsumer{svc: svc}
}

// Handle 实现 mq.MessageHandler。
func (c *GatewayAttachConsumer) Handle(ctx context.Context, msg kafka.Message) error {
	var evt events.PaymentOrderCreated
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		log.Error().Err(err).Str("topic", msg.Topic).Msg("skipping malformed payment-order-created event")
		return nil
	}
	return c.svc.AttachGatewayOrder(ctx, evt.OrderID, evt.GatewayOrderID)
}
