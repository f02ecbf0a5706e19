// internal/service/payment/infrastructure/kafka_consumer_test.go
package infrastructure

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

// 无法解析的消息重投也不会成功：消费者确认并跳过，不触达应用服务。
func TestConsumersSkipMalformedPayload(t *testing.T) {
	malformed := kafka.Message{Topic: "any", Value: []byte("not json")}

	require.NoError(t, NewOrderCreatedConsumer(nil).Handle(context.Background(), malformed))
	require.NoError(t, NewRefundConsumer(nil).Handle(context.Background(), malformed))
}
