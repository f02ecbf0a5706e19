// internal/pkg/outbox/kafka_broker.go
package outbox

import (
	"context"
	"sync"

	"github.com/segmentio/kafka-go"

	"orderflow/internal/pkg/mq"
)

// KafkaBroker 实现 Broker，按主题惰性创建并复用 writer。
type KafkaBroker struct {
	brokers []string
	writers map[string]*kafka.Writer
	mu      sync.Mutex
}

func NewKafkaBroker(brokers []string) *KafkaBroker {
	return &KafkaBroker{
		brokers: brokers,
		writers: make(map[string]*kafka.Writer),
	}
}

// Publish 阻塞发布一条消息，broker 确认后才返回 nil。
// 事件 ID 和类型随消息头传递，消费方用 event-id 做幂等去重。
func (b *KafkaBroker) Publish(ctx context.Context, evt *Event) error {
	b.mu.Lock()
	writer, exists := b.writers[evt.Topic]
	if !exists {
		writer = mq.NewKafkaWriter(b.brokers, evt.Topic)
		b.writers[evt.Topic] = writer
	}
	b.mu.Unlock()

	msg := kafka.Message{
		Key:   []byte(evt.PartitionKey),
		Value: evt.Payload,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(evt.ID)},
			{Key: "event-type", Value: []byte(evt.EventType)},
		},
	}
	mq.InjectTraceContext(ctx, &msg.Headers)
	return writer.WriteMessages(ctx, msg)
}

// Close 关闭所有 writer。
func (b *KafkaBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for _, w := range b.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
