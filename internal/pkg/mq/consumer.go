// internal/pkg/mq/consumer.go
package mq

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// MessageHandler 处理一条已恢复追踪上下文的消息。
// 返回 nil 表示消息可以提交；返回错误时不提交 offset，消息会被重新投递，
// 因此处理逻辑必须幂等。
type MessageHandler func(ctx context.Context, msg kafka.Message) error

// Consumer 监听一个主题并驱动处理函数，是所有服务消费侧的通用外壳。
type Consumer struct {
	reader  *kafka.Reader
	handle  MessageHandler
	wg      sync.WaitGroup
	stopped atomic.Bool
}

// NewConsumer 创建一个消费者。
func NewConsumer(reader *kafka.Reader, handle MessageHandler) *Consumer {
	return &Consumer{reader: reader, handle: handle}
}

// Start 开始监听。这是一个长期运行的方法，随 ctx 取消退出。
func (c *Consumer) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		log.Info().Str("topic", c.reader.Config().Topic).Msg("✅ kafka consumer started")
		for {
			if c.stopped.Load() {
				return
			}
			// FetchMessage 而不是 ReadMessage，以便控制提交时机
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					log.Info().Str("topic", c.reader.Config().Topic).Msg("🛑 kafka consumer shutting down")
					return
				}
				log.Error().Err(err).Msg("could not read message, retrying")
				time.Sleep(1 * time.Second) // 避免快速失败循环
				continue
			}

			carrier := KafkaHeaderCarrier(msg.Headers)
			msgCtx := otel.GetTextMapPropagator().Extract(ctx, &carrier)

			if err := c.handle(msgCtx, msg); err != nil {
				// 不提交 offset，等待重投。处理函数自身幂等。
				log.Error().Err(err).
					Str("topic", msg.Topic).
					Str("key", string(msg.Key)).
					Msg("message handling failed, offset not committed")
				continue
			}

			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				log.Error().Err(err).Msg("failed to commit messages")
			}
		}
	}()
}

// Stop 优雅地停止消费者。
func (c *Consumer) Stop() {
	c.stopped.Store(true)
	c.reader.Close()
	c.wg.Wait()
	log.Info().Str("topic", c.reader.Config().Topic).Msg("✅ kafka consumer stopped")
}
