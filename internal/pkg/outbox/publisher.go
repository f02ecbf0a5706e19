// internal/pkg/outbox/publisher.go
package outbox

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"orderflow/internal/pkg/metrics"
)

// EventSource 是 Publisher 对存储层的依赖。
type EventSource interface {
	FetchUnprocessed(ctx context.Context, limit int) ([]*Event, error)
	MarkProcessed(ctx context.Context, ids []string) error
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Broker 是 Publisher 对消息中间件的依赖。
// Publish 必须阻塞到 broker 确认后才返回 nil。
type Broker interface {
	Publish(ctx context.Context, evt *Event) error
}

// Publisher 周期性地把未处理的 outbox 事件发布到 broker。
// 语义是至少一次：发布成功但标记失败时，事件会在下个周期重发，
// 所以所有消费方必须幂等。
type Publisher struct {
	source    EventSource
	broker    Broker
	batchSize int
	retention time.Duration
}

func NewPublisher(source EventSource, broker Broker, batchSize int, retention time.Duration) *Publisher {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Publisher{
		source:    source,
		broker:    broker,
		batchSize: batchSize,
		retention: retention,
	}
}

// PublishPending 执行一个轮询周期：取批、逐条发布、批量标记。
// 单条发布失败只跳过该条，不阻塞同批的其他事件。
func (p *Publisher) PublishPending(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.JobDuration.WithLabelValues("outbox_publish").Observe(time.Since(start).Seconds())
	}()

	events, err := p.source.FetchUnprocessed(ctx, p.batchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	published := make([]string, 0, len(events))
	for _, evt := range events {
		if err := p.broker.Publish(ctx, evt); err != nil {
			metrics.OutboxPublishFailures.WithLabelValues(evt.Topic).Inc()
			log.Error().Err(err).
				Str("event_id", evt.ID).
				Str("topic", evt.Topic).
				Msg("outbox publish failed, will retry next cycle")
			continue
		}
		metrics.OutboxPublished.WithLabelValues(evt.Topic).Inc()
		published = append(published, evt.ID)
	}

	if len(published) == 0 {
		return nil
	}

	// 标记失败时事件保持未处理，下个周期重发：可接受的重复，不可接受的丢失。
	if err := p.source.MarkProcessed(ctx, published); err != nil {
		log.Error().Err(err).Int("count", len(published)).
			Msg("failed to persist processed status, events will be republished")
		return err
	}

	log.Debug().Int("count", len(published)).Msg("outbox events published")
	return nil
}

// SweepProcessed 删除超过保留期的已处理事件，控制表的体积。
// 低频运行，与发布轮询互不阻塞。
func (p *Publisher) SweepProcessed(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-p.retention)
	deleted, err := p.source.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		metrics.OutboxSwept.Add(float64(deleted))
		log.Info().Int64("count", deleted).Msg("processed outbox events swept")
	}
	return nil
}
