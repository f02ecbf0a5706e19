// internal/pkg/outbox/event.go
package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Event 是与业务写入同事务落库的领域事件记录。
// Processed 只允许 false→true 的一次性跃迁，且必须发生在 broker 确认之后。
type Event struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	PartitionKey  string // orderId 或 skuCode，保证同一实体分区内有序
	Payload       []byte
	CreatedAt     time.Time
	Processed     bool
	ProcessedAt   *time.Time
}

// NewEvent 构造一条待发布的事件记录，payload 会被序列化为 JSON。
func NewEvent(aggregateType, aggregateID, eventType, topic, partitionKey string, payload interface{}) (*Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to marshal payload for event %s", eventType)
	}
	return &Event{
		ID:            uuid.New().String(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Topic:         topic,
		PartitionKey:  partitionKey,
		Payload:       body,
		CreatedAt:     time.Now().UTC(),
	}, nil
}
