// internal/pkg/outbox/store.go
package outbox

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// eventModel 对应数据库中的 outbox_event 表
type eventModel struct {
	ID            string    `gorm:"primaryKey;size:36"`
	AggregateType string    `gorm:"size:64"`
	AggregateID   string    `gorm:"size:64;index"`
	EventType     string    `gorm:"size:64"`
	Topic         string    `gorm:"size:64"`
	PartitionKey  string    `gorm:"size:64"`
	Payload       []byte    `gorm:"type:blob"`
	CreatedAt     time.Time `gorm:"index:idx_outbox_pending,priority:2"`
	Processed     bool      `gorm:"index:idx_outbox_pending,priority:1"`
	ProcessedAt   *time.Time
}

// TableName 指定 GORM 应该使用的表名
func (eventModel) TableName() string {
	return "outbox_event"
}

func toModel(e *Event) *eventModel {
	return &eventModel{
		ID:            e.ID,
		AggregateType: e.AggregateType,
		AggregateID:   e.AggregateID,
		EventType:     e.EventType,
		Topic:         e.Topic,
		PartitionKey:  e.PartitionKey,
		Payload:       e.Payload,
		CreatedAt:     e.CreatedAt,
		Processed:     e.Processed,
		ProcessedAt:   e.ProcessedAt,
	}
}

func toDomain(m *eventModel) *Event {
	return &Event{
		ID:            m.ID,
		AggregateType: m.AggregateType,
		AggregateID:   m.AggregateID,
		EventType:     m.EventType,
		Topic:         m.Topic,
		PartitionKey:  m.PartitionKey,
		Payload:       m.Payload,
		CreatedAt:     m.CreatedAt,
		Processed:     m.Processed,
		ProcessedAt:   m.ProcessedAt,
	}
}

// Store 是 outbox 表的 GORM 仓储。
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate 建表。
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&eventModel{})
}

// Append 在调用方的事务 tx 内追加一条事件。
// 必须与它描述的业务写入共用同一个事务：业务回滚，事件就不存在。
func (s *Store) Append(tx *gorm.DB, evt *Event) error {
	return tx.Create(toModel(evt)).Error
}

// FetchUnprocessed 按创建时间取一批未处理事件。
// limit 限制批大小，控制内存占用和单次轮询时长。
func (s *Store) FetchUnprocessed(ctx context.Context, limit int) ([]*Event, error) {
	var models []eventModel
	err := s.db.WithContext(ctx).
		Where("processed = ?", false).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	events := make([]*Event, 0, len(models))
	for i := range models {
		events = append(events, toDomain(&models[i]))
	}
	return events, nil
}

// MarkProcessed 将一批事件标记为已处理。
// 条件带 processed = false，重复标记是无害的空操作。
func (s *Store) MarkProcessed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return s.db.WithContext(ctx).
		Model(&eventModel{}).
		Where("id IN ? AND processed = ?", ids, false).
		Updates(map[string]interface{}{"processed": true, "processed_at": now}).Error
}

// DeleteProcessedBefore 删除早于 cutoff 的已处理事件，返回删除条数。
func (s *Store) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("processed = ? AND created_at < ?", true, cutoff).
		Delete(&eventModel{})
	return res.RowsAffected, res.Error
}
