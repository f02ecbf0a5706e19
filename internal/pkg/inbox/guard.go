// internal/pkg/inbox/guard.go
package inbox

import (
	"context"
	"errors"
	"time"

	gosqlmysql "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"orderflow/internal/pkg/metrics"
)

// processedEventModel 对应 processed_event 表。只追加：存在即代表副作用已生效。
type processedEventModel struct {
	EventID     string    `gorm:"primaryKey;size:36"`
	Consumer    string    `gorm:"primaryKey;size:64"`
	ProcessedAt time.Time `gorm:"index"`
}

func (processedEventModel) TableName() string {
	return "processed_event"
}

// Guard 在至少一次投递下保证副作用至多应用一次。
// 去重记录和副作用写在同一个事务里：两者要么同时落库，要么同时回滚。
type Guard struct {
	db       *gorm.DB
	consumer string // 消费方标识，允许不同消费方各自处理同一事件
}

func NewGuard(db *gorm.DB, consumer string) *Guard {
	return &Guard{db: db, consumer: consumer}
}

// AutoMigrate 建表。
func (g *Guard) AutoMigrate() error {
	return g.db.AutoMigrate(&processedEventModel{})
}

// Execute 以 eventID 为幂等键执行 fn。
// 已处理过的事件直接确认，不再应用副作用；返回 nil 让消费者提交 offset。
func (g *Guard) Execute(ctx context.Context, eventID string, fn func(tx *gorm.DB) error) error {
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := &processedEventModel{
			EventID:     eventID,
			Consumer:    g.consumer,
			ProcessedAt: time.Now().UTC(),
		}
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		return fn(tx)
	})

	if err != nil && isDuplicateKey(err) {
		metrics.EventsDeduplicated.WithLabelValues(g.consumer).Inc()
		log.Debug().Str("event_id", eventID).Str("consumer", g.consumer).
			Msg("duplicate event skipped")
		return nil
	}
	return err
}

// isDuplicateKey 识别 MySQL 1062 唯一键冲突。
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *gosqlmysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
