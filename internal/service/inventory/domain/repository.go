// internal/service/inventory/domain/repository.go
package domain

import (
	"context"

	"gorm.io/gorm"
)

// RecordRepository 是库存台账的持久化接口。
// 写操作接收调用方的事务句柄，台账变更和 outbox 事件必须落在同一个事务里。
type RecordRepository interface {
	Find(ctx context.Context, sku string) (*Record, error)

	// FindForUpdate 以行级排他锁读取，事务提交前阻塞其他写者。
	FindForUpdate(tx *gorm.DB, sku string) (*Record, error)

	Insert(ctx context.Context, rec *Record) error

	// UpdateVersioned 带版本条件写回并自增版本，版本未命中返回 false。
	UpdateVersioned(tx *gorm.DB, rec *Record) (bool, error)

	// Update 无条件写回。调用方必须已持有行锁或该 SKU 的分布式锁。
	Update(tx *gorm.DB, rec *Record) error

	// TryInsertReleaseMarker 记录 order+sku 已释放；标记已存在时返回 false，
	// 重复的释放请求据此退化为空操作。
	TryInsertReleaseMarker(tx *gorm.DB, orderID, sku string) (bool, error)
}
