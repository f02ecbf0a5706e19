// internal/service/inventory/infrastructure/gorm_model.go
package infrastructure

import (
	"time"

	"orderflow/internal/service/inventory/domain"
)

// RecordModel 对应数据库中的 inventory_record 表
type RecordModel struct {
	ID               uint   `gorm:"primaryKey"`
	SkuCode          string `gorm:"uniqueIndex;size:64"`
	Quantity         int
	ReservedQuantity int
	Version          int `gorm:"not null;default:0"`
	UpdatedAt        time.Time
	CreatedAt        time.Time
}

// TableName 指定 GORM 应该使用的表名
func (RecordModel) TableName() string {
	return "inventory_record"
}

// ReleaseMarkerModel 记录已生效的释放操作，(order_id, sku_code) 唯一。
type ReleaseMarkerModel struct {
	ID        uint   `gorm:"primaryKey"`
	OrderID   string `gorm:"uniqueIndex:idx_release_order_sku,priority:1;size:64"`
	SkuCode   string `gorm:"uniqueIndex:idx_release_order_sku,priority:2;size:64"`
	CreatedAt time.Time
}

func (ReleaseMarkerModel) TableName() string {
	return "inventory_release_marker"
}

func toDomainRecord(m *RecordModel) *domain.Record {
	return &domain.Record{
		SkuCode:          m.SkuCode,
		Quantity:         m.Quantity,
		ReservedQuantity: m.ReservedQuantity,
		Version:          m.Version,
		UpdatedAt:        m.UpdatedAt,
	}
}
