// internal/service/inventory/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"errors"
	"time"

	gosqlmysql "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"orderflow/internal/service/inventory/domain"
)

// GormRecordRepository 是 RecordRepository 的 GORM 实现
type GormRecordRepository struct {
	db *gorm.DB
}

// NewGormRecordRepository 创建一个新的 GORM 仓储实例
func NewGormRecordRepository(db *gorm.DB) *GormRecordRepository {
	return &GormRecordRepository{db: db}
}

// AutoMigrate 建表。
func (r *GormRecordRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&RecordModel{}, &ReleaseMarkerModel{})
}

func (r *GormRecordRepository) Find(ctx context.Context, sku string) (*domain.Record, error) {
	var model RecordModel
	err := r.db.WithContext(ctx).Where("sku_code = ?", sku).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSkuNotFound
		}
		return nil, err
	}
	return toDomainRecord(&model), nil
}

// FindForUpdate 以 SELECT ... FOR UPDATE 读取，调用方必须在事务内。
func (r *GormRecordRepository) FindForUpdate(tx *gorm.DB, sku string) (*domain.Record, error) {
	var model RecordModel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("sku_code = ?", sku).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSkuNotFound
		}
		return nil, err
	}
	return toDomainRecord(&model), nil
}

func (r *GormRecordRepository) Insert(ctx context.Context, rec *domain.Record) error {
	model := RecordModel{
		SkuCode:          rec.SkuCode,
		Quantity:         rec.Quantity,
		ReservedQuantity: rec.ReservedQuantity,
		Version:          rec.Version,
		UpdatedAt:        rec.UpdatedAt,
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

// UpdateVersioned 带版本条件写回。WHERE 里的版本号没命中时影响 0 行，返回 false。
func (r *GormRecordRepository) UpdateVersioned(tx *gorm.DB, rec *domain.Record) (bool, error) {
	res := tx.Model(&RecordModel{}).
		Where("sku_code = ? AND version = ?", rec.SkuCode, rec.Version).
		Updates(map[string]interface{}{
			"quantity":          rec.Quantity,
			"reserved_quantity": rec.ReservedQuantity,
			"version":           rec.Version + 1,
			"updated_at":        time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Update 无条件写回，仍然自增版本号，让并行的乐观写者失效。
func (r *GormRecordRepository) Update(tx *gorm.DB, rec *domain.Record) error {
	return tx.Model(&RecordModel{}).
		Where("sku_code = ?", rec.SkuCode).
		Updates(map[string]interface{}{
			"quantity":          rec.Quantity,
			"reserved_quantity": rec.ReservedQuantity,
			"version":           gorm.Expr("version + 1"),
			"updated_at":        time.Now(),
		}).Error
}

// TryInsertReleaseMarker 插入释放标记，唯一键冲突说明该释放已生效过。
func (r *GormRecordRepository) TryInsertReleaseMarker(tx *gorm.DB, orderID, sku string) (bool, error) {
	err := tx.Create(&ReleaseMarkerModel{OrderID: orderID, SkuCode: sku}).Error
	if err != nil {
		if isDuplicateKey(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *gosqlmysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
