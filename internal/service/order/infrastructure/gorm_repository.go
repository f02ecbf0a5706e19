// internal/service/order/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"orderflow/internal/service/order/domain"
)

// GormOrderRepository 基于 GORM 实现 domain.OrderRepository。
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) (*GormOrderRepository, error) {
	if err := db.AutoMigrate(&OrderModel{}); err != nil {
		return nil, err
	}
	return &GormOrderRepository{db: db}, nil
}

func (r *GormOrderRepository) Create(tx *gorm.DB, o *domain.Order) error {
	model, err := toOrderModel(o)
	if err != nil {
		return err
	}
	return tx.Create(model).Error
}

func (r *GormOrderRepository) Find(ctx context.Context, orderID string) (*domain.Order, error) {
	return r.findWith(r.db.WithContext(ctx), orderID)
}

func (r *GormOrderRepository) FindInTx(tx *gorm.DB, orderID string) (*domain.Order, error) {
	return r.findWith(tx, orderID)
}

func (r *GormOrderRepository) findWith(db *gorm.DB, orderID string) (*domain.Order, error) {
	var model OrderModel
	err := db.Where("id = ?", orderID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.toDomain()
}

// Transition 条件状态流转。WHERE 带上期望的当前状态，
// 并发流转只有一方能命中。
func (r *GormOrderRepository) Transition(tx *gorm.DB, orderID string, from []domain.State, to domain.State) (bool, error) {
	states := make([]string, 0, len(from))
	for _, s := range from {
		states = append(states, string(s))
	}

	result := tx.Model(&OrderModel{}).
		Where("id = ? AND state IN ?", orderID, states).
		Updates(map[string]interface{}{
			"state":      string(to),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// GormSagaRepository 基于 GORM 实现 domain.SagaRepository。
// 标志置位用 upsert：行不存在时建行并置位，存在时只把对应列置 true。
type GormSagaRepository struct {
	db *gorm.DB
}

func NewGormSagaRepository(db *gorm.DB) (*GormSagaRepository, error) {
	if err := db.AutoMigrate(&SagaStateModel{}); err != nil {
		return nil, err
	}
	return &GormSagaRepository{db: db}, nil
}

func (r *GormSagaRepository) Ensure(tx *gorm.DB, orderID string) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"updated_at": time.Now().UTC()}),
	}).Create(&SagaStateModel{OrderID: orderID, UpdatedAt: time.Now().UTC()}).Error
}

func (r *GormSagaRepository) MarkInventoryReleased(tx *gorm.DB, orderID string) error {
	return r.markFlag(tx, orderID, "inventory_released")
}

func (r *GormSagaRepository) MarkPaymentRefunded(tx *gorm.DB, orderID string) error {
	return r.markFlag(tx, orderID, "payment_refunded")
}

// markFlag 单向置位：只会把列从 false 改成 true，永不回退。
func (r *GormSagaRepository) markFlag(tx *gorm.DB, orderID, column string) error {
	now := time.Now().UTC()
	model := &SagaStateModel{OrderID: orderID, UpdatedAt: now}
	switch column {
	case "inventory_released":
		model.InventoryReleased = true
	case "payment_refunded":
		model.PaymentRefunded = true
	}

	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "order_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			column:       true,
			"updated_at": now,
		}),
	}).Create(model).Error
}

func (r *GormSagaRepository) Find(tx *gorm.DB, orderID string) (*domain.SagaState, error) {
	var model SagaStateModel
	if err := tx.Where("order_id = ?", orderID).First(&model).Error; err != nil {
		return nil, err
	}
	return model.toDomain(), nil
}

func (r *GormSagaRepository) FindStale(ctx context.Context, cutoff time.Time, limit int) ([]*domain.SagaState, error) {
	var models []SagaStateModel
	err := r.db.WithContext(ctx).
		Where("updated_at < ? AND NOT (inventory_released AND payment_refunded)", cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	sagas := make([]*domain.SagaState, 0, len(models))
	for i := range models {
		sagas = append(sagas, models[i].toDomain())
	}
	return sagas, nil
}

func (r *GormSagaRepository) Touch(tx *gorm.DB, orderID string) error {
	return tx.Model(&SagaStateModel{}).
		Where("order_id = ?", orderID).
		Update("updated_at", time.Now().UTC()).Error
}
