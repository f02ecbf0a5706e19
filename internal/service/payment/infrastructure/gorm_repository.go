// internal/service/payment/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"orderflow/internal/service/payment/domain"
)

// GormPaymentRepository 基于 GORM 实现 domain.PaymentRepository。
type GormPaymentRepository struct {
	db *gorm.DB
}

func NewGormPaymentRepository(db *gorm.DB) (*GormPaymentRepository, error) {
	if err := db.AutoMigrate(&PaymentModel{}); err != nil {
		return nil, err
	}
	return &GormPaymentRepository{db: db}, nil
}

func (r *GormPaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	return r.CreateInTx(r.db.WithContext(ctx), p)
}

func (r *GormPaymentRepository) CreateInTx(tx *gorm.DB, p *domain.Payment) error {
	model := &PaymentModel{
		OrderID:        p.OrderID,
		GatewayOrderID: p.GatewayOrderID,
		Amount:         p.Amount,
		Currency:       p.Currency,
		Status:         string(p.Status),
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
	return tx.Create(model).Error
}

func (r *GormPaymentRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*domain.Payment, error) {
	return r.findOne(ctx, "gateway_order_id = ?", gatewayOrderID)
}

func (r *GormPaymentRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	return r.findOne(ctx, "order_id = ?", orderID)
}

func (r *GormPaymentRepository) findOne(ctx context.Context, query string, arg string) (*domain.Payment, error) {
	var model PaymentModel
	err := r.db.WithContext(ctx).Where(query, arg).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.toDomain()
}

func (r *GormPaymentRepository) MarkVerified(ctx context.Context, gatewayOrderID string) error {
	return r.db.WithContext(ctx).Model(&PaymentModel{}).
		Where("gateway_order_id = ? AND status = ?", gatewayOrderID, string(domain.StatusCreated)).
		Update("status", string(domain.StatusVerified)).Error
}

// MarkPaid 条件更新：status <> PAID 才会命中。
// webhook 和对账任务竞争时，数据库保证只有一条路径拿到 true。
func (r *GormPaymentRepository) MarkPaid(tx *gorm.DB, gatewayOrderID, gatewayPaymentID string, method *domain.MethodDetails, paidAt time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":             string(domain.StatusPaid),
		"gateway_payment_id": gatewayPaymentID,
		"updated_at":         paidAt,
	}
	if method != nil {
		raw, err := json.Marshal(method)
		if err != nil {
			return false, err
		}
		updates["method_json"] = string(raw)
	}
	result := tx.Model(&PaymentModel{}).
		Where("gateway_order_id = ? AND status <> ?", gatewayOrderID, string(domain.StatusPaid)).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *GormPaymentRepository) MarkFailed(ctx context.Context, gatewayOrderID string) error {
	// 不覆盖 PAID：失败通知晚于成功确认到达时直接落空。
	return r.db.WithContext(ctx).Model(&PaymentModel{}).
		Where("gateway_order_id = ? AND status <> ?", gatewayOrderID, string(domain.StatusPaid)).
		Update("status", string(domain.StatusFailed)).Error
}

func (r *GormPaymentRepository) MarkRefunded(tx *gorm.DB, orderID, refundID string, refundedAt time.Time) (bool, error) {
	result := tx.Model(&PaymentModel{}).
		Where("order_id = ? AND (refund_id = '' OR refund_id IS NULL)", orderID).
		Updates(map[string]interface{}{
			"refund_id":   refundID,
			"refunded_at": refundedAt,
			"updated_at":  refundedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *GormPaymentRepository) FindUnconfirmedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Payment, error) {
	var models []PaymentModel
	err := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?",
			[]string{string(domain.StatusCreated), string(domain.StatusVerified)}, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	payments := make([]*domain.Payment, 0, len(models))
	for i := range models {
		p, err := models[i].toDomain()
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, nil
}
