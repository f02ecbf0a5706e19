// internal/service/payment/infrastructure/gorm_model.go
package infrastructure

import (
	"encoding/json"
	"time"

	"orderflow/internal/service/payment/domain"
)

// PaymentModel 对应数据库中的支付表。
// gateway_order_id 全局唯一，webhook 与对账都以它定位记录。
type PaymentModel struct {
	ID               uint   `gorm:"primaryKey"`
	OrderID          string `gorm:"type:varchar(64);uniqueIndex;not null"`
	GatewayOrderID   string `gorm:"type:varchar(64);uniqueIndex;not null"`
	GatewayPaymentID string `gorm:"type:varchar(64)"`
	Amount           int64  `gorm:"not null"`
	Currency         string `gorm:"type:varchar(8);not null"`
	Status           string `gorm:"type:varchar(16);index;not null"`
	MethodJSON       string `gorm:"column:method_json;type:varchar(512)"`
	RefundID         string `gorm:"type:varchar(64)"`
	RefundedAt       *time.Time
	CreatedAt        time.Time `gorm:"index"`
	UpdatedAt        time.Time
}

func (PaymentModel) TableName() string {
	return "payment"
}

func (m *PaymentModel) toDomain() (*domain.Payment, error) {
	p := &domain.Payment{
		OrderID:          m.OrderID,
		GatewayOrderID:   m.GatewayOrderID,
		GatewayPaymentID: m.GatewayPaymentID,
		Amount:           m.Amount,
		Currency:         m.Currency,
		Status:           domain.Status(m.Status),
		RefundID:         m.RefundID,
		RefundedAt:       m.RefundedAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
	if m.MethodJSON != "" {
		var method domain.MethodDetails
		if err := json.Unmarshal([]byte(m.MethodJSON), &method); err != nil {
			return nil, err
		}
		p.Method = &method
	}
	return p, nil
}
