// internal/service/order/infrastructure/gorm_model.go
package infrastructure

import (
	"encoding/json"
	"time"

	"orderflow/internal/events"
	"orderflow/internal/service/order/domain"
)

// OrderModel 对应数据库中的订单表。
type OrderModel struct {
	ID          string `gorm:"primaryKey;size:36"`
	UserID      string `gorm:"type:varchar(64);index"`
	ItemsJSON   string `gorm:"column:items_json;type:text"`
	TotalAmount int64
	Currency    string    `gorm:"type:varchar(8)"`
	State       string    `gorm:"type:varchar(20);index:idx_order_state,priority:1"`
	CreatedAt   time.Time
	UpdatedAt   time.Time `gorm:"index:idx_order_state,priority:2"`
}

func (OrderModel) TableName() string {
	return "orders"
}

// SagaStateModel 对应 cancellation_saga 表，order_id 为主键。
type SagaStateModel struct {
	OrderID           string `gorm:"primaryKey;size:36"`
	InventoryReleased bool
	PaymentRefunded   bool
	UpdatedAt         time.Time `gorm:"index"`
}

func (SagaStateModel) TableName() string {
	return "cancellation_saga"
}

func toOrderModel(o *domain.Order) (*OrderModel, error) {
	raw, err := json.Marshal(o.Items)
	if err != nil {
		return nil, err
	}
	return &OrderModel{
		ID:          o.ID,
		UserID:      o.UserID,
		ItemsJSON:   string(raw),
		TotalAmount: o.TotalAmount,
		Currency:    o.Currency,
		State:       string(o.State),
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}, nil
}

func (m *OrderModel) toDomain() (*domain.Order, error) {
	var items []events.ItemLine
	if m.ItemsJSON != "" {
		if err := json.Unmarshal([]byte(m.ItemsJSON), &items); err != nil {
			return nil, err
		}
	}
	return &domain.Order{
		ID:          m.ID,
		UserID:      m.UserID,
		Items:       items,
		TotalAmount: m.TotalAmount,
		Currency:    m.Currency,
		State:       domain.State(m.State),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}, nil
}

func (m *SagaStateModel) toDomain() *domain.SagaState {
	return &domain.SagaState{
		OrderID:           m.OrderID,
		InventoryReleased: m.InventoryReleased,
		PaymentRefunded:   m.PaymentRefunded,
		UpdatedAt:         m.UpdatedAt,
	}
}
