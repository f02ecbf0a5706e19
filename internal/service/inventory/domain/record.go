// internal/service/inventory/domain/record.go
package domain

import (
	"fmt"
	"time"
)

// Record 是单个 SKU 的库存台账。
// 不变量：0 ≤ ReservedQuantity ≤ Quantity，任何操作序列之后都成立。
// 可用库存 = Quantity - ReservedQuantity。
type Record struct {
	SkuCode          string
	Quantity         int
	ReservedQuantity int
	Version          int // 乐观并发控制的版本号
	UpdatedAt        time.Time
}

// NewRecord 创建一条新的库存记录。
func NewRecord(skuCode string, quantity int) (*Record, error) {
	if skuCode == "" {
		return nil, fmt.Errorf("sku code must not be empty")
	}
	if quantity < 0 {
		return nil, fmt.Errorf("quantity must not be negative")
	}
	return &Record{
		SkuCode:   skuCode,
		Quantity:  quantity,
		UpdatedAt: time.Now(),
	}, nil
}

// AvailableStock 返回当前可被预占的数量。
func (r *Record) AvailableStock() int {
	return r.Quantity - r.ReservedQuantity
}

// Reserve 预占 qty 件。可用量不足时返回 ErrInsufficientStock，状态不变。
func (r *Record) Reserve(qty int) error {
	if qty <= 0 {
		return fmt.Errorf("reserve quantity must be positive, got %d", qty)
	}
	if r.AvailableStock() < qty {
		return ErrInsufficientStock
	}
	r.ReservedQuantity += qty
	r.UpdatedAt = time.Now()
	return nil
}

// Release 释放 qty 件预占，下限为零。
// 对同一订单的重复释放由上层的释放标记保证幂等，这里只做下限保护。
func (r *Record) Release(qty int) error {
	if qty <= 0 {
		return fmt.Errorf("release quantity must be positive, got %d", qty)
	}
	r.ReservedQuantity -= qty
	if r.ReservedQuantity < 0 {
		r.ReservedQuantity = 0
	}
	r.UpdatedAt = time.Now()
	return nil
}

// SetQuantity 管理员绝对设置物理库存。
// 新值小于当前预占量会破坏不变量，直接拒绝。
func (r *Record) SetQuantity(newQty int) error {
	if newQty < 0 {
		return fmt.Errorf("quantity must not be negative, got %d", newQty)
	}
	if newQty < r.ReservedQuantity {
		return fmt.Errorf("cannot set quantity %d below reserved %d for sku %s",
			newQty, r.ReservedQuantity, r.SkuCode)
	}
	r.Quantity = newQty
	r.UpdatedAt = time.Now()
	return nil
}
