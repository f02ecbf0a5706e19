// internal/service/inventory/domain/record_test.go
package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserve(t *testing.T) {
	rec := &Record{SkuCode: "sku-1", Quantity: 10, ReservedQuantity: 3}

	require.NoError(t, rec.Reserve(5))
	assert.Equal(t, 8, rec.ReservedQuantity)
	assert.Equal(t, 2, rec.AvailableStock())
}

func TestReserveInsufficientStock(t *testing.T) {
	rec := &Record{SkuCode: "sku-1", Quantity: 10, ReservedQuantity: 8}

	err := rec.Reserve(3)
	require.ErrorIs(t, err, ErrInsufficientStock)
	// 拒绝后状态不变
	assert.Equal(t, 8, rec.ReservedQuantity)
}

func TestReleaseFloorsAtZero(t *testing.T) {
	rec := &Record{SkuCode: "sku-1", Quantity: 10, ReservedQuantity: 2}

	// 超量释放（重复补偿）收敛到 0，不产生负数
	require.NoError(t, rec.Release(5))
	assert.Equal(t, 0, rec.ReservedQuantity)
	assert.Equal(t, 10, rec.AvailableStock())
}

func TestReleaseRejectsNonPositiveQuantity(t *testing.T) {
	rec := &Record{SkuCode: "sku-1", Quantity: 10, ReservedQuantity: 2}

	// 负数释放会凭空抬高预占量，必须和 Reserve 一样拒绝
	require.Error(t, rec.Release(-3))
	require.Error(t, rec.Release(0))
	assert.Equal(t, 2, rec.ReservedQuantity)
}

func TestSetQuantityRejectsBelowReserved(t *testing.T) {
	rec := &Record{SkuCode: "sku-1", Quantity: 10, ReservedQuantity: 6}

	err := rec.SetQuantity(4)
	require.Error(t, err)
	assert.Equal(t, 10, rec.Quantity)

	require.NoError(t, rec.SetQuantity(6))
	assert.Equal(t, 6, rec.Quantity)
	assert.Equal(t, 0, rec.AvailableStock())
}
