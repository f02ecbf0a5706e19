// internal/service/checkout/domain/session_test.go
package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/events"
)

func TestTotalOf(t *testing.T) {
	items := []events.ItemLine{
		{SkuCode: "iphone_15", Quantity: 2, UnitPrice: 7999900},
		{SkuCode: "airpods_pro", Quantity: 1, UnitPrice: 2490000},
	}

	total, err := TotalOf(items)
	require.NoError(t, err)
	assert.Equal(t, int64(2*7999900+2490000), total)

	// 相同输入永远得到相同结果
	again, err := TotalOf(items)
	require.NoError(t, err)
	assert.Equal(t, total, again)
}

func TestTotalOfRejectsInvalidLines(t *testing.T) {
	_, err := TotalOf(nil)
	require.Error(t, err)

	_, err = TotalOf([]events.ItemLine{{SkuCode: "", Quantity: 1, UnitPrice: 100}})
	require.Error(t, err)

	_, err = TotalOf([]events.ItemLine{{SkuCode: "sku-1", Quantity: 0, UnitPrice: 100}})
	require.Error(t, err)

	_, err = TotalOf([]events.ItemLine{{SkuCode: "sku-1", Quantity: 1, UnitPrice: -100}})
	require.Error(t, err)
}

func TestSessionKey(t *testing.T) {
	withGateway := &Session{OrderID: "order_1", GatewayOrderID: "gw_1"}
	assert.Equal(t, "gw_1", withGateway.Key())

	// 异步模式没有网关订单号，退回订单号
	asyncSession := &Session{OrderID: "order_1"}
	assert.Equal(t, "order_1", asyncSession.Key())
}
