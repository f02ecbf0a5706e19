// internal/service/order/domain/order_test.go
package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/events"
)

func TestNewOrder(t *testing.T) {
	order, err := NewOrder(&events.OrderCreated{
		Version:     1,
		OrderID:     "order_1",
		UserID:      "user_1",
		Items:       []events.ItemLine{{SkuCode: "iphone_15", Quantity: 1, UnitPrice: 7999900}},
		TotalAmount: 7999900,
		Currency:    "INR",
	})
	require.NoError(t, err)
	assert.Equal(t, StatePendingPayment, order.State)
	assert.Equal(t, "order_1", order.ID)
	assert.Equal(t, int64(7999900), order.TotalAmount)
}

func TestNewOrderRejectsMissingFields(t *testing.T) {
	_, err := NewOrder(&events.OrderCreated{OrderID: "", Items: []events.ItemLine{{SkuCode: "x", Quantity: 1}}})
	require.Error(t, err)

	_, err = NewOrder(&events.OrderCreated{OrderID: "order_1"})
	require.Error(t, err)
}

func TestCanRequestCancel(t *testing.T) {
	cancellable := []State{StateCreated, StatePendingPayment, StatePaid}
	for _, state := range cancellable {
		order := &Order{ID: "order_1", State: state}
		assert.True(t, order.CanRequestCancel(), "state %s", state)
	}

	terminal := []State{StateCancelRequested, StateCancelled, StateFailed}
	for _, state := range terminal {
		order := &Order{ID: "order_1", State: state}
		assert.False(t, order.CanRequestCancel(), "state %s", state)
	}
}

func TestSagaCompleted(t *testing.T) {
	saga := &SagaState{OrderID: "order_1"}
	assert.False(t, saga.Completed())

	// 任一侧单独完成都不算结束，顺序无关
	saga.InventoryReleased = true
	assert.False(t, saga.Completed())

	saga.PaymentRefunded = true
	assert.True(t, saga.Completed())
}
