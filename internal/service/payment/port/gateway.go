// internal/service/payment/port/gateway.go
package port

import "context"

// GatewayOrderStatus 是网关侧订单状态的规范化取值。
const (
	GatewayStatusCreated   = "created"
	GatewayStatusAttempted = "attempted"
	GatewayStatusPaid      = "paid"
)

// PaymentGateway 是对外部支付网关的出站端口。
// Refund 以网关支付号为幂等键：同一笔支付重复退款返回同一个 refund id。
type PaymentGateway interface {
	CreateOrder(ctx context.Context, receiptID string, amount int64, currency string) (gatewayOrderID string, err error)
	// FetchOrderStatus 返回网关侧订单状态和捕获它的支付号（未支付时为空）。
	FetchOrderStatus(ctx context.Context, gatewayOrderID string) (status, gatewayPaymentID string, err error)
	Refund(ctx context.Context, gatewayPaymentID string, amount int64) (refundID string, err error)
}
