// internal/service/checkout/infrastructure/payment_http_adapter.go
package infrastructure

import (
	"context"
	"net/url"
	"strconv"

	"orderflow/internal/pkg/constants"
	"orderflow/internal/pkg/httpclient"
)

// PaymentHTTPAdapter 实现 port.PaymentService，走支付服务的同步接口。
type PaymentHTTPAdapter struct {
	client *httpclient.Client
}

func NewPaymentHTTPAdapter(client *httpclient.Client) *PaymentHTTPAdapter {
	return &PaymentHTTPAdapter{client: client}
}

// CreateOrder 在网关侧创建支付订单，返回网关订单号。
func (a *PaymentHTTPAdapter) CreateOrder(ctx context.Context, orderID string, amount int64, currency string) (string, error) {
	params := url.Values{}
	params.Set("orderId", orderID)
	params.Set("amount", strconv.FormatInt(amount, 10))
	params.Set("currency", currency)

	var out struct {
		GatewayOrderID string `json:"gatewayOrderId"`
	}
	if err := a.client.CallServiceJSON(ctx, constants.PaymentService, constants.PaymentCreatePath, params, &out); err != nil {
		return "", err
	}
	return out.GatewayOrderID, nil
}
