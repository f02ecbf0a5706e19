// internal/service/payment/infrastructure/gateway_resty_adapter.go
package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"orderflow/internal/service/payment/port"
)

// RestyGateway 通过 HTTP 访问外部支付网关，实现 port.PaymentGateway。
// 网关接口形如 /v1/orders、/v1/orders/{id}/payments、/v1/payments/{id}/refund，
// 使用 key/secret 做 Basic Auth。
type RestyGateway struct {
	client *resty.Client
}

func NewRestyGateway(baseURL, key, secret string) *RestyGateway {
	client := resty.New().
		SetBaseURL(baseURL).
		SetBasicAuth(key, secret).
		SetTimeout(5 * time.Second).
		SetHeader("Content-Type", "application/json")
	return &RestyGateway{client: client}
}

type gatewayOrderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type gatewayPaymentsResponse struct {
	Items []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"items"`
}

type gatewayRefundResponse struct {
	ID string `json:"id"`
}

func (g *RestyGateway) CreateOrder(ctx context.Context, receiptID string, amount int64, currency string) (string, error) {
	var out gatewayOrderResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"amount":   amount,
			"currency": currency,
			"receipt":  receiptID,
		}).
		SetResult(&out).
		Post("/v1/orders")
	if err != nil {
		return "", errors.Wrap(err, "gateway create order")
	}
	if resp.IsError() {
		return "", fmt.Errorf("gateway create order: status %d", resp.StatusCode())
	}
	return out.ID, nil
}

func (g *RestyGateway) FetchOrderStatus(ctx context.Context, gatewayOrderID string) (string, string, error) {
	var out gatewayOrderResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/v1/orders/" + gatewayOrderID)
	if err != nil {
		return "", "", errors.Wrap(err, "gateway fetch order")
	}
	if resp.IsError() {
		return "", "", fmt.Errorf("gateway fetch order: status %d", resp.StatusCode())
	}
	if out.Status != port.GatewayStatusPaid {
		return out.Status, "", nil
	}

	// 已支付的订单再取一次捕获它的支付号。
	var payments gatewayPaymentsResponse
	resp, err = g.client.R().
		SetContext(ctx).
		SetResult(&payments).
		Get("/v1/orders/" + gatewayOrderID + "/payments")
	if err != nil {
		return "", "", errors.Wrap(err, "gateway fetch payments")
	}
	if resp.IsError() {
		return "", "", fmt.Errorf("gateway fetch payments: status %d", resp.StatusCode())
	}
	for _, item := range payments.Items {
		if item.Status == "captured" {
			return port.GatewayStatusPaid, item.ID, nil
		}
	}
	return port.GatewayStatusPaid, "", nil
}

func (g *RestyGateway) Refund(ctx context.Context, gatewayPaymentID string, amount int64) (string, error) {
	var out gatewayRefundResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{"amount": amount}).
		SetResult(&out).
		Post("/v1/payments/" + gatewayPaymentID + "/refund")
	if err != nil {
		return "", errors.Wrap(err, "gateway refund")
	}
	if resp.IsError() {
		return "", fmt.Errorf("gateway refund: status %d", resp.StatusCode())
	}
	return out.ID, nil
}
