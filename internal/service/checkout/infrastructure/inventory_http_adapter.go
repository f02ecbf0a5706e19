// internal/service/checkout/infrastructure/inventory_http_adapter.go
package infrastructure

import (
	"context"
	"net/url"
	"strconv"

	"orderflow/internal/events"
	"orderflow/internal/pkg/constants"
	"orderflow/internal/pkg/httpclient"
)

// InventoryHTTPAdapter 实现 port.InventoryService，走库存服务的同步接口。
type InventoryHTTPAdapter struct {
	client *httpclient.Client
}

func NewInventoryHTTPAdapter(client *httpclient.Client) *InventoryHTTPAdapter {
	return &InventoryHTTPAdapter{client: client}
}

// Reserve 逐条预占。任一条失败立即返回，已成功的条目由调用方的补偿释放。
func (a *InventoryHTTPAdapter) Reserve(ctx context.Context, orderID string, items []events.ItemLine) error {
	for _, line := range items {
		params := url.Values{}
		params.Set("skuCode", line.SkuCode)
		params.Set("quantity", strconv.Itoa(line.Quantity))
		params.Set("orderId", orderID)
		if err := a.client.CallService(ctx, constants.InventoryService, constants.InventoryReservePath, params); err != nil {
			return err
		}
	}
	return nil
}

// Release 逐条释放。库存侧按 order+sku 幂等，重复释放无害。
func (a *InventoryHTTPAdapter) Release(ctx context.Context, orderID string, items []events.ItemLine) error {
	for _, line := range items {
		params := url.Values{}
		params.Set("skuCode", line.SkuCode)
		params.Set("quantity", strconv.Itoa(line.Quantity))
		params.Set("orderId", orderID)
		if err := a.client.CallService(ctx, constants.InventoryService, constants.InventoryReleasePath, params); err != nil {
			return err
		}
	}
	return nil
}
