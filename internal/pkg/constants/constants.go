package constants

// 服务名，与 Nacos 注册中心中的名称保持一致
const (
	CheckoutService  = "checkout-service"
	InventoryService = "inventory-service"
	PaymentService   = "payment-service"
	OrderService     = "order-service"
)

// Kafka 主题。分区键为 orderId 或 skuCode，保证同一实体的事件在分区内有序。
const (
	TopicOrderCreated        = "order-created"
	TopicOrderPlaced         = "order-placed"
	TopicOrderCancel         = "order-cancel"
	TopicInventoryLockReq    = "inventory-lock-request"
	TopicInventoryLockFail   = "inventory-lock-failed"
	TopicInventoryUpdated    = "inventory-updated"
	TopicInventoryReleased   = "inventory-released"
	TopicPaymentOrderCreated = "payment-order-created"
	TopicPaymentSuccess      = "payment-success"
	TopicPaymentRefunded     = "payment-refunded"
	TopicOrderNotifications  = "order-notifications"
)

// 同步调用的 HTTP 路径
const (
	InventoryReservePath = "/inventory/reserve"
	InventoryReleasePath = "/inventory/release"
	InventoryUpdatePath  = "/inventory/update"
	PaymentCreatePath    = "/payment/create"
)
