// internal/service/checkout/application/service_test.go
package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"orderflow/internal/events"
	"orderflow/internal/pkg/apperr"
	"orderflow/internal/pkg/signature"
	"orderflow/internal/service/checkout/domain"
)

const callbackSecret = "callback-secret"

// fakeInventory 模仿 HTTP 适配器的逐条目预占：第一条失败即返回，
// 之前已成功的条目保持占用，由调用方补偿释放。
type fakeInventory struct {
	reserveErr   error  // 整单失败
	failSku      string // 命中该 SKU 时失败，之前的条目已占上
	failSkuErr   error
	reserved     []string // orderID
	reservedSkus []string
	released     []string
	releaseCalls int
}

func (f *fakeInventory) Reserve(ctx context.Context, orderID string, items []events.ItemLine) error {
	if f.reserveErr != nil {
		return f.reserveErr
	}
	for _, item := range items {
		if item.SkuCode == f.failSku {
			return f.failSkuErr
		}
		f.reservedSkus = append(f.reservedSkus, item.SkuCode)
	}
	f.reserved = append(f.reserved, orderID)
	return nil
}

func (f *fakeInventory) Release(ctx context.Context, orderID string, items []events.ItemLine) error {
	f.releaseCalls++
	f.released = append(f.released, orderID)
	return nil
}

type fakePayment struct {
	err     error
	created []string
}

func (f *fakePayment) CreateOrder(ctx context.Context, orderID string, amount int64, currency string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.created = append(f.created, orderID)
	return "gw_" + orderID, nil
}

type fakeCart struct {
	items   []events.ItemLine
	cleared []string
}

func (f *fakeCart) Items(ctx context.Context, userID, cartID string) ([]events.ItemLine, error) {
	return f.items, nil
}

func (f *fakeCart) Clear(ctx context.Context, userID, cartID string) error {
	f.cleared = append(f.cleared, cartID)
	return nil
}

type fakeSessions struct {
	saved     map[string]*domain.Session
	saveErr   error
	deleteHit bool // Delete 返回值，模拟并发清理已经抢先删除
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{saved: make(map[string]*domain.Session), deleteHit: true}
}

func (f *fakeSessions) Save(ctx context.Context, s *domain.Session) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved[s.Key()] = s
	return nil
}

func (f *fakeSessions) Find(ctx context.Context, key string) (*domain.Session, error) {
	if s, ok := f.saved[key]; ok {
		return s, nil
	}
	return nil, domain.ErrSessionNotFound
}

func (f *fakeSessions) Delete(ctx context.Context, key string) (bool, error) {
	if _, ok := f.saved[key]; !ok {
		return false, nil
	}
	delete(f.saved, key)
	return f.deleteHit, nil
}

type fakeIdem struct {
	seen     map[string]bool
	released []string
}

func (f *fakeIdem) Claim(ctx context.Context, key string) (bool, error) {
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func (f *fakeIdem) Release(ctx context.Context, key string) error {
	delete(f.seen, key)
	f.released = append(f.released, key)
	return nil
}

type checkoutFixture struct {
	svc       *Service
	inventory *fakeInventory
	payment   *fakePayment
	cart      *fakeCart
	sessions  *fakeSessions
	idem      *fakeIdem
}

// 同步支付模式的装配。db/outbox 为 nil：同步发起路径不触库，
// 触库的分支（异步发起、回调成功落单）不在这里覆盖。
func newFixture() *checkoutFixture {
	f := &checkoutFixture{
		inventory: &fakeInventory{},
		payment:   &fakePayment{},
		cart:      &fakeCart{},
		sessions:  newFakeSessions(),
		idem:      &fakeIdem{},
	}
	f.svc = NewService(nil, nil, f.sessions, f.idem, f.inventory, f.payment, f.cart,
		otel.Tracer("test"), callbackSecret, false)
	return f
}

func lines() []events.ItemLine {
	return []events.ItemLine{{SkuCode: "iphone_15", Quantity: 1, UnitPrice: 7999900}}
}

func TestInitiateCheckout(t *testing.T) {
	f := newFixture()

	result, err := f.svc.InitiateCheckout(context.Background(), CheckoutRequest{
		UserID: "user_1", Items: lines(), IdempotencyKey: "key-1",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, result.OrderID)
	assert.Equal(t, "gw_"+result.OrderID, result.GatewayOrderID)
	assert.Equal(t, int64(7999900), result.TotalAmount)
	assert.Equal(t, "INR", result.Currency)

	session, err := f.sessions.Find(context.Background(), result.GatewayOrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, session.Status)
	assert.Zero(t, f.inventory.releaseCalls)
}

func TestInitiateCheckoutDuplicateKeyStopsBeforeSideEffects(t *testing.T) {
	f := newFixture()
	req := CheckoutRequest{UserID: "user_1", Items: lines(), IdempotencyKey: "key-1"}

	_, err := f.svc.InitiateCheckout(context.Background(), req)
	require.NoError(t, err)

	_, err = f.svc.InitiateCheckout(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeDuplicateRequest, apperr.CodeOf(err))

	// 重复请求没有产生第二次预占或第二个网关订单
	assert.Len(t, f.inventory.reserved, 1)
	assert.Len(t, f.payment.created, 1)
}

func TestInitiateCheckoutReleasesWhenGatewayFails(t *testing.T) {
	f := newFixture()
	f.payment.err = errors.New("gateway unreachable")

	_, err := f.svc.InitiateCheckout(context.Background(), CheckoutRequest{
		UserID: "user_1", Items: lines(),
	})
	require.Error(t, err)

	// 预占成功、网关失败：同一个订单号必须被释放
	require.Len(t, f.inventory.reserved, 1)
	assert.Equal(t, f.inventory.reserved, f.inventory.released)
}

func TestInitiateCheckoutReleasesOnReserveTimeout(t *testing.T) {
	f := newFixture()
	f.inventory.reserveErr = apperr.New(apperr.CodeTimeout, "inventory-service call timed out")

	_, err := f.svc.InitiateCheckout(context.Background(), CheckoutRequest{
		UserID: "user_1", Items: lines(),
	})
	require.Error(t, err)

	// 超时结果不可知，按已生效处理去释放
	assert.Equal(t, 1, f.inventory.releaseCalls)
	assert.Empty(t, f.payment.created)
}

func TestInitiateCheckoutReleasesPartialReservationOnRejection(t *testing.T) {
	f := newFixture()
	// 第二条 SKU 被拒：第一条已经占上，整单必须补偿释放
	f.inventory.failSku = "airpods_pro"
	f.inventory.failSkuErr = apperr.New(apperr.CodeInsufficientStock, "insufficient stock for sku airpods_pro")

	items := []events.ItemLine{
		{SkuCode: "iphone_15", Quantity: 1, UnitPrice: 7999900},
		{SkuCode: "airpods_pro", Quantity: 1, UnitPrice: 2490000},
	}
	_, err := f.svc.InitiateCheckout(context.Background(), CheckoutRequest{
		UserID: "user_1", Items: items,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInsufficientStock, apperr.CodeOf(err))

	assert.Equal(t, []string{"iphone_15"}, f.inventory.reservedSkus)
	assert.Equal(t, 1, f.inventory.releaseCalls, "partially reserved items must be released")
	assert.Empty(t, f.payment.created)
}

func TestInitiateCheckoutReturnsClaimOnDefiniteFailure(t *testing.T) {
	f := newFixture()
	f.inventory.reserveErr = apperr.New(apperr.CodeInsufficientStock, "insufficient stock for sku iphone_15")

	req := CheckoutRequest{UserID: "user_1", Items: lines(), IdempotencyKey: "key-1"}
	_, err := f.svc.InitiateCheckout(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, []string{"key-1"}, f.idem.released)

	// 补货后客户端带同一个键重试，不再被 DUPLICATE_REQUEST 挡住
	f.inventory.reserveErr = nil
	result, err := f.svc.InitiateCheckout(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, result.GatewayOrderID)
}

func TestInitiateCheckoutReleasesWhenSessionSaveFails(t *testing.T) {
	f := newFixture()
	f.sessions.saveErr = errors.New("redis down")

	_, err := f.svc.InitiateCheckout(context.Background(), CheckoutRequest{
		UserID: "user_1", Items: lines(),
	})
	require.Error(t, err)
	assert.Equal(t, 1, f.inventory.releaseCalls)
}

func TestInitiateCheckoutResolvesCartItems(t *testing.T) {
	f := newFixture()
	f.cart.items = lines()

	result, err := f.svc.InitiateCheckout(context.Background(), CheckoutRequest{
		UserID: "user_1", CartID: "cart_1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7999900), result.TotalAmount)
}

func TestFinalizeOrderBadSignatureCompensates(t *testing.T) {
	f := newFixture()

	result, err := f.svc.InitiateCheckout(context.Background(), CheckoutRequest{
		UserID: "user_1", Items: lines(),
	})
	require.NoError(t, err)

	err = f.svc.FinalizeOrder(context.Background(), PaymentCallback{
		GatewayOrderID:   result.GatewayOrderID,
		GatewayPaymentID: "pay_1",
		Signature:        "forged",
	})
	require.Error(t, err)
	assert.Equal(t, apperr.CodePaymentVerifyFailed, apperr.CodeOf(err))

	// 补偿：预占已释放、会话已删除
	assert.Equal(t, []string{result.OrderID}, f.inventory.released)
	_, err = f.sessions.Find(context.Background(), result.GatewayOrderID)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestFinalizeOrderUnknownSession(t *testing.T) {
	f := newFixture()

	sig := signature.HMACSHA256Hex([]byte("gw_missing|pay_1"), []byte(callbackSecret))
	err := f.svc.FinalizeOrder(context.Background(), PaymentCallback{
		GatewayOrderID: "gw_missing", GatewayPaymentID: "pay_1", Signature: sig,
	})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestExpireSessionReleasesOnce(t *testing.T) {
	f := newFixture()

	result, err := f.svc.InitiateCheckout(context.Background(), CheckoutRequest{
		UserID: "user_1", Items: lines(),
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.ExpireSession(context.Background(), result.GatewayOrderID))
	assert.Equal(t, 1, f.inventory.releaseCalls)

	// 第二次到期回调（扫描兜底与订阅可能都触发）找不到会话，直接返回
	require.NoError(t, f.svc.ExpireSession(context.Background(), result.GatewayOrderID))
	assert.Equal(t, 1, f.inventory.releaseCalls)
}

func TestExpireSessionSkipsWhenDeleteMisses(t *testing.T) {
	f := newFixture()

	result, err := f.svc.InitiateCheckout(context.Background(), CheckoutRequest{
		UserID: "user_1", Items: lines(),
	})
	require.NoError(t, err)

	// 数据键被并发的清理方抢先删除：本调用方不得再释放
	f.sessions.deleteHit = false
	require.NoError(t, f.svc.ExpireSession(context.Background(), result.GatewayOrderID))
	assert.Zero(t, f.inventory.releaseCalls)
}

func TestExpireSessionUnknownKeyIsNoOp(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.svc.ExpireSession(context.Background(), "gw_gone"))
	assert.Zero(t, f.inventory.releaseCalls)
}

func TestAttachGatewayOrderReKeysPendingSession(t *testing.T) {
	f := newFixture()
	pending := &domain.Session{
		ID: "sess_1", OrderID: "order_1", UserID: "user_1",
		Items: lines(), TotalAmount: 7999900, Currency: "INR",
		Status: domain.StatusPending,
	}
	require.NoError(t, f.sessions.Save(context.Background(), pending))

	require.NoError(t, f.svc.AttachGatewayOrder(context.Background(), "order_1", "gw_order_1"))

	// 会话搬到了网关订单号键下，客户端回调按该键可达
	session, err := f.sessions.Find(context.Background(), "gw_order_1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, session.Status)
	assert.Equal(t, "order_1", session.OrderID)

	_, err = f.sessions.Find(context.Background(), "order_1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestAttachGatewayOrderAfterSessionGoneIsNoOp(t *testing.T) {
	f := newFixture()

	// 会话已到期清理：事件确认即可，预占早已回收
	require.NoError(t, f.svc.AttachGatewayOrder(context.Background(), "order_gone", "gw_1"))
	assert.Zero(t, f.inventory.releaseCalls)
}
