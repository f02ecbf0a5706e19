// internal/service/payment/application/service_test.go
package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"orderflow/internal/events"
	"orderflow/internal/pkg/apperr"
	"orderflow/internal/pkg/signature"
	"orderflow/internal/service/payment/domain"
)

const testSecret = "webhook-secret"

// fakeRepo 是内存版的 PaymentRepository，记录写调用。
type fakeRepo struct {
	payments      map[string]*domain.Payment // gatewayOrderID 索引
	markPaidCalls int
	failedCalls   int
}

func newFakeRepo(payments ...*domain.Payment) *fakeRepo {
	byID := make(map[string]*domain.Payment)
	for _, p := range payments {
		byID[p.GatewayOrderID] = p
	}
	return &fakeRepo{payments: byID}
}

func (f *fakeRepo) Create(ctx context.Context, p *domain.Payment) error {
	f.payments[p.GatewayOrderID] = p
	return nil
}

func (f *fakeRepo) CreateInTx(tx *gorm.DB, p *domain.Payment) error {
	f.payments[p.GatewayOrderID] = p
	return nil
}

func (f *fakeRepo) FindByGatewayOrderID(ctx context.Context, id string) (*domain.Payment, error) {
	if p, ok := f.payments[id]; ok {
		return p, nil
	}
	return nil, domain.ErrPaymentNotFound
}

func (f *fakeRepo) FindByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	for _, p := range f.payments {
		if p.OrderID == orderID {
			return p, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (f *fakeRepo) MarkVerified(ctx context.Context, id string) error { return nil }

func (f *fakeRepo) MarkPaid(tx *gorm.DB, id, paymentID string, m *domain.MethodDetails, at time.Time) (bool, error) {
	f.markPaidCalls++
	p, ok := f.payments[id]
	if !ok || p.IsPaid() {
		return false, nil
	}
	p.Status = domain.StatusPaid
	p.GatewayPaymentID = paymentID
	return true, nil
}

func (f *fakeRepo) MarkFailed(ctx context.Context, id string) error {
	f.failedCalls++
	return nil
}

func (f *fakeRepo) MarkRefunded(tx *gorm.DB, orderID, refundID string, at time.Time) (bool, error) {
	return true, nil
}

func (f *fakeRepo) FindUnconfirmedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Payment, error) {
	var out []*domain.Payment
	for _, p := range f.payments {
		if p.CreatedAt.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out, nil
}

// fakeGateway 按网关订单号返回预设的状态。
type fakeGateway struct {
	statuses  map[string]string
	pollErrs  map[string]error
	polled    []string
	createErr error
	created   []string
}

func (f *fakeGateway) CreateOrder(ctx context.Context, receiptID string, amount int64, currency string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, receiptID)
	return "gw_" + receiptID, nil
}

func (f *fakeGateway) FetchOrderStatus(ctx context.Context, id string) (string, string, error) {
	f.polled = append(f.polled, id)
	if err := f.pollErrs[id]; err != nil {
		return "", "", err
	}
	return f.statuses[id], "pay_" + id, nil
}

func (f *fakeGateway) Refund(ctx context.Context, paymentID string, amount int64) (string, error) {
	return "rfnd_" + paymentID, nil
}

func paidPayment(orderID, gatewayOrderID string) *domain.Payment {
	p, _ := domain.NewPayment(orderID, gatewayOrderID, 4999, "INR")
	p.Status = domain.StatusPaid
	p.GatewayPaymentID = "pay_existing"
	return p
}

func newTestService(repo *fakeRepo, gw *fakeGateway) *Service {
	return NewService(nil, repo, nil, gw, otel.Tracer("test"), testSecret)
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeGateway{})

	body := []byte(`{"event":"payment.captured","gatewayOrderId":"gw_1"}`)
	err := svc.HandleWebhook(context.Background(), body, "forged-signature")

	require.Error(t, err)
	assert.Equal(t, apperr.CodePaymentVerifyFailed, apperr.CodeOf(err))
	assert.Zero(t, repo.markPaidCalls, "unverified webhooks must not touch payment state")
}

func TestHandleWebhookCapturedIsNoOpWhenAlreadyPaid(t *testing.T) {
	repo := newFakeRepo(paidPayment("order_1", "gw_1"))
	svc := newTestService(repo, &fakeGateway{})

	body := []byte(`{"event":"payment.captured","gatewayOrderId":"gw_1","gatewayPaymentId":"pay_2","method":"card","methodFields":{"card_last4":"4242"}}`)
	sig := signature.HMACSHA256Hex(body, []byte(testSecret))

	require.NoError(t, svc.HandleWebhook(context.Background(), body, sig))

	// 重复投递：不再写库，也就不会再发一次成功事件
	assert.Zero(t, repo.markPaidCalls)
	assert.Equal(t, "pay_existing", repo.payments["gw_1"].GatewayPaymentID)
}

func TestHandleWebhookFailedDoesNotRegressPaid(t *testing.T) {
	repo := newFakeRepo(paidPayment("order_1", "gw_1"))
	svc := newTestService(repo, &fakeGateway{})

	body := []byte(`{"event":"payment.failed","gatewayOrderId":"gw_1"}`)
	sig := signature.HMACSHA256Hex(body, []byte(testSecret))

	require.NoError(t, svc.HandleWebhook(context.Background(), body, sig))
	// MarkFailed 被调用，但仓储层的条件更新不会覆盖 PAID
	assert.Equal(t, 1, repo.failedCalls)
}

func TestConfirmPaidNoOpWhenAlreadyPaid(t *testing.T) {
	repo := newFakeRepo(paidPayment("order_1", "gw_1"))
	svc := newTestService(repo, &fakeGateway{})

	transitioned, err := svc.ConfirmPaid(context.Background(), "gw_1", "pay_late", nil)
	require.NoError(t, err)
	assert.False(t, transitioned)
	assert.Zero(t, repo.markPaidCalls)
}

func TestHandleOrderCreatedAcksRedelivery(t *testing.T) {
	// 同订单已有支付记录：重复投递的 order-created 直接确认，不再开网关订单
	existing, _ := domain.NewPayment("order_1", "gw_1", 4999, "INR")
	repo := newFakeRepo(existing)
	gw := &fakeGateway{}
	svc := newTestService(repo, gw)

	err := svc.HandleOrderCreated(context.Background(), "evt-1", events.OrderCreated{
		Version: 1, OrderID: "order_1", TotalAmount: 4999, Currency: "INR",
	})
	require.NoError(t, err)
	assert.Empty(t, gw.created, "redelivered order-created must not open a second gateway order")
}

func TestHandleOrderCreatedGatewayFailurePropagates(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{createErr: errors.New("gateway unreachable")}
	svc := newTestService(repo, gw)

	err := svc.HandleOrderCreated(context.Background(), "evt-1", events.OrderCreated{
		Version: 1, OrderID: "order_1", TotalAmount: 4999, Currency: "INR",
	})
	// 错误向上冒泡，消息不确认，等待重投
	require.Error(t, err)
	assert.Empty(t, repo.payments)
}

func TestReconcilerSkipsPaymentConfirmedDuringPoll(t *testing.T) {
	// 选批时未确认，轮询期间 webhook 抢先写入了 PAID：
	// 对账不得二次确认、二次发事件
	p := paidPayment("order_1", "gw_1")
	p.CreatedAt = time.Now().Add(-10 * time.Minute)
	repo := newFakeRepo(p)
	gw := &fakeGateway{statuses: map[string]string{"gw_1": "paid"}}
	svc := newTestService(repo, gw)

	rec := NewReconciler(svc, 90*time.Second, 50)
	require.NoError(t, rec.Run(context.Background()))

	assert.Equal(t, []string{"gw_1"}, gw.polled)
	assert.Zero(t, repo.markPaidCalls)
}

func TestReconcilerIgnoresUnpaidGatewayStatus(t *testing.T) {
	p, _ := domain.NewPayment("order_1", "gw_1", 4999, "INR")
	p.CreatedAt = time.Now().Add(-10 * time.Minute)
	repo := newFakeRepo(p)
	gw := &fakeGateway{statuses: map[string]string{"gw_1": "created"}}
	svc := newTestService(repo, gw)

	rec := NewReconciler(svc, 90*time.Second, 50)
	require.NoError(t, rec.Run(context.Background()))

	assert.Zero(t, repo.markPaidCalls)
	assert.Equal(t, domain.StatusCreated, p.Status)
}

func TestReconcilerPollFailureDoesNotAbortBatch(t *testing.T) {
	p1, _ := domain.NewPayment("order_1", "gw_1", 1000, "INR")
	p1.CreatedAt = time.Now().Add(-10 * time.Minute)
	p2 := paidPayment("order_2", "gw_2")
	p2.CreatedAt = time.Now().Add(-10 * time.Minute)

	repo := newFakeRepo(p1, p2)
	gw := &fakeGateway{
		statuses: map[string]string{"gw_2": "paid"},
		pollErrs: map[string]error{"gw_1": errors.New("gateway unreachable")},
	}
	svc := newTestService(repo, gw)

	rec := NewReconciler(svc, 90*time.Second, 50)
	require.NoError(t, rec.Run(context.Background()))

	// gw_1 失败（含重试）后 gw_2 仍然被轮询到
	assert.Contains(t, gw.polled, "gw_2", "one failed poll must not stop the rest of the batch")
}

func TestReconcilerRespectsGracePeriod(t *testing.T) {
	p, _ := domain.NewPayment("order_1", "gw_1", 1000, "INR") // 刚创建，还在宽限期内
	repo := newFakeRepo(p)
	gw := &fakeGateway{statuses: map[string]string{"gw_1": "paid"}}
	svc := newTestService(repo, gw)

	rec := NewReconciler(svc, 90*time.Second, 50)
	require.NoError(t, rec.Run(context.Background()))

	assert.Empty(t, gw.polled, "payments inside the grace window are left to the webhook")
}
