// internal/service/payment/application/service.go
package application

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"orderflow/internal/events"
	"orderflow/internal/pkg/constants"
	"orderflow/internal/pkg/inbox"
	"orderflow/internal/pkg/outbox"
	"orderflow/internal/pkg/resilience"
	"orderflow/internal/pkg/signature"
	"orderflow/internal/service/payment/domain"
	"orderflow/internal/service/payment/port"
)

const aggregateType = "payment"

// GatewayNotification 是支付网关 webhook 的载荷。
// methodFields 是网关侧按支付方式平铺的可空字段，入库前收敛成标签联合。
type GatewayNotification struct {
	Event            string            `json:"event"` // payment.captured / payment.failed
	GatewayOrderID   string            `json:"gatewayOrderId"`
	GatewayPaymentID string            `json:"gatewayPaymentId"`
	Method           string            `json:"method"`
	MethodFields     map[string]string `json:"methodFields"`
}

// Service 编排支付的创建、确认、对账与退款。
type Service struct {
	db            *gorm.DB
	repo          domain.PaymentRepository
	outbox        *outbox.Store
	gateway       port.PaymentGateway
	gatewayGuard  *resilience.Guard
	dedup         *inbox.Guard
	tracer        trace.Tracer
	webhookSecret string
}

func NewService(db *gorm.DB, repo domain.PaymentRepository, store *outbox.Store,
	gateway port.PaymentGateway, tracer trace.Tracer, webhookSecret string) *Service {
	return &Service{
		db:            db,
		repo:          repo,
		outbox:        store,
		gateway:       gateway,
		gatewayGuard:  resilience.NewGuard(resilience.DefaultConfig("payment-gateway")),
		dedup:         inbox.NewGuard(db, constants.PaymentService),
		tracer:        tracer,
		webhookSecret: webhookSecret,
	}
}

// DedupGuard 暴露给消费者装配使用。
func (s *Service) DedupGuard() *inbox.Guard {
	return s.dedup
}

// CreateOrder 在网关侧创建支付订单并落一条本地 CREATED 记录。
// 结算服务同步调用，网关订单号由结算侧透传给客户端。
func (s *Service) CreateOrder(ctx context.Context, orderID string, amount int64, currency string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "payment.CreateOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID), attribute.Int64("payment.amount", amount))

	var gatewayOrderID string
	err := s.gatewayGuard.Do(ctx, func(ctx context.Context) error {
		id, err := s.gateway.CreateOrder(ctx, orderID, amount, currency)
		if err != nil {
			return err
		}
		gatewayOrderID = id
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "create gateway order")
	}

	payment, err := domain.NewPayment(orderID, gatewayOrderID, amount, currency)
	if err != nil {
		return "", err
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		return "", errors.Wrap(err, "persist payment")
	}

	log.Info().Str("order_id", orderID).Str("gateway_order_id", gatewayOrderID).
		Int64("amount", amount).Msg("payment order created")
	return gatewayOrderID, nil
}

// HandleOrderCreated 消费 order-created：异步支付模式下由这里开网关订单。
// 已有同订单的支付记录说明事件重复投递，直接确认；
// 网关开单先于本地事务，记录与 payment-order-created 事件再以 eventID 去重落库。
func (s *Service) HandleOrderCreated(ctx context.Context, eventID string, evt events.OrderCreated) error {
	ctx, span := s.tracer.Start(ctx, "payment.HandleOrderCreated")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", evt.OrderID))

	if _, err := s.repo.FindByOrderID(ctx, evt.OrderID); err == nil {
		log.Debug().Str("order_id", evt.OrderID).Msg("payment already created for order, acking redelivery")
		return nil
	} else if !errors.Is(err, domain.ErrPaymentNotFound) {
		return err
	}

	var gatewayOrderID string
	err := s.gatewayGuard.Do(ctx, func(ctx context.Context) error {
		id, err := s.gateway.CreateOrder(ctx, evt.OrderID, evt.TotalAmount, evt.Currency)
		if err != nil {
			return err
		}
		gatewayOrderID = id
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "create gateway order")
	}

	payment, err := domain.NewPayment(evt.OrderID, gatewayOrderID, evt.TotalAmount, evt.Currency)
	if err != nil {
		return err
	}

	return s.dedup.Execute(ctx, eventID, func(tx *gorm.DB) error {
		if err := s.repo.CreateInTx(tx, payment); err != nil {
			return err
		}
		out, err := outbox.NewEvent(aggregateType, evt.OrderID, "payment-order-created",
			constants.TopicPaymentOrderCreated, evt.OrderID, events.PaymentOrderCreated{
				Version:        1,
				OrderID:        evt.OrderID,
				GatewayOrderID: gatewayOrderID,
				Amount:         evt.TotalAmount,
				Currency:       evt.Currency,
				CreatedAt:      payment.CreatedAt,
			})
		if err != nil {
			return err
		}
		return s.outbox.Append(tx, out)
	})
}

// VerifyClientCallback 校验客户端回传的支付签名并把本地记录推进到 VERIFIED。
// 签名不匹配返回 ErrVerificationFailed，调用方据此走补偿路径。
func (s *Service) VerifyClientCallback(ctx context.Context, gatewayOrderID, gatewayPaymentID, provided string) error {
	ctx, span := s.tracer.Start(ctx, "payment.VerifyClientCallback")
	defer span.End()

	if !signature.VerifyOrderPayment(gatewayOrderID, gatewayPaymentID, s.webhookSecret, provided) {
		log.Warn().Str("gateway_order_id", gatewayOrderID).Msg("client callback signature mismatch")
		return domain.ErrVerificationFailed
	}
	return s.repo.MarkVerified(ctx, gatewayOrderID)
}

// HandleWebhook 处理网关的服务端通知。
// 调用方必须传入原始请求体：签名覆盖的是网关发出的字节，不是反序列化后的结构。
func (s *Service) HandleWebhook(ctx context.Context, rawBody []byte, provided string) error {
	ctx, span := s.tracer.Start(ctx, "payment.HandleWebhook")
	defer span.End()

	if !signature.Verify(rawBody, []byte(s.webhookSecret), provided) {
		return domain.ErrVerificationFailed
	}

	var n GatewayNotification
	if err := json.Unmarshal(rawBody, &n); err != nil {
		return errors.Wrap(err, "unmarshal gateway notification")
	}
	span.SetAttributes(attribute.String("webhook.event", n.Event),
		attribute.String("gateway.order_id", n.GatewayOrderID))

	switch n.Event {
	case "payment.captured":
		var method *domain.MethodDetails
		if n.Method != "" {
			m, err := domain.MethodFromGatewayFields(n.Method, n.MethodFields)
			if err != nil {
				// 未知方式不阻塞确认，按无明细入库
				log.Warn().Err(err).Str("gateway_order_id", n.GatewayOrderID).
					Msg("unrecognized payment method in webhook")
			} else {
				method = m
			}
		}
		_, err := s.ConfirmPaid(ctx, n.GatewayOrderID, n.GatewayPaymentID, method)
		return err
	case "payment.failed":
		return s.repo.MarkFailed(ctx, n.GatewayOrderID)
	default:
		log.Debug().Str("event", n.Event).Msg("ignoring unhandled webhook event")
		return nil
	}
}

// ConfirmPaid 把支付置为 PAID，并在同一事务里追加 payment-success 事件。
// webhook 和对账任务都会走到这里；条件更新保证 PAID 至多生效一次，
// 事件与状态同事务落库，因此成功事件也至多发出一次。
// 返回 true 表示本次调用完成了跃迁，false 表示已经是 PAID。
func (s *Service) ConfirmPaid(ctx context.Context, gatewayOrderID, gatewayPaymentID string, method *domain.MethodDetails) (bool, error) {
	payment, err := s.repo.FindByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		return false, err
	}
	if payment.IsPaid() {
		return false, nil
	}

	paidAt := time.Now().UTC()
	transitioned := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.MarkPaid(tx, gatewayOrderID, gatewayPaymentID, method, paidAt)
		if err != nil {
			return err
		}
		if !ok {
			// 另一条路径已抢先确认
			return nil
		}
		transitioned = true

		methodTag := ""
		if method != nil {
			methodTag = string(method.Method)
		}
		evt, err := outbox.NewEvent(aggregateType, payment.OrderID, "payment-succeeded",
			constants.TopicPaymentSuccess, payment.OrderID, events.PaymentSucceeded{
				Version:          1,
				OrderID:          payment.OrderID,
				GatewayPaymentID: gatewayPaymentID,
				Amount:           payment.Amount,
				Currency:         payment.Currency,
				Method:           methodTag,
				PaidAt:           paidAt,
			})
		if err != nil {
			return err
		}
		return s.outbox.Append(tx, evt)
	})
	if err != nil {
		return false, err
	}

	if transitioned {
		log.Info().Str("order_id", payment.OrderID).Str("gateway_order_id", gatewayOrderID).
			Str("gateway_payment_id", gatewayPaymentID).Msg("payment confirmed")
	}
	return transitioned, nil
}

// HandleCancelRequested 消费 order-cancel：退款并发出 payment-refunded。
// 网关退款按支付号幂等，先于本地事务调用；本地标记与完成事件再以 eventID 去重落库。
// 订单没有支付记录或从未支付成功时，发一条金额为 0 的退款事件让 saga 收敛。
func (s *Service) HandleCancelRequested(ctx context.Context, eventID, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "payment.HandleCancelRequested")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	payment, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil && !errors.Is(err, domain.ErrPaymentNotFound) {
		return err
	}

	if payment == nil || !payment.IsPaid() {
		// 无可退之款，直接向编排器报告支付侧已完成
		return s.dedup.Execute(ctx, eventID, func(tx *gorm.DB) error {
			return s.appendRefundedEvent(tx, orderID, "", 0)
		})
	}

	refundID := payment.RefundID
	if refundID == "" {
		err = s.gatewayGuard.Do(ctx, func(ctx context.Context) error {
			id, err := s.gateway.Refund(ctx, payment.GatewayPaymentID, payment.Amount)
			if err != nil {
				return err
			}
			refundID = id
			return nil
		})
		if err != nil {
			return errors.Wrap(err, "gateway refund")
		}
	}

	refundedAt := time.Now().UTC()
	return s.dedup.Execute(ctx, eventID, func(tx *gorm.DB) error {
		ok, err := s.repo.MarkRefunded(tx, orderID, refundID, refundedAt)
		if err != nil {
			return err
		}
		if !ok {
			// 已由更早的取消事件标记过，完成事件也已发出
			return nil
		}
		return s.appendRefundedEvent(tx, orderID, refundID, payment.Amount)
	})
}

func (s *Service) appendRefundedEvent(tx *gorm.DB, orderID, refundID string, amount int64) error {
	evt, err := outbox.NewEvent(aggregateType, orderID, "payment-refunded",
		constants.TopicPaymentRefunded, orderID, events.PaymentRefunded{
			Version:         1,
			OrderID:         orderID,
			GatewayRefundID: refundID,
			Amount:          amount,
			RefundedAt:      time.Now().UTC(),
		})
	if err != nil {
		return err
	}
	return s.outbox.Append(tx, evt)
}
