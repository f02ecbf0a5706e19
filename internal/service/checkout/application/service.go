// internal/service/checkout/application/service.go
package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"orderflow/internal/events"
	"orderflow/internal/pkg/apperr"
	"orderflow/internal/pkg/constants"
	"orderflow/internal/pkg/outbox"
	"orderflow/internal/pkg/signature"
	"orderflow/internal/service/checkout/domain"
	"orderflow/internal/service/checkout/port"
)

const aggregateType = "checkout"

// CheckoutRequest 是发起一次结算的入参。
// Items 与 CartID 二选一：条目为空时从购物车解析，两者都空则拒绝。
type CheckoutRequest struct {
	UserID         string
	CartID         string
	Items          []events.ItemLine
	IdempotencyKey string
	Currency       string
}

// CheckoutResult 返回给调用方，GatewayOrderID 透传给客户端收银台。
type CheckoutResult struct {
	OrderID        string `json:"orderId"`
	GatewayOrderID string `json:"gatewayOrderId,omitempty"`
	TotalAmount    int64  `json:"totalAmount"`
	Currency       string `json:"currency"`
}

// PaymentCallback 是客户端支付完成后的回传。
type PaymentCallback struct {
	GatewayOrderID   string `json:"gatewayOrderId"`
	GatewayPaymentID string `json:"gatewayPaymentId"`
	Signature        string `json:"signature"`
}

// Service 是结算编排器：预占库存、创建网关订单、维护结算会话，
// 并在支付验证通过后落地订单。
type Service struct {
	db        *gorm.DB
	outbox    *outbox.Store
	sessions  port.SessionStore
	idem      port.IdempotencyStore
	inventory port.InventoryService
	payment   port.PaymentService
	cart      port.CartService
	tracer    trace.Tracer

	webhookSecret string
	asyncPayment  bool
}

func NewService(db *gorm.DB, store *outbox.Store, sessions port.SessionStore,
	idem port.IdempotencyStore, inventory port.InventoryService, payment port.PaymentService,
	cart port.CartService, tracer trace.Tracer, webhookSecret string, asyncPayment bool) *Service {
	return &Service{
		db:            db,
		outbox:        store,
		sessions:      sessions,
		idem:          idem,
		inventory:     inventory,
		payment:       payment,
		cart:          cart,
		tracer:        tracer,
		webhookSecret: webhookSecret,
		asyncPayment:  asyncPayment,
	}
}

// InitiateCheckout 执行结算的同步段：
// 解析条目 → 占用幂等键 → 预占库存 → 创建网关订单（或发 order-created）→ 持久化会话。
// 网关订单创建失败或预占调用超时都会尽力释放本次调用造成的预占。
func (s *Service) InitiateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.InitiateCheckout")
	defer span.End()

	items := req.Items
	if len(items) == 0 && req.CartID != "" {
		resolved, err := s.cart.Items(ctx, req.UserID, req.CartID)
		if err != nil {
			return nil, errors.Wrap(err, "resolve cart")
		}
		items = resolved
	}

	total, err := domain.TotalOf(items)
	if err != nil {
		return nil, err
	}
	currency := req.Currency
	if currency == "" {
		currency = "INR"
	}

	if req.IdempotencyKey != "" {
		claimed, err := s.idem.Claim(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, errors.Wrap(err, "claim idempotency key")
		}
		if !claimed {
			return nil, domain.ErrDuplicateRequest
		}
	}

	orderID := uuid.New().String()
	span.SetAttributes(attribute.String("order.id", orderID), attribute.Int64("checkout.total", total))

	if err := s.inventory.Reserve(ctx, orderID, items); err != nil {
		// 预占在库存侧按条目逐个生效，第 N 条被拒时前 N-1 条已经占上；
		// 超时的预占也可能已生效。统一对整单释放：释放按 order+sku 幂等，
		// 对没占上的条目多放无害
		s.releaseBestEffort(ctx, orderID, items)
		s.releaseClaim(ctx, req.IdempotencyKey)
		return nil, errors.Wrap(err, "reserve inventory")
	}

	session := &domain.Session{
		ID:          uuid.New().String(),
		OrderID:     orderID,
		UserID:      req.UserID,
		CartID:      req.CartID,
		Items:       items,
		TotalAmount: total,
		Currency:    currency,
		CreatedAt:   time.Now().UTC(),
	}

	if s.asyncPayment {
		session.Status = domain.StatusPending
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			evt, err := outbox.NewEvent(aggregateType, orderID, "order-created",
				constants.TopicOrderCreated, orderID, events.OrderCreated{
					Version:     1,
					OrderID:     orderID,
					UserID:      req.UserID,
					Items:       items,
					TotalAmount: total,
					Currency:    currency,
					CreatedAt:   session.CreatedAt,
				})
			if err != nil {
				return err
			}
			return s.outbox.Append(tx, evt)
		})
		if err != nil {
			s.releaseBestEffort(ctx, orderID, items)
			s.releaseClaim(ctx, req.IdempotencyKey)
			return nil, errors.Wrap(err, "emit order-created")
		}
	} else {
		gatewayOrderID, err := s.payment.CreateOrder(ctx, orderID, total, currency)
		if err != nil {
			// 预占已成功而网关失败：回收这次调用造成的预占再向上报错
			s.releaseBestEffort(ctx, orderID, items)
			s.releaseClaim(ctx, req.IdempotencyKey)
			return nil, errors.Wrap(err, "create gateway order")
		}
		session.GatewayOrderID = gatewayOrderID
		session.Status = domain.StatusProcessing
	}

	if err := s.sessions.Save(ctx, session); err != nil {
		s.releaseBestEffort(ctx, orderID, items)
		if !s.asyncPayment {
			// 异步模式下 order-created 已经提交，保留幂等键挡住重复下单；
			// 同步模式这里没有任何已落地的效果，键还给客户端重试
			s.releaseClaim(ctx, req.IdempotencyKey)
		}
		return nil, errors.Wrap(err, "persist checkout session")
	}

	log.Info().Str("order_id", orderID).Str("gateway_order_id", session.GatewayOrderID).
		Int64("total", total).Bool("async", s.asyncPayment).Msg("checkout initiated")

	return &CheckoutResult{
		OrderID:        orderID,
		GatewayOrderID: session.GatewayOrderID,
		TotalAmount:    total,
		Currency:       currency,
	}, nil
}

// FinalizeOrder 处理客户端的支付完成回调。
// 签名验证失败触发补偿：释放预占、删除会话，返回验证错误。
// 验证通过则在一个事务里发出 order-placed，随后清购物车、删会话。
func (s *Service) FinalizeOrder(ctx context.Context, cb PaymentCallback) error {
	ctx, span := s.tracer.Start(ctx, "checkout.FinalizeOrder")
	defer span.End()
	span.SetAttributes(attribute.String("gateway.order_id", cb.GatewayOrderID))

	session, err := s.sessions.Find(ctx, cb.GatewayOrderID)
	if err != nil {
		return err
	}

	if !signature.VerifyOrderPayment(cb.GatewayOrderID, cb.GatewayPaymentID, s.webhookSecret, cb.Signature) {
		log.Warn().Str("order_id", session.OrderID).Msg("payment callback signature mismatch, compensating")
		s.releaseBestEffort(ctx, session.OrderID, session.Items)
		if _, err := s.sessions.Delete(ctx, session.Key()); err != nil {
			log.Error().Err(err).Str("order_id", session.OrderID).Msg("failed to delete session after failed verification")
		}
		return domain.ErrVerificationFailed
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		evt, err := outbox.NewEvent(aggregateType, session.OrderID, "order-placed",
			constants.TopicOrderPlaced, session.OrderID, events.OrderPlaced{
				Version:     1,
				OrderID:     session.OrderID,
				UserID:      session.UserID,
				Items:       session.Items,
				TotalAmount: session.TotalAmount,
				Currency:    session.Currency,
				PlacedAt:    time.Now().UTC(),
			})
		if err != nil {
			return err
		}
		return s.outbox.Append(tx, evt)
	})
	if err != nil {
		return errors.Wrap(err, "emit order-placed")
	}

	if session.CartID != "" {
		if err := s.cart.Clear(ctx, session.UserID, session.CartID); err != nil {
			// 购物车残留不影响订单，留给用户下次结算时覆盖
			log.Warn().Err(err).Str("cart_id", session.CartID).Msg("failed to clear cart after order placement")
		}
	}

	if _, err := s.sessions.Delete(ctx, session.Key()); err != nil {
		log.Error().Err(err).Str("order_id", session.OrderID).Msg("failed to delete completed session")
	}

	log.Info().Str("order_id", session.OrderID).Msg("order placed")
	return nil
}

// ExpireSession 是到期清理入口，由会话存储的到期监听和扫描兜底调用。
// 数据键的删除是提交点：删除成功的一方负责释放预占，其余调用方空手而归。
func (s *Service) ExpireSession(ctx context.Context, key string) error {
	ctx, span := s.tracer.Start(ctx, "checkout.ExpireSession")
	defer span.End()

	session, err := s.sessions.Find(ctx, key)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeSessionNotFound {
			// 已完成或已被并发的清理删除
			return nil
		}
		return err
	}

	deleted, err := s.sessions.Delete(ctx, key)
	if err != nil {
		return err
	}
	if !deleted {
		return nil
	}

	s.releaseBestEffort(ctx, session.OrderID, session.Items)
	log.Info().Str("order_id", session.OrderID).Str("session_id", session.ID).
		Msg("expired checkout session cleaned up")
	return nil
}

// AttachGatewayOrder 消费支付服务在异步模式下回报的网关订单号：
// 把 PENDING 会话推进到 PROCESSING，并换到网关订单号键下重存，
// 客户端回调才能按网关订单号找到它。重复投递是同值重写，无害。
func (s *Service) AttachGatewayOrder(ctx context.Context, orderID, gatewayOrderID string) error {
	ctx, span := s.tracer.Start(ctx, "checkout.AttachGatewayOrder")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID),
		attribute.String("gateway.order_id", gatewayOrderID))

	session, err := s.sessions.Find(ctx, orderID)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeSessionNotFound {
			// 会话已到期被清理，预占也已回收；网关订单留给对账任务观察
			log.Warn().Str("order_id", orderID).Msg("session gone before gateway order attached")
			return nil
		}
		return err
	}

	session.GatewayOrderID = gatewayOrderID
	session.Status = domain.StatusProcessing
	if err := s.sessions.Save(ctx, session); err != nil {
		return errors.Wrap(err, "re-key checkout session")
	}
	if _, err := s.sessions.Delete(ctx, orderID); err != nil {
		// 旧键残留会随 TTL 过期；到期清理发现释放标记后也是空操作
		log.Warn().Err(err).Str("order_id", orderID).Msg("failed to drop order-keyed session after re-key")
	}

	log.Info().Str("order_id", orderID).Str("gateway_order_id", gatewayOrderID).
		Msg("gateway order attached to pending session")
	return nil
}

// releaseBestEffort 回收一次结算的预占。失败只记日志：
// 释放幂等，订单取消路径和人工对账都还有机会补上。
func (s *Service) releaseBestEffort(ctx context.Context, orderID string, items []events.ItemLine) {
	if err := s.inventory.Release(ctx, orderID, items); err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("failed to release reservation during compensation")
	}
}

// releaseClaim 归还幂等键，让客户端能带同一个键重试。
// 只在本次请求没有留下任何持久效果时调用；归还失败只记日志，键随 TTL 过期。
func (s *Service) releaseClaim(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.idem.Release(ctx, key); err != nil {
		log.Warn().Err(err).Msg("failed to release idempotency key")
	}
}
