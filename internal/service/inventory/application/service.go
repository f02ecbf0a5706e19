// internal/service/inventory/application/service.go
package application

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"orderflow/internal/events"
	"orderflow/internal/pkg/constants"
	"orderflow/internal/pkg/metrics"
	"orderflow/internal/pkg/outbox"
	"orderflow/internal/pkg/zookeeper"
	"orderflow/internal/service/inventory/domain"
)

const aggregateType = "inventory"

// Service 实现库存台账的 reserve / release / update 操作。
// 并发控制策略：普通 SKU 用乐观版本检查（冲突由调用方重试），
// 配置中的热点 SKU 用 ZooKeeper 排他锁，避免高争用下的乐观重试空转。
type Service struct {
	db      *gorm.DB
	repo    domain.RecordRepository
	outbox  *outbox.Store
	tracer  trace.Tracer
	hotSkus map[string]struct{}
	zkConn  *zookeeper.Conn
}

func NewService(db *gorm.DB, repo domain.RecordRepository, outboxStore *outbox.Store, tracer trace.Tracer, hotSkus []string, zkConn *zookeeper.Conn) *Service {
	hot := make(map[string]struct{}, len(hotSkus))
	for _, sku := range hotSkus {
		hot[sku] = struct{}{}
	}
	return &Service{
		db:      db,
		repo:    repo,
		outbox:  outboxStore,
		tracer:  tracer,
		hotSkus: hot,
		zkConn:  zkConn,
	}
}

// Reserve 为订单预占库存。
// 可用不足返回 ErrInsufficientStock；乐观路径版本冲突返回 ErrConcurrencyConflict，
// 由调用方决定是否重试。
func (s *Service) Reserve(ctx context.Context, sku string, qty int, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "inventory.Reserve", trace.WithAttributes(
		attribute.String("sku", sku),
		attribute.Int("quantity", qty),
		attribute.String("order.id", orderID),
	))
	defer span.End()

	var err error
	if s.isHot(sku) {
		err = s.reservePessimistic(ctx, sku, qty, orderID)
	} else {
		err = s.reserveOptimistic(ctx, sku, qty, orderID)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reservation failed")
		return err
	}

	span.AddEvent("stock reserved")
	return nil
}

// reserveOptimistic 读取-校验-带版本写回。
func (s *Service) reserveOptimistic(ctx context.Context, sku string, qty int, orderID string) error {
	rec, err := s.repo.Find(ctx, sku)
	if err != nil {
		return err
	}
	if err := rec.Reserve(qty); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.UpdateVersioned(tx, rec)
		if err != nil {
			return err
		}
		if !ok {
			metrics.ReservationConflicts.Inc()
			return domain.ErrConcurrencyConflict
		}
		return s.appendUpdatedEvent(tx, rec, orderID)
	})
}

// reservePessimistic 持有该 SKU 的分布式锁，事务内再加行锁读。
func (s *Service) reservePessimistic(ctx context.Context, sku string, qty int, orderID string) error {
	lock, err := zookeeper.NewDistributedLock(s.zkConn, sku)
	if err != nil {
		return err
	}
	if err := lock.Lock(); err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Error().Err(err).Str("sku", sku).Msg("failed to release sku lock")
		}
	}()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.reserveInTx(tx, sku, qty, orderID)
	})
}

// reserveInTx 在已持有排他访问权的事务内执行预占。
// 异步 lock-request 消费路径也复用它：guard 事务内天然串行。
func (s *Service) reserveInTx(tx *gorm.DB, sku string, qty int, orderID string) error {
	rec, err := s.repo.FindForUpdate(tx, sku)
	if err != nil {
		return err
	}
	if err := rec.Reserve(qty); err != nil {
		return err
	}
	if err := s.repo.Update(tx, rec); err != nil {
		return err
	}
	return s.appendUpdatedEvent(tx, rec, orderID)
}

// ReserveForOrderInTx 在调用方事务内为整笔订单预占多个条目。
// 任一条目不足即返回错误，整个事务回滚，已预占的条目随之撤销。
func (s *Service) ReserveForOrderInTx(tx *gorm.DB, orderID string, items []events.ItemLine) error {
	for _, item := range items {
		if err := s.reserveInTx(tx, item.SkuCode, item.Quantity, orderID); err != nil {
			return err
		}
	}
	return nil
}

// Release 释放一笔订单对某 SKU 的预占，下限为零。
// 对同一 order+sku 的重复释放通过释放标记幂等化。
func (s *Service) Release(ctx context.Context, sku string, qty int, orderID string) error {
	ctx, span := s.tracer.Start(ctx, "inventory.Release", trace.WithAttributes(
		attribute.String("sku", sku),
		attribute.String("order.id", orderID),
	))
	defer span.End()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.releaseInTx(tx, sku, qty, orderID)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "release failed")
	}
	return err
}

func (s *Service) releaseInTx(tx *gorm.DB, sku string, qty int, orderID string) error {
	inserted, err := s.repo.TryInsertReleaseMarker(tx, orderID, sku)
	if err != nil {
		return err
	}
	if !inserted {
		// 该订单对该 SKU 的释放已经生效过
		log.Debug().Str("order_id", orderID).Str("sku", sku).Msg("duplicate release ignored")
		return nil
	}

	rec, err := s.repo.FindForUpdate(tx, sku)
	if err != nil {
		return err
	}
	if err := rec.Release(qty); err != nil {
		return err
	}
	if err := s.repo.Update(tx, rec); err != nil {
		return err
	}
	return s.appendUpdatedEvent(tx, rec, orderID)
}

// ReleaseForOrderInTx 在调用方事务内释放整笔订单的预占，
// 完成后追加 inventory-released 事件作为补偿完成信号。
func (s *Service) ReleaseForOrderInTx(tx *gorm.DB, orderID string, items []events.ItemLine) error {
	for _, item := range items {
		if err := s.releaseInTx(tx, item.SkuCode, item.Quantity, orderID); err != nil {
			return err
		}
	}

	evt, err := outbox.NewEvent(aggregateType, orderID, "inventory.released",
		constants.TopicInventoryReleased, orderID, events.InventoryReleased{
			Version:    1,
			OrderID:    orderID,
			ReleasedAt: time.Now().UTC(),
		})
	if err != nil {
		return err
	}
	return s.outbox.Append(tx, evt)
}

// UpdateQuantity 管理员绝对设置物理库存，与 reserve/release 语义不同。
func (s *Service) UpdateQuantity(ctx context.Context, sku string, newQty int) error {
	ctx, span := s.tracer.Start(ctx, "inventory.UpdateQuantity", trace.WithAttributes(
		attribute.String("sku", sku),
		attribute.Int("quantity", newQty),
	))
	defer span.End()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := s.repo.FindForUpdate(tx, sku)
		if err != nil {
			return err
		}
		if err := rec.SetQuantity(newQty); err != nil {
			return err
		}
		if err := s.repo.Update(tx, rec); err != nil {
			return err
		}
		return s.appendUpdatedEvent(tx, rec, "")
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "quantity update failed")
	}
	return err
}

// AppendLockFailedEvent 在调用方事务内记录一次预占被拒。
func (s *Service) AppendLockFailedEvent(tx *gorm.DB, orderID, sku, reason string) error {
	evt, err := outbox.NewEvent(aggregateType, orderID, "inventory.lock_failed",
		constants.TopicInventoryLockFail, orderID, events.InventoryLockFailed{
			Version: 1,
			OrderID: orderID,
			SkuCode: sku,
			Reason:  reason,
		})
	if err != nil {
		return err
	}
	return s.outbox.Append(tx, evt)
}

// DB 暴露底层连接给消费者适配器开启 guard 事务。
func (s *Service) DB() *gorm.DB { return s.db }

func (s *Service) appendUpdatedEvent(tx *gorm.DB, rec *domain.Record, orderID string) error {
	evt, err := outbox.NewEvent(aggregateType, rec.SkuCode, "inventory.updated",
		constants.TopicInventoryUpdated, rec.SkuCode, events.InventoryUpdated{
			Version:        1,
			SkuCode:        rec.SkuCode,
			Quantity:       rec.Quantity,
			Reserved:       rec.ReservedQuantity,
			AvailableStock: rec.AvailableStock(),
			OrderID:        orderID,
			UpdatedAt:      rec.UpdatedAt,
		})
	if err != nil {
		return err
	}
	return s.outbox.Append(tx, evt)
}

func (s *Service) isHot(sku string) bool {
	if s.zkConn == nil {
		return false
	}
	_, ok := s.hotSkus[sku]
	return ok
}
