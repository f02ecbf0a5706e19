// cmd/order-service/main.go
package main

import (
	"net/http"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"orderflow/internal/pkg/bootstrap"
	"orderflow/internal/pkg/constants"
	"orderflow/internal/pkg/database"
	"orderflow/internal/pkg/inbox"
	"orderflow/internal/pkg/mq"
	"orderflow/internal/pkg/outbox"
	"orderflow/internal/pkg/scheduler"
	"orderflow/internal/service/order/application"
	"orderflow/internal/service/order/infrastructure"
	"orderflow/internal/service/order/interfaces"
)

// main 是订单服务的组装根：saga 编排器、补偿信号消费者和卡单重驱。
func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: constants.OrderService,
		Port:        servicePort(8084),
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			tracer := otel.Tracer(constants.OrderService)

			db, err := database.OpenMysql(cfg.Infra.Mysql.DSN)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to connect to mysql")
			}

			outboxStore := outbox.NewStore(db)
			if err := outboxStore.AutoMigrate(); err != nil {
				log.Fatal().Err(err).Msg("failed to migrate outbox table")
			}

			orders, err := infrastructure.NewGormOrderRepository(db)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to migrate orders table")
			}
			sagas, err := infrastructure.NewGormSagaRepository(db)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to migrate saga table")
			}

			orc := application.NewOrchestrator(db, orders, sagas, outboxStore, tracer)

			guard := inbox.NewGuard(db, constants.OrderService)
			if err := guard.AutoMigrate(); err != nil {
				log.Fatal().Err(err).Msg("failed to migrate processed-event table")
			}

			// 消费者：下单、支付确认、补偿完成信号、预占失败
			brokers := cfg.Infra.Kafka.Brokers
			placement := infrastructure.NewPlacementConsumer(orc, guard)
			compensation := infrastructure.NewCompensationConsumer(orc, guard)

			consumers := []*mq.Consumer{
				mq.NewConsumer(mq.NewKafkaReader(brokers, constants.TopicOrderCreated, "order-placement-group"), placement.Handle),
				mq.NewConsumer(mq.NewKafkaReader(brokers, constants.TopicOrderPlaced, "order-placement-group"), placement.Handle),
				mq.NewConsumer(mq.NewKafkaReader(brokers, constants.TopicPaymentSuccess, "order-payment-group"),
					infrastructure.NewPaymentSuccessConsumer(orc, guard).Handle),
				mq.NewConsumer(mq.NewKafkaReader(brokers, constants.TopicInventoryReleased, "order-saga-group"),
					compensation.HandleInventoryReleased),
				mq.NewConsumer(mq.NewKafkaReader(brokers, constants.TopicPaymentRefunded, "order-saga-group"),
					compensation.HandlePaymentRefunded),
				mq.NewConsumer(mq.NewKafkaReader(brokers, constants.TopicInventoryLockFail, "order-lockfail-group"),
					infrastructure.NewLockFailedConsumer(orc, guard).Handle),
			}
			for _, c := range consumers {
				c.Start(appCtx.Ctx)
			}

			// outbox 发布 + 保留期清理 + 卡住 saga 重驱
			publisher := outbox.NewPublisher(outboxStore, outbox.NewKafkaBroker(brokers),
				cfg.Outbox.BatchSize, cfg.Outbox.Retention.D())
			sweeper := application.NewSweeper(orc, cfg.Saga.StuckAfter.D(), cfg.Saga.BatchSize)

			sched := scheduler.New()
			sched.Register(scheduler.Job{Name: "outbox_publish", Interval: cfg.Outbox.PollInterval.D(), Run: publisher.PublishPending})
			sched.Register(scheduler.Job{Name: "outbox_sweep", Interval: cfg.Outbox.SweepInterval.D(), Run: publisher.SweepProcessed})
			sched.Register(scheduler.Job{Name: "saga_sweep", Interval: cfg.Saga.SweepEvery.D(), Run: sweeper.Run})
			go func() {
				if err := sched.Start(appCtx.Ctx); err != nil {
					log.Error().Err(err).Msg("scheduler stopped with error")
				}
			}()

			interfaces.NewHTTPHandler(orc, orders, tracer).RegisterRoutes(appCtx.Mux)
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
		},
	})
}

func servicePort(fallback int) int {
	if v, ok := os.LookupEnv("PORT"); ok {
		if p, err := strconv.Atoi(v); err == nil {
			return p
		}
	}
	return fallback
}
