// cmd/payment-service/main.go
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
	"orderflow/internal/pkg/mq"
	"orderflow/internal/pkg/outbox"
	"orderflow/internal/pkg/scheduler"
	"orderflow/internal/service/payment/application"
	"orderflow/internal/service/payment/infrastructure"
	"orderflow/internal/service/payment/interfaces"
)

// main 是支付服务的组装根：webhook 入口、对账任务和退款消费者。
func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: constants.PaymentService,
		Port:        servicePort(8083),
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			tracer := otel.Tracer(constants.PaymentService)

			db, err := database.OpenMysql(cfg.Infra.Mysql.DSN)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to connect to mysql")
			}

			outboxStore := outbox.NewStore(db)
			if err := outboxStore.AutoMigrate(); err != nil {
				log.Fatal().Err(err).Msg("failed to migrate outbox table")
			}

			repo, err := infrastructure.NewGormPaymentRepository(db)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to migrate payment table")
			}

			gateway := infrastructure.NewRestyGateway(
				cfg.Payment.GatewayBaseURL, cfg.Payment.GatewayKey, cfg.Payment.GatewaySecret)
			svc := application.NewService(db, repo, outboxStore, gateway, tracer, cfg.Payment.WebhookSecret)
			if err := svc.DedupGuard().AutoMigrate(); err != nil {
				log.Fatal().Err(err).Msg("failed to migrate processed-event table")
			}

			// 退款补偿消费者
			brokers := cfg.Infra.Kafka.Brokers
			refundConsumer := mq.NewConsumer(
				mq.NewKafkaReader(brokers, constants.TopicOrderCancel, "payment-refund-group"),
				infrastructure.NewRefundConsumer(svc).Handle,
			)
			refundConsumer.Start(appCtx.Ctx)

			// 异步支付模式：消费 order-created 开网关订单
			orderCreatedConsumer := mq.NewConsumer(
				mq.NewKafkaReader(brokers, constants.TopicOrderCreated, "payment-order-created-group"),
				infrastructure.NewOrderCreatedConsumer(svc).Handle,
			)
			orderCreatedConsumer.Start(appCtx.Ctx)

			// outbox 发布 + 保留期清理 + 对账
			publisher := outbox.NewPublisher(outboxStore, outbox.NewKafkaBroker(brokers),
				cfg.Outbox.BatchSize, cfg.Outbox.Retention.D())
			reconciler := application.NewReconciler(svc, cfg.Payment.ReconcileAfter.D(), cfg.Payment.BatchSize)

			sched := scheduler.New()
			sched.Register(scheduler.Job{Name: "outbox_publish", Interval: cfg.Outbox.PollInterval.D(), Run: publisher.PublishPending})
			sched.Register(scheduler.Job{Name: "outbox_sweep", Interval: cfg.Outbox.SweepInterval.D(), Run: publisher.SweepProcessed})
			sched.Register(scheduler.Job{Name: "payment_reconcile", Interval: cfg.Payment.ReconcileEvery.D(), Run: reconciler.Run})
			go func() {
				if err := sched.Start(appCtx.Ctx); err != nil {
					log.Error().Err(err).Msg("scheduler stopped with error")
				}
			}()

			interfaces.NewHTTPHandler(svc, tracer).RegisterRoutes(appCtx.Mux)
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
