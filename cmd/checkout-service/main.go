// cmd/checkout-service/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"orderflow/internal/pkg/bootstrap"
	"orderflow/internal/pkg/constants"
	"orderflow/internal/pkg/database"
	"orderflow/internal/pkg/httpclient"
	"orderflow/internal/pkg/mq"
	"orderflow/internal/pkg/outbox"
	"orderflow/internal/pkg/redis"
	"orderflow/internal/pkg/resilience"
	"orderflow/internal/pkg/scheduler"
	"orderflow/internal/service/checkout/application"
	"orderflow/internal/service/checkout/infrastructure"
	"orderflow/internal/service/checkout/interfaces"
)

// main 是结算服务的组装根：会话存储、到期清理、下游适配器和 outbox 发布器。
func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: constants.CheckoutService,
		Port:        servicePort(8081),
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			tracer := otel.Tracer(constants.CheckoutService)

			db, err := database.OpenMysql(cfg.Infra.Mysql.DSN)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to connect to mysql")
			}

			outboxStore := outbox.NewStore(db)
			if err := outboxStore.AutoMigrate(); err != nil {
				log.Fatal().Err(err).Msg("failed to migrate outbox table")
			}

			redisClient, err := redis.NewClient(cfg.Infra.Redis.Addr, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to connect to redis")
			}

			sessions := infrastructure.NewRedisSessionStore(redisClient,
				cfg.Checkout.SessionTTL.D(), cfg.Checkout.ShadowTTL.D())
			idem, err := infrastructure.NewRedisIdempotencyStore(redisClient, cfg.Checkout.IdempotencyTTL.D())
			if err != nil {
				log.Fatal().Err(err).Msg("failed to initialize idempotency store")
			}
			cart := infrastructure.NewCartRedisAdapter(redisClient)

			// 每个下游一个独立的熔断/限流配置
			guards := map[string]*resilience.Guard{
				constants.InventoryService: resilience.NewGuard(resilience.DefaultConfig(constants.InventoryService)),
				constants.PaymentService:   resilience.NewGuard(resilience.DefaultConfig(constants.PaymentService)),
			}
			httpClient := httpclient.NewClient(tracer, appCtx.Nacos, guards)

			svc := application.NewService(db, outboxStore, sessions, idem,
				infrastructure.NewInventoryHTTPAdapter(httpClient),
				infrastructure.NewPaymentHTTPAdapter(httpClient),
				cart, tracer, cfg.Payment.WebhookSecret, cfg.Checkout.AsyncPayment)

			// 异步支付模式：把支付服务开出的网关订单号挂回 PENDING 会话
			if cfg.Checkout.AsyncPayment {
				attachConsumer := mq.NewConsumer(
					mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, constants.TopicPaymentOrderCreated, "checkout-gateway-attach-group"),
					infrastructure.NewGatewayAttachConsumer(svc).Handle,
				)
				attachConsumer.Start(appCtx.Ctx)
			}

			// 会话到期：keyspace 通知 + 扫描兜底，清理入口统一走 ExpireSession
			sessions.StartExpiryWatcher(appCtx.Ctx, cfg.Checkout.ScanInterval.D(),
				func(ctx context.Context, key string) {
					if err := svc.ExpireSession(ctx, key); err != nil {
						log.Error().Err(err).Str("session_key", key).Msg("session expiry cleanup failed")
					}
				})

			publisher := outbox.NewPublisher(outboxStore, outbox.NewKafkaBroker(cfg.Infra.Kafka.Brokers),
				cfg.Outbox.BatchSize, cfg.Outbox.Retention.D())
			sched := scheduler.New()
			sched.Register(scheduler.Job{Name: "outbox_publish", Interval: cfg.Outbox.PollInterval.D(), Run: publisher.PublishPending})
			sched.Register(scheduler.Job{Name: "outbox_sweep", Interval: cfg.Outbox.SweepInterval.D(), Run: publisher.SweepProcessed})
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
