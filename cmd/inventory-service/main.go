// cmd/inventory-service/main.go
package main

import (
	"net/http"
	"os"
	"strconv"
	"time"

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
	"orderflow/internal/pkg/zookeeper"
	"orderflow/internal/service/inventory/application"
	"orderflow/internal/service/inventory/infrastructure"
	"orderflow/internal/service/inventory/interfaces"
)

// main 是库存服务的组装根：台账、outbox 发布器和两个消费者。
func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: constants.InventoryService,
		Port:        servicePort(8082),
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			tracer := otel.Tracer(constants.InventoryService)

			db, err := database.OpenMysql(cfg.Infra.Mysql.DSN)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to connect to mysql")
			}

			outboxStore := outbox.NewStore(db)
			if err := outboxStore.AutoMigrate(); err != nil {
				log.Fatal().Err(err).Msg("failed to migrate outbox table")
			}

			repo := infrastructure.NewGormRecordRepository(db)
			if err := repo.AutoMigrate(); err != nil {
				log.Fatal().Err(err).Msg("failed to migrate inventory tables")
			}

			zkConn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, 5*time.Second)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to connect to zookeeper")
			}

			svc := application.NewService(db, repo, outboxStore, tracer, cfg.Inventory.HotSkus, zkConn)

			guard := inbox.NewGuard(db, constants.InventoryService)
			if err := guard.AutoMigrate(); err != nil {
				log.Fatal().Err(err).Msg("failed to migrate processed-event table")
			}

			// 消费者：取消补偿 + 异步预占命令
			brokers := cfg.Infra.Kafka.Brokers
			cancelConsumer := mq.NewConsumer(
				mq.NewKafkaReader(brokers, constants.TopicOrderCancel, "inventory-cancel-group"),
				infrastructure.NewCancelConsumer(svc, guard).Handle,
			)
			cancelConsumer.Start(appCtx.Ctx)

			lockConsumer := mq.NewConsumer(
				mq.NewKafkaReader(brokers, constants.TopicInventoryLockReq, "inventory-lock-group"),
				infrastructure.NewLockRequestConsumer(svc, guard).Handle,
			)
			lockConsumer.Start(appCtx.Ctx)

			// outbox 发布与保留期清理
			publisher := outbox.NewPublisher(outboxStore, outbox.NewKafkaBroker(brokers),
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
