// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 各组件共享的 Prometheus 指标。标签保持低基数：主题、服务、结果。
var (
	OutboxPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_published_total",
		Help: "Outbox events successfully published to the broker.",
	}, []string{"topic"})

	OutboxPublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_publish_failures_total",
		Help: "Outbox publish attempts that failed and will be retried.",
	}, []string{"topic"})

	OutboxSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_events_swept_total",
		Help: "Processed outbox events removed by the retention sweep.",
	})

	EventsDeduplicated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "consumer_events_deduplicated_total",
		Help: "Inbound events skipped because they were already processed.",
	}, []string{"consumer"})

	ReservationConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_reservation_conflicts_total",
		Help: "Optimistic concurrency conflicts during stock reservation.",
	})

	SagasCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cancellation_sagas_completed_total",
		Help: "Cancellation sagas that reached the CANCELLED terminal state.",
	})

	StuckSagasRetried = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stuck_sagas_retried_total",
		Help: "Sagas re-driven by the stuck-saga sweep.",
	})

	PaymentsReconciled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_reconciled_total",
		Help: "Payments moved to PAID by the reconciliation job.",
	})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scheduled_job_duration_seconds",
		Help:    "Execution time of scheduled background jobs.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
)
