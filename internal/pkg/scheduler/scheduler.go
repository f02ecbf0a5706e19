// internal/pkg/scheduler/scheduler.go
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Job 是一个周期性后台任务。
// 多实例部署时同一个 Job 可能并发执行，Run 的实现必须幂等或可安全重复。
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler 管理一个服务进程内的所有周期任务。
// 每个任务独立的 ticker 循环，随 ctx 取消一起退出。
type Scheduler struct {
	jobs []Job
}

func New() *Scheduler {
	return &Scheduler{}
}

// Register 添加一个任务。必须在 Start 之前调用。
func (s *Scheduler) Register(job Job) {
	s.jobs = append(s.jobs, job)
}

// Start 启动所有任务并阻塞，直到 ctx 取消。
// 单次执行的错误只记录日志，不会终止循环：下一个 tick 自然重试。
func (s *Scheduler) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, job := range s.jobs {
		job := job
		g.Go(func() error {
			log.Info().Str("job", job.Name).Dur("interval", job.Interval).Msg("scheduled job started")
			ticker := time.NewTicker(job.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := job.Run(ctx); err != nil {
						log.Error().Err(err).Str("job", job.Name).Msg("scheduled job run failed")
					}
				case <-ctx.Done():
					log.Info().Str("job", job.Name).Msg("scheduled job stopped")
					return nil
				}
			}
		})
	}
	return g.Wait()
}
