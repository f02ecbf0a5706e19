// internal/pkg/resilience/guard.go
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"orderflow/internal/pkg/apperr"
)

// Config 描述对单个下游依赖的保护策略。
// 在服务装配时构造一次并注入，不使用全局注册表。
type Config struct {
	Name string

	// 重试
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// 熔断
	BreakerFailures uint32        // 连续失败多少次后打开
	BreakerTimeout  time.Duration // 打开后多久进入半开

	// 限流，0 表示不限流
	RatePerSecond float64
	RateBurst     int
}

// DefaultConfig 返回一组保守的默认值。
func DefaultConfig(name string) Config {
	return Config{
		Name:            name,
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

// Guard 把熔断、有界退避重试和限流组合成一个出站调用的包装器。
// 熔断打开时快速失败并返回 CIRCUIT_OPEN，而不是排队耗尽调用方线程。
type Guard struct {
	name    string
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	cfg     Config
}

// NewGuard 根据配置构造一个 Guard。
func NewGuard(cfg Config) *Guard {
	settings := gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst)
	}

	return &Guard{
		name:    cfg.Name,
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: limiter,
		cfg:     cfg,
	}
}

// Do 执行 op，并套上限流、熔断和重试。
// 业务性错误（apperr.IsBusiness）不计入熔断、不重试，原样返回。
func (g *Guard) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if g.limiter != nil && !g.limiter.Allow() {
		return apperr.New(apperr.CodeRateLimited, "too many requests to "+g.name)
	}

	var bizErr error
	attempt := func() error {
		bizErr = nil
		var conflictErr error
		_, err := g.breaker.Execute(func() (interface{}, error) {
			if err := op(ctx); err != nil {
				if apperr.IsBusiness(err) {
					// 业务拒绝不是下游故障，对熔断器呈现为成功
					bizErr = err
					return nil, nil
				}
				if apperr.CodeOf(err) == apperr.CodeConcurrencyConflict {
					// 版本冲突是热点竞争的常态，不计入熔断失败，但仍走退避重试
					conflictErr = err
					return nil, nil
				}
				return nil, err
			}
			return nil, nil
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(apperr.Wrap(err, apperr.CodeCircuitOpen, g.name+" is unavailable"))
			}
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				// 取消和超时一样：请求可能已在下游生效，结果未知，调用方按补偿路径处理
				return backoff.Permanent(apperr.Wrap(err, apperr.CodeTimeout, g.name+" call timed out"))
			}
			return err
		}
		return conflictErr
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.cfg.InitialInterval
	bo.MaxInterval = g.cfg.MaxInterval

	err := backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(bo, g.cfg.MaxRetries), ctx))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return apperr.Wrap(err, apperr.CodeTimeout, g.name+" call timed out")
		}
		return err
	}
	return bizErr
}
