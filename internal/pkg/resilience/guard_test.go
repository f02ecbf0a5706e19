// internal/pkg/resilience/guard_test.go
package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/pkg/apperr"
)

func quickConfig(name string) Config {
	return Config{
		Name:            name,
		MaxRetries:      0,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		BreakerFailures: 2,
		BreakerTimeout:  time.Minute,
	}
}

func TestDoReturnsBusinessErrorWithoutRetry(t *testing.T) {
	guard := NewGuard(quickConfig("inventory"))

	calls := 0
	err := guard.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return apperr.New(apperr.CodeInsufficientStock, "sku out of stock")
	})

	require.Error(t, err)
	assert.Equal(t, apperr.CodeInsufficientStock, apperr.CodeOf(err))
	assert.Equal(t, 1, calls, "business rejections must not be retried")
}

func TestDoBusinessErrorsDoNotTripBreaker(t *testing.T) {
	guard := NewGuard(quickConfig("inventory"))

	for i := 0; i < 10; i++ {
		err := guard.Do(context.Background(), func(ctx context.Context) error {
			return apperr.New(apperr.CodeInsufficientStock, "sku out of stock")
		})
		// 熔断器始终闭合，业务拒绝原样返回
		assert.Equal(t, apperr.CodeInsufficientStock, apperr.CodeOf(err))
	}
}

func TestDoOpensBreakerAfterConsecutiveFailures(t *testing.T) {
	guard := NewGuard(quickConfig("payment-gateway"))
	boom := errors.New("connection refused")

	for i := 0; i < 2; i++ {
		err := guard.Do(context.Background(), func(ctx context.Context) error { return boom })
		require.ErrorIs(t, err, boom)
	}

	// 第三次：熔断已开，op 不再被调用，快速失败
	calls := 0
	err := guard.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeCircuitOpen, apperr.CodeOf(err))
	assert.Zero(t, calls)
}

func TestDoMapsDeadlineToTimeout(t *testing.T) {
	guard := NewGuard(quickConfig("inventory"))

	err := guard.Do(context.Background(), func(ctx context.Context) error {
		return context.DeadlineExceeded
	})

	require.Error(t, err)
	assert.Equal(t, apperr.CodeTimeout, apperr.CodeOf(err))
}

func TestDoMapsCancellationToTimeout(t *testing.T) {
	guard := NewGuard(quickConfig("inventory"))

	// 调用方取消时请求可能已在下游生效，和超时一样是结果未知，
	// 统一映射让调用方走同一条补偿路径
	err := guard.Do(context.Background(), func(ctx context.Context) error {
		return context.Canceled
	})

	require.Error(t, err)
	assert.Equal(t, apperr.CodeTimeout, apperr.CodeOf(err))
}

func TestDoConflictsRetryWithoutTrippingBreaker(t *testing.T) {
	cfg := quickConfig("inventory")
	cfg.MaxRetries = 2
	guard := NewGuard(cfg)

	// 版本冲突连续出现远超熔断阈值，也只按退避重试，熔断器保持闭合
	calls := 0
	for i := 0; i < 5; i++ {
		err := guard.Do(context.Background(), func(ctx context.Context) error {
			calls++
			return apperr.New(apperr.CodeConcurrencyConflict, "version conflict for sku")
		})
		require.Error(t, err)
		assert.Equal(t, apperr.CodeConcurrencyConflict, apperr.CodeOf(err))
	}
	// 每轮 1 次原始调用 + 2 次重试
	assert.Equal(t, 15, calls)

	// 熔断未开：下一次调用仍然到达 op
	reached := false
	require.NoError(t, guard.Do(context.Background(), func(ctx context.Context) error {
		reached = true
		return nil
	}))
	assert.True(t, reached)
}

func TestDoRateLimits(t *testing.T) {
	cfg := quickConfig("inventory")
	cfg.RatePerSecond = 0.001
	cfg.RateBurst = 1
	guard := NewGuard(cfg)

	require.NoError(t, guard.Do(context.Background(), func(ctx context.Context) error { return nil }))

	err := guard.Do(context.Background(), func(ctx context.Context) error { return nil })
	require.Error(t, err)
	assert.Equal(t, apperr.CodeRateLimited, apperr.CodeOf(err))
}

func TestDoRetriesTransientFailure(t *testing.T) {
	cfg := quickConfig("inventory")
	cfg.MaxRetries = 3
	cfg.BreakerFailures = 100
	guard := NewGuard(cfg)

	calls := 0
	err := guard.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}
