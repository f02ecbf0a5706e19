// internal/service/checkout/infrastructure/redis_idempotency.go
package infrastructure

import (
	"context"
	"fmt"
	"time"

	"orderflow/internal/pkg/redis"
)

const claimScriptName = "checkout_idem_claim"

// RedisIdempotencyStore 用带 TTL 的 SETNX 占用结算幂等键。
// 占用和设置过期在一段 Lua 里原子完成，不会留下永不过期的键。
type RedisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) (*RedisIdempotencyStore, error) {
	if err := client.LoadScriptFromContent(claimScriptName, claimScript); err != nil {
		return nil, fmt.Errorf("failed to load idempotency claim script: %w", err)
	}
	return &RedisIdempotencyStore{client: client, ttl: ttl}, nil
}

// Claim 尝试占用 key。返回 false 表示已有进行中的同键结算。
func (s *RedisIdempotencyStore) Claim(ctx context.Context, key string) (bool, error) {
	result, err := s.client.RunScript(ctx, claimScriptName,
		[]string{"checkout:idem:" + key}, s.ttl.Milliseconds())
	if err != nil {
		return false, fmt.Errorf("idempotency claim failed: %w", err)
	}

	code, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected result type from claim script: %T", result)
	}
	return code == 1, nil
}

// Release 归还幂等键。键不存在（已过期或从未占用）也算成功。
func (s *RedisIdempotencyStore) Release(ctx context.Context, key string) error {
	if err := s.client.GetClient().Del(ctx, "checkout:idem:"+key).Err(); err != nil {
		return fmt.Errorf("idempotency release failed: %w", err)
	}
	return nil
}

var claimScript = `
-- KEYS[1]: 幂等键, 例如: checkout:idem:req-abc
-- ARGV[1]: 占用时长（毫秒）

if redis.call('setnx', KEYS[1], '1') == 1 then
    redis.call('pexpire', KEYS[1], ARGV[1])
    return 1 -- 占用成功
end
return 0 -- 键已被占用
`
