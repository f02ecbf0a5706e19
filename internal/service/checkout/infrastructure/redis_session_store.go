// internal/service/checkout/infrastructure/redis_session_store.go
package infrastructure

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"orderflow/internal/pkg/redis"
	"orderflow/internal/service/checkout/domain"
)

const (
	sessionKeyPrefix = "checkout:session:"
	shadowKeyPrefix  = "checkout:shadow:"
)

// RedisSessionStore 用双键保存结算会话：
// 数据键带完整 TTL，影子键带更短的 TTL。影子键先到期，
// 它的到期事件触发清理时数据键仍然可读，清理器能拿到会话内容去释放预占。
// 数据键的 DEL 是清理的提交点。
type RedisSessionStore struct {
	client     *redis.Client
	sessionTTL time.Duration
	shadowTTL  time.Duration
}

func NewRedisSessionStore(client *redis.Client, sessionTTL, shadowTTL time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, sessionTTL: sessionTTL, shadowTTL: shadowTTL}
}

// Save 写入会话和影子键。
func (s *RedisSessionStore) Save(ctx context.Context, session *domain.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	key := session.Key()

	pipe := s.client.GetClient().Pipeline()
	pipe.Set(ctx, sessionKeyPrefix+key, raw, s.sessionTTL)
	pipe.Set(ctx, shadowKeyPrefix+key, "1", s.shadowTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// Find 按键加载会话。
// 数据键已到期但还没来得及清理的窗口里，调用方同样得到 not found。
func (s *RedisSessionStore) Find(ctx context.Context, key string) (*domain.Session, error) {
	raw, err := s.client.GetClient().Get(ctx, sessionKeyPrefix+key).Bytes()
	if err == goredis.Nil {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var session domain.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Delete 删除会话。返回 true 表示本次调用删掉了数据键，
// 即本调用方赢得了清理权。
func (s *RedisSessionStore) Delete(ctx context.Context, key string) (bool, error) {
	removed, err := s.client.GetClient().Del(ctx, sessionKeyPrefix+key).Result()
	if err != nil {
		return false, err
	}
	// 影子键可能已自然到期，删除结果不参与判定
	s.client.GetClient().Del(ctx, shadowKeyPrefix+key)
	return removed == 1, nil
}

// ExpiryHandler 在会话到期时被调用，入参是会话键。
type ExpiryHandler func(ctx context.Context, key string)

// StartExpiryWatcher 订阅影子键的到期事件，并以周期扫描兜底。
// keyspace 通知是尽力投递：订阅方短暂掉线丢掉的事件由扫描补上。
// ctx 取消后两条路径都退出。
func (s *RedisSessionStore) StartExpiryWatcher(ctx context.Context, scanInterval time.Duration, handler ExpiryHandler) {
	// 通知开关是实例级配置，设置失败只降级到纯扫描
	if err := s.client.GetClient().ConfigSet(ctx, "notify-keyspace-events", "Ex").Err(); err != nil {
		log.Warn().Err(err).Msg("could not enable keyspace notifications, relying on scan fallback only")
	}

	go s.subscribeExpired(ctx, handler)
	go s.scanLoop(ctx, scanInterval, handler)
}

func (s *RedisSessionStore) subscribeExpired(ctx context.Context, handler ExpiryHandler) {
	pubsub := s.client.GetClient().PSubscribe(ctx, "__keyevent@*__:expired")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if !strings.HasPrefix(msg.Payload, shadowKeyPrefix) {
				continue
			}
			key := strings.TrimPrefix(msg.Payload, shadowKeyPrefix)
			handler(ctx, key)
		}
	}
}

// scanLoop 周期性找出影子键已消失但数据键仍在的会话。
func (s *RedisSessionStore) scanLoop(ctx context.Context, interval time.Duration, handler ExpiryHandler) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scanOnce(ctx, handler)
		}
	}
}

func (s *RedisSessionStore) scanOnce(ctx context.Context, handler ExpiryHandler) {
	rdb := s.client.GetClient()
	iter := rdb.Scan(ctx, 0, sessionKeyPrefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		key := strings.TrimPrefix(iter.Val(), sessionKeyPrefix)
		exists, err := rdb.Exists(ctx, shadowKeyPrefix+key).Result()
		if err != nil {
			log.Warn().Err(err).Msg("session scan: shadow key check failed")
			continue
		}
		if exists == 0 {
			handler(ctx, key)
		}
	}
	if err := iter.Err(); err != nil {
		log.Warn().Err(err).Msg("session scan failed")
	}
}
