package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

const defaultRedisTTL = 2 * time.Minute

// Снимаем блокировку, только если она всё ещё принадлежит нам.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis — распределённая блокировка для нескольких экземпляров сервиса.
// TTL ограничивает время жизни блокировки, если процесс упал, не сняв её.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *log.Entry
}

// RedisOption настраивает Redis блокировку.
type RedisOption func(*Redis)

// WithKeyPrefix задаёт префикс ключей.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithTTL задаёт время жизни блокировки.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) RedisOption {
	return func(r *Redis) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRedis создаёт блокировку поверх redis клиента.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{
		client: client,
		prefix: "vegshop:checkout:",
		ttl:    defaultRedisTTL,
		logger: log.WithField("component", "checkout-lock"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Acquire выполняет SET NX PX с уникальным токеном.
func (r *Redis) Acquire(ctx context.Context, actorID string) (func(), error) {
	key := r.prefix + actorID
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire checkout lock: %w", err)
	}
	if !ok {
		return nil, domain.ErrCheckoutInProgress
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, r.client, []string{key}, token).Err(); err != nil {
				r.logger.WithError(err).WithField("actor_id", actorID).Warn("failed to release checkout lock")
			}
		})
	}, nil
}

var _ domain.CheckoutLocker = (*Redis)(nil)
