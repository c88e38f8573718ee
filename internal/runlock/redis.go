package runlock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "nebulaflow:run-lock:"

// Compare-and-delete and compare-and-extend keep a process from touching a
// lock that expired and was taken by someone else.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Connect builds a client from a redis:// URL or a host:port address.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisLocker shares run exclusivity across processes. Leases expire after
// ttl unless renewed; a held lease renews itself every ttl/3 until released.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisLocker creates a locker on client.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{client: client, ttl: ttl, logger: logger.With(zap.String("component", "redis_run_lock"))}
}

// TryAcquire implements Locker with SET NX PX.
func (l *RedisLocker) TryAcquire(ctx context.Context, key string) (Lease, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, keyPrefix+key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrHeld
	}

	lease := &redisLease{
		locker: l,
		key:    keyPrefix + key,
		token:  token,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go lease.renew()
	return lease, nil
}

type redisLease struct {
	locker *RedisLocker
	key    string
	token  string
	once   sync.Once
	stop   chan struct{}
	done   chan struct{}
}

func (r *redisLease) renew() {
	defer close(r.done)
	ticker := time.NewTicker(r.locker.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.locker.ttl/3)
			n, err := extendScript.Run(ctx, r.locker.client, []string{r.key}, r.token, r.locker.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				r.locker.logger.Warn("failed to renew run lock", zap.String("key", r.key), zap.Error(err))
				continue
			}
			if n == 0 {
				r.locker.logger.Warn("run lock lost before release", zap.String("key", r.key))
				return
			}
		}
	}
}

func (r *redisLease) Release(ctx context.Context) error {
	var err error
	r.once.Do(func() {
		close(r.stop)
		<-r.done
		err = releaseScript.Run(ctx, r.locker.client, []string{r.key}, r.token).Err()
	})
	return err
}
