package lock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/switchboard/internal/config"
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const renewScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`

// Redis holds the apply lock as a key with an owner token. The holder
// extends the key every ttl/3 until release, so the TTL only bounds how long
// a crashed holder can block applies, never a slow apply.
type Redis struct {
	client *redis.Client
	script *redis.Script
	renew  *redis.Script
	key    string
	ttl    time.Duration
}

func newRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.RedisAddr),
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Redis{
		client: client,
		script: redis.NewScript(releaseScript),
		renew:  redis.NewScript(renewScript),
		key:    redisKey,
		ttl:    ttl,
	}
}

func (l *Redis) TryAcquire(ctx context.Context) (Release, error) {
	if l == nil || l.client == nil {
		return nil, errors.New("apply lock: redis client not configured")
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrHeld
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(token, stop, done)

	var once sync.Once
	return func(ctx context.Context) error {
		var err error
		once.Do(func() {
			close(stop)
			<-done
			err = l.script.Run(ctx, l.client, []string{l.key}, token).Err()
		})
		return err
	}, nil
}

// keepAlive extends the key while token still owns it. It exits on stop or
// once ownership is lost.
func (l *Redis) keepAlive(token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(renewInterval(l.ttl))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), renewInterval(l.ttl))
			owned, err := l.renew.Run(ctx, l.client, []string{l.key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err == nil && owned == 0 {
				return
			}
		}
	}
}

func renewInterval(ttl time.Duration) time.Duration {
	interval := ttl / 3
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	return interval
}

func (l *Redis) Close() error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Close()
}
