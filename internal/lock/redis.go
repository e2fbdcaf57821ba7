package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// releaseScript deletes the key only if this owner still holds it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker shares per-symbol locks between processes. Leases expire after TTL so a
// crashed run cannot block its symbol forever.
type RedisLocker struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
	Log    zerolog.Logger
}

// NewRedisLocker connects to addr and verifies the connection.
func NewRedisLocker(ctx context.Context, addr, password string, db int, ttl time.Duration, log zerolog.Logger) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisLocker{Client: client, Prefix: "stockflow:lock:", TTL: ttl, Log: log}, nil
}

func (r *RedisLocker) TryAcquire(ctx context.Context, key, owner string) (func(), error) {
	ok, err := r.Client.SetNX(ctx, r.Prefix+key, owner, r.TTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrHeld
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, r.Client, []string{r.Prefix + key}, owner).Err(); err != nil {
			r.Log.Warn().Err(err).Str("key", key).Msg("release lock")
		}
	}, nil
}

// Close closes the Redis client.
func (r *RedisLocker) Close() error {
	return r.Client.Close()
}
