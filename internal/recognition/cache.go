package recognition

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// setIfGeneration writes the roster only while the generation counter still
// holds the value observed before listing.
var setIfGeneration = redis.NewScript(`
local cur = redis.call('GET', KEYS[1]) or '0'
if cur ~= ARGV[1] then
  return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

// RedisKeyCache stores class rosters as JSON arrays under roster:<class>,
// guarded by a per-class generation counter under roster-gen:<class>.
type RedisKeyCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	genPfx string
}

// NewRedisKeyCache builds a cache with the given entry TTL.
func NewRedisKeyCache(client *redis.Client, ttl time.Duration) *RedisKeyCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisKeyCache{client: client, ttl: ttl, prefix: "faceattend:roster:", genPfx: "faceattend:roster-gen:"}
}

// Get returns the cached keys; ok is false on a miss.
func (c *RedisKeyCache) Get(ctx context.Context, class string) ([]string, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+class).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var keys []string
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, false, err
	}
	return keys, true, nil
}

// Generation returns the current invalidation counter of class (0 if never invalidated).
func (c *RedisKeyCache) Generation(ctx context.Context, class string) (int64, error) {
	gen, err := c.client.Get(ctx, c.genPfx+class).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// SetIfGeneration caches keys for class unless the class was invalidated after gen was read.
func (c *RedisKeyCache) SetIfGeneration(ctx context.Context, class string, gen int64, keys []string) (bool, error) {
	raw, err := json.Marshal(keys)
	if err != nil {
		return false, err
	}
	stored, err := setIfGeneration.Run(ctx, c.client,
		[]string{c.genPfx + class, c.prefix + class},
		strconv.FormatInt(gen, 10), string(raw), c.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

// Invalidate bumps the generation of class and removes its cached roster.
func (c *RedisKeyCache) Invalidate(ctx context.Context, class string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.genPfx+class)
		pipe.Del(ctx, c.prefix+class)
		return nil
	})
	return err
}
