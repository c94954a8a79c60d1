// Package broker implements the Redis-backed queue, pause gate,
// single-flight lock and delayed-replay set the pipeline coordinates
// through, grounded on the original TaskQueue (RPUSH/BLPOP/LLEN) and the
// cache-backend wrapper-struct-around-a-driver-client idiom used
// throughout the example services.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"pixav/internal/domain/ports"
)

// unlockScript performs a compare-and-delete release: only the holder
// that set the lock value may clear it.
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Broker wraps a *redis.Client with the pipeline's coordination
// primitives. It satisfies ports.Broker.
type Broker struct {
	client *redis.Client
}

var _ ports.Broker = (*Broker)(nil)

// New wraps an already-connected redis client.
func New(client *redis.Client) *Broker {
	return &Broker{client: client}
}

// Ping verifies connectivity, mirroring the teacher's startup Ping check.
func (b *Broker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Queue returns a FIFO handle bound to name.
func (b *Broker) Queue(name string) ports.Queue {
	return &Queue{client: b.client, name: name}
}

// IsPaused reports whether the well-known pause key is currently set.
func (b *Broker) IsPaused(ctx context.Context, key string) (bool, error) {
	n, err := b.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetPause sets the pause key with a TTL so an operator forgetting to
// clear it does not wedge the pipeline forever.
func (b *Broker) SetPause(ctx context.Context, key string, ttl time.Duration) error {
	return b.client.Set(ctx, key, "1", ttl).Err()
}

// ClearPause removes the pause key.
func (b *Broker) ClearPause(ctx context.Context, key string) error {
	return b.client.Del(ctx, key).Err()
}

// TryLock attempts SET key token NX PX ttl, returning whether this caller
// now holds the lock.
func (b *Broker) TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	ok, err := b.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Unlock releases the lock only if token matches the current holder.
func (b *Broker) Unlock(ctx context.Context, key, token string) (bool, error) {
	res, err := b.client.Eval(ctx, unlockScript, []string{key}, token).Result()
	if err != nil {
		return false, err
	}
	n, _ := res.(int64)
	return n == 1, nil
}

// ScheduleReplay adds payload to the delayed-replay sorted set, scored by
// readyAt's unix timestamp.
func (b *Broker) ScheduleReplay(ctx context.Context, setName string, payload map[string]any, readyAt time.Time) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.client.ZAdd(ctx, setName, redis.Z{
		Score:  float64(readyAt.Unix()),
		Member: string(encoded),
	}).Err()
}

// DrainDueReplays pops every member scored at or before now and returns
// their decoded payloads, removing them from the set atomically per item.
func (b *Broker) DrainDueReplays(ctx context.Context, setName string, now time.Time) ([]map[string]any, error) {
	members, err := b.client.ZRangeByScore(ctx, setName, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(members))
	for _, m := range members {
		removed, err := b.client.ZRem(ctx, setName, m).Result()
		if err != nil || removed == 0 {
			// Another drainer already claimed it.
			continue
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(m), &payload); err != nil {
			continue
		}
		out = append(out, payload)
	}
	return out, nil
}

// Queue is a named FIFO over Redis lists.
type Queue struct {
	client *redis.Client
	name   string
}

// Name returns the queue's identifier.
func (q *Queue) Name() string { return q.name }

// Push JSON-encodes payload and appends it to the queue's tail.
func (q *Queue) Push(ctx context.Context, payload map[string]any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, q.name, encoded).Err()
}

// Pop blocks up to timeout waiting for an item, returning (payload, true,
// nil) on success or (nil, false, nil) on timeout. timeout <= 0 performs a
// single non-blocking LPOP instead of BLPOP(0), which would block forever.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (map[string]any, bool, error) {
	if timeout <= 0 {
		val, err := q.client.LPop(ctx, q.name).Result()
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(val), &payload); err != nil {
			return nil, false, err
		}
		return payload, true, nil
	}

	res, err := q.client.BLPop(ctx, timeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	// BLPOP returns [key, value]; value is the second element.
	if len(res) != 2 {
		return nil, false, nil
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(res[1]), &payload); err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

// Length returns the current queue depth.
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.name).Result()
}

