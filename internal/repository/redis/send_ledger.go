package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Mcszl/Auth-Ywxmz-sub000/internal/core/port"
)

const defaultSendLedgerPrefix = "send_ledger"

// reserveScript trims every slot to its window and, when no slot is full,
// adds the member to all of them. Returns {allowed, blocked_index, oldest_ms}.
//
// KEYS: slot keys
// ARGV: now_ms, member, then window_ms and max_count per slot
var reserveScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local member = ARGV[2]
for i, key in ipairs(KEYS) do
	local window = tonumber(ARGV[1 + i * 2])
	local max = tonumber(ARGV[2 + i * 2])
	redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
	local count = redis.call('ZCARD', key)
	if count >= max then
		local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
		local score = 0
		if oldest[2] then
			score = tonumber(oldest[2])
		end
		return {0, i - 1, score}
	end
end
for i, key in ipairs(KEYS) do
	local window = tonumber(ARGV[1 + i * 2])
	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, window)
end
return {1, -1, 0}
`)

// SendLedgerRepository keeps per-rule send history in Redis sorted sets
// scored by send time in milliseconds.
type SendLedgerRepository struct {
	client *redis.Client
	prefix string
}

// NewSendLedgerRepository constructs a ledger using the provided key prefix.
func NewSendLedgerRepository(client *redis.Client, keyPrefix string) *SendLedgerRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultSendLedgerPrefix
	}
	return &SendLedgerRepository{client: client, prefix: prefix}
}

// Count returns how many sends fall inside (now-window, now] and the oldest of them.
func (r *SendLedgerRepository) Count(ctx context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error) {
	if window <= 0 {
		return 0, time.Time{}, errors.New("window must be positive")
	}

	k := r.key(key)
	min := "(" + strconv.FormatInt(now.Add(-window).UnixMilli(), 10)
	max := strconv.FormatInt(now.UnixMilli(), 10)

	count, err := r.client.ZCount(ctx, k, min, max).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis zcount: %w", err)
	}
	if count == 0 {
		return 0, time.Time{}, nil
	}

	oldest, err := r.client.ZRangeByScoreWithScores(ctx, k, &redis.ZRangeBy{
		Min:    min,
		Max:    max,
		Offset: 0,
		Count:  1,
	}).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis zrangebyscore: %w", err)
	}

	var at time.Time
	if len(oldest) > 0 {
		at = time.UnixMilli(int64(oldest[0].Score))
	}
	return int(count), at, nil
}

// Reserve atomically checks every slot and records member in all of them
// only when none is at capacity.
func (r *SendLedgerRepository) Reserve(ctx context.Context, slots []port.LedgerSlot, member string, now time.Time) (port.LedgerVerdict, error) {
	if len(slots) == 0 {
		return port.LedgerVerdict{Allowed: true, Blocked: -1}, nil
	}

	keys := make([]string, 0, len(slots))
	args := make([]any, 0, 2+len(slots)*2)
	args = append(args, now.UnixMilli(), member)
	for _, slot := range slots {
		if slot.Window <= 0 || slot.MaxCount <= 0 {
			return port.LedgerVerdict{}, fmt.Errorf("invalid ledger slot %q", slot.Key)
		}
		keys = append(keys, r.key(slot.Key))
		args = append(args, slot.Window.Milliseconds(), slot.MaxCount)
	}

	res, err := reserveScript.Run(ctx, r.client, keys, args...).Int64Slice()
	if err != nil {
		return port.LedgerVerdict{}, fmt.Errorf("redis reserve: %w", err)
	}
	if len(res) != 3 {
		return port.LedgerVerdict{}, fmt.Errorf("redis reserve: unexpected reply length %d", len(res))
	}

	verdict := port.LedgerVerdict{Allowed: res[0] == 1, Blocked: int(res[1])}
	if !verdict.Allowed && res[2] > 0 {
		verdict.Oldest = time.UnixMilli(res[2])
	}
	return verdict, nil
}

// Record adds member to every slot without checking capacity.
func (r *SendLedgerRepository) Record(ctx context.Context, slots []port.LedgerSlot, member string, now time.Time) error {
	if len(slots) == 0 {
		return nil
	}

	pipe := r.client.TxPipeline()
	for _, slot := range slots {
		k := r.key(slot.Key)
		pipe.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixMilli()), Member: member})
		if slot.Window > 0 {
			pipe.PExpire(ctx, k, slot.Window)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis record send: %w", err)
	}
	return nil
}

// Release removes member from the given ledger keys.
func (r *SendLedgerRepository) Release(ctx context.Context, keys []string, member string) error {
	if len(keys) == 0 {
		return nil
	}

	pipe := r.client.TxPipeline()
	for _, key := range keys {
		pipe.ZRem(ctx, r.key(key), member)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis release send: %w", err)
	}
	return nil
}

func (r *SendLedgerRepository) key(key string) string {
	return fmt.Sprintf("%s:%s", r.prefix, key)
}

var _ port.SendLedger = (*SendLedgerRepository)(nil)
