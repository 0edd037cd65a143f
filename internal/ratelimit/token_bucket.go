package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

type Config struct {
	// Capacity is the burst size and the number of tokens refilled per Window.
	Capacity  int
	Window    time.Duration
	KeyPrefix string
}

// takeScript refills the bucket for the elapsed time, then tries to take the
// requested tokens. Returns {allowed, remaining, retry_after_ms}.
var takeScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_per_ms = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
local ttl_ms = tonumber(ARGV[5])

local state = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(state[1]) or capacity
local ts = tonumber(state[2]) or now_ms

tokens = math.min(capacity, tokens + math.max(0, now_ms - ts) * refill_per_ms)

local allowed = 0
local wait_ms = 0
if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
else
  wait_ms = math.ceil((cost - tokens) / refill_per_ms)
end

redis.call("HSET", key, "tokens", tokens, "ts", now_ms)
redis.call("PEXPIRE", key, ttl_ms)

return {allowed, math.floor(tokens), wait_ms}
`)

// RedisTokenBucket limits callers per subject with a token bucket kept in
// Redis, so several bridge processes share one budget.
type RedisTokenBucket struct {
	client      redis.UniversalClient
	capacity    int64
	refillPerMS float64
	ttl         time.Duration
	keyPrefix   string
	now         func() time.Time
}

func NewRedisTokenBucket(client redis.UniversalClient, cfg Config) (*RedisTokenBucket, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.Capacity <= 0 {
		return nil, errors.New("capacity must be positive")
	}
	if cfg.Window <= 0 {
		return nil, errors.New("window must be positive")
	}

	keyPrefix := strings.TrimSpace(cfg.KeyPrefix)
	if keyPrefix == "" {
		keyPrefix = "pixelshrink:ratelimit"
	}

	return &RedisTokenBucket{
		client:      client,
		capacity:    int64(cfg.Capacity),
		refillPerMS: float64(cfg.Capacity) / float64(max(1, cfg.Window.Milliseconds())),
		ttl:         2 * cfg.Window,
		keyPrefix:   keyPrefix,
		now:         time.Now,
	}, nil
}

func (l *RedisTokenBucket) Allow(ctx context.Context, subject string) (Decision, error) {
	return l.AllowN(ctx, subject, 1)
}

// AllowN takes cost tokens for subject when available.
func (l *RedisTokenBucket) AllowN(ctx context.Context, subject string, cost int) (Decision, error) {
	if cost <= 0 {
		return Decision{Allowed: true, Remaining: l.capacity}, nil
	}
	if int64(cost) > l.capacity {
		return Decision{}, fmt.Errorf("cost %d exceeds bucket capacity %d", cost, l.capacity)
	}

	raw, err := takeScript.Run(
		ctx,
		l.client,
		[]string{l.key(subject)},
		l.capacity,
		l.refillPerMS,
		l.now().UTC().UnixMilli(),
		cost,
		l.ttl.Milliseconds(),
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("run token bucket script: %w", err)
	}
	return parseDecision(raw)
}

func (l *RedisTokenBucket) key(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "anonymous"
	}
	return l.keyPrefix + ":" + subject
}

func parseDecision(raw any) (Decision, error) {
	values, ok := raw.([]any)
	if !ok || len(values) != 3 {
		return Decision{}, fmt.Errorf("invalid token bucket response: %v", raw)
	}

	parsed := make([]int64, len(values))
	for i, v := range values {
		n, err := toInt64(v)
		if err != nil {
			return Decision{}, fmt.Errorf("parse token bucket value %d: %w", i, err)
		}
		parsed[i] = n
	}

	return Decision{
		Allowed:    parsed[0] == 1,
		Remaining:  parsed[1],
		RetryAfter: time.Duration(parsed[2]) * time.Millisecond,
	}, nil
}

func toInt64(in any) (int64, error) {
	switch v := in.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", in)
	}
}
