package ratelimit

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/gitwallet/market/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const verifyKeyPrefix = "auth:verify:"

var ErrBadBucketReply = errors.New("rate_limit_bad_reply")

// takeToken refills KEYS[1] at ARGV[1] tokens per second up to ARGV[2] and
// spends one token. Replies {allowed, whole tokens left, retry after ms}.
var takeToken = redis.NewScript(`
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local clock = redis.call("TIME")
local now = clock[1] * 1000 + math.floor(clock[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local last = tonumber(state[2]) or now
tokens = math.min(burst, tokens + math.max(0, now - last) / 1000 * rate)

local allowed = 0
local retry = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  retry = math.ceil((1 - tokens) / rate * 1000)
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", tostring(now))
redis.call("PEXPIRE", KEYS[1], math.ceil(burst / rate * 2000))
return {allowed, math.floor(tokens), retry}
`)

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// VerifyLimiter throttles session verification calls per client address
// with a Redis token bucket shared by every replica.
type VerifyLimiter struct {
	client *redis.Client
	rate   float64
	burst  int
}

// NewVerifyLimiter returns nil when Redis or the limits are not configured.
func NewVerifyLimiter(client *redis.Client, cfg config.Config) *VerifyLimiter {
	if client == nil || cfg.Redis.VerifyRate <= 0 || cfg.Redis.VerifyBurst <= 0 {
		return nil
	}
	return &VerifyLimiter{
		client: client,
		rate:   cfg.Redis.VerifyRate,
		burst:  cfg.Redis.VerifyBurst,
	}
}

func (l *VerifyLimiter) Allow(ctx context.Context, clientAddr string) (Decision, error) {
	if l == nil {
		return Decision{Allowed: true}, nil
	}
	clientAddr = strings.TrimSpace(clientAddr)
	if clientAddr == "" {
		clientAddr = "unknown"
	}

	reply, err := takeToken.Run(ctx, l.client, []string{verifyKeyPrefix + clientAddr}, l.rate, l.burst).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(reply) != 3 {
		return Decision{}, ErrBadBucketReply
	}

	return Decision{
		Allowed:    reply[0] == 1,
		Remaining:  int(reply[1]),
		RetryAfter: time.Duration(reply[2]) * time.Millisecond,
	}, nil
}

// RetryAfterSeconds rounds up to the whole seconds a Retry-After header takes.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(d.RetryAfter.Seconds()))
}
