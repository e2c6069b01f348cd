package ratelimit

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultPrefix = "plantrip:rl"

// tokenBucket refills whole intervals and consumes one token per call.
// Returns {allowed, remaining, retry_after_ms}.
var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local interval_ms = tonumber(ARGV[3])
local ttl_seconds = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])
if tokens == nil or last_refill == nil then
  tokens = capacity
  last_refill = now_ms
end

if interval_ms > 0 then
  local elapsed = math.max(0, now_ms - last_refill)
  local intervals = math.floor(elapsed / interval_ms)
  if intervals > 0 then
    tokens = math.min(capacity, tokens + intervals)
    last_refill = last_refill + (intervals * interval_ms)
  end
end

local allowed = 0
local retry_after_ms = 0
if tokens > 0 then
  allowed = 1
  tokens = tokens - 1
else
  retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)
return { allowed, tokens, retry_after_ms }
`)

// Rule admits Limit calls per Window for one caller. Tokens refill one at a
// time, every Window/Limit.
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
}

// PerMinute and PerHour build rules for the common windows.
func PerMinute(name string, limit int) Rule {
	return Rule{Name: name, Limit: limit, Window: time.Minute}
}

func PerHour(name string, limit int) Rule {
	return Rule{Name: name, Limit: limit, Window: time.Hour}
}

func (r Rule) refillInterval() time.Duration {
	return r.Window / time.Duration(r.Limit)
}

// Config wires the limiter. A nil Client disables limiting.
type Config struct {
	Client  redis.Scripter
	Prefix  string
	KeyFunc func(*gin.Context) string
	Clock   func() time.Time
	Logger  *zap.Logger
}

// Limiter enforces rules against a Redis-held token bucket per caller.
type Limiter struct {
	client  redis.Scripter
	prefix  string
	keyFunc func(*gin.Context) string
	clock   func() time.Time
	logger  *zap.Logger
}

func New(cfg Config) *Limiter {
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = func(c *gin.Context) string { return c.ClientIP() }
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		client:  cfg.Client,
		prefix:  prefix,
		keyFunc: keyFunc,
		clock:   clock,
		logger:  logger,
	}
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Allow consumes a token for identity under rule.
func (l *Limiter) Allow(ctx context.Context, rule Rule, identity string) (Decision, error) {
	if l == nil || l.client == nil || rule.Limit <= 0 || rule.Window <= 0 {
		return Decision{Allowed: true}, nil
	}
	key := fmt.Sprintf("%s:%s:%s", l.prefix, rule.Name, identity)
	ttlSeconds := int64(math.Ceil(rule.Window.Seconds())) + 1
	values, err := tokenBucket.Run(ctx, l.client, []string{key},
		l.clock().UnixMilli(),
		rule.Limit,
		rule.refillInterval().Milliseconds(),
		ttlSeconds,
	).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(values) != 3 {
		return Decision{}, fmt.Errorf("unexpected token bucket result %v", values)
	}
	return Decision{
		Allowed:    values[0] == 1,
		Remaining:  values[1],
		RetryAfter: time.Duration(values[2]) * time.Millisecond,
	}, nil
}

// Middleware rejects callers over rule with 429. Redis failures let the
// request through.
func (l *Limiter) Middleware(rule Rule) gin.HandlerFunc {
	if l == nil || l.client == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		identity := l.keyFunc(c)
		if identity == "" {
			identity = "anonymous"
		}
		decision, err := l.Allow(c.Request.Context(), rule, identity)
		if err != nil {
			l.logger.Warn("rate limiter unavailable",
				zap.String("rule", rule.Name),
				zap.Error(err),
			)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		if !decision.Allowed {
			seconds := int(math.Ceil(decision.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limited",
				"code":        "ratelimit." + rule.Name + ".exceeded",
				"message":     "rate limit exceeded",
				"retry_after": seconds,
			})
			return
		}
		c.Next()
	}
}
