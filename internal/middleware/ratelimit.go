package middleware

import (
    "fmt"
    "log/slog"
    "math"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/auth-core/internal/config"
)

var limiterScript = redis.NewScript(`
    local key = KEYS[1]
    local now_ms = tonumber(ARGV[1])
    local capacity = tonumber(ARGV[2])
    local refill_tokens = tonumber(ARGV[3])
    local interval_ms = tonumber(ARGV[4])
    local ttl_seconds = tonumber(ARGV[5])

    local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
    local tokens = tonumber(state[1])
    local last_refill = tonumber(state[2])

    if tokens == nil or last_refill == nil then
        tokens = capacity
        last_refill = now_ms
    end

    if interval_ms > 0 and refill_tokens > 0 then
        local elapsed = math.max(0, now_ms - last_refill)
        local intervals = math.floor(elapsed / interval_ms)
        if intervals > 0 then
            tokens = math.min(capacity, tokens + (intervals * refill_tokens))
            last_refill = last_refill + (intervals * interval_ms)
        end
    end

    local allowed = 0
    local retry_after_ms = 0
    if tokens > 0 then
        allowed = 1
        tokens = tokens - 1
    else
        local until_next = interval_ms - (now_ms - last_refill)
        if until_next < 0 then until_next = 0 end
        retry_after_ms = until_next
    end

    redis.call('HMSET', key, 'tokens', tokens, 'last_refill_ms', last_refill, 'capacity', capacity)
    redis.call('EXPIRE', key, ttl_seconds)

    return { allowed, tokens, retry_after_ms }
`)

// bucket is the shape of one token bucket.
type bucket struct {
    capacity int
    refill   int
    interval time.Duration
}

// RateLimiter throttles requests with a Redis token bucket.  Redis errors
// let the request through.
type RateLimiter struct {
    cfg config.RateLimitConfig
    rdb redis.Scripter
    log *slog.Logger
    now func() time.Time
}

// NewRateLimiter returns a limiter.  rdb may be nil, in which case every
// middleware it builds is a pass-through.
func NewRateLimiter(cfg config.RateLimitConfig, rdb redis.Scripter, log *slog.Logger) *RateLimiter {
    return &RateLimiter{cfg: cfg, rdb: rdb, log: log, now: time.Now}
}

// WithClock replaces the clock used for refill math.
func (l *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
    l.now = now
    return l
}

// Default limits with the global bucket settings.
func (l *RateLimiter) Default() echo.MiddlewareFunc {
    return l.middleware("", bucket{capacity: l.cfg.Capacity, refill: l.cfg.RefillTokens, interval: l.cfg.RefillInterval})
}

// Limit allows capacity requests per RouteWindow for the named route.  The
// bucket refills completely once per window.
func (l *RateLimiter) Limit(name string, capacity int) echo.MiddlewareFunc {
    if capacity < 1 {
        capacity = 1
    }
    return l.middleware(name, bucket{capacity: capacity, refill: capacity, interval: l.cfg.RouteWindow})
}

func (l *RateLimiter) middleware(name string, b bucket) echo.MiddlewareFunc {
    if !l.cfg.Enabled || l.rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := buildRateKey(l.cfg, name, c)

            args := []interface{}{
                l.now().UnixMilli(),
                b.capacity,
                b.refill,
                b.interval.Milliseconds(),
                int64(l.cfg.TTL / time.Second),
            }

            ctx := c.Request().Context()
            vals, err := limiterScript.Run(ctx, l.rdb, []string{key}, args...).Result()
            if err != nil {
                l.log.Warn("ratelimit: redis error, allowing request", "key", key, "error", err)
                return next(c)
            }

            arr, ok := vals.([]interface{})
            if !ok || len(arr) != 3 {
                l.log.Warn("ratelimit: unexpected script result", "key", key, "result", fmt.Sprintf("%#v", vals))
                return next(c)
            }
            allowed := asInt64(arr[0]) == 1
            remaining := asInt64(arr[1])
            retryMs := asInt64(arr[2])

            c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(b.capacity))
            c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

            if !allowed {
                secs := int(math.Ceil(float64(retryMs) / 1000.0))
                if secs < 0 {
                    secs = 0
                }
                c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
                if l.cfg.Debug {
                    l.log.Debug("ratelimit: blocked", "key", key, "retry_ms", retryMs)
                }
                return c.JSON(http.StatusTooManyRequests, echo.Map{
                    "error":       "too_many_requests",
                    "message":     "rate limit exceeded",
                    "retry_after": secs,
                })
            }

            if l.cfg.Debug {
                c.Response().Header().Set("X-RateLimit-Key", key)
            }
            return next(c)
        }
    }
}

func asInt64(v interface{}) int64 {
    switch t := v.(type) {
    case int64:
        return t
    case int32:
        return int64(t)
    case int:
        return int64(t)
    case float64:
        return int64(t)
    case string:
        if n, err := strconv.ParseInt(t, 10, 64); err == nil {
            return n
        }
    }
    return 0
}

func buildRateKey(cfg config.RateLimitConfig, name string, c echo.Context) string {
    parts := []string{cfg.Prefix}
    if name != "" {
        parts = append(parts, name)
    }
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    uid := UserID(c)
    if uid == "" {
        uid = "anon"
    }
    route := c.Request().Method + " " + c.Path()

    switch strings.ToLower(cfg.KeyStrategy) {
    case "ip":
        parts = append(parts, "ip", ip)
    case "user":
        parts = append(parts, "user", uid)
    case "route":
        parts = append(parts, "route", route)
    case "ip_user":
        parts = append(parts, "ip", ip, "user", uid)
    case "ip_route":
        parts = append(parts, "ip", ip, "route", route)
    case "user_route":
        parts = append(parts, "user", uid, "route", route)
    default:
        parts = append(parts, "ip", ip, "user", uid, "route", route)
    }
    return strings.Join(parts, ":")
}
