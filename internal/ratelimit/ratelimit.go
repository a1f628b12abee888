// Package ratelimit provides atomic rate limiting using Redis Lua scripts.
// A GET → check → INCR sequence races under concurrent workers; the Lua
// script checks every window and increments only when all of them pass.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limit defines request limits for a provider API or outreach channel.
type Limit struct {
	RequestsPerSecond int
	RequestsPerMinute int
	DailyLimit        int
}

// ProviderLimits defines API rate limits per enrichment/outreach provider
// (documented plan tiers; kept conservative).
var ProviderLimits = map[string]Limit{
	"apollo":        {RequestsPerSecond: 5, RequestsPerMinute: 200, DailyLimit: 10000},
	"clay":          {RequestsPerSecond: 2, RequestsPerMinute: 60, DailyLimit: 5000},
	"bettercontact": {RequestsPerSecond: 2, RequestsPerMinute: 100, DailyLimit: 20000},
	"instantly":     {RequestsPerSecond: 10, RequestsPerMinute: 300, DailyLimit: 50000},
	"ghl":           {RequestsPerSecond: 10, RequestsPerMinute: 600, DailyLimit: 100000},
}

// multiLimitLuaScript atomically checks second/minute/daily windows and
// increments only if ALL pass. Returns {1} on success or {0, window} with
// the first window that is exhausted.
const multiLimitLuaScript = `
local secondKey = KEYS[1]
local minuteKey = KEYS[2]
local dailyKey = KEYS[3]
local increment = tonumber(ARGV[1])
local secondLimit = tonumber(ARGV[2])
local minuteLimit = tonumber(ARGV[3])
local dailyLimit = tonumber(ARGV[4])

local s = tonumber(redis.call('GET', secondKey) or '0')
local m = tonumber(redis.call('GET', minuteKey) or '0')
local d = tonumber(redis.call('GET', dailyKey) or '0')

if secondLimit > 0 and s + increment > secondLimit then
	return {0, 'second'}
end
if minuteLimit > 0 and m + increment > minuteLimit then
	return {0, 'minute'}
end
if dailyLimit > 0 and d + increment > dailyLimit then
	return {0, 'daily'}
end

redis.call('INCRBY', secondKey, increment)
redis.call('EXPIRE', secondKey, 2)
redis.call('INCRBY', minuteKey, increment)
redis.call('EXPIRE', minuteKey, 120)
redis.call('INCRBY', dailyKey, increment)
redis.call('EXPIRE', dailyKey, 172800)

return {1}
`

// Limiter enforces provider and outreach channel limits atomically.
type Limiter struct {
	redis  *redis.Client
	script *redis.Script
}

// NewLimiter creates a rate limiter backed by the given Redis client.
func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{
		redis:  client,
		script: redis.NewScript(multiLimitLuaScript),
	}
}

func windowKeys(name string, now time.Time) []string {
	return []string{
		fmt.Sprintf("rl:%s:s:%d", name, now.Unix()),
		fmt.Sprintf("rl:%s:m:%s", name, now.Format("200601021504")),
		fmt.Sprintf("rl:%s:d:%s", name, now.Format("20060102")),
	}
}

// Allow consumes n requests against the named limit set. Returns false
// with the exhausted window name when any window would be exceeded.
func (l *Limiter) Allow(ctx context.Context, name string, limit Limit, n int) (bool, string, error) {
	if n <= 0 {
		n = 1
	}
	keys := windowKeys(name, time.Now().UTC())
	res, err := l.script.Run(ctx, l.redis, keys,
		n, limit.RequestsPerSecond, limit.RequestsPerMinute, limit.DailyLimit).Result()
	if err != nil {
		return false, "", fmt.Errorf("rate limit script: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) == 0 {
		return false, "", fmt.Errorf("rate limit script: unexpected result %v", res)
	}
	if passed, _ := vals[0].(int64); passed == 1 {
		return true, "", nil
	}
	window := ""
	if len(vals) > 1 {
		window, _ = vals[1].(string)
	}
	return false, window, nil
}

// AllowProvider consumes one request against a known provider's limits.
// Unknown providers are allowed (no limits configured).
func (l *Limiter) AllowProvider(ctx context.Context, provider string) (bool, error) {
	limit, ok := ProviderLimits[provider]
	if !ok {
		return true, nil
	}
	allowed, window, err := l.Allow(ctx, provider, limit, 1)
	if err != nil {
		return false, err
	}
	if !allowed {
		return false, nil
	}
	_ = window
	return true, nil
}

// AllowDaily consumes one unit against a daily-only cap (outreach channels).
func (l *Limiter) AllowDaily(ctx context.Context, name string, dailyCap int) (bool, error) {
	allowed, _, err := l.Allow(ctx, name, Limit{DailyLimit: dailyCap}, 1)
	return allowed, err
}

// Usage returns current counts for the named limit's windows.
func (l *Limiter) Usage(ctx context.Context, name string) (second, minute, daily int64, err error) {
	keys := windowKeys(name, time.Now().UTC())
	vals, err := l.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("rate limit usage: %w", err)
	}
	parse := func(v interface{}) int64 {
		s, ok := v.(string)
		if !ok {
			return 0
		}
		var n int64
		fmt.Sscanf(s, "%d", &n)
		return n
	}
	return parse(vals[0]), parse(vals[1]), parse(vals[2]), nil
}
