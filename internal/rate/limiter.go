// Package rate contiene los limitadores del proxy: el Gate saliente hacia el
// upstream y los limiters entrantes por cliente (Redis fixed-window o memoria).
package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	WindowTTL   time.Duration
	CurrentHits int64
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// windowScript incrementa el contador de la ventana, fija su expiry en el
// primer hit y devuelve {hits, pttl_ms} en un solo round-trip atómico.
var windowScript = rdb.NewScript(`
local hits = redis.call("INCR", KEYS[1])
if hits == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {hits, redis.call("PTTL", KEYS[1])}
`)

// RedisLimiter es un fixed window por key compartido entre réplicas.
type RedisLimiter struct {
	Client *rdb.Client
	Prefix string
	Max    int64
	Window time.Duration

	now func() time.Time
}

func NewRedisLimiter(client *rdb.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{
		Client: client,
		Prefix: prefix,
		Max:    int64(max),
		Window: window,
		now:    time.Now,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	vals, err := windowScript.Run(ctx, l.Client, []string{l.windowKey(key)}, l.Window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, err
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("rate: unexpected window script reply %v", vals)
	}
	return l.shape(vals[0], time.Duration(vals[1])*time.Millisecond), nil
}

// windowKey: <prefix><key>:<inicio de ventana en unix>.
func (l *RedisLimiter) windowKey(key string) string {
	winStart := l.now().UTC().Truncate(l.Window)
	return fmt.Sprintf("%s%s:%d", l.Prefix, strings.ReplaceAll(key, " ", "_"), winStart.Unix())
}

// shape arma el Result a partir del contador y el TTL restante. Un TTL
// negativo (key sin expiry) se reporta como la ventana completa.
func (l *RedisLimiter) shape(hits int64, ttl time.Duration) Result {
	if ttl < 0 {
		ttl = l.Window
	}
	res := Result{
		Allowed:     hits <= l.Max,
		Remaining:   max(l.Max-hits, 0),
		CurrentHits: hits,
		WindowTTL:   ttl,
	}
	if !res.Allowed {
		res.RetryAfter = ttl
	}
	return res
}
