// Package ratelimit throttles incoming addon requests per client.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Config controls the limiter.
type Config struct {
	// RedisURL enables the shared Redis counter. Empty selects the
	// in-process limiter.
	RedisURL  string
	PerMinute int
	Burst     int
}

// DefaultConfig returns the default limits.
func DefaultConfig() Config {
	return Config{
		PerMinute: 60,
		Burst:     20,
	}
}

// Limiter answers whether a client may proceed. With Redis configured the
// window is shared across instances; otherwise each process counts alone.
// A Redis outage fails open through the in-process limiter.
type Limiter struct {
	rdb       *redis.Client
	perMinute int
	burst     int

	mu     sync.Mutex
	local  map[string]*rate.Limiter
	logger zerolog.Logger
}

// New creates a limiter. An unparseable Redis URL is logged and the limiter
// runs in-process only.
func New(cfg Config, logger zerolog.Logger) *Limiter {
	def := DefaultConfig()
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = def.PerMinute
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}

	l := &Limiter{
		perMinute: cfg.PerMinute,
		burst:     cfg.Burst,
		local:     make(map[string]*rate.Limiter),
		logger:    logger.With().Str("component", "ratelimit").Logger(),
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			l.logger.Warn().Err(err).Msg("Invalid Redis URL, rate limiting in-process only")
		} else {
			l.rdb = redis.NewClient(opts)
		}
	}
	return l
}

// Close releases the Redis connection.
func (l *Limiter) Close() error {
	if l.rdb != nil {
		return l.rdb.Close()
	}
	return nil
}

// Allow reports whether the client identified by key may make a request now.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	if l.rdb != nil {
		allowed, err := l.allowRedis(ctx, key)
		if err == nil {
			return allowed
		}
		l.logger.Warn().Err(err).Msg("Redis rate limit check failed, using in-process limiter")
	}
	return l.allowLocal(key)
}

// allowRedis counts requests in a per-minute fixed window.
func (l *Limiter) allowRedis(ctx context.Context, key string) (bool, error) {
	window := time.Now().Unix() / 60
	redisKey := fmt.Sprintf("ratelimit:%s:%d", key, window)

	pipe := l.rdb.TxPipeline()
	count := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return count.Val() <= int64(l.perMinute+l.burst), nil
}

func (l *Limiter) allowLocal(key string) bool {
	l.mu.Lock()
	lim, ok := l.local[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(l.perMinute)/60), l.burst)
		l.local[key] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
