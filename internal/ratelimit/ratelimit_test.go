package ratelimit

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestAllowLocalBurst(t *testing.T) {
	l := New(Config{PerMinute: 60, Burst: 3}, zerolog.Nop())
	defer l.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(ctx, "1.2.3.4"), "request %d within burst", i)
	}
	assert.False(t, l.Allow(ctx, "1.2.3.4"), "burst exhausted")

	// Another client has its own budget.
	assert.True(t, l.Allow(ctx, "5.6.7.8"))
}

func TestInvalidRedisURLFallsBackLocal(t *testing.T) {
	l := New(Config{RedisURL: "://not-a-url", PerMinute: 60, Burst: 1}, zerolog.Nop())
	defer l.Close()

	assert.True(t, l.Allow(context.Background(), "client"))
	assert.False(t, l.Allow(context.Background(), "client"))
}

func TestUnreachableRedisFailsOpen(t *testing.T) {
	l := New(Config{RedisURL: "redis://127.0.0.1:1/0", PerMinute: 60, Burst: 1}, zerolog.Nop())
	defer l.Close()

	// The Redis check errors; the in-process limiter still answers.
	assert.True(t, l.Allow(context.Background(), "client"))
}
