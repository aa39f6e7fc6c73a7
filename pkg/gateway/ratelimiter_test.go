package gateway

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClientRateLimiter(t *testing.T) {
	t.Run("should refuse past requests per minute", func(t *testing.T) {
		limiter := NewClientRateLimiter(2, 0)

		for i := 0; i < 2; i++ {
			ok, _ := limiter.Acquire()
			assert.True(t, ok)
			limiter.Release()
		}

		ok, reason := limiter.Acquire()
		assert.False(t, ok)
		assert.Equal(t, limitRate, reason)
	})

	t.Run("should refuse past concurrency limit", func(t *testing.T) {
		limiter := NewClientRateLimiter(0, 1)

		ok, _ := limiter.Acquire()
		assert.True(t, ok)

		ok, reason := limiter.Acquire()
		assert.False(t, ok)
		assert.Equal(t, limitConcurrency, reason)

		limiter.Release()
		ok, _ = limiter.Acquire()
		assert.True(t, ok)
	})

	t.Run("should admit again after the window slides", func(t *testing.T) {
		now := time.Now()
		limiter := NewClientRateLimiter(1, 0)
		limiter.now = func() time.Time { return now }

		ok, _ := limiter.Acquire()
		assert.True(t, ok)
		limiter.Release()

		ok, _ = limiter.Acquire()
		assert.False(t, ok)

		now = now.Add(61 * time.Second)
		ok, _ = limiter.Acquire()
		assert.True(t, ok)
	})

	t.Run("should report stats and idleness", func(t *testing.T) {
		limiter := NewClientRateLimiter(10, 10)
		assert.True(t, limiter.Idle())

		limiter.Acquire()
		count, concurrent := limiter.GetStats()
		assert.Equal(t, 1, count)
		assert.Equal(t, 1, concurrent)
		assert.False(t, limiter.Idle())
	})

	t.Run("should be safe for concurrent use", func(t *testing.T) {
		limiter := NewClientRateLimiter(1000, 0)
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if ok, _ := limiter.Acquire(); ok {
					limiter.Release()
				}
			}()
		}
		wg.Wait()

		count, concurrent := limiter.GetStats()
		assert.Equal(t, 50, count)
		assert.Zero(t, concurrent)
	})
}

func TestLimiterRegistry(t *testing.T) {
	reg := newLimiterRegistry(5, 1)
	assert.True(t, reg.enabled())
	assert.False(t, newLimiterRegistry(0, 0).enabled())

	a := reg.get("10.0.0.1")
	assert.Same(t, a, reg.get("10.0.0.1"))
	assert.NotSame(t, a, reg.get("10.0.0.2"))

	a.Acquire()
	assert.Equal(t, 1, reg.sweep())
	assert.Same(t, a, reg.get("10.0.0.1"))
}
