package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/DeybisMelendez/km9-comanda/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RateLimiter is a fixed-window limiter keyed by client IP. With a Redis
// client the counters are shared across replicas; without one they live in
// process memory. Redis errors fail open.
func RateLimiter(rdb *redis.Client, limit int, window time.Duration) gin.HandlerFunc {
	local := newWindowCounter(window)
	return func(c *gin.Context) {
		now := time.Now()
		windowStart := now.Truncate(window)
		retryAfter := windowStart.Add(window).Sub(now)

		var count int64
		if rdb != nil {
			key := fmt.Sprintf("ratelimit:%s:%d", c.ClientIP(), windowStart.Unix())
			n, err := rdb.Incr(c.Request.Context(), key).Result()
			if err != nil {
				log.Warn().Err(err).Msg("rate limiter: redis unavailable, allowing request")
				c.Next()
				return
			}
			if n == 1 {
				rdb.Expire(c.Request.Context(), key, window)
			}
			count = n
		} else {
			count = local.incr(c.ClientIP(), windowStart)
		}

		if count > int64(limit) {
			c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apierror.WithCode("rate_limited", "Demasiadas solicitudes. Intente nuevamente en un momento."))
			return
		}
		c.Next()
	}
}

type windowEntry struct {
	start time.Time
	count int64
}

// windowCounter is the in-memory fallback. Stale entries are dropped lazily
// once per window.
type windowCounter struct {
	mu        sync.Mutex
	window    time.Duration
	entries   map[string]*windowEntry
	lastPurge time.Time
}

func newWindowCounter(window time.Duration) *windowCounter {
	return &windowCounter{window: window, entries: make(map[string]*windowEntry)}
}

func (w *windowCounter) incr(ip string, windowStart time.Time) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	if windowStart.Sub(w.lastPurge) >= w.window {
		for k, e := range w.entries {
			if e.start.Before(windowStart) {
				delete(w.entries, k)
			}
		}
		w.lastPurge = windowStart
	}

	e, ok := w.entries[ip]
	if !ok || !e.start.Equal(windowStart) {
		e = &windowEntry{start: windowStart}
		w.entries[ip] = e
	}
	e.count++
	return e.count
}
