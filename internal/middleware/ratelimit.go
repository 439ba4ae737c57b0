package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/ledgergate/ledgergate/internal/pkg/apperrors"
	"github.com/ledgergate/ledgergate/internal/pkg/logger"
	"github.com/ledgergate/ledgergate/internal/pkg/metrics"
)

// RateLimitStore tracks fixed-window request counts per client key.
// Allow reports whether the request is admitted and, when it is not, how many
// seconds remain until the window resets. The check-and-increment must be
// atomic per key: two concurrent callers may never both observe a count below
// the limit that a third increment would have tipped over.
type RateLimitStore interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter int, err error)
}

type window struct {
	count int
	end   time.Time
}

// MemoryRateLimitStore is a mutex-guarded fixed-window counter map. The count
// keeps incrementing past the limit; only window elapse resets it. Stale
// entries are replaced lazily on next access and swept by Cleanup.
type MemoryRateLimitStore struct {
	mu      sync.Mutex
	max     int
	size    time.Duration
	windows map[string]*window
}

func NewMemoryRateLimitStore(max int, size time.Duration) *MemoryRateLimitStore {
	return &MemoryRateLimitStore{
		max:     max,
		size:    size,
		windows: make(map[string]*window),
	}
}

func (s *MemoryRateLimitStore) Allow(_ context.Context, key string) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	w, exists := s.windows[key]
	if !exists || now.After(w.end) {
		s.windows[key] = &window{count: 1, end: now.Add(s.size)}
		return true, 0, nil
	}

	w.count++
	if w.count <= s.max {
		return true, 0, nil
	}

	retryAfter := int(w.end.Sub(now).Seconds())
	if retryAfter <= 0 {
		retryAfter = 1
	}
	return false, retryAfter, nil
}

// Cleanup removes elapsed windows so the map does not grow unbounded. Run it
// periodically, e.g. every few window lengths.
func (s *MemoryRateLimitStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, w := range s.windows {
		if now.After(w.end) {
			delete(s.windows, key)
		}
	}
}

// RedisRateLimitStore shares window state across gateway instances. INCR is
// atomic on the server, which gives the same per-key serialization as the
// in-memory store; the first increment of a window sets its expiry.
type RedisRateLimitStore struct {
	client *redis.Client
	max    int
	size   time.Duration
	prefix string
}

func NewRedisRateLimitStore(client *redis.Client, max int, size time.Duration) *RedisRateLimitStore {
	return &RedisRateLimitStore{
		client: client,
		max:    max,
		size:   size,
		prefix: "ratelimit",
	}
}

func (s *RedisRateLimitStore) Allow(ctx context.Context, key string) (bool, int, error) {
	fullKey := s.prefix + ":" + key

	count, err := s.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		if err := s.client.PExpire(ctx, fullKey, s.size).Err(); err != nil {
			return false, 0, err
		}
	}
	if count <= int64(s.max) {
		return true, 0, nil
	}

	ttl, err := s.client.PTTL(ctx, fullKey).Result()
	if err != nil || ttl <= 0 {
		return false, 1, nil
	}
	retryAfter := int(ttl.Seconds())
	if retryAfter <= 0 {
		retryAfter = 1
	}
	return false, retryAfter, nil
}

// RateLimit keys on the client IP; it runs before auth, so no identity is
// available yet. A store failure admits the request: throttling is a
// protection, not a dependency.
func RateLimit(store RateLimitStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retryAfter, err := store.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.Warn("rate limit store unavailable, admitting request", "error", err)
			c.Next()
			return
		}

		if !allowed {
			metrics.RateLimitRejects.Inc()
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				apperrors.New(apperrors.ErrRateLimitExceeded, "rate limit exceeded", nil))
			return
		}

		c.Next()
	}
}
