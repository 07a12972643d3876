package httpx

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/md-rashed-zaman/bizdash/libs/apperr"
)

// Limiter reports whether one more hit for key fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Hitter is a Limiter that also knows when a rejected key may try again.
// RateLimit sends that as Retry-After.
type Hitter interface {
	Hit(ctx context.Context, key string) (bool, time.Duration, error)
}

// KeyFunc derives the rate limit bucket for a request.
type KeyFunc func(*http.Request) string

// RateLimiter is an in-process fixed window limiter. Counters live only as
// long as the process and are not shared between instances.
type RateLimiter struct {
	limit   int
	window  time.Duration
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	count   int
	resetAt time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		limit:   limit,
		window:  window,
		buckets: map[string]*bucket{},
		now:     time.Now,
	}
}

func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	ok, _, err := rl.Hit(ctx, key)
	return ok, err
}

func (rl *RateLimiter) Hit(_ context.Context, key string) (bool, time.Duration, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b := rl.buckets[key]
	if b == nil || !now.Before(b.resetAt) {
		if len(rl.buckets) > 10000 {
			rl.sweepLocked(now)
		}
		rl.buckets[key] = &bucket{count: 1, resetAt: now.Add(rl.window)}
		return true, 0, nil
	}
	if b.count >= rl.limit {
		return false, b.resetAt.Sub(now), nil
	}
	b.count++
	return true, 0, nil
}

func (rl *RateLimiter) sweepLocked(now time.Time) {
	for k, b := range rl.buckets {
		if !now.Before(b.resetAt) {
			delete(rl.buckets, k)
		}
	}
}

// Middleware limits by client address.
func (rl *RateLimiter) Middleware() Middleware {
	return RateLimit(rl, ClientKey, nil, true)
}

// RateLimit wraps any Limiter. When the limiter itself fails the request is
// let through if failOpen is set, otherwise it is rejected with 503.
func RateLimit(l Limiter, key KeyFunc, logger *slog.Logger, failOpen bool) Middleware {
	if key == nil {
		key = ClientKey
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				ok         bool
				retryAfter time.Duration
				err        error
			)
			if h, isHitter := l.(Hitter); isHitter {
				ok, retryAfter, err = h.Hit(r.Context(), key(r))
			} else {
				ok, err = l.Allow(r.Context(), key(r))
			}
			if err != nil {
				if logger != nil {
					logger.Warn("rate limiter error", "err", err)
				}
				if failOpen {
					next.ServeHTTP(w, r)
					return
				}
				WriteError(w, r, logger, apperr.Unavailable("rate limiter unavailable"))
				return
			}
			if !ok {
				if retryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				}
				WriteError(w, r, logger, apperr.TooManyRequests("rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func ClientKey(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		parts := strings.Split(ip, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
