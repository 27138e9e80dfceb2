package httpmiddleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the per-key sliding window limiter.
type RateLimitConfig struct {
	// Max is the number of requests allowed per Window.
	Max int

	// Window is the measurement interval.
	Window time.Duration

	// KeyFunc derives the limiter key from a request. Defaults to the
	// client IP taken from X-Forwarded-For, X-Real-IP, or RemoteAddr in
	// that order.
	KeyFunc func(*http.Request) string
}

// window holds the request counts for one key. The previous interval's
// count is retained so the effective rate decays smoothly instead of
// resetting at the boundary.
type window struct {
	prev      float64
	curr      float64
	currStart time.Time
}

type slidingLimiter struct {
	max   float64
	span  time.Duration
	mu    sync.Mutex
	byKey map[string]*window
}

func newSlidingLimiter(cfg RateLimitConfig) *slidingLimiter {
	return &slidingLimiter{
		max:   float64(cfg.Max),
		span:  cfg.Window,
		byKey: make(map[string]*window),
	}
}

// take records one request for key and reports whether it is within the
// limit, along with the remaining budget and the reset time.
func (l *slidingLimiter) take(key string, now time.Time) (remaining int, resetAt time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.byKey[key]
	if w == nil {
		w = &window{currStart: now.Truncate(l.span)}
		l.byKey[key] = w
	}

	if elapsed := now.Sub(w.currStart); elapsed >= l.span {
		if elapsed >= 2*l.span {
			w.prev = 0
		} else {
			w.prev = w.curr
		}
		w.curr = 0
		w.currStart = now.Truncate(l.span)
	}

	// Weight the previous interval by how much of it still overlaps the
	// trailing window ending at now.
	overlap := 1 - now.Sub(w.currStart).Seconds()/l.span.Seconds()
	effective := w.prev*overlap + w.curr

	resetAt = w.currStart.Add(l.span)
	if effective >= l.max {
		return 0, resetAt, false
	}

	w.curr++
	remaining = int(l.max - effective - 1)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, resetAt, true
}

// sweep drops windows idle for at least two spans.
func (l *slidingLimiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.byKey {
		if now.Sub(w.currStart) >= 2*l.span {
			delete(l.byKey, key)
		}
	}
}

func (l *slidingLimiter) sweepLoop(ctx context.Context) {
	t := time.NewTicker(2 * l.span)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			l.sweep(now)
		}
	}
}

func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit limits requests per client using a sliding window counter.
// Every response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset; rejected requests get a 429 with Retry-After.
func RateLimit(cfg RateLimitConfig) Middleware {
	return limitWith(newSlidingLimiter(cfg), cfg)
}

// RateLimitWithCleanup is RateLimit with a background goroutine that
// evicts idle keys. The goroutine exits when ctx is cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newSlidingLimiter(cfg)
	go l.sweepLoop(ctx)
	return limitWith(l, cfg)
}

func limitWith(l *slidingLimiter, cfg RateLimitConfig) Middleware {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = clientKey
	}
	limit := strconv.Itoa(cfg.Max)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			remaining, resetAt, ok := l.take(keyFunc(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !ok {
				retryAfter := int(math.Ceil(time.Until(resetAt).Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				h.Set("Retry-After", strconv.Itoa(retryAfter))
				h.Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"code":    http.StatusTooManyRequests,
					"message": "rate limit exceeded",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
