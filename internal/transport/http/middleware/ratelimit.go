package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"shiftwatch/internal/transport/http/api"
)

// slidingWindow remembers the hit instants of each key inside the last
// window. Limits on the ops API are single digits per minute, so the
// per-key slices stay tiny.
type slidingWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	now    func() time.Time
	hits   map[string][]time.Time
}

func newSlidingWindow(limit int, window time.Duration, now func() time.Time) *slidingWindow {
	return &slidingWindow{limit: limit, window: window, now: now, hits: map[string][]time.Time{}}
}

type verdict struct {
	allowed    bool
	remaining  int
	retryAfter time.Duration
}

func (sw *slidingWindow) allow(key string) verdict {
	now := sw.now()
	cutoff := now.Add(-sw.window)

	sw.mu.Lock()
	defer sw.mu.Unlock()

	kept := sw.hits[key][:0]
	for _, at := range sw.hits[key] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	if len(kept) >= sw.limit {
		sw.hits[key] = kept
		return verdict{retryAfter: kept[0].Add(sw.window).Sub(now)}
	}
	kept = append(kept, now)
	sw.hits[key] = kept
	if len(sw.hits) > 1024 {
		sw.sweep(cutoff)
	}
	return verdict{allowed: true, remaining: sw.limit - len(kept)}
}

// sweep drops keys whose newest hit is outside the window. Caller holds mu.
func (sw *slidingWindow) sweep(cutoff time.Time) {
	for k, hits := range sw.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(sw.hits, k)
		}
	}
}

// RateLimit throttles per authenticated subject, falling back to client IP.
// A non-positive limit disables it.
func RateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return rateLimitWithClock(limit, window, time.Now)
}

func rateLimitWithClock(limit int, window time.Duration, now func() time.Time) func(http.Handler) http.Handler {
	sw := newSlidingWindow(limit, window, now)
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := subjectOrIPKey(r)
			v := sw.allow(key)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(v.remaining))
			if !v.allowed {
				w.Header().Set("Retry-After", strconv.Itoa(ceilSeconds(v.retryAfter)))
				slog.Warn("rate limit exceeded", "key", key, "path", r.URL.Path, "limit", limit)
				api.Fail(w, r, http.StatusTooManyRequests, "rate_limited", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func subjectOrIPKey(r *http.Request) string {
	if user, ok := GetUser(r.Context()); ok && user.Subject != "" {
		return "sub:" + user.Subject
	}
	return "ip:" + ClientIP(r)
}

// ClientIP prefers the first X-Forwarded-For hop over the socket address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func ceilSeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	return max(s, 1)
}
