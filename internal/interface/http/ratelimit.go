package http

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ══════════════════════════════════════════════════════════════════════════════
// PER-CALLER RATE LIMITING
// ══════════════════════════════════════════════════════════════════════════════

// RateLimitConfig throttles each caller separately.
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained rate. Zero disables limiting.
	RequestsPerMinute int

	// Burst is the bucket size.
	Burst int

	// BanThreshold violations within BanWindow block the caller for
	// BanDuration. Zero disables bans.
	BanThreshold int
	BanWindow    time.Duration
	BanDuration  time.Duration
}

// DefaultRateLimitConfig returns the limits used by the API.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 120,
		Burst:             20,
		BanThreshold:      50,
		BanWindow:         time.Minute,
		BanDuration:       5 * time.Minute,
	}
}

const (
	limiterPruneThreshold = 1000
	limiterMaxIdle        = 10 * time.Minute
)

type callerBucket struct {
	limiter    *rate.Limiter
	lastSeen   time.Time
	violations int
	windowEnd  time.Time
	bannedTill time.Time
}

// callerLimiter keeps one token bucket per user ID.
type callerLimiter struct {
	mu      sync.Mutex
	config  RateLimitConfig
	buckets map[int64]*callerBucket
	now     func() time.Time
}

func newCallerLimiter(config RateLimitConfig) *callerLimiter {
	if config.Burst <= 0 {
		config.Burst = 1
	}
	return &callerLimiter{
		config:  config,
		buckets: make(map[int64]*callerBucket),
		now:     time.Now,
	}
}

// allow reports whether the caller may proceed and, if not, how long to
// wait.
func (l *callerLimiter) allow(userID int64) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.buckets) > limiterPruneThreshold {
		cutoff := now.Add(-limiterMaxIdle)
		for id, b := range l.buckets {
			if b.lastSeen.Before(cutoff) && b.bannedTill.Before(now) {
				delete(l.buckets, id)
			}
		}
	}

	b, ok := l.buckets[userID]
	if !ok {
		perSecond := rate.Limit(float64(l.config.RequestsPerMinute) / 60)
		b = &callerBucket{limiter: rate.NewLimiter(perSecond, l.config.Burst)}
		l.buckets[userID] = b
	}
	b.lastSeen = now

	if now.Before(b.bannedTill) {
		return false, b.bannedTill.Sub(now)
	}

	res := b.limiter.ReserveN(now, 1)
	delay := res.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	res.CancelAt(now)

	if l.config.BanThreshold > 0 {
		if now.After(b.windowEnd) {
			b.violations = 0
			b.windowEnd = now.Add(l.config.BanWindow)
		}
		b.violations++
		if b.violations >= l.config.BanThreshold {
			b.bannedTill = now.Add(l.config.BanDuration)
			b.violations = 0
			return false, l.config.BanDuration
		}
	}
	return false, delay
}

// rateLimitMiddleware runs after identityMiddleware.
func (s *Server) rateLimitMiddleware(limiter *callerLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := limiter.allow(callerID(r.Context()))
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeJSONError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
