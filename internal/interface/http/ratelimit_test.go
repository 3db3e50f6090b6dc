package http

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallerLimiter_BurstThenBan(t *testing.T) {
	now := t0
	l := newCallerLimiter(RateLimitConfig{
		RequestsPerMinute: 60,
		Burst:             2,
		BanThreshold:      3,
		BanWindow:         time.Minute,
		BanDuration:       5 * time.Minute,
	})
	l.now = func() time.Time { return now }

	ok, _ := l.allow(1)
	assert.True(t, ok)
	ok, _ = l.allow(1)
	assert.True(t, ok)

	ok, wait := l.allow(1)
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	ok, _ = l.allow(1)
	assert.False(t, ok)
	ok, wait = l.allow(1)
	assert.False(t, ok)
	assert.Equal(t, 5*time.Minute, wait, "third violation bans the caller")

	now = now.Add(2 * time.Second)
	ok, _ = l.allow(1)
	assert.False(t, ok, "tokens are back but the ban holds")

	ok, _ = l.allow(2)
	assert.True(t, ok, "other callers are unaffected")

	now = now.Add(6 * time.Minute)
	ok, _ = l.allow(1)
	assert.True(t, ok)
}

func TestServer_RateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimit = RateLimitConfig{RequestsPerMinute: 1, Burst: 2}
	ts := newTestServerWithConfig(t, cfg, nil, nil)

	for i := 0; i < 2; i++ {
		code, _, _ := ts.do(t, http.MethodGet, "/api/v1/pvp/stats", 1, nil)
		require.Equal(t, http.StatusOK, code)
	}

	code, env, _ := ts.do(t, http.MethodGet, "/api/v1/pvp/stats", 1, nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "rate_limited", env.Error.Code)

	code, _, _ = ts.do(t, http.MethodGet, "/api/v1/pvp/stats", 2, nil)
	assert.Equal(t, http.StatusOK, code)

	// Ops routes are not throttled.
	code, _, _ = ts.do(t, http.MethodGet, "/live", 1, nil)
	assert.Equal(t, http.StatusOK, code)
}
