package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestLimiter(rpm int) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := New(rpm)
	l.now = clock.now
	return l, clock
}

func TestAllowBurst(t *testing.T) {
	l, _ := newTestLimiter(10)

	for i := 0; i < 10; i++ {
		require.True(t, l.Allow("a"), "request %d", i+1)
	}
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "clients have separate buckets")
}

func TestDisabled(t *testing.T) {
	l := New(0)
	for i := 0; i < 1000; i++ {
		require.True(t, l.Allow("a"))
	}
	assert.Equal(t, 0, l.RetryAfter("a"))

	var nilLimiter *Limiter
	assert.True(t, nilLimiter.Allow("a"))
}

func TestRefill(t *testing.T) {
	l, clock := newTestLimiter(60)
	for i := 0; i < 60; i++ {
		l.Allow("a")
	}
	require.False(t, l.Allow("a"))
	assert.Equal(t, 2, l.RetryAfter("a"))

	clock.t = clock.t.Add(1100 * time.Millisecond)
	assert.True(t, l.Allow("a"))
}

func TestCleanup(t *testing.T) {
	l, clock := newTestLimiter(5)
	l.Allow("old")
	clock.t = clock.t.Add(2 * time.Hour)
	l.Allow("new")

	assert.Equal(t, 1, l.Cleanup(time.Hour))
	assert.Len(t, l.buckets, 1)
}

func TestMiddleware(t *testing.T) {
	l, _ := newTestLimiter(2)
	h := Middleware(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:1001").Code)

	rec := do("10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, do("10.0.0.2:1000").Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", ClientIP(req))

	req.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", ClientIP(req))
}
