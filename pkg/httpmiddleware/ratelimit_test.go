package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rateLimited(cfg RateLimitConfig) http.Handler {
	return RateLimit(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func hit(h http.Handler, remoteAddr string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_UnderLimit(t *testing.T) {
	h := rateLimited(RateLimitConfig{Max: 5, Window: time.Minute})

	for i := 0; i < 5; i++ {
		rec := hit(h, "10.0.0.1:1234", nil)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
		assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	h := rateLimited(RateLimitConfig{Max: 2, Window: time.Minute})

	require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1234", nil).Code)
	require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1234", nil).Code)

	rec := hit(h, "10.0.0.1:1234", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusTooManyRequests, body.Code)
	assert.Equal(t, "rate limit exceeded", body.Message)
}

func TestRateLimit_KeysAreIndependent(t *testing.T) {
	h := rateLimited(RateLimitConfig{Max: 1, Window: time.Minute})

	require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1234", nil).Code)
	require.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:1234", nil).Code)

	// A different client is not affected by the first one's budget.
	require.Equal(t, http.StatusOK, hit(h, "10.0.0.2:1234", nil).Code)
}

func TestRateLimit_RemainingCountsDown(t *testing.T) {
	h := rateLimited(RateLimitConfig{Max: 3, Window: time.Minute})

	assert.Equal(t, "2", hit(h, "10.0.0.1:1234", nil).Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1", hit(h, "10.0.0.1:1234", nil).Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "0", hit(h, "10.0.0.1:1234", nil).Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimit_CustomKeyFunc(t *testing.T) {
	h := rateLimited(RateLimitConfig{
		Max:    1,
		Window: time.Minute,
		KeyFunc: func(r *http.Request) string {
			return r.Header.Get("Authorization")
		},
	})

	alice := http.Header{"Authorization": []string{"Token alice"}}
	bob := http.Header{"Authorization": []string{"Token bob"}}

	// Same source address, different keys.
	require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1234", alice).Code)
	require.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:1234", alice).Code)
	require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1234", bob).Code)
}

func TestRateLimit_ForwardedFor(t *testing.T) {
	h := rateLimited(RateLimitConfig{Max: 1, Window: time.Minute})

	fwd := http.Header{"X-Forwarded-For": []string{"203.0.113.7, 10.0.0.1"}}

	// The first entry of X-Forwarded-For identifies the client even when
	// requests arrive from different proxy addresses.
	require.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1234", fwd).Code)
	require.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.2:5678", fwd).Code)
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:4567"
	assert.Equal(t, "192.0.2.1", clientKey(req))

	req.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", clientKey(req))

	req.Header.Set("X-Forwarded-For", " 203.0.113.9 , 198.51.100.2")
	assert.Equal(t, "203.0.113.9", clientKey(req))
}
