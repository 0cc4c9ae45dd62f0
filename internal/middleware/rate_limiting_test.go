package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/valetudoapp/valetudo/internal/telemetry/metrics"

	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRequestRateLimiter struct {
	// key to remaining budget map
	Limits map[string]int
}

func (l *testRequestRateLimiter) Allow(_ context.Context, key string, _ redis_rate.Limit) (*redis_rate.Result, error) {
	res := &redis_rate.Result{}

	foundLimit, ok := l.Limits[key]
	if !ok || foundLimit == 0 {
		return res, nil
	}

	res.Allowed = l.Limits[key]
	l.Limits[key]--

	return res, nil
}

func TestRateLimit_perClientKeys(t *testing.T) {
	limiter := &testRequestRateLimiter{Limits: map[string]int{
		"login::83.12.53.65": 1,
		"login::91.35.21.78": 1,
	}}
	metricsManager := metrics.NewTestManager()

	router := mux.NewRouter()
	router.HandleFunc("/a/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("POST")
	router.Use(RateLimit(limiter, "login", 1, metricsManager))

	loginFrom := func(addr string) int {
		req := httptest.NewRequest("POST", "/a/login", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr.Code
	}

	require.Equal(t, http.StatusOK, loginFrom("83.12.53.65:2145"))
	// budget for the first client is spent, the second is untouched
	assert.Equal(t, http.StatusTooEarly, loginFrom("83.12.53.65:2145"))
	assert.Equal(t, http.StatusOK, loginFrom("91.35.21.78:51522"))
	assert.Equal(t, float64(1), testutil.ToFloat64(metricsManager.CounterRateLimitedRequests))
}

func TestRateLimit_keyFallsBackToRouterName(t *testing.T) {
	req := httptest.NewRequest("POST", "/a/login", nil)
	req.RemoteAddr = "83.12.53.65:2145"
	assert.Equal(t, "login::83.12.53.65", rateLimitKey("login", req))

	req.RemoteAddr = "not-an-address"
	assert.Equal(t, "login", rateLimitKey("login", req))

	// local dev addresses collapse to a single localhost key
	req.RemoteAddr = "127.0.0.1:51234"
	assert.Equal(t, "login::localhost", rateLimitKey("login", req))
}
