package api

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dskvich/kalypso-relay/pkg/api/middleware"
)

func testRoutes() Routes {
	ok := func(name string) gin.HandlerFunc {
		return func(c *gin.Context) { c.String(http.StatusOK, name) }
	}
	return Routes{Chat: ok("chat"), Access: ok("access"), Health: ok("health"), Version: ok("version")}
}

func newTestServer(t *testing.T, cfg ServerConfig) *server {
	gin.SetMode(gin.TestMode)
	s, err := NewServer(cfg, testRoutes())
	require.NoError(t, err)
	t.Cleanup(s.stop)
	return s
}

func TestServerRoutes(t *testing.T) {
	s := newTestServer(t, ServerConfig{AllowedOrigins: []string{"*"}})

	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodGet, EndPointHealth, "health"},
		{http.MethodGet, EndPointVersion, "version"},
		{http.MethodPost, EndPointChat, "chat"},
		{http.MethodPost, EndPointAccess, "access"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want, w.Body.String())
			assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
			assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestServerRateLimitsApiRoutesOnly(t *testing.T) {
	s := newTestServer(t, ServerConfig{RateLimit: middleware.RateLimitConfig{RequestsPerMinute: 1, Burst: 1}})

	do := func(method, path string) int {
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(method, path, nil))
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do(http.MethodPost, EndPointChat))
	assert.Equal(t, http.StatusTooManyRequests, do(http.MethodPost, EndPointAccess))
	assert.Equal(t, http.StatusOK, do(http.MethodGet, EndPointHealth))
	assert.Equal(t, http.StatusOK, do(http.MethodGet, EndPointHealth))
}

func TestServerRejectsBadTrustedProxy(t *testing.T) {
	_, err := NewServer(ServerConfig{TrustedProxies: []string{"not-an-ip"}}, testRoutes())
	assert.Error(t, err)
}

func TestServerServesUntilCancelled(t *testing.T) {
	s := newTestServer(t, ServerConfig{ShutdownTimeout: time.Second})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + EndPointHealth)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "health", strings.TrimSpace(string(body)))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServerStartFailsOnBusyAddress(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	s := newTestServer(t, ServerConfig{Addr: ln.Addr().String()})

	err = s.Start(context.Background())
	assert.ErrorContains(t, err, "listening on")
}
