package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dskvich/kalypso-relay/pkg/api/middleware"
	"github.com/dskvich/kalypso-relay/pkg/logger"
)

const (
	EndPointHealth  = "/health"
	EndPointVersion = "/version"
	EndPointChat    = "/api/chat"
	EndPointAccess  = "/api/access"
)

type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	TrustedProxies  []string
	RateLimit       middleware.RateLimitConfig
}

type Routes struct {
	Chat    gin.HandlerFunc
	Access  gin.HandlerFunc
	Health  gin.HandlerFunc
	Version gin.HandlerFunc
}

type server struct {
	cfg    ServerConfig
	engine *gin.Engine
	stop   context.CancelFunc
}

func NewServer(cfg ServerConfig, routes Routes) (*server, error) {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.RequestID(), middleware.AccessLog(), middleware.CORS(cfg.AllowedOrigins))

	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("setting trusted proxies: %w", err)
	}

	engine.GET(EndPointHealth, routes.Health)
	engine.GET(EndPointVersion, routes.Version)

	limiterCtx, stop := context.WithCancel(context.Background())
	limited := engine.Group("/")
	limited.Use(middleware.RateLimit(limiterCtx, cfg.RateLimit))
	{
		limited.POST(EndPointChat, routes.Chat)
		limited.POST(EndPointAccess, routes.Access)
	}

	return &server{
		cfg:    cfg,
		engine: engine,
		stop:   stop,
	}, nil
}

func (s *server) Name() string { return "http_server" }

func (s *server) Handler() http.Handler { return s.engine }

func (s *server) Start(ctx context.Context) error {
	slog.Info("Starting worker", "name", s.Name(), "addr", s.cfg.Addr)
	defer slog.Info("Worker stopped", "name", s.Name())
	defer s.stop()

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr, err)
	}

	return s.serve(ctx, ln)
}

func (s *server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		// Open chat streams are cut; their runs get cancelled upstream.
		slog.Warn("Graceful shutdown timed out, closing connections", logger.Err(err))
		_ = srv.Close()
	}
	return nil
}
