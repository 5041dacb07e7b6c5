package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/dskvich/kalypso-relay/pkg/api"
	"github.com/dskvich/kalypso-relay/pkg/api/handler"
	"github.com/dskvich/kalypso-relay/pkg/api/middleware"
	"github.com/dskvich/kalypso-relay/pkg/auth"
	"github.com/dskvich/kalypso-relay/pkg/logger"
	"github.com/dskvich/kalypso-relay/pkg/openai"
	"github.com/dskvich/kalypso-relay/pkg/prompt"
	"github.com/dskvich/kalypso-relay/pkg/services"
	"github.com/dskvich/kalypso-relay/pkg/workers"
)

const serviceName = "kalypso-relay"

type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	OpenAIAPIKey      string `env:"OPENAI_API_KEY"`
	OpenAIAssistantID string `env:"OPENAI_ASSISTANT_ID"`
	OpenAIBaseURL     string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`

	SpeechAPIKey string `env:"SPEECH_API_KEY"`
	SpeechModel  string `env:"SPEECH_MODEL" envDefault:"tts-1"`
	SpeechVoice  string `env:"SPEECH_VOICE" envDefault:"nova"`

	AccessCode       string `env:"ACCESS_CODE"`
	DefaultTutorName string `env:"DEFAULT_TUTOR_NAME" envDefault:"your tutor"`

	ThreadTimeout time.Duration `env:"THREAD_TIMEOUT" envDefault:"15s"`
	RunTimeout    time.Duration `env:"RUN_TIMEOUT" envDefault:"2m"`
	SpeechTimeout time.Duration `env:"SPEECH_TIMEOUT" envDefault:"30s"`

	RateLimitPerMinute int      `env:"RATE_LIMIT_PER_MINUTE" envDefault:"30"`
	RateLimitBurst     int      `env:"RATE_LIMIT_BURST" envDefault:"10"`
	AllowedOrigins     []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	TrustedProxies     []string `env:"TRUSTED_PROXIES" envSeparator:","`

	BreakerMaxFailures uint32        `env:"BREAKER_MAX_FAILURES" envDefault:"5"`
	BreakerOpenTimeout time.Duration `env:"BREAKER_OPEN_TIMEOUT" envDefault:"30s"`

	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	LogNoColor bool   `env:"LOG_NO_COLOR" envDefault:"false"`
}

func main() {
	slog.SetDefault(slog.New(logger.NewHandler(os.Stderr, logger.DefaultOptions)))

	if err := runMain(); err != nil {
		slog.Error("shutting down due to error", logger.Err(err))
		os.Exit(1)
	}
	slog.Info("shutdown complete")
}

func runMain() error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := parseConfig(nil)
	if err != nil {
		return err
	}

	opts := *logger.DefaultOptions
	opts.Level = logger.ParseLevel(cfg.LogLevel)
	opts.NoColor = cfg.LogNoColor
	slog.SetDefault(slog.New(logger.NewHandler(os.Stderr, &opts)))

	workerGroup, err := setupWorkers(cfg)
	if err != nil {
		return err
	}

	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case s := <-sigCh:
			slog.Info("shutting down due to signal", "signal", s.String())
			cancelFn()
		case <-ctx.Done():
		}
	}()

	return workerGroup.Start(ctx)
}

// parseConfig reads the process environment, or environ when it is non-nil.
func parseConfig(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("parsing env config: %w", err)
	}
	return cfg, nil
}

func setupWorkers(cfg *Config) (workers.Group, error) {
	breaker := openai.BreakerConfig{
		MaxFailures: cfg.BreakerMaxFailures,
		OpenTimeout: cfg.BreakerOpenTimeout,
	}

	var provider services.Provider
	if cfg.OpenAIAPIKey != "" {
		client, err := openai.NewClient(openai.Config{
			Token:   cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Breaker: breaker,
		})
		if err != nil {
			return nil, fmt.Errorf("creating openai client: %w", err)
		}
		provider = client
	} else {
		slog.Error("OPENAI_API_KEY is not set, chat requests will fail")
	}
	if cfg.OpenAIAssistantID == "" {
		slog.Warn("OPENAI_ASSISTANT_ID is not set, chat requests must supply assistantId")
	}

	var speech services.SpeechSynthesizer
	if cfg.SpeechAPIKey != "" {
		client, err := openai.NewSpeechClient(openai.SpeechConfig{
			Token:   cfg.SpeechAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.SpeechModel,
			Voice:   cfg.SpeechVoice,
			Breaker: breaker,
		})
		if err != nil {
			return nil, fmt.Errorf("creating speech client: %w", err)
		}
		speech = client
	} else {
		slog.Warn("SPEECH_API_KEY is not set, audio replies are disabled")
	}

	relay := services.NewRelayService(
		provider,
		speech,
		prompt.NewComposer(cfg.DefaultTutorName),
		services.RelayOptions{
			DefaultAssistantID: cfg.OpenAIAssistantID,
			ThreadTimeout:      cfg.ThreadTimeout,
			RunTimeout:         cfg.RunTimeout,
			SpeechTimeout:      cfg.SpeechTimeout,
		},
	)
	gate := auth.NewAccessGate(cfg.AccessCode)

	health := handler.NewHealth(serviceName, handler.Features{
		Chat:   provider != nil,
		Audio:  speech != nil,
		Access: gate.Configured(),
	})

	gin.SetMode(gin.ReleaseMode)
	server, err := api.NewServer(
		api.ServerConfig{
			Addr:            cfg.HTTPAddr,
			ShutdownTimeout: cfg.ShutdownTimeout,
			AllowedOrigins:  cfg.AllowedOrigins,
			TrustedProxies:  cfg.TrustedProxies,
			RateLimit: middleware.RateLimitConfig{
				RequestsPerMinute: cfg.RateLimitPerMinute,
				Burst:             cfg.RateLimitBurst,
			},
		},
		api.Routes{
			Chat:    handler.NewChat(relay).Stream,
			Access:  handler.NewAccess(gate).Unlock,
			Health:  health.Check,
			Version: health.Version,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("creating http server: %w", err)
	}

	return workers.Group{server}, nil
}
