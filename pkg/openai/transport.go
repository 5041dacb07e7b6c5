package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker/v2"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"

	defaultBreakerMaxFailures uint32 = 5
	defaultBreakerTimeout            = 30 * time.Second
	defaultBreakerInterval           = time.Minute
)

// NewHTTPClient returns a pooled client without an overall timeout. Deadlines
// come from the request context.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 60 * time.Second,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}

type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures uint32
	// OpenTimeout is how long the circuit stays open before a probe is let through.
	OpenTimeout time.Duration
}

// ErrCircuitOpen is returned without calling the provider while it is considered down.
var ErrCircuitOpen = errors.New("provider circuit open")

type breaker struct {
	cb *gobreaker.CircuitBreaker[struct{}]
}

func newBreaker(name string, cfg BreakerConfig) *breaker {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	timeout := cfg.OpenTimeout
	if timeout == 0 {
		timeout = defaultBreakerTimeout
	}

	return &breaker{
		cb: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    defaultBreakerInterval,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled) || isClientError(err)
			},
		}),
	}
}

// StatusError is a non-2xx answer to a request made outside go-openai.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, response: %s", e.StatusCode, e.Body)
}

// isClientError reports a 4xx answer caused by the request itself, such as an
// unknown thread or assistant id. Those say nothing about provider health.
// 429 is excluded: the provider is shedding load.
func isClientError(err error) bool {
	var (
		apiErr    *goopenai.APIError
		reqErr    *goopenai.RequestError
		statusErr *StatusError
		status    int
	)
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	case errors.As(err, &statusErr):
		status = statusErr.StatusCode
	default:
		return false
	}
	return status >= 400 && status < 500 && status != http.StatusTooManyRequests
}

func (b *breaker) do(fn func() error) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return err
}

func (b *breaker) state() gobreaker.State {
	return b.cb.State()
}
