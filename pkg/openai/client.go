package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/dskvich/kalypso-relay/pkg/domain"
)

type Config struct {
	Token   string
	BaseURL string
	Breaker BreakerConfig
	// HTTPClient defaults to NewHTTPClient().
	HTTPClient *http.Client
}

// client talks to the Assistants v2 API. The provider owns conversation
// history; nothing is cached here.
type client struct {
	api     *goopenai.Client
	token   string
	baseURL string
	hc      *http.Client
	breaker *breaker
}

func NewClient(cfg Config) (*client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("token is empty")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = NewHTTPClient()
	}

	apiCfg := goopenai.DefaultConfig(cfg.Token)
	apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	apiCfg.HTTPClient = cfg.HTTPClient

	return &client{
		api:     goopenai.NewClientWithConfig(apiCfg),
		token:   cfg.Token,
		baseURL: apiCfg.BaseURL,
		hc:      cfg.HTTPClient,
		breaker: newBreaker("openai-assistants", cfg.Breaker),
	}, nil
}

func (c *client) CreateThread(ctx context.Context) (string, error) {
	var thread goopenai.Thread
	err := c.breaker.do(func() error {
		var err error
		thread, err = c.api.CreateThread(ctx, goopenai.ThreadRequest{})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("creating thread: %w", err)
	}

	slog.DebugContext(ctx, "Thread created", "threadID", thread.ID)
	return thread.ID, nil
}

func (c *client) AppendMessage(ctx context.Context, threadID, text string) error {
	err := c.breaker.do(func() error {
		_, err := c.api.CreateMessage(ctx, threadID, goopenai.MessageRequest{
			Role:    goopenai.ChatMessageRoleUser,
			Content: text,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("appending message to thread %s: %w", threadID, err)
	}
	return nil
}

func (c *client) CancelRun(ctx context.Context, threadID, runID string) error {
	if _, err := c.api.CancelRun(ctx, threadID, runID); err != nil {
		return fmt.Errorf("cancelling run %s: %w", runID, err)
	}
	return nil
}

type createRunRequest struct {
	AssistantID  string `json:"assistant_id"`
	Instructions string `json:"instructions,omitempty"`
	Stream       bool   `json:"stream"`
}

// StreamRun starts a streaming run on threadID. The returned channel is
// closed after a RunCompleted or RunFailed delta, or when ctx is done.
func (c *client) StreamRun(ctx context.Context, threadID, assistantID, instructions string) (<-chan domain.RunDelta, error) {
	var body io.ReadCloser
	err := c.breaker.do(func() error {
		var err error
		body, err = c.openRunStream(ctx, threadID, createRunRequest{
			AssistantID:  assistantID,
			Instructions: instructions,
			Stream:       true,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("starting run on thread %s: %w", threadID, err)
	}

	return decodeRunStream(ctx, body), nil
}

func (c *client) openRunStream(ctx context.Context, threadID string, runReq createRunRequest) (io.ReadCloser, error) {
	payload, err := json.Marshal(runReq)
	if err != nil {
		return nil, fmt.Errorf("marshaling run request: %w", err)
	}

	url := fmt.Sprintf("%s/threads/%s/runs", c.baseURL, threadID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating HTTP request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing HTTP request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	return resp.Body, nil
}
