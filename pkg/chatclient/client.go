// Package chatclient talks to a running relay the way the browser does.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dskvich/kalypso-relay/pkg/api/sse"
	"github.com/dskvich/kalypso-relay/pkg/domain"
)

// APIError is a non-streamed error answer from the relay.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("relay returned %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL string
	hc      *http.Client
}

func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      hc,
	}
}

// Chat sends one turn and calls onEvent for every streamed event in order.
// It returns the terminal event; a stream that ends without one is an error.
func (c *Client) Chat(ctx context.Context, req domain.ChatRequest, onEvent func(domain.StreamEvent)) (domain.StreamEvent, error) {
	resp, err := c.post(ctx, "/api/chat", req)
	if err != nil {
		return domain.StreamEvent{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.StreamEvent{}, decodeAPIError(resp)
	}

	reader := sse.NewReader(resp.Body)
	for {
		var e domain.StreamEvent
		if err := reader.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return domain.StreamEvent{}, errors.New("stream closed before the turn finished")
			}
			return domain.StreamEvent{}, err
		}

		if onEvent != nil {
			onEvent(e)
		}
		if e.IsTerminal() {
			return e, nil
		}
	}
}

// Unlock submits an access code. A wrong code is reported in the response,
// not as an error.
func (c *Client) Unlock(ctx context.Context, code string) (domain.AccessResponse, error) {
	resp, err := c.post(ctx, "/api/access", domain.AccessRequest{Code: code})
	if err != nil {
		return domain.AccessResponse{}, err
	}
	defer resp.Body.Close()

	var out domain.AccessResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.AccessResponse{}, fmt.Errorf("decoding access response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return out, &APIError{StatusCode: resp.StatusCode, Message: out.Error}
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream, application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	return resp, nil
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error == "" {
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: payload.Error}
}
