package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/dskvich/kalypso-relay/pkg/domain"
	"github.com/dskvich/kalypso-relay/pkg/logger"
)

// Assistant stream event names.
const (
	eventRunCreated        = "thread.run.created"
	eventMessageDelta      = "thread.message.delta"
	eventRunRequiresAction = "thread.run.requires_action"
	eventRunCompleted      = "thread.run.completed"
	eventRunFailed         = "thread.run.failed"
	eventRunCancelled      = "thread.run.cancelled"
	eventRunExpired        = "thread.run.expired"
	eventRunIncomplete     = "thread.run.incomplete"
	eventError             = "error"
	eventDone              = "done"
)

const maxEventSize = 1 << 20

// RunError is a run that ended without completing.
type RunError struct {
	Status  string
	Code    string
	Message string
}

func (e *RunError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "run " + e.Status
}

// ProviderMessage is the reason reported by the provider, safe to show to users.
func (e *RunError) ProviderMessage() string {
	return e.Message
}

type runObject struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
	RequiredAction *struct {
		SubmitToolOutputs struct {
			ToolCalls []struct {
				Function struct {
					Name string `json:"name"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"submit_tool_outputs"`
	} `json:"required_action"`
}

type messageDelta struct {
	Delta struct {
		Content []struct {
			Type string `json:"type"`
			Text *struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"delta"`
}

type streamError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// decodeRunStream turns the provider's SSE body into run deltas. It owns body.
func decodeRunStream(ctx context.Context, body io.ReadCloser) <-chan domain.RunDelta {
	ch := make(chan domain.RunDelta, 16)

	go func() {
		defer close(ch)
		defer body.Close()

		send := func(d domain.RunDelta) bool {
			select {
			case ch <- d:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

		var event string
		var data bytes.Buffer

		for scanner.Scan() {
			line := scanner.Bytes()

			if len(line) == 0 {
				if event == "" && data.Len() == 0 {
					continue
				}
				delta, terminal := parseRunEvent(ctx, event, data.Bytes())
				event = ""
				data.Reset()

				for _, d := range delta {
					if !send(d) {
						return
					}
				}
				if terminal {
					return
				}
				continue
			}

			switch {
			case line[0] == ':':
				// keep-alive comment
			case bytes.HasPrefix(line, []byte("event:")):
				event = strings.TrimSpace(string(line[len("event:"):]))
			case bytes.HasPrefix(line, []byte("data:")):
				if data.Len() > 0 {
					data.WriteByte('\n')
				}
				data.Write(bytes.TrimPrefix(line[len("data:"):], []byte(" ")))
			}
		}

		if ctx.Err() != nil {
			return
		}

		err := scanner.Err()
		if err == nil && (event != "" || data.Len() > 0) {
			delta, terminal := parseRunEvent(ctx, event, data.Bytes())
			for _, d := range delta {
				if !send(d) {
					return
				}
			}
			if terminal {
				return
			}
		}
		if err == nil {
			err = errors.New("generation stream ended unexpectedly")
		}
		send(domain.RunDelta{Kind: domain.RunFailed, Err: fmt.Errorf("reading run stream: %w", err)})
	}()

	return ch
}

// parseRunEvent maps one SSE event to zero or more deltas and reports whether
// the stream is finished.
func parseRunEvent(ctx context.Context, event string, data []byte) ([]domain.RunDelta, bool) {
	switch event {
	case eventRunCreated:
		var run runObject
		if err := json.Unmarshal(data, &run); err != nil {
			slog.WarnContext(ctx, "Skipping malformed run event", "event", event, logger.Err(err))
			return nil, false
		}
		return []domain.RunDelta{{Kind: domain.RunStarted, RunID: run.ID}}, false

	case eventMessageDelta:
		var msg messageDelta
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.WarnContext(ctx, "Skipping malformed message delta", logger.Err(err))
			return nil, false
		}
		var deltas []domain.RunDelta
		for _, part := range msg.Delta.Content {
			if part.Type != "text" || part.Text == nil || part.Text.Value == "" {
				continue
			}
			deltas = append(deltas, domain.RunDelta{Kind: domain.RunText, Text: part.Text.Value})
		}
		return deltas, false

	case eventRunRequiresAction:
		var run runObject
		_ = json.Unmarshal(data, &run)
		var tools []string
		if run.RequiredAction != nil {
			for _, call := range run.RequiredAction.SubmitToolOutputs.ToolCalls {
				tools = append(tools, call.Function.Name)
			}
		}
		return []domain.RunDelta{{
			Kind:  domain.RunRequiresAction,
			RunID: run.ID,
			Err:   fmt.Errorf("assistant requested unsupported tool calls: %s", strings.Join(tools, ", ")),
		}}, true

	case eventRunFailed, eventRunCancelled, eventRunExpired, eventRunIncomplete:
		var run runObject
		_ = json.Unmarshal(data, &run)
		runErr := &RunError{Status: strings.TrimPrefix(event, "thread.run.")}
		if run.LastError != nil {
			runErr.Code = run.LastError.Code
			runErr.Message = run.LastError.Message
		}
		return []domain.RunDelta{{Kind: domain.RunFailed, RunID: run.ID, Err: runErr}}, true

	case eventError:
		var se streamError
		_ = json.Unmarshal(data, &se)
		runErr := &RunError{Status: "errored", Code: se.Code, Message: se.Message}
		if se.Error != nil {
			runErr.Code, runErr.Message = se.Error.Code, se.Error.Message
		}
		if runErr.Message == "" {
			runErr.Message = strings.TrimSpace(string(data))
		}
		return []domain.RunDelta{{Kind: domain.RunFailed, Err: runErr}}, true

	case eventRunCompleted, eventDone:
		return []domain.RunDelta{{Kind: domain.RunCompleted}}, true
	}

	return nil, false
}
