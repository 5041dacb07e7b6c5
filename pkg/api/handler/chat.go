package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dskvich/kalypso-relay/pkg/api/response"
	"github.com/dskvich/kalypso-relay/pkg/api/sse"
	"github.com/dskvich/kalypso-relay/pkg/domain"
	"github.com/dskvich/kalypso-relay/pkg/logger"
)

type ChatRelay interface {
	Handle(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamEvent, error)
}

type chat struct {
	relay  ChatRelay
	writer response.JSONWriter
}

func NewChat(relay ChatRelay) *chat {
	return &chat{
		relay:  relay,
		writer: response.JSONWriter{},
	}
}

// Stream relays one chat turn as an event stream. Failures before the first
// event are answered with a plain JSON error.
func (h *chat) Stream(c *gin.Context) {
	var req domain.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(c.Request.Context(), "Invalid chat request", logger.Err(err))
		h.writer.WriteErrorResponse(c, http.StatusBadRequest, "Invalid request body.")
		return
	}

	stream, err := sse.NewWriter(c.Writer)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "Cannot stream response", logger.Err(err))
		h.writer.WriteErrorResponse(c, http.StatusInternalServerError, "Streaming is not supported.")
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events, err := h.relay.Handle(ctx, req)
	if err != nil {
		status, message := chatErrorResponse(err)
		if status >= http.StatusInternalServerError {
			slog.ErrorContext(ctx, "Chat request failed", "status", status, logger.Err(err))
		} else {
			slog.WarnContext(ctx, "Chat request rejected", "status", status, logger.Err(err))
		}
		h.writer.WriteErrorResponse(c, status, message)
		return
	}

	stream.Open()
	for e := range events {
		if err := stream.Send(e); err != nil {
			slog.WarnContext(ctx, "Writing chat event failed, closing stream", "event", e.Type, logger.Err(err))
			cancel()
			break
		}
	}

	// Let the relay finish its cleanup after an aborted write.
	for range events {
	}
}

func chatErrorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrEmptyMessage):
		return http.StatusBadRequest, "Message is required."
	case errors.Is(err, domain.ErrMissingCredentials):
		return http.StatusInternalServerError, "Chat is not configured on the server."
	case errors.Is(err, domain.ErrMissingAssistant):
		return http.StatusInternalServerError, "Assistant ID is not configured."
	case errors.Is(err, domain.ErrUpstream):
		return http.StatusBadGateway, "Failed to reach the assistant."
	default:
		return http.StatusInternalServerError, "Internal server error."
	}
}
