package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dskvich/kalypso-relay/pkg/api/response"
	"github.com/dskvich/kalypso-relay/pkg/domain"
	"github.com/dskvich/kalypso-relay/pkg/logger"
)

type AccessChecker interface {
	Check(code string) error
}

type access struct {
	checker AccessChecker
	writer  response.JSONWriter
}

func NewAccess(checker AccessChecker) *access {
	return &access{
		checker: checker,
		writer:  response.JSONWriter{},
	}
}

func (h *access) Unlock(c *gin.Context) {
	ctx := c.Request.Context()

	var req domain.AccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "Invalid access request", logger.Err(err))
		h.writer.WriteResponse(c, http.StatusBadRequest, domain.AccessResponse{Error: "Invalid request body."})
		return
	}

	switch err := h.checker.Check(req.Code); {
	case err == nil:
		slog.InfoContext(ctx, "Access granted")
		h.writer.WriteSuccessResponse(c, domain.AccessResponse{Success: true})
	case errors.Is(err, domain.ErrAccessNotConfigured):
		slog.ErrorContext(ctx, "Access code is not configured")
		h.writer.WriteResponse(c, http.StatusInternalServerError, domain.AccessResponse{Error: "Access is not configured."})
	default:
		slog.WarnContext(ctx, "Access denied", "clientIP", c.ClientIP())
		h.writer.WriteResponse(c, http.StatusUnauthorized, domain.AccessResponse{Error: "Incorrect code."})
	}
}
