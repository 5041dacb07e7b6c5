package response

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dskvich/kalypso-relay/pkg/logger"
)

type JSONWriter struct{}

func (j JSONWriter) WriteSuccessResponse(c *gin.Context, data any) {
	j.WriteResponse(c, http.StatusOK, data)
}

func (j JSONWriter) WriteErrorResponse(c *gin.Context, statusCode int, message string) {
	j.WriteResponse(c, statusCode, ErrorResponse{Error: message})
}

func (j JSONWriter) WriteResponse(c *gin.Context, statusCode int, data any) {
	c.Header("Content-Type", "application/json")
	c.Status(statusCode)
	if err := json.NewEncoder(c.Writer).Encode(data); err != nil {
		slog.ErrorContext(c.Request.Context(), "Encoding response", "status", statusCode, logger.Err(err))
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
}
