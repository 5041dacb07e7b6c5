package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dskvich/kalypso-relay/pkg/logger"
)

const RequestIDHeader = "X-Request-ID"

// RequestID tags every request with an id, reusing a sane inbound one, and
// stores it in the request context for logging.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}

		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(logger.ContextWithRequestID(c.Request.Context(), id))

		c.Next()
	}
}
