package response

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func TestWriteSuccessResponse(t *testing.T) {
	c, w := newContext()

	JSONWriter{}.WriteSuccessResponse(c, map[string]bool{"success": true})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true}`, w.Body.String())
}

func TestWriteErrorResponse(t *testing.T) {
	c, w := newContext()

	JSONWriter{}.WriteErrorResponse(c, http.StatusBadGateway, "Failed to reach the assistant.")

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"error":"Failed to reach the assistant."}`, w.Body.String())
}
