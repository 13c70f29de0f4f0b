package api

import (
	"github.com/gin-gonic/gin"

	"chatdesk/internal/models"
	"chatdesk/internal/observability"
)

const requestIDHeader = "X-Request-ID"

// requestID tags each request with an id, taken from the client when given,
// and makes handler logs carry it.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = models.NewID()
		}
		c.Header(requestIDHeader, id)
		c.Request = c.Request.WithContext(observability.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}
