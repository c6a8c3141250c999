package middleware

import (
	"go-paywatch/payment/engine"
	"go-paywatch/utils"

	"github.com/gin-gonic/gin"
)

const RequestIDHeader = "X-Request-ID"

// RequestID reuses a caller-supplied id or mints one, echoes it back and puts it on
// the request context for the engine.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = utils.GenerateUUID()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(engine.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}
