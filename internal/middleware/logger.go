package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"autorent/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// RequestLogger logs every request at the level its status deserves and
// recovers from handler panics.
func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		defer func() {
			if recovered := recover(); recovered != nil {
				log.Error("panic in handler",
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"panic", recovered,
					"stack", string(debug.Stack()),
				)
				response.AbortError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Unexpected error")
				return
			}

			attrs := []any{
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"status", c.Writer.Status(),
				"client_ip", c.ClientIP(),
				"latency", time.Since(start),
			}
			if userID := c.GetInt64("user_id"); userID != 0 {
				attrs = append(attrs, "user_id", userID)
			}
			switch {
			case c.Writer.Status() >= http.StatusInternalServerError:
				log.Error("request", attrs...)
			case c.Writer.Status() >= http.StatusBadRequest:
				log.Warn("request", attrs...)
			default:
				log.Info("request", attrs...)
			}
		}()

		c.Next()
	}
}
