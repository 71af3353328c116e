package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"jobmate/campaign-service/internal/logger"
)

const (
	userHeader = "X-User-ID"
	userKey    = "userID"
)

// LoggerMiddleware logs method, path, status and duration of every request.
func LoggerMiddleware(log logger.Logger) gin.HandlerFunc {
	log = log.With(logger.String("component", "http"))
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("duration", time.Since(start)),
			logger.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			msgs := make([]string, len(c.Errors))
			for i, err := range c.Errors {
				msgs[i] = err.Err.Error()
			}
			fields = append(fields, logger.Strings("errors", msgs))
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			log.Error("http request", fields...)
		case strings.HasPrefix(path, "/health"), path == "/metrics":
			log.Debug("http request", fields...)
		default:
			log.Info("http request", fields...)
		}
	}
}

// RequireUser rejects requests without the X-User-ID header forwarded by the
// gateway.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(userHeader))
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + userHeader + " header"})
			return
		}
		c.Set(userKey, userID)
		c.Next()
	}
}

func userID(c *gin.Context) string { return c.GetString(userKey) }
