package handlers

import (
	"context"
	"net/http"
	"time"

	"advancedreminders/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// handleError provides a consistent way to handle and log errors
func handleError(c *gin.Context, status int, message string, err error) {
	logrus.WithError(err).WithField("path", c.Request.URL.Path).Error(message)
	c.JSON(status, gin.H{"error": message})
}

// HomeHandler handles requests to the root path "/"
func HomeHandler(c *gin.Context) {
	c.String(http.StatusOK, "Advanced reminders")
}

// HealthHandler reports OK while ping succeeds
func HealthHandler(ping func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := ping(ctx); err != nil {
			handleError(c, http.StatusServiceUnavailable, "database unavailable", err)
			return
		}
		c.String(http.StatusOK, "OK")
	}
}

// RequestLogger writes one access log line per request
func RequestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
			"ip":       utils.GetRealClientIP(c),
		})
		if user := c.GetString("username"); user != "" {
			entry = entry.WithField("username", user)
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Info("request")
	}
}
