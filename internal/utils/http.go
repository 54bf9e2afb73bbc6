package utils

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// GetRealClientIP returns the caller address as reported by the reverse
// proxy: X-Real-IP, then the first X-Forwarded-For hop, then gin's ClientIP.
func GetRealClientIP(c *gin.Context) string {
	if ip := strings.TrimSpace(c.GetHeader("X-Real-IP")); ip != "" {
		return ip
	}
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return c.ClientIP()
}
