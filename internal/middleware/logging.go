// internal/middleware/logging.go
package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/imi-licensing/internal/metrics"
	"github.com/javajoker/imi-licensing/internal/utils"
)

// RequestLogger logs every request with logrus and counts it by method and status.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		status := c.Writer.Status()
		metrics.PromCounters[metrics.HTTPRequestTotal].WithLabelValues(c.Request.Method, strconv.Itoa(status)).Inc()

		if c.Request.URL.Path == "/health" || c.Request.URL.Path == "/metrics" {
			return
		}

		fields := logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"resource":   extractResourceType(c.Request.URL.Path),
			"status":     status,
			"duration":   duration.Milliseconds(),
			"ip":         c.ClientIP(),
			"user_agent": c.Request.UserAgent(),
		}
		if caller, ok := utils.GetCallerFromContext(c); ok {
			fields["caller"] = caller.Hex()
		}
		if ipID := extractResourceID(c.Request.URL.Path); ipID != "" {
			fields["ip_id"] = ipID
		}

		entry := logrus.WithFields(fields)
		switch {
		case status >= 500:
			entry.Error("Request failed")
		case status >= 400:
			entry.Warn("Request rejected")
		default:
			entry.Info("Request processed")
		}
	}
}

func extractResourceType(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 2 && parts[0] == "v1" {
		return parts[1]
	}
	if len(parts) >= 1 {
		return parts[0]
	}
	return "unknown"
}

// extractResourceID returns the first address segment of the path.
func extractResourceID(path string) string {
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		if common.IsHexAddress(part) {
			return common.HexToAddress(part).Hex()
		}
	}
	return ""
}
