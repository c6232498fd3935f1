// internal/middleware/i18n.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// I18nMiddleware picks the response language from Accept-Language.
func I18nMiddleware(defaultLang string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("lang", parseLanguage(c.GetHeader("Accept-Language"), defaultLang))
		c.Next()
	}
}

// parseLanguage handles headers like "zh-TW,zh;q=0.9,en;q=0.8" by taking the first entry.
func parseLanguage(header, defaultLang string) string {
	if header == "" {
		return defaultLang
	}
	first := strings.TrimSpace(strings.Split(strings.Split(header, ",")[0], ";")[0])
	switch first {
	case "zh-TW", "zh-Hant", "zh_TW":
		return "zh_TW"
	case "en", "en-US", "en-GB":
		return "en"
	default:
		return defaultLang
	}
}
