package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/farhadimrf/spotify-clone/internal/pkg/usercontext"
)

// ClientIP determines the client address considering Cloudflare and standard
// proxy headers. The first X-Forwarded-For entry is the original client.
func ClientIP(c *fiber.Ctx) string {
	if cfIP := strings.TrimSpace(c.Get("CF-Connecting-IP")); cfIP != "" {
		return cfIP
	}

	if xff := c.Get("X-Forwarded-For"); xff != "" {
		if clientIP := strings.TrimSpace(strings.Split(xff, ",")[0]); clientIP != "" {
			return clientIP
		}
	}

	if realIP := strings.TrimSpace(c.Get("X-Real-IP")); realIP != "" {
		return realIP
	}

	// ::ffff:192.168.1.1 is an IPv4 address in IPv6 notation
	return strings.TrimPrefix(c.IP(), "::ffff:")
}

// RateLimitKey keys the limiter by authenticated user, falling back to the
// client address for anonymous callers.
func RateLimitKey(c *fiber.Ctx) string {
	if userID := usercontext.GetUserID(c); userID != "" {
		return "user:" + userID
	}
	return "ip:" + ClientIP(c)
}
