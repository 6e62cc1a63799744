package middleware

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// CORSConfig lists what browsers on the dashboard origins may do.
type CORSConfig struct {
	// Origins allowed to call the API. "*" or an empty list allows any origin.
	AllowedOrigins   []string
	AllowCredentials bool
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int
}

// DefaultCORSConfig allows the given comma-separated origins.
func DefaultCORSConfig(origins string) CORSConfig {
	var allowed []string
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed = append(allowed, o)
		}
	}
	return CORSConfig{
		AllowedOrigins:   allowed,
		AllowCredentials: true,
		AllowedMethods:   []string{fiber.MethodGet, fiber.MethodPost, fiber.MethodPatch, fiber.MethodOptions},
		AllowedHeaders:   []string{fiber.HeaderOrigin, fiber.HeaderContentType, fiber.HeaderAccept, fiber.HeaderAuthorization},
		ExposedHeaders:   []string{fiber.HeaderContentLength},
		MaxAge:           3600,
	}
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or ""
// when the origin is not allowed.
func (cfg CORSConfig) allowOrigin(origin string, allowed map[string]bool) string {
	if len(allowed) == 0 || allowed["*"] {
		if cfg.AllowCredentials && origin != "" {
			return origin
		}
		return "*"
	}
	if allowed[origin] {
		return origin
	}
	return ""
}

// CORS answers preflight requests itself and decorates every other response.
func CORS(cfg CORSConfig) fiber.Handler {
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = true
	}
	methods := strings.Join(cfg.AllowedMethods, ",")
	headers := strings.Join(cfg.AllowedHeaders, ",")
	exposed := strings.Join(cfg.ExposedHeaders, ",")
	maxAge := strconv.Itoa(cfg.MaxAge)

	return func(c *fiber.Ctx) error {
		if value := cfg.allowOrigin(c.Get(fiber.HeaderOrigin), allowed); value != "" {
			c.Set(fiber.HeaderAccessControlAllowOrigin, value)
			if value != "*" {
				c.Vary(fiber.HeaderOrigin)
			}
			if cfg.AllowCredentials {
				c.Set(fiber.HeaderAccessControlAllowCredentials, "true")
			}
		}

		if c.Method() != fiber.MethodOptions {
			return c.Next()
		}
		c.Set(fiber.HeaderAccessControlAllowMethods, methods)
		c.Set(fiber.HeaderAccessControlAllowHeaders, headers)
		c.Set(fiber.HeaderAccessControlExposeHeaders, exposed)
		c.Set(fiber.HeaderAccessControlMaxAge, maxAge)
		return c.SendStatus(fiber.StatusNoContent)
	}
}
