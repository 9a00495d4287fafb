package httpapi

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// AuthConfig holds API authentication configuration.
type AuthConfig struct {
	Mode   string // "jwt" or "none"
	Secret string // HMAC secret for jwt mode
}

const requesterKey = "requester_id"

// NewAuthMiddleware returns a Fiber middleware that resolves the requester
// identity. In jwt mode the identity is the subject claim of a Bearer
// HS256 token; "none" mode trusts the X-Requester-ID header and exists for
// development only.
func NewAuthMiddleware(cfg AuthConfig, logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Skip auth for probe endpoints
		path := c.Path()
		if path == "/healthz" || path == "/readyz" || path == "/metrics" {
			return c.Next()
		}

		if cfg.Mode == "none" {
			if id := c.Get("X-Requester-ID"); id != "" {
				c.Locals(requesterKey, id)
			}
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return problemResponse(c, fiber.StatusUnauthorized,
				"missing_auth", "Unauthorized",
				"Authorization header is required")
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return problemResponse(c, fiber.StatusUnauthorized,
				"invalid_auth_scheme", "Unauthorized",
				"Authorization header must use Bearer scheme")
		}
		raw := strings.TrimPrefix(authHeader, "Bearer ")

		claims := jwt.RegisteredClaims{}
		_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(cfg.Secret), nil
		})
		if err != nil || claims.Subject == "" {
			logger.Warn().
				Str("path", path).
				Str("method", c.Method()).
				Msg("unauthorized request: invalid token")
			return problemResponse(c, fiber.StatusUnauthorized,
				"invalid_token", "Unauthorized",
				"Invalid or expired token")
		}

		c.Locals(requesterKey, claims.Subject)
		return c.Next()
	}
}

// requesterID returns the authenticated caller identity, or "" when the
// request carried none.
func requesterID(c *fiber.Ctx) string {
	id, _ := c.Locals(requesterKey).(string)
	return id
}

// problemResponse returns an RFC 7807 Problem Detail error response.
func problemResponse(c *fiber.Ctx, status int, errType, title, detail string) error {
	return c.Status(status).JSON(ProblemDetail{
		Type:     errType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Path(),
	})
}
