package server

import (
	"crypto/subtle"
	"strings"

	"github.com/labstack/echo/v4"

	"agentgate/internal/core"
)

// AuthMiddleware requires "Authorization: Bearer <masterKey>". An empty
// masterKey disables the check.
func AuthMiddleware(masterKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if masterKey == "" {
				return next(c)
			}

			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return core.NewUnauthorizedError("missing authorization header")
			}

			const prefix = "Bearer "
			if !strings.HasPrefix(authHeader, prefix) {
				return core.NewUnauthorizedError("invalid authorization header format, expected 'Bearer <token>'")
			}

			token := strings.TrimPrefix(authHeader, prefix)
			if subtle.ConstantTimeCompare([]byte(token), []byte(masterKey)) != 1 {
				return core.NewUnauthorizedError("invalid master key")
			}

			return next(c)
		}
	}
}
