package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ecrbeachresorts/portal/internal/api/handler"
	"github.com/ecrbeachresorts/portal/internal/core/ports"
)

// TokenVerifier checks a bearer token. It is satisfied by ports.AuthService.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*ports.SessionClaims, error)
}

// Auth validates the bearer token and injects the session claims into context.
func Auth(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}

			claims, err := verifier.VerifyToken(c.Request().Context(), parts[1])
			if err != nil {
				return err
			}

			c.Set(handler.CtxIdentityID, claims.Subject)
			c.Set(handler.CtxEmail, claims.Email)
			c.Set(handler.CtxRole, string(claims.Role))
			c.Set(handler.CtxToken, parts[1])
			c.Set(handler.CtxExpiresAt, claims.ExpiresAt)

			return next(c)
		}
	}
}
