package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Context keys set by middleware.Auth.
const (
	CtxIdentityID = "identity_id"
	CtxRole       = "role"
	CtxEmail      = "email"
	CtxToken      = "token"
	CtxExpiresAt  = "expires_at"
)

// ctxSession extracts what the Auth middleware injected and fails fast when
// it did not run.
func ctxSession(c echo.Context) (identityID, token string, expiresAt time.Time, err error) {
	identityID, _ = c.Get(CtxIdentityID).(string)
	token, _ = c.Get(CtxToken).(string)
	if identityID == "" || token == "" {
		return "", "", time.Time{}, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	expiresAt, _ = c.Get(CtxExpiresAt).(time.Time)
	return identityID, token, expiresAt, nil
}
