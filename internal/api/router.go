package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/ecrbeachresorts/portal/docs"
	"github.com/ecrbeachresorts/portal/internal/api/handler"
	"github.com/ecrbeachresorts/portal/internal/api/middleware"
	"github.com/ecrbeachresorts/portal/internal/core/domain"
	"github.com/ecrbeachresorts/portal/internal/core/ports"
)

// Dependencies are the services the HTTP layer is built on.
type Dependencies struct {
	Auth      ports.AuthService
	Admin     ports.IdentityAdminService
	Readiness map[string]handler.Pinger
	Log       zerolog.Logger
	// Registerer receives the HTTP request metrics. Nil means the default
	// registry, which /metrics serves.
	Registerer prometheus.Registerer
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.Logger())
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "portal",
		Registerer: deps.Registerer,
	}))

	authHandler := handler.NewAuthHandler(deps.Auth)
	identityHandler := handler.NewIdentityHandler(deps.Admin)
	authMiddleware := middleware.Auth(deps.Auth)

	// --- Auth routes ---
	auth := e.Group("/auth")
	auth.POST("/signup", authHandler.Signup)
	auth.POST("/login", authHandler.Login)
	auth.POST("/password-reset", authHandler.RequestPasswordReset)
	auth.POST("/password-reset/confirm", authHandler.ConfirmPasswordReset)
	auth.POST("/logout", authHandler.Logout, authMiddleware)
	auth.GET("/session", authHandler.Session, authMiddleware)

	// --- Admin routes ---
	admin := e.Group("/v1/admin", authMiddleware, middleware.RBAC(domain.RoleAdmin))
	admin.GET("/identities", identityHandler.List)
	admin.PATCH("/identities/:id/kyc", identityHandler.UpdateKYC)

	// --- Health probes (no auth required) ---
	e.GET("/health", handler.NewHealthHandler().Liveness)
	e.GET("/health/ready", handler.NewHealthDependenciesHandler(deps.Readiness).Readiness)

	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}
