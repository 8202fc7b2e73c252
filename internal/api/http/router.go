package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/proptrade-auth/internal/api/http/handlers"
	"github.com/spec-kit/proptrade-auth/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Passwords      *handlers.PasswordHandler
	TwoFactor      *handlers.TwoFactorHandler
	Accounts       *handlers.AccountsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	api := app.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Post("/login/2fa", cfg.Auth.LoginTwoFactor)
	authGroup.Post("/refresh", cfg.Auth.Refresh)
	authGroup.Get("/verify-email/:token", cfg.Auth.VerifyEmail)
	authGroup.Post("/verify-email/resend", cfg.Auth.ResendVerification)
	authGroup.Post("/password/reset-request", cfg.Passwords.RequestReset)
	authGroup.Post("/password/reset", cfg.Passwords.Reset)

	protected := authGroup.Group("", cfg.AuthMiddleware.Handle)
	protected.Post("/logout", cfg.Auth.Logout)
	protected.Get("/me", cfg.Auth.Me)
	protected.Post("/password/change", cfg.Passwords.Change)
	protected.Post("/2fa/enable", cfg.TwoFactor.Enable)
	protected.Post("/2fa/confirm", cfg.TwoFactor.Confirm)
	protected.Post("/2fa/disable", cfg.TwoFactor.Disable)

	accounts := api.Group("/accounts", cfg.AuthMiddleware.Handle)
	accounts.Get("/:id", cfg.Accounts.Get)
	accounts.Post("/:id/deactivate", cfg.Accounts.Deactivate)
}
