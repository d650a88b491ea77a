// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ollama-chat-backend/internal/handler"
	"github.com/iliyamo/ollama-chat-backend/internal/middleware"
)

// RegisterRoutes registers the unauthenticated probes.  ready may be nil.
func RegisterRoutes(e *echo.Echo, ready *handler.ReadyHandler) {
	e.GET("/healthz", handler.Health)
	if ready != nil {
		e.GET("/readyz", ready.Ready)
	}
}

// RegisterAuth registers all authentication-related routes.  Operations
// that do not need an existing session live under /v1/auth; the profile
// lives under /v1 behind JWTAuth.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/otp/request", a.RequestOTP)
	g.POST("/otp/verify", a.VerifyOTP)
	g.POST("/google", a.Google)
	// rotates the refresh token
	g.POST("/refresh", a.Refresh)
	// new access token only
	g.POST("/refresh-access", a.RefreshAccess)
	// logout takes a refresh_token body or a bearer token, so no JWTAuth
	g.POST("/logout", a.Logout)
	e.POST("/v1/logout", a.Logout)

	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
}
