package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ollama-chat-backend/internal/handler"
	"github.com/iliyamo/ollama-chat-backend/internal/middleware"
	"github.com/iliyamo/ollama-chat-backend/internal/model"
)

// RegisterAdmin registers the administrative endpoints.  All routes
// require a valid JWT and the admin role.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.DELETE("/users/:id", h.DeleteUser)
}
