package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ollama-chat-backend/internal/handler"
	"github.com/iliyamo/ollama-chat-backend/internal/middleware"
)

// RegisterChat registers the chat, conversation, model and settings
// endpoints under /v1.  Every route requires a valid JWT; the two routes
// that call a model also pass through limiter.
func RegisterChat(e *echo.Echo, h *handler.ChatHandler, s *handler.SettingsHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret))

	g.POST("/chat", h.Chat, limiter)
	g.GET("/models", h.Models)

	g.GET("/conversations", h.ListConversations)
	g.POST("/conversations", h.CreateConversation)
	g.GET("/conversations/current/messages", h.CurrentMessages)
	g.DELETE("/conversations/:id", h.ArchiveConversation)
	g.POST("/conversations/:id/switch", h.SwitchConversation)
	g.POST("/conversations/:id/reply", h.Reply, limiter)
	g.GET("/conversations/:id/messages", h.ListMessages)

	g.GET("/settings", s.Get)
	g.PUT("/settings", s.Update)
}
