package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/iliyamo/ollama-chat-backend/internal/inference"
	"github.com/iliyamo/ollama-chat-backend/internal/middleware"
	"github.com/iliyamo/ollama-chat-backend/internal/model"
	"github.com/iliyamo/ollama-chat-backend/internal/service"
)

// ChatHandler serves the chat and conversation endpoints.
type ChatHandler struct {
	Conversations *service.ConversationService
}

func NewChatHandler(s *service.ConversationService) *ChatHandler {
	return &ChatHandler{Conversations: s}
}

type chatReq struct {
	Message        string `json:"message"`
	Model          string `json:"model"`
	ConversationID uint64 `json:"conversation_id"`
}

type chatResp struct {
	Response       string `json:"response"`
	ConversationID uint64 `json:"conversation_id"`
	MessageID      uint64 `json:"message_id"`
	LatencyMS      int64  `json:"latency_ms"`
	Model          string `json:"model"`
}

type conversationDTO struct {
	ConversationID uint64                   `json:"conversation_id"`
	Status         model.ConversationStatus `json:"status"`
	CreatedAt      time.Time                `json:"created_at"`
	Title          string                   `json:"title,omitempty"`
	MessageCount   int                      `json:"message_count"`
	LastMessageAt  *time.Time               `json:"last_message_at,omitempty"`
}

func toConversationDTO(c model.Conversation) conversationDTO {
	return conversationDTO{
		ConversationID: c.ID,
		Status:         c.Status,
		CreatedAt:      c.CreatedAt,
		MessageCount:   c.MessageCount,
		LastMessageAt:  c.LastMessageAt,
	}
}

type messageDTO struct {
	ID        uint64            `json:"id"`
	Ordinal   int64             `json:"ordinal"`
	Role      model.MessageRole `json:"role"`
	Text      string            `json:"text"`
	Timestamp time.Time         `json:"timestamp"`
	LatencyMS *int64            `json:"latency_ms,omitempty"`
}

func toMessageDTO(m model.Message) messageDTO {
	return messageDTO{ID: m.ID, Ordinal: m.Ordinal, Role: m.Role, Text: m.Text, Timestamp: m.CreatedAt, LatencyMS: m.LatencyMS}
}

func principal(c echo.Context) (model.Principal, error) {
	p, ok := middleware.Principal(c)
	if !ok {
		return p, c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return p, nil
}

func paramID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

func replyResp(res service.ChatResult) chatResp {
	var latency int64
	if res.Reply.LatencyMS != nil {
		latency = *res.Reply.LatencyMS
	}
	return chatResp{
		Response:       res.Reply.Text,
		ConversationID: res.Conversation.ID,
		MessageID:      res.Reply.ID,
		LatencyMS:      latency,
		Model:          res.Model,
	}
}

// Chat handles POST /v1/chat.  Without conversation_id the message goes to
// the caller's active conversation, which is created on demand.
func (h *ChatHandler) Chat(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req chatReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	res, err := h.Conversations.SendMessage(c.Request().Context(), p, req.ConversationID, req.Message, req.Model)
	if err != nil {
		// the user message is stored; the client can retry the reply
		var infErr *inference.Error
		if errors.As(err, &infErr) && res.UserMessage.ID != 0 {
			return fail(c, err, echo.Map{
				"conversation_id": res.Conversation.ID,
				"message_id":      res.UserMessage.ID,
				"retryable":       true,
			})
		}
		return fail(c, err, nil)
	}
	return c.JSON(http.StatusOK, replyResp(res))
}

// Reply handles POST /v1/conversations/:id/reply, regenerating the reply
// to a user message left unanswered.
func (h *ChatHandler) Reply(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, ok := paramID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req struct {
		Model string `json:"model"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	res, err := h.Conversations.RetryReply(c.Request().Context(), p, id, req.Model)
	if err != nil {
		return fail(c, err, echo.Map{"conversation_id": id})
	}
	return c.JSON(http.StatusOK, replyResp(res))
}
