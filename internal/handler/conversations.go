package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ollama-chat-backend/internal/model"
)

// maxPageLimit caps ?limit on message listings.
const maxPageLimit = 500

// ListConversations handles GET /v1/conversations, newest first.
func (h *ChatHandler) ListConversations(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	list, err := h.Conversations.ListConversations(c.Request().Context(), p.UserID)
	if err != nil {
		return fail(c, err, nil)
	}
	items := make([]conversationDTO, 0, len(list))
	for _, s := range list {
		d := toConversationDTO(s.Conversation)
		d.Title = s.Title
		items = append(items, d)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// CreateConversation handles POST /v1/conversations.  The previously
// active conversation, if any, is archived.
func (h *ChatHandler) CreateConversation(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	conv, err := h.Conversations.CreateConversation(c.Request().Context(), p.UserID)
	if err != nil {
		return fail(c, err, nil)
	}
	return c.JSON(http.StatusCreated, toConversationDTO(conv))
}

// ArchiveConversation handles DELETE /v1/conversations/:id.  Archiving an
// already archived conversation also answers 204.
func (h *ChatHandler) ArchiveConversation(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, ok := paramID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}
	if err := h.Conversations.ArchiveConversation(c.Request().Context(), id, p.UserID); err != nil {
		return fail(c, err, nil)
	}
	return c.NoContent(http.StatusNoContent)
}

// SwitchConversation handles POST /v1/conversations/:id/switch.
func (h *ChatHandler) SwitchConversation(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, ok := paramID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}
	conv, err := h.Conversations.SwitchConversation(c.Request().Context(), id, p.UserID)
	if err != nil {
		return fail(c, err, nil)
	}
	return c.JSON(http.StatusOK, toConversationDTO(conv))
}

// ListMessages handles GET /v1/conversations/:id/messages?after=&limit=.
func (h *ChatHandler) ListMessages(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, ok := paramID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}
	return h.listMessages(c, id, p.UserID)
}

// CurrentMessages handles GET /v1/conversations/current/messages, the
// history of the active conversation.
func (h *ChatHandler) CurrentMessages(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	conv, err := h.Conversations.ResolveActiveConversation(c.Request().Context(), p.UserID)
	if err != nil {
		return fail(c, err, nil)
	}
	return h.listMessages(c, conv.ID, p.UserID)
}

func (h *ChatHandler) listMessages(c echo.Context, convID, userID uint64) error {
	page, ok := parsePage(c)
	if !ok {
		return badRequest(c, "after and limit must be non-negative integers")
	}
	msgs, err := h.Conversations.ListMessages(c.Request().Context(), convID, userID, page)
	if err != nil {
		return fail(c, err, nil)
	}
	items := make([]messageDTO, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, toMessageDTO(m))
	}
	resp := echo.Map{"conversation_id": convID, "items": items}
	if page.Limit > 0 && len(items) == page.Limit {
		resp["next_after"] = items[len(items)-1].Ordinal
	}
	return c.JSON(http.StatusOK, resp)
}

func parsePage(c echo.Context) (model.Page, bool) {
	var page model.Page
	if s := c.QueryParam("after"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			return page, false
		}
		page.After = n
	}
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return page, false
		}
		page.Limit = min(n, maxPageLimit)
	}
	return page, true
}
