package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/iliyamo/ollama-chat-backend/internal/middleware"
	"github.com/iliyamo/ollama-chat-backend/internal/repository"
)

// AdminHandler holds the administrative endpoints.  Routes are guarded by
// RequireRole(admin).
type AdminHandler struct {
	Users repository.UserStore
}

func NewAdminHandler(users repository.UserStore) *AdminHandler {
	return &AdminHandler{Users: users}
}

// DeleteUser handles DELETE /v1/admin/users/:id.  The user row goes away
// and every conversation, message, setting, subscription and token of the
// user is removed with it.
func (h *AdminHandler) DeleteUser(c echo.Context) error {
	id, ok := paramID(c)
	if !ok {
		return badRequest(c, "invalid id")
	}
	if p, _ := middleware.Principal(c); p.UserID == id {
		return badRequest(c, "cannot delete own account")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	err := h.Users.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}
	if err != nil {
		return fail(c, err, nil)
	}
	zerolog.Ctx(c.Request().Context()).Info().Uint64("deleted_user_id", id).Msg("user purged")
	return c.NoContent(http.StatusNoContent)
}
