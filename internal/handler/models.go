package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Models handles GET /v1/models.  Premium entries are listed for everyone
// with available=false when the caller may not use them.
func (h *ChatHandler) Models(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"items": h.Conversations.Models(c.Request().Context(), p)})
}
