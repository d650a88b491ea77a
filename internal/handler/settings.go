package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ollama-chat-backend/internal/model"
	"github.com/iliyamo/ollama-chat-backend/internal/service"
)

// SettingsHandler serves the per-user preferences.
type SettingsHandler struct {
	Settings *service.SettingsService
}

func NewSettingsHandler(s *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{Settings: s}
}

type settingsDTO struct {
	Theme                model.Theme `json:"theme"`
	PreferredModel       string      `json:"preferred_model"`
	Language             string      `json:"language"`
	NotificationsEnabled bool        `json:"notifications_enabled"`
}

func toSettingsDTO(s model.Settings) settingsDTO {
	return settingsDTO{
		Theme:                s.Theme,
		PreferredModel:       s.PreferredModel,
		Language:             s.Language,
		NotificationsEnabled: s.NotificationsEnabled,
	}
}

// Get handles GET /v1/settings.  Users who never saved settings see the
// defaults.
func (h *SettingsHandler) Get(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	st, err := h.Settings.GetSettings(c.Request().Context(), p.UserID)
	if err != nil {
		return fail(c, err, nil)
	}
	return c.JSON(http.StatusOK, toSettingsDTO(st))
}

// Update handles PUT /v1/settings.  Omitted fields keep their value.
func (h *SettingsHandler) Update(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req service.SettingsUpdate
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	st, err := h.Settings.UpdateSettings(c.Request().Context(), p.UserID, req)
	if err != nil {
		return fail(c, err, nil)
	}
	return c.JSON(http.StatusOK, toSettingsDTO(st))
}
