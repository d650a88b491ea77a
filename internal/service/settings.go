package service

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/iliyamo/ollama-chat-backend/internal/inference"
	"github.com/iliyamo/ollama-chat-backend/internal/model"
	"github.com/iliyamo/ollama-chat-backend/internal/repository"
)

// DefaultLanguage is the language of a user who never chose one.
const DefaultLanguage = "English"

// SettingsService reads and updates per-user preferences.  The row is
// written on first update only; until then reads return the defaults.
type SettingsService struct {
	store    repository.SettingsStore
	registry *inference.Registry
}

func NewSettingsService(store repository.SettingsStore, reg *inference.Registry) *SettingsService {
	return &SettingsService{store: store, registry: reg}
}

// Defaults are the settings of a user without a stored row.
func (s *SettingsService) Defaults(userID uint64) model.Settings {
	return model.Settings{
		UserID:               userID,
		Theme:                model.ThemeLight,
		PreferredModel:       s.registry.Default().Name,
		Language:             DefaultLanguage,
		NotificationsEnabled: true,
	}
}

// GetSettings returns the stored settings or the defaults.
func (s *SettingsService) GetSettings(ctx context.Context, userID uint64) (model.Settings, error) {
	st, err := s.store.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return s.Defaults(userID), nil
	}
	return st, err
}

// SettingsUpdate is a partial update as decoded from a request.  Nil
// fields are left unchanged.
type SettingsUpdate struct {
	Theme                *string `json:"theme"`
	PreferredModel       *string `json:"preferred_model"`
	Language             *string `json:"language"`
	NotificationsEnabled *bool   `json:"notifications_enabled"`
}

// UpdateSettings validates u and applies it.  Nothing is written when any
// field is invalid.
func (s *SettingsService) UpdateSettings(ctx context.Context, userID uint64, u SettingsUpdate) (model.Settings, error) {
	var p model.SettingsPatch
	if u.Theme != nil {
		th, err := model.ParseTheme(*u.Theme)
		if err != nil {
			return model.Settings{}, newError(ErrValidation, "theme must be light or dark")
		}
		p.Theme = &th
	}
	if u.PreferredModel != nil {
		name := strings.TrimSpace(*u.PreferredModel)
		if _, ok := s.registry.Lookup(name); !ok {
			return model.Settings{}, newError(ErrValidation, "unsupported model %q", name)
		}
		p.PreferredModel = &name
	}
	if u.Language != nil {
		lang := strings.TrimSpace(*u.Language)
		if lang == "" || len(lang) > 50 {
			return model.Settings{}, newError(ErrValidation, "language must be 1-50 characters")
		}
		p.Language = &lang
	}
	p.NotificationsEnabled = u.NotificationsEnabled

	st, err := s.store.Patch(ctx, userID, s.Defaults(userID), p)
	return st, storeErr(err, "user")
}
