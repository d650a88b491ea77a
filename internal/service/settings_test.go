package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ollama-chat-backend/internal/inference"
	"github.com/iliyamo/ollama-chat-backend/internal/model"
	"github.com/iliyamo/ollama-chat-backend/internal/repository"
)

func strp(s string) *string { return &s }

func newSettings(t *testing.T) (*SettingsService, repository.Store) {
	t.Helper()
	st := repository.NewMemory().Store()
	return NewSettingsService(st.Settings, inference.NewRegistry(false)), st
}

func TestGetSettingsDefaultsAreStable(t *testing.T) {
	svc, st := newSettings(t)
	ctx := context.Background()

	a, err := svc.GetSettings(ctx, 9)
	require.NoError(t, err)
	b, err := svc.GetSettings(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, model.ThemeLight, a.Theme)
	assert.Equal(t, inference.DefaultModel, a.PreferredModel)
	assert.Equal(t, DefaultLanguage, a.Language)
	assert.True(t, a.NotificationsEnabled)

	_, err = st.Settings.Get(ctx, 9)
	assert.ErrorIs(t, err, repository.ErrNotFound, "reads do not persist defaults")
}

func TestUpdateSettingsPartial(t *testing.T) {
	svc, _ := newSettings(t)
	ctx := context.Background()
	off := false

	got, err := svc.UpdateSettings(ctx, 9, SettingsUpdate{Theme: strp("Dark"), NotificationsEnabled: &off})
	require.NoError(t, err)
	assert.Equal(t, model.ThemeDark, got.Theme)
	assert.False(t, got.NotificationsEnabled)
	assert.Equal(t, DefaultLanguage, got.Language)

	got, err = svc.UpdateSettings(ctx, 9, SettingsUpdate{Language: strp(" French ")})
	require.NoError(t, err)
	assert.Equal(t, model.ThemeDark, got.Theme)
	assert.Equal(t, "French", got.Language)

	again, err := svc.GetSettings(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestUpdateSettingsValidation(t *testing.T) {
	svc, st := newSettings(t)
	ctx := context.Background()

	tests := []struct {
		name string
		u    SettingsUpdate
	}{
		{"theme", SettingsUpdate{Theme: strp("purple")}},
		{"model", SettingsUpdate{PreferredModel: strp("gpt-4o-mini")}},
		{"empty language", SettingsUpdate{Language: strp("  ")}},
		{"mixed", SettingsUpdate{Language: strp("German"), Theme: strp("neon")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateSettings(ctx, 9, tt.u)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	_, err := st.Settings.Get(ctx, 9)
	assert.ErrorIs(t, err, repository.ErrNotFound, "invalid updates write nothing")
}
