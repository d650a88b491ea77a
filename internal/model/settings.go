package model

import (
	"fmt"
	"strings"
)

// Theme is the UI colour scheme preference.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ParseTheme rejects anything but light or dark.
func ParseTheme(s string) (Theme, error) {
	switch t := Theme(strings.ToLower(strings.TrimSpace(s))); t {
	case ThemeLight, ThemeDark:
		return t, nil
	}
	return "", fmt.Errorf("unknown theme %q", s)
}

// Settings are per-user preferences, one row per user in `user_settings`.
type Settings struct {
	UserID               uint64
	Theme                Theme
	PreferredModel       string
	Language             string
	NotificationsEnabled bool
}

// SettingsPatch holds the fields of a partial update.  Nil fields are left
// untouched.
type SettingsPatch struct {
	Theme                *Theme
	PreferredModel       *string
	Language             *string
	NotificationsEnabled *bool
}

// Apply returns s with every non-nil field of p applied.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.Theme != nil {
		s.Theme = *p.Theme
	}
	if p.PreferredModel != nil {
		s.PreferredModel = *p.PreferredModel
	}
	if p.Language != nil {
		s.Language = *p.Language
	}
	if p.NotificationsEnabled != nil {
		s.NotificationsEnabled = *p.NotificationsEnabled
	}
	return s
}
