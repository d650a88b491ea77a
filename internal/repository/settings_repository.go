package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/iliyamo/ollama-chat-backend/internal/model"
)

// SettingsRepo persists the one-per-user `user_settings` row.
type SettingsRepo struct{ db *sql.DB }

func NewSettingsRepo(db *sql.DB) *SettingsRepo { return &SettingsRepo{db: db} }

const (
	qSettings       = `SELECT user_id, theme, preferred_model, language, notifications_enabled FROM user_settings WHERE user_id = ?`
	qSettingsForUpd = qSettings + ` FOR UPDATE`
	qUpsertSettings = `INSERT INTO user_settings (user_id, theme, preferred_model, language, notifications_enabled)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE theme = VALUES(theme), preferred_model = VALUES(preferred_model),
		language = VALUES(language), notifications_enabled = VALUES(notifications_enabled)`
)

// Get returns the stored settings or ErrNotFound when the user has never
// saved any.
func (r *SettingsRepo) Get(ctx context.Context, userID uint64) (model.Settings, error) {
	return scanSettings(r.db.QueryRowContext(ctx, qSettings, userID))
}

// Patch applies p on top of the stored row (or defaults when there is none)
// and writes the result back in one transaction.  The user row lock is
// taken first: a FOR UPDATE on a missing settings row only takes a gap
// lock, and two first writers holding one each deadlock on the insert.
func (r *SettingsRepo) Patch(ctx context.Context, userID uint64, defaults model.Settings, p model.SettingsPatch) (out model.Settings, err error) {
	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockUser(ctx, tx, userID); err != nil {
			return err
		}
		cur, err := scanSettings(tx.QueryRowContext(ctx, qSettingsForUpd, userID))
		switch {
		case errors.Is(err, ErrNotFound):
			cur = defaults
			cur.UserID = userID
		case err != nil:
			return err
		}
		out = p.Apply(cur)
		_, err = tx.ExecContext(ctx, qUpsertSettings,
			userID, string(out.Theme), out.PreferredModel, out.Language, out.NotificationsEnabled)
		return errors.Wrap(err, "upsert settings")
	})
	return out, err
}

func scanSettings(row *sql.Row) (model.Settings, error) {
	var (
		s     model.Settings
		theme string
	)
	err := row.Scan(&s.UserID, &theme, &s.PreferredModel, &s.Language, &s.NotificationsEnabled)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Settings{}, ErrNotFound
	}
	if err != nil {
		return model.Settings{}, errors.Wrap(err, "scan settings")
	}
	if s.Theme, err = model.ParseTheme(theme); err != nil {
		return model.Settings{}, err
	}
	return s, nil
}
