package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ollama-chat-backend/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

var conversationCols = []string{"id", "user_id", "status", "created_at", "message_count", "last_message_at"}

func TestConversationCreateArchivesActive(t *testing.T) {
	db, mock := newMock(t)
	repo := NewConversationRepo(db)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(qLockUser).WithArgs(7).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec(qArchiveActive).WithArgs(7).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(qInsertConversation).WithArgs(7).WillReturnResult(sqlmock.NewResult(12, 1))
	mock.ExpectQuery(qConversationByID).WithArgs(12).
		WillReturnRows(sqlmock.NewRows(conversationCols).AddRow(12, 7, "active", now, 0, nil))
	mock.ExpectCommit()

	conv, err := repo.Create(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), conv.ID)
	assert.Equal(t, model.StatusActive, conv.Status)
	assert.Nil(t, conv.LastMessageAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationResolveActiveReturnsExisting(t *testing.T) {
	db, mock := newMock(t)
	repo := NewConversationRepo(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(qLockUser).WithArgs(7).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(qActiveConversation).WithArgs(7).
		WillReturnRows(sqlmock.NewRows(conversationCols).AddRow(3, 7, "active", now, 4, now))
	mock.ExpectCommit()

	conv, created, err := repo.ResolveActive(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, uint64(3), conv.ID)
	assert.Equal(t, 4, conv.MessageCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationResolveActiveUnknownUser(t *testing.T) {
	db, mock := newMock(t)
	repo := NewConversationRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(qLockUser).WithArgs(99).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, _, err := repo.ResolveActive(context.Background(), 99)
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationArchiveIsIdempotent(t *testing.T) {
	db, mock := newMock(t)
	repo := NewConversationRepo(db)
	now := time.Now().UTC()

	mock.ExpectQuery(qOwnedConversation).WithArgs(5, 7).
		WillReturnRows(sqlmock.NewRows(conversationCols).AddRow(5, 7, "archived", now, 2, now))
	mock.ExpectExec(qArchiveConversation).WithArgs(5, 7).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Archive(context.Background(), 7, 5))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConversationArchiveForeign(t *testing.T) {
	db, mock := newMock(t)
	repo := NewConversationRepo(db)

	mock.ExpectQuery(qOwnedConversation).WithArgs(5, 8).WillReturnRows(sqlmock.NewRows(conversationCols))

	require.ErrorIs(t, repo.Archive(context.Background(), 8, 5), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendUserRejectsArchived(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMessageRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(qLockOwnedConversation).WithArgs(5, 7).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("archived"))
	mock.ExpectRollback()

	_, err := repo.AppendUser(context.Background(), 7, 5, "hello")
	require.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendUserAssignsNextOrdinal(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMessageRepo(db)
	lastAt := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	// clock behind the newest message
	repo.now = func() time.Time { return lastAt.Add(-time.Minute) }

	mock.ExpectBegin()
	mock.ExpectQuery(qLockOwnedConversation).WithArgs(5, 7).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("active"))
	mock.ExpectQuery(qLastMessage).WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"ordinal", "created_at"}).AddRow(2, lastAt))
	mock.ExpectExec(qInsertMessage).WithArgs(5, 7, 3, "user", "hello", lastAt, nil).
		WillReturnResult(sqlmock.NewResult(40, 1))
	mock.ExpectExec(qBumpConversation).WithArgs(lastAt, 5).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	msg, err := repo.AppendUser(context.Background(), 7, 5, "hello")
	require.NoError(t, err)
	assert.Equal(t, uint64(40), msg.ID)
	assert.Equal(t, int64(3), msg.Ordinal)
	assert.Equal(t, lastAt, msg.CreatedAt)
	require.NotNil(t, msg.UserID)
	assert.Equal(t, uint64(7), *msg.UserID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendReplyStale(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMessageRepo(db)

	mock.ExpectBegin()
	mock.ExpectQuery(qLockConversation).WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("active"))
	mock.ExpectQuery(qLastMessage).WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"ordinal", "created_at"}).AddRow(4, time.Now().UTC()))
	mock.ExpectRollback()

	_, err := repo.AppendReply(context.Background(), 5, 3, "late", 100)
	require.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendReplyRecordsLatency(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMessageRepo(db)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	mock.ExpectBegin()
	mock.ExpectQuery(qLockConversation).WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("archived"))
	mock.ExpectQuery(qLastMessage).WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"ordinal", "created_at"}).AddRow(1, now.Add(-time.Second)))
	mock.ExpectExec(qInsertMessage).WithArgs(5, nil, 2, "assistant", "Hi there", now, 120).
		WillReturnResult(sqlmock.NewResult(41, 1))
	mock.ExpectExec(qBumpConversation).WithArgs(now, 5).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	msg, err := repo.AppendReply(context.Background(), 5, 1, "Hi there", 120)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAssistant, msg.Role)
	assert.Nil(t, msg.UserID)
	require.NotNil(t, msg.LatencyMS)
	assert.Equal(t, int64(120), *msg.LatencyMS)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageListUnbounded(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMessageRepo(db)
	now := time.Now().UTC()

	cols := []string{"id", "conversation_id", "user_id", "ordinal", "role", "body", "created_at", "latency_ms"}
	mock.ExpectQuery(qListMessages).WithArgs(5, 0, 2147483647).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(1, 5, 7, 1, "user", "Hello", now, nil).
			AddRow(2, 5, nil, 2, "assistant", "Hi there", now, 120))

	msgs, err := repo.List(context.Background(), 5, model.Page{})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUserMessage, msgs[0].Role)
	assert.Nil(t, msgs[1].UserID)
	assert.Equal(t, int64(120), *msgs[1].LatencyMS)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserCreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectExec(qInsertUser).WithArgs("bob", "bob@example.com", "hash", "user").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'bob' for key 'users.uq_users_username'"})
	_, err := repo.Create(context.Background(), "bob", " Bob@Example.com ", "hash", model.RoleUser)
	require.ErrorIs(t, err, ErrUsernameExists)

	mock.ExpectExec(qInsertUser).WithArgs("bob2", "bob@example.com", "hash", "user").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'bob@example.com' for key 'users.uq_users_email'"})
	_, err = repo.Create(context.Background(), "bob2", "bob@example.com", "hash", model.RoleUser)
	require.ErrorIs(t, err, ErrEmailExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserDeleteMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectExec(qDeleteUser).WithArgs(3).WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.Delete(context.Background(), 3), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsPatchFirstWriteUsesDefaults(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSettingsRepo(db)
	defaults := model.Settings{Theme: model.ThemeLight, PreferredModel: "llama3.2:3b", Language: "English", NotificationsEnabled: true}
	dark := model.ThemeDark

	mock.ExpectBegin()
	mock.ExpectQuery(qLockUser).WithArgs(7).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(qSettingsForUpd).WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "theme", "preferred_model", "language", "notifications_enabled"}))
	mock.ExpectExec(qUpsertSettings).WithArgs(7, "dark", "llama3.2:3b", "English", true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := repo.Patch(context.Background(), 7, defaults, model.SettingsPatch{Theme: &dark})
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.UserID)
	assert.Equal(t, model.ThemeDark, got.Theme)
	assert.Equal(t, "English", got.Language)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsPatchUnknownUser(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSettingsRepo(db)
	dark := model.ThemeDark

	mock.ExpectBegin()
	mock.ExpectQuery(qLockUser).WithArgs(7).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := repo.Patch(context.Background(), 7, model.Settings{}, model.SettingsPatch{Theme: &dark})
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingsGetMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSettingsRepo(db)

	mock.ExpectQuery(qSettings).WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "theme", "preferred_model", "language", "notifications_enabled"}))
	_, err := repo.Get(context.Background(), 7)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTokenValidateRevoked(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTokenRepo(db)

	mock.ExpectQuery(qRefreshByHash).WithArgs("h").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at", "revoked_at"}).
			AddRow(7, time.Now().Add(time.Hour), time.Now()))
	_, err := repo.ValidateRefresh(context.Background(), "h")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSubscriptionActive(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSubscriptionRepo(db)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(qActiveSubscription).WithArgs(7, now, now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "plan", "is_active", "starts_at", "expires_at", "auto_renew"}).
			AddRow(1, 7, "pro", true, now.AddDate(0, -1, 0), nil, false))
	sub, err := repo.Active(context.Background(), 7, now)
	require.NoError(t, err)
	assert.Equal(t, model.PlanPro, sub.Plan)
	assert.Nil(t, sub.ExpiresAt)
}
