package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"

	"github.com/iliyamo/ollama-chat-backend/internal/model"
)

// UserRepo persists rows of the `users` table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const (
	userColumns  = `id, username, email, password_hash, role, created_at, last_login_at`
	qInsertUser  = `INSERT INTO users (username, email, password_hash, role) VALUES (?, ?, ?, ?)`
	qUserByEmail = `SELECT ` + userColumns + ` FROM users WHERE email = ? LIMIT 1`
	qUserByID    = `SELECT ` + userColumns + ` FROM users WHERE id = ? LIMIT 1`
	qTouchLogin  = `UPDATE users SET last_login_at = ? WHERE id = ?`
	qDeleteUser  = `DELETE FROM users WHERE id = ?`
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// Create inserts a user and returns the stored row.  The email is
// normalized to lower case.  Duplicate handles or emails map to
// ErrUsernameExists / ErrEmailExists.
func (r *UserRepo) Create(ctx context.Context, username, email, passwordHash string, role model.Role) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	res, err := r.DB.ExecContext(ctx, qInsertUser, username, email, passwordHash, string(role))
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
			if strings.Contains(me.Message, "uq_users_username") {
				return model.User{}, ErrUsernameExists
			}
			return model.User{}, ErrEmailExists
		}
		return model.User{}, errors.Wrap(err, "insert user")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, errors.Wrap(err, "user id")
	}
	return r.GetByID(ctx, uint64(id))
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx, qUserByEmail, email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, qUserByID, id))
}

// TouchLogin records a successful authentication.
func (r *UserRepo) TouchLogin(ctx context.Context, id uint64, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, qTouchLogin, at.UTC(), id)
	return errors.Wrap(err, "touch last login")
}

// Delete physically removes a user.  Conversations, messages, settings,
// subscriptions and refresh tokens go with it through ON DELETE CASCADE.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, qDeleteUser, id)
	if err != nil {
		return errors.Wrap(err, "delete user")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "delete user")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (model.User, error) {
	var (
		u       model.User
		role    string
		lastLog sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.CreatedAt, &lastLog)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, errors.Wrap(err, "scan user")
	}
	if u.Role, err = model.ParseRole(role); err != nil {
		return model.User{}, err
	}
	if lastLog.Valid {
		t := lastLog.Time
		u.LastLoginAt = &t
	}
	return u, nil
}
