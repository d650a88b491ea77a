package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/iliyamo/ollama-chat-backend/internal/model"
)

// ConversationRepo provides access to the conversations table.  Every
// transition that can change which conversation is active runs under the
// owning user's row lock; the unique index on active_user_id backs the
// one-active-per-user invariant at the storage level.
type ConversationRepo struct {
	db *sql.DB
}

// NewConversationRepo returns a ConversationRepo bound to db.
func NewConversationRepo(db *sql.DB) *ConversationRepo { return &ConversationRepo{db: db} }

const (
	conversationColumns = `id, user_id, status, created_at, message_count, last_message_at`

	qActiveConversation = `SELECT ` + conversationColumns + ` FROM conversations
		WHERE user_id = ? AND status = 'active' ORDER BY created_at DESC, id DESC LIMIT 1`
	qInsertConversation   = `INSERT INTO conversations (user_id, status, created_at) VALUES (?, 'active', UTC_TIMESTAMP(6))`
	qConversationByID     = `SELECT ` + conversationColumns + ` FROM conversations WHERE id = ?`
	qOwnedConversation    = `SELECT ` + conversationColumns + ` FROM conversations WHERE id = ? AND user_id = ?`
	qOwnedConversationFor = `SELECT ` + conversationColumns + ` FROM conversations WHERE id = ? AND user_id = ? FOR UPDATE`
	qArchiveActive        = `UPDATE conversations SET status = 'archived' WHERE user_id = ? AND status = 'active'`
	qArchiveConversation  = `UPDATE conversations SET status = 'archived' WHERE id = ? AND user_id = ? AND status = 'active'`
	qActivateConversation = `UPDATE conversations SET status = 'active' WHERE id = ?`
	qListConversations    = `SELECT c.id, c.user_id, c.status, c.created_at, c.message_count, c.last_message_at,
		(SELECT m.body FROM messages m WHERE m.conversation_id = c.id AND m.role = 'user' ORDER BY m.ordinal LIMIT 1)
		FROM conversations c WHERE c.user_id = ? ORDER BY c.created_at DESC, c.id DESC`
)

// ResolveActive returns the user's active conversation, creating one when
// none exists.  created reports whether a row was inserted.
func (r *ConversationRepo) ResolveActive(ctx context.Context, userID uint64) (conv model.Conversation, created bool, err error) {
	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockUser(ctx, tx, userID); err != nil {
			return err
		}
		c, err := scanConversation(tx.QueryRowContext(ctx, qActiveConversation, userID))
		if err == nil {
			conv = c
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		conv, err = insertConversationTx(ctx, tx, userID)
		created = err == nil
		return err
	})
	return conv, created, err
}

// Create archives the user's active conversation, if any, and inserts a
// new active one.
func (r *ConversationRepo) Create(ctx context.Context, userID uint64) (conv model.Conversation, err error) {
	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockUser(ctx, tx, userID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, qArchiveActive, userID); err != nil {
			return errors.Wrap(err, "archive active conversation")
		}
		conv, err = insertConversationTx(ctx, tx, userID)
		return err
	})
	return conv, err
}

// Get returns the conversation if it belongs to userID, else ErrNotFound.
func (r *ConversationRepo) Get(ctx context.Context, userID, id uint64) (model.Conversation, error) {
	return scanConversation(r.db.QueryRowContext(ctx, qOwnedConversation, id, userID))
}

// List returns the user's conversations, newest first, each titled by its
// first user message.
func (r *ConversationRepo) List(ctx context.Context, userID uint64) ([]model.ConversationSummary, error) {
	rows, err := r.db.QueryContext(ctx, qListConversations, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list conversations")
	}
	defer rows.Close()
	out := []model.ConversationSummary{}
	for rows.Next() {
		var (
			s      model.ConversationSummary
			status string
			last   sql.NullTime
			first  sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.UserID, &status, &s.CreatedAt, &s.MessageCount, &last, &first); err != nil {
			return nil, errors.Wrap(err, "scan conversation")
		}
		if s.Status, err = model.ParseConversationStatus(status); err != nil {
			return nil, err
		}
		if last.Valid {
			t := last.Time
			s.LastMessageAt = &t
		}
		s.Title = model.ConversationTitle(s.ID, first.String)
		out = append(out, s)
	}
	return out, errors.Wrap(rows.Err(), "list conversations")
}

// Archive moves an owned conversation to archived.  Archiving an already
// archived conversation succeeds without change.
func (r *ConversationRepo) Archive(ctx context.Context, userID, id uint64) error {
	if _, err := r.Get(ctx, userID, id); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, qArchiveConversation, id, userID)
	return errors.Wrap(err, "archive conversation")
}

// Activate makes an owned conversation the active one, archiving whichever
// conversation was active before.
func (r *ConversationRepo) Activate(ctx context.Context, userID, id uint64) (conv model.Conversation, err error) {
	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		if err := lockUser(ctx, tx, userID); err != nil {
			return err
		}
		target, err := scanConversation(tx.QueryRowContext(ctx, qOwnedConversationFor, id, userID))
		if err != nil {
			return err
		}
		if target.Active() {
			conv = target
			return nil
		}
		if _, err := tx.ExecContext(ctx, qArchiveActive, userID); err != nil {
			return errors.Wrap(err, "archive active conversation")
		}
		if _, err := tx.ExecContext(ctx, qActivateConversation, id); err != nil {
			return errors.Wrap(err, "activate conversation")
		}
		target.Status = model.StatusActive
		conv = target
		return nil
	})
	return conv, err
}

func insertConversationTx(ctx context.Context, tx *sql.Tx, userID uint64) (model.Conversation, error) {
	res, err := tx.ExecContext(ctx, qInsertConversation, userID)
	if err != nil {
		return model.Conversation{}, errors.Wrap(err, "insert conversation")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Conversation{}, errors.Wrap(err, "conversation id")
	}
	return scanConversation(tx.QueryRowContext(ctx, qConversationByID, id))
}

func scanConversation(row *sql.Row) (model.Conversation, error) {
	var (
		c      model.Conversation
		status string
		last   sql.NullTime
	)
	err := row.Scan(&c.ID, &c.UserID, &status, &c.CreatedAt, &c.MessageCount, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Conversation{}, ErrNotFound
	}
	if err != nil {
		return model.Conversation{}, errors.Wrap(err, "scan conversation")
	}
	if c.Status, err = model.ParseConversationStatus(status); err != nil {
		return model.Conversation{}, err
	}
	if last.Valid {
		t := last.Time
		c.LastMessageAt = &t
	}
	return c, nil
}
