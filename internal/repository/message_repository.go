package repository

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/iliyamo/ollama-chat-backend/internal/model"
)

// MessageRepo appends to and reads from the messages table.  Appends lock
// the parent conversation row, so ordinals within a conversation are
// assigned one at a time; the (conversation_id, ordinal) unique key backs
// this up.
type MessageRepo struct {
	db  *sql.DB
	now func() time.Time
}

// NewMessageRepo returns a MessageRepo bound to db.
func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const (
	messageColumns = `id, conversation_id, user_id, ordinal, role, body, created_at, latency_ms`

	qLockOwnedConversation = `SELECT status FROM conversations WHERE id = ? AND user_id = ? FOR UPDATE`
	qLockConversation      = `SELECT status FROM conversations WHERE id = ? FOR UPDATE`
	qLastMessage           = `SELECT ordinal, created_at FROM messages WHERE conversation_id = ? ORDER BY ordinal DESC LIMIT 1`
	qInsertMessage         = `INSERT INTO messages (conversation_id, user_id, ordinal, role, body, created_at, latency_ms) VALUES (?, ?, ?, ?, ?, ?, ?)`
	qBumpConversation      = `UPDATE conversations SET message_count = message_count + 1, last_message_at = ? WHERE id = ?`
	qListMessages          = `SELECT ` + messageColumns + ` FROM messages
		WHERE conversation_id = ? AND ordinal > ? ORDER BY ordinal ASC LIMIT ?`
	qRecentMessages = `SELECT ` + messageColumns + ` FROM (
		SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = ? ORDER BY ordinal DESC LIMIT ?
		) recent ORDER BY ordinal ASC`
)

// AppendUser appends a user message to an owned, active conversation.  A
// conversation owned by someone else is ErrNotFound; an archived one is
// ErrConflict.
func (r *MessageRepo) AppendUser(ctx context.Context, userID, conversationID uint64, text string) (msg model.Message, err error) {
	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, qLockOwnedConversation, conversationID, userID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return errors.Wrap(err, "lock conversation")
		}
		if model.ConversationStatus(status) != model.StatusActive {
			return ErrConflict
		}
		last, lastAt, err := lastMessageTx(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		uid := userID
		msg, err = r.insertTx(ctx, tx, model.NewMessage{
			ConversationID: conversationID,
			UserID:         &uid,
			Role:           model.RoleUserMessage,
			Text:           text,
		}, last, lastAt)
		return err
	})
	return msg, err
}

// AppendReply appends an assistant message, provided the newest message is
// still the one at afterOrdinal.  Any other append in between makes the
// reply stale and returns ErrConflict.
func (r *MessageRepo) AppendReply(ctx context.Context, conversationID uint64, afterOrdinal int64, text string, latencyMS int64) (msg model.Message, err error) {
	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, qLockConversation, conversationID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return errors.Wrap(err, "lock conversation")
		}
		last, lastAt, err := lastMessageTx(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		if last != afterOrdinal {
			return ErrConflict
		}
		lat := latencyMS
		msg, err = r.insertTx(ctx, tx, model.NewMessage{
			ConversationID: conversationID,
			Role:           model.RoleAssistant,
			Text:           text,
			LatencyMS:      &lat,
		}, last, lastAt)
		return err
	})
	return msg, err
}

// lastMessageTx returns the newest ordinal and timestamp of a conversation;
// zero values when it has no messages.
func lastMessageTx(ctx context.Context, tx *sql.Tx, conversationID uint64) (int64, time.Time, error) {
	var (
		last   int64
		lastAt time.Time
	)
	err := tx.QueryRowContext(ctx, qLastMessage, conversationID).Scan(&last, &lastAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, time.Time{}, errors.Wrap(err, "load last message")
	}
	return last, lastAt, nil
}

// insertTx writes m at ordinal last+1 and bumps the conversation metrics.
// The caller holds the conversation row lock.  Timestamps never go
// backwards within a conversation, even if the wall clock does.
func (r *MessageRepo) insertTx(ctx context.Context, tx *sql.Tx, m model.NewMessage, last int64, lastAt time.Time) (model.Message, error) {
	at := r.now().Truncate(time.Microsecond)
	if at.Before(lastAt) {
		at = lastAt
	}
	out := model.Message{
		ConversationID: m.ConversationID,
		UserID:         m.UserID,
		Ordinal:        last + 1,
		Role:           m.Role,
		Text:           m.Text,
		CreatedAt:      at,
		LatencyMS:      m.LatencyMS,
	}
	res, err := tx.ExecContext(ctx, qInsertMessage,
		out.ConversationID, nullUint(out.UserID), out.Ordinal, string(out.Role), out.Text, out.CreatedAt, nullInt(out.LatencyMS))
	if err != nil {
		return model.Message{}, errors.Wrap(err, "insert message")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Message{}, errors.Wrap(err, "message id")
	}
	out.ID = uint64(id)
	if _, err := tx.ExecContext(ctx, qBumpConversation, out.CreatedAt, out.ConversationID); err != nil {
		return model.Message{}, errors.Wrap(err, "update conversation metrics")
	}
	return out, nil
}

// List returns messages of a conversation in ordinal order.  Ownership is
// checked by the caller.
func (r *MessageRepo) List(ctx context.Context, conversationID uint64, page model.Page) ([]model.Message, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = math.MaxInt32
	}
	return r.query(ctx, qListMessages, conversationID, page.After, limit)
}

// Recent returns the last n messages of a conversation in ordinal order.
func (r *MessageRepo) Recent(ctx context.Context, conversationID uint64, n int) ([]model.Message, error) {
	if n <= 0 {
		return []model.Message{}, nil
	}
	return r.query(ctx, qRecentMessages, conversationID, n)
}

func (r *MessageRepo) query(ctx context.Context, q string, args ...any) ([]model.Message, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query messages")
	}
	defer rows.Close()
	out := []model.Message{}
	for rows.Next() {
		var (
			m       model.Message
			userID  sql.NullInt64
			role    string
			latency sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &userID, &m.Ordinal, &role, &m.Text, &m.CreatedAt, &latency); err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		if m.Role, err = model.ParseMessageRole(role); err != nil {
			return nil, err
		}
		if userID.Valid {
			u := uint64(userID.Int64)
			m.UserID = &u
		}
		if latency.Valid {
			l := latency.Int64
			m.LatencyMS = &l
		}
		out = append(out, m)
	}
	return out, errors.Wrap(rows.Err(), "query messages")
}

func nullUint(v *uint64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
