package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/ollama-chat-backend/internal/model"
)

// UserStore is implemented by UserRepo and the memory store.
type UserStore interface {
	Create(ctx context.Context, username, email, passwordHash string, role model.Role) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	TouchLogin(ctx context.Context, id uint64, at time.Time) error
	Delete(ctx context.Context, id uint64) error
}

type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// ConversationStore owns the per-user active-conversation transitions.
// Implementations must keep at most one active conversation per user even
// under concurrent calls.
type ConversationStore interface {
	ResolveActive(ctx context.Context, userID uint64) (model.Conversation, bool, error)
	Create(ctx context.Context, userID uint64) (model.Conversation, error)
	Get(ctx context.Context, userID, id uint64) (model.Conversation, error)
	List(ctx context.Context, userID uint64) ([]model.ConversationSummary, error)
	Archive(ctx context.Context, userID, id uint64) error
	Activate(ctx context.Context, userID, id uint64) (model.Conversation, error)
}

// MessageStore serializes appends per conversation and assigns ordinals.
type MessageStore interface {
	AppendUser(ctx context.Context, userID, conversationID uint64, text string) (model.Message, error)
	AppendReply(ctx context.Context, conversationID uint64, afterOrdinal int64, text string, latencyMS int64) (model.Message, error)
	List(ctx context.Context, conversationID uint64, page model.Page) ([]model.Message, error)
	Recent(ctx context.Context, conversationID uint64, n int) ([]model.Message, error)
}

type SettingsStore interface {
	Get(ctx context.Context, userID uint64) (model.Settings, error)
	Patch(ctx context.Context, userID uint64, defaults model.Settings, p model.SettingsPatch) (model.Settings, error)
}

type SubscriptionStore interface {
	Active(ctx context.Context, userID uint64, now time.Time) (model.Subscription, error)
}

// Store bundles every store the services depend on.
type Store struct {
	Users         UserStore
	Tokens        TokenStore
	Conversations ConversationStore
	Messages      MessageStore
	Settings      SettingsStore
	Subscriptions SubscriptionStore
}

// NewMySQLStore wires the MySQL repositories over one connection pool.
func NewMySQLStore(db *sql.DB) Store {
	return Store{
		Users:         NewUserRepo(db),
		Tokens:        NewTokenRepo(db),
		Conversations: NewConversationRepo(db),
		Messages:      NewMessageRepo(db),
		Settings:      NewSettingsRepo(db),
		Subscriptions: NewSubscriptionRepo(db),
	}
}
