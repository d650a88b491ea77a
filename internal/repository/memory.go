package repository

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/ollama-chat-backend/internal/model"
)

// Memory is a process-local store with the same invariants as the MySQL
// repositories.  A single mutex plays the role of the row locks, so every
// transition is atomic.  It backs STORE_DRIVER=memory and the service tests.
type Memory struct {
	mu  sync.Mutex
	now func() time.Time

	nextID        uint64
	users         map[uint64]model.User
	tokens        map[string]memToken
	conversations map[uint64]model.Conversation
	messages      map[uint64][]model.Message // by conversation, ordinal order
	settings      map[uint64]model.Settings
	subscriptions map[uint64][]model.Subscription
}

type memToken struct {
	userID  uint64
	expires time.Time
	revoked bool
}

// NewMemory returns an empty memory store.
func NewMemory() *Memory {
	return &Memory{
		now:           func() time.Time { return time.Now().UTC() },
		users:         map[uint64]model.User{},
		tokens:        map[string]memToken{},
		conversations: map[uint64]model.Conversation{},
		messages:      map[uint64][]model.Message{},
		settings:      map[uint64]model.Settings{},
		subscriptions: map[uint64][]model.Subscription{},
	}
}

// Store exposes m through the store interfaces.
func (m *Memory) Store() Store {
	return Store{
		Users:         memUsers{m},
		Tokens:        memTokens{m},
		Conversations: memConversations{m},
		Messages:      memMessages{m},
		Settings:      memSettings{m},
		Subscriptions: memSubscriptions{m},
	}
}

// PutSubscription records a subscription row.  There is no HTTP surface for
// plans; this is how dev setups and tests grant one.
func (m *Memory) PutSubscription(s model.Subscription) model.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.id()
	m.subscriptions[s.UserID] = append(m.subscriptions[s.UserID], s)
	return s
}

func (m *Memory) id() uint64 {
	m.nextID++
	return m.nextID
}

type memUsers struct{ m *Memory }

func (s memUsers) Create(_ context.Context, username, email, passwordHash string, role model.Role) (model.User, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range m.users {
		if u.Email == email {
			return model.User{}, ErrEmailExists
		}
		if u.Username == username {
			return model.User{}, ErrUsernameExists
		}
	}
	u := model.User{
		ID:           m.id(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    m.now(),
	}
	m.users[u.ID] = u
	return u, nil
}

func (s memUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, ErrNotFound
}

func (s memUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

func (s memUsers) TouchLogin(_ context.Context, id uint64, at time.Time) error {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil
	}
	at = at.UTC()
	u.LastLoginAt = &at
	m.users[id] = u
	return nil
}

// Delete purges the user and everything that cascades from it.
func (s memUsers) Delete(_ context.Context, id uint64) error {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	delete(m.settings, id)
	delete(m.subscriptions, id)
	for h, t := range m.tokens {
		if t.userID == id {
			delete(m.tokens, h)
		}
	}
	for cid, c := range m.conversations {
		if c.UserID == id {
			delete(m.conversations, cid)
			delete(m.messages, cid)
		}
	}
	return nil
}

type memTokens struct{ m *Memory }

func (s memTokens) StoreRefresh(_ context.Context, userID uint64, tokenHash string, exp time.Time) error {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[tokenHash] = memToken{userID: userID, expires: exp.UTC()}
	return nil
}

func (s memTokens) ValidateRefresh(_ context.Context, tokenHash string) (uint64, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[tokenHash]
	if !ok || t.revoked || m.now().After(t.expires) {
		return 0, ErrNotFound
	}
	return t.userID, nil
}

func (s memTokens) RevokeByHash(_ context.Context, tokenHash string) error {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[tokenHash]; ok {
		t.revoked = true
		m.tokens[tokenHash] = t
	}
	return nil
}

func (s memTokens) RevokeAllForUser(_ context.Context, userID uint64) error {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	for h, t := range m.tokens {
		if t.userID == userID {
			t.revoked = true
			m.tokens[h] = t
		}
	}
	return nil
}

type memConversations struct{ m *Memory }

func (s memConversations) ResolveActive(_ context.Context, userID uint64) (model.Conversation, bool, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return model.Conversation{}, false, ErrNotFound
	}
	if c, ok := m.activeLocked(userID); ok {
		return c, false, nil
	}
	return m.insertConversationLocked(userID), true, nil
}

func (s memConversations) Create(_ context.Context, userID uint64) (model.Conversation, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return model.Conversation{}, ErrNotFound
	}
	m.archiveActiveLocked(userID)
	return m.insertConversationLocked(userID), nil
}

func (s memConversations) Get(_ context.Context, userID, id uint64) (model.Conversation, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ownedLocked(userID, id)
}

func (s memConversations) List(_ context.Context, userID uint64) ([]model.ConversationSummary, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.ConversationSummary{}
	for _, c := range m.conversations {
		if c.UserID != userID {
			continue
		}
		first := ""
		for _, msg := range m.messages[c.ID] {
			if msg.Role == model.RoleUserMessage {
				first = msg.Text
				break
			}
		}
		out = append(out, model.ConversationSummary{Conversation: c, Title: model.ConversationTitle(c.ID, first)})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s memConversations) Archive(_ context.Context, userID, id uint64) error {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.ownedLocked(userID, id)
	if err != nil {
		return err
	}
	c.Status = model.StatusArchived
	m.conversations[id] = c
	return nil
}

func (s memConversations) Activate(_ context.Context, userID, id uint64) (model.Conversation, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.ownedLocked(userID, id)
	if err != nil {
		return model.Conversation{}, err
	}
	if c.Active() {
		return c, nil
	}
	m.archiveActiveLocked(userID)
	c.Status = model.StatusActive
	m.conversations[id] = c
	return c, nil
}

func (m *Memory) ownedLocked(userID, id uint64) (model.Conversation, error) {
	c, ok := m.conversations[id]
	if !ok || c.UserID != userID {
		return model.Conversation{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) activeLocked(userID uint64) (model.Conversation, bool) {
	for _, c := range m.conversations {
		if c.UserID == userID && c.Active() {
			return c, true
		}
	}
	return model.Conversation{}, false
}

func (m *Memory) archiveActiveLocked(userID uint64) {
	for id, c := range m.conversations {
		if c.UserID == userID && c.Active() {
			c.Status = model.StatusArchived
			m.conversations[id] = c
		}
	}
}

func (m *Memory) insertConversationLocked(userID uint64) model.Conversation {
	c := model.Conversation{
		ID:        m.id(),
		UserID:    userID,
		Status:    model.StatusActive,
		CreatedAt: m.now(),
	}
	m.conversations[c.ID] = c
	return c
}

type memMessages struct{ m *Memory }

func (s memMessages) AppendUser(_ context.Context, userID, conversationID uint64, text string) (model.Message, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	c, err := m.ownedLocked(userID, conversationID)
	if err != nil {
		return model.Message{}, err
	}
	if !c.Active() {
		return model.Message{}, ErrConflict
	}
	uid := userID
	return m.appendLocked(model.NewMessage{
		ConversationID: conversationID,
		UserID:         &uid,
		Role:           model.RoleUserMessage,
		Text:           text,
	}), nil
}

func (s memMessages) AppendReply(_ context.Context, conversationID uint64, afterOrdinal int64, text string, latencyMS int64) (model.Message, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[conversationID]; !ok {
		return model.Message{}, ErrNotFound
	}
	var last int64
	if msgs := m.messages[conversationID]; len(msgs) > 0 {
		last = msgs[len(msgs)-1].Ordinal
	}
	if last != afterOrdinal {
		return model.Message{}, ErrConflict
	}
	lat := latencyMS
	return m.appendLocked(model.NewMessage{
		ConversationID: conversationID,
		Role:           model.RoleAssistant,
		Text:           text,
		LatencyMS:      &lat,
	}), nil
}

func (m *Memory) appendLocked(nm model.NewMessage) model.Message {
	msgs := m.messages[nm.ConversationID]
	msg := model.Message{
		ID:             m.id(),
		ConversationID: nm.ConversationID,
		UserID:         nm.UserID,
		Ordinal:        1,
		Role:           nm.Role,
		Text:           nm.Text,
		CreatedAt:      m.now(),
		LatencyMS:      nm.LatencyMS,
	}
	if n := len(msgs); n > 0 {
		prev := msgs[n-1]
		msg.Ordinal = prev.Ordinal + 1
		if msg.CreatedAt.Before(prev.CreatedAt) {
			msg.CreatedAt = prev.CreatedAt
		}
	}
	m.messages[nm.ConversationID] = append(msgs, msg)
	c := m.conversations[nm.ConversationID]
	c.MessageCount++
	at := msg.CreatedAt
	c.LastMessageAt = &at
	m.conversations[c.ID] = c
	return msg
}

func (s memMessages) List(_ context.Context, conversationID uint64, page model.Page) ([]model.Message, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	limit := page.Limit
	if limit <= 0 {
		limit = math.MaxInt32
	}
	out := []model.Message{}
	for _, msg := range m.messages[conversationID] {
		if msg.Ordinal <= page.After {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s memMessages) Recent(_ context.Context, conversationID uint64, n int) ([]model.Message, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[conversationID]
	if n <= 0 {
		return []model.Message{}, nil
	}
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return append([]model.Message{}, msgs...), nil
}

type memSettings struct{ m *Memory }

func (s memSettings) Get(_ context.Context, userID uint64) (model.Settings, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.settings[userID]
	if !ok {
		return model.Settings{}, ErrNotFound
	}
	return st, nil
}

func (s memSettings) Patch(_ context.Context, userID uint64, defaults model.Settings, p model.SettingsPatch) (model.Settings, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.settings[userID]
	if !ok {
		cur = defaults
		cur.UserID = userID
	}
	cur = p.Apply(cur)
	m.settings[userID] = cur
	return cur, nil
}

type memSubscriptions struct{ m *Memory }

func (s memSubscriptions) Active(_ context.Context, userID uint64, now time.Time) (model.Subscription, error) {
	m := s.m
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		best  model.Subscription
		found bool
	)
	for _, sub := range m.subscriptions[userID] {
		if !sub.Active || sub.StartsAt.After(now) {
			continue
		}
		if sub.ExpiresAt != nil && !sub.ExpiresAt.After(now) {
			continue
		}
		if !found || sub.StartsAt.After(best.StartsAt) || (sub.StartsAt.Equal(best.StartsAt) && sub.ID > best.ID) {
			best, found = sub, true
		}
	}
	if !found {
		return model.Subscription{}, ErrNotFound
	}
	return best, nil
}
