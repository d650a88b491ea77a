package service

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/iliyamo/ollama-chat-backend/internal/inference"
	"github.com/iliyamo/ollama-chat-backend/internal/model"
	"github.com/iliyamo/ollama-chat-backend/internal/queue"
	"github.com/iliyamo/ollama-chat-backend/internal/repository"
)

// ChatConfig tunes prompt construction and the gateway call.
type ChatConfig struct {
	ContextLength int           // history window when the plan sets none
	SystemPrompt  string        // prepended to every prompt; empty sends none
	Timeout       time.Duration // bound on one generate call
}

// ConversationService maps an authenticated user and an inbound message
// onto that user's conversations.  It keeps no session state between
// calls: the active conversation is looked up in the store every time.
type ConversationService struct {
	conversations repository.ConversationStore
	messages      repository.MessageStore
	settings      repository.SettingsStore
	subscriptions repository.SubscriptionStore
	gateway       inference.Gateway
	registry      *inference.Registry
	events        Publisher
	cfg           ChatConfig
	log           zerolog.Logger
	now           func() time.Time
}

func NewConversationService(st repository.Store, gw inference.Gateway, reg *inference.Registry, events Publisher, cfg ChatConfig, log zerolog.Logger) *ConversationService {
	if cfg.ContextLength < 1 {
		cfg.ContextLength = 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if events == nil {
		events = NopPublisher{}
	}
	return &ConversationService{
		conversations: st.Conversations,
		messages:      st.Messages,
		settings:      st.Settings,
		subscriptions: st.Subscriptions,
		gateway:       gw,
		registry:      reg,
		events:        events,
		cfg:           cfg,
		log:           log.With().Str("component", "conversations").Logger(),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// maxMessageRunes bounds a single user message.
const maxMessageRunes = 32000

// ResolveActiveConversation returns the user's active conversation,
// creating one when there is none.
func (s *ConversationService) ResolveActiveConversation(ctx context.Context, userID uint64) (model.Conversation, error) {
	conv, created, err := s.conversations.ResolveActive(ctx, userID)
	if err != nil {
		return model.Conversation{}, storeErr(err, "user")
	}
	if created {
		s.log.Info().Uint64("user_id", userID).Uint64("conversation_id", conv.ID).Msg("conversation started")
	}
	return conv, nil
}

// CreateConversation archives the active conversation, if any, and starts
// a new one.
func (s *ConversationService) CreateConversation(ctx context.Context, userID uint64) (model.Conversation, error) {
	conv, err := s.conversations.Create(ctx, userID)
	if err != nil {
		return model.Conversation{}, storeErr(err, "user")
	}
	s.log.Info().Uint64("user_id", userID).Uint64("conversation_id", conv.ID).Msg("conversation created")
	return conv, nil
}

// AppendUserMessage stores text as a user message.  Archived
// conversations are read-only.
func (s *ConversationService) AppendUserMessage(ctx context.Context, conversationID, userID uint64, text string) (model.Message, error) {
	text, err := cleanMessage(text)
	if err != nil {
		return model.Message{}, err
	}
	msg, err := s.messages.AppendUser(ctx, userID, conversationID, text)
	if err != nil {
		return model.Message{}, storeErr(err, "conversation")
	}
	return msg, nil
}

func cleanMessage(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", newError(ErrValidation, "message must not be empty")
	}
	if len([]rune(text)) > maxMessageRunes {
		return "", newError(ErrValidation, "message exceeds %d characters", maxMessageRunes)
	}
	return text, nil
}

// RequestReply generates and stores the assistant reply to the newest user
// message of the conversation.  A gateway failure stores nothing and is
// returned as *inference.Error.  The gateway call is detached from ctx, so
// a client that goes away does not lose a reply already being generated.
func (s *ConversationService) RequestReply(ctx context.Context, p model.Principal, conversationID uint64, modelName string) (model.Message, error) {
	res, err := s.RetryReply(ctx, p, conversationID, modelName)
	return res.Reply, err
}

// RetryReply is RequestReply reporting the conversation and the model
// used, as SendMessage does.  Archived conversations are refused; only a
// reply already in flight when the archive happened is still recorded.
func (s *ConversationService) RetryReply(ctx context.Context, p model.Principal, conversationID uint64, modelName string) (ChatResult, error) {
	var res ChatResult
	conv, err := s.conversations.Get(ctx, p.UserID, conversationID)
	if err != nil {
		return res, storeErr(err, "conversation")
	}
	res.Conversation = conv
	if !conv.Active() {
		return res, newError(ErrConflict, "conversation is archived")
	}
	m, err := s.resolveModel(ctx, p, modelName)
	if err != nil {
		return res, err
	}
	res.Model = m.Name
	res.Reply, err = s.reply(ctx, p.UserID, conversationID, m)
	return res, err
}

func (s *ConversationService) reply(ctx context.Context, userID, conversationID uint64, m inference.Model) (model.Message, error) {
	history, err := s.messages.Recent(ctx, conversationID, s.contextLength(ctx, userID))
	if err != nil {
		return model.Message{}, storeErr(err, "conversation")
	}
	if len(history) == 0 || history[len(history)-1].Role != model.RoleUserMessage {
		return model.Message{}, newError(ErrConflict, "no user message is awaiting a reply")
	}
	last := history[len(history)-1]

	detached := context.WithoutCancel(ctx)
	gctx, cancel := context.WithTimeout(detached, s.cfg.Timeout)
	defer cancel()
	out, err := s.gateway.Generate(gctx, m.Name, s.prompt(history))
	if err != nil {
		s.log.Warn().Err(err).Uint64("conversation_id", conversationID).Str("model", m.Name).Msg("reply failed")
		return model.Message{}, err
	}

	latency := out.Elapsed.Milliseconds()
	msg, err := s.messages.AppendReply(detached, conversationID, last.Ordinal, out.Text, latency)
	if errors.Is(err, repository.ErrConflict) {
		return model.Message{}, newError(ErrConflict, "conversation changed while the reply was generated")
	}
	if err != nil {
		return model.Message{}, storeErr(err, "conversation")
	}
	s.log.Info().Uint64("conversation_id", conversationID).Str("model", m.Name).Int64("latency_ms", latency).Msg("reply recorded")

	pctx, pcancel := context.WithTimeout(detached, 3*time.Second)
	defer pcancel()
	if err := s.events.Publish(pctx, queue.ReplyRecordedQueue, queue.ReplyRecordedEvent{
		ConversationID: conversationID,
		UserID:         userID,
		MessageID:      msg.ID,
		Model:          m.Name,
		LatencyMS:      latency,
		RecordedAt:     msg.CreatedAt,
	}); err != nil {
		s.log.Warn().Err(err).Msg("publish reply event failed")
	}
	return msg, nil
}

func (s *ConversationService) prompt(history []model.Message) []inference.Turn {
	turns := make([]inference.Turn, 0, len(history)+1)
	if s.cfg.SystemPrompt != "" {
		turns = append(turns, inference.Turn{Role: string(model.RoleSystem), Content: s.cfg.SystemPrompt})
	}
	for _, m := range history {
		turns = append(turns, inference.Turn{Role: string(m.Role), Content: m.Text})
	}
	return turns
}

// contextLength is the plan's history window, or the configured default.
func (s *ConversationService) contextLength(ctx context.Context, userID uint64) int {
	if sub, err := s.subscriptions.Active(ctx, userID, s.now()); err == nil {
		if n := sub.Plan.ContextLength(); n > 0 {
			return n
		}
	}
	return s.cfg.ContextLength
}

// resolveModel picks the requested model, else the user's preferred one,
// else the registry default, and checks the caller may use it.
func (s *ConversationService) resolveModel(ctx context.Context, p model.Principal, name string) (inference.Model, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		if st, err := s.settings.Get(ctx, p.UserID); err == nil {
			if _, ok := s.registry.Lookup(st.PreferredModel); ok {
				name = st.PreferredModel
			}
		}
	}
	if name == "" {
		name = s.registry.Default().Name
	}
	m, ok := s.registry.Lookup(name)
	if !ok {
		return inference.Model{}, newError(ErrValidation, "unsupported model %q", name)
	}
	if m.Premium && !s.premium(ctx, p) {
		return inference.Model{}, newError(ErrForbidden, "model %q requires a premium plan", name)
	}
	return m, nil
}

func (s *ConversationService) premium(ctx context.Context, p model.Principal) bool {
	if p.Role == model.RolePremium || p.Role == model.RoleAdmin {
		return true
	}
	sub, err := s.subscriptions.Active(ctx, p.UserID, s.now())
	return err == nil && sub.Plan.Premium()
}

// ListMessages returns a page of an owned conversation in ordinal order.
func (s *ConversationService) ListMessages(ctx context.Context, conversationID, userID uint64, page model.Page) ([]model.Message, error) {
	if page.After < 0 {
		return nil, newError(ErrValidation, "after must not be negative")
	}
	if _, err := s.conversations.Get(ctx, userID, conversationID); err != nil {
		return nil, storeErr(err, "conversation")
	}
	msgs, err := s.messages.List(ctx, conversationID, page)
	return msgs, storeErr(err, "conversation")
}

// ListConversations returns the user's conversations, newest first.
func (s *ConversationService) ListConversations(ctx context.Context, userID uint64) ([]model.ConversationSummary, error) {
	list, err := s.conversations.List(ctx, userID)
	return list, storeErr(err, "user")
}

// ArchiveConversation archives an owned conversation.  Archiving twice is
// not an error.
func (s *ConversationService) ArchiveConversation(ctx context.Context, conversationID, userID uint64) error {
	if err := s.conversations.Archive(ctx, userID, conversationID); err != nil {
		return storeErr(err, "conversation")
	}
	s.log.Info().Uint64("user_id", userID).Uint64("conversation_id", conversationID).Msg("conversation archived")
	return nil
}

// SwitchConversation makes an owned conversation the active one.
func (s *ConversationService) SwitchConversation(ctx context.Context, conversationID, userID uint64) (model.Conversation, error) {
	conv, err := s.conversations.Activate(ctx, userID, conversationID)
	if err != nil {
		return model.Conversation{}, storeErr(err, "conversation")
	}
	return conv, nil
}

// ChatResult is the outcome of SendMessage.  On an inference failure
// Conversation and UserMessage are still set so the caller can offer a
// retry.
type ChatResult struct {
	Conversation model.Conversation
	UserMessage  model.Message
	Reply        model.Message
	Model        string
}

// SendMessage is the chat flow: resolve the target conversation (the
// active one when conversationID is zero), append the user message and
// request the reply.
func (s *ConversationService) SendMessage(ctx context.Context, p model.Principal, conversationID uint64, text, modelName string) (ChatResult, error) {
	var res ChatResult
	text, err := cleanMessage(text)
	if err != nil {
		return res, err
	}
	m, err := s.resolveModel(ctx, p, modelName)
	if err != nil {
		return res, err
	}
	res.Model = m.Name

	if conversationID == 0 {
		res.Conversation, err = s.ResolveActiveConversation(ctx, p.UserID)
	} else {
		res.Conversation, err = s.conversations.Get(ctx, p.UserID, conversationID)
		err = storeErr(err, "conversation")
	}
	if err != nil {
		return res, err
	}
	if res.UserMessage, err = s.AppendUserMessage(ctx, res.Conversation.ID, p.UserID, text); err != nil {
		return res, err
	}
	res.Reply, err = s.reply(ctx, p.UserID, res.Conversation.ID, m)
	return res, err
}

// ModelOption is a registry entry as seen by one caller.
type ModelOption struct {
	inference.Model
	Available bool `json:"available"`
}

// Models lists the registry, marking which entries the caller may use.
func (s *ConversationService) Models(ctx context.Context, p model.Principal) []ModelOption {
	premium := s.premium(ctx, p)
	list := s.registry.List()
	out := make([]ModelOption, 0, len(list))
	for _, m := range list {
		out = append(out, ModelOption{Model: m, Available: !m.Premium || premium})
	}
	return out
}
