// Package queue defines the events exchanged over the message broker and
// the background consumer that records them.
package queue

import "time"

// Queue names.  Both are durable and published to the default exchange.
const (
	ReplyRecordedQueue = "chat.reply.recorded"
	OTPMailQueue       = "mail.otp"
)

// ReplyRecordedEvent is published after an assistant message is stored.
// It carries enough for usage accounting without reading the database.
type ReplyRecordedEvent struct {
	ConversationID uint64    `json:"conversation_id"`
	UserID         uint64    `json:"user_id"`
	MessageID      uint64    `json:"message_id"`
	Model          string    `json:"model"`
	LatencyMS      int64     `json:"latency_ms"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// OTPMailEvent asks the mail worker to deliver a one-time login code.
type OTPMailEvent struct {
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}
