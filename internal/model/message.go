package model

import (
	"fmt"
	"time"
)

// MessageRole identifies the author kind of a message.
type MessageRole string

const (
	RoleUserMessage MessageRole = "user"
	RoleAssistant   MessageRole = "assistant"
	RoleSystem      MessageRole = "system"
)

// ParseMessageRole rejects unknown roles read from storage.
func ParseMessageRole(s string) (MessageRole, error) {
	switch r := MessageRole(s); r {
	case RoleUserMessage, RoleAssistant, RoleSystem:
		return r, nil
	}
	return "", fmt.Errorf("unknown message role %q", s)
}

// Message is an immutable entry of a conversation.  Ordinal is the strictly
// increasing position of the message within its conversation, assigned by
// the store at append time.
//
// Fields:
//
//	UserID    – authoring user; nil for assistant and system messages.
//	LatencyMS – measured response latency; assistant messages only.
type Message struct {
	ID             uint64
	ConversationID uint64
	UserID         *uint64
	Ordinal        int64
	Role           MessageRole
	Text           string
	CreatedAt      time.Time
	LatencyMS      *int64
}

// NewMessage carries the fields a caller supplies when appending.
type NewMessage struct {
	ConversationID uint64
	UserID         *uint64
	Role           MessageRole
	Text           string
	LatencyMS      *int64
}

// Page selects a window of a conversation's messages ordered by ordinal.
// After is exclusive; Limit <= 0 means no limit.
type Page struct {
	After int64
	Limit int
}
