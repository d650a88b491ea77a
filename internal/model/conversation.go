package model

import (
	"fmt"
	"time"
)

// ConversationStatus is either active or archived.  A user has at most one
// active conversation at any time.
type ConversationStatus string

const (
	StatusActive   ConversationStatus = "active"
	StatusArchived ConversationStatus = "archived"
)

// ParseConversationStatus rejects unknown status values read from storage.
func ParseConversationStatus(s string) (ConversationStatus, error) {
	switch st := ConversationStatus(s); st {
	case StatusActive, StatusArchived:
		return st, nil
	}
	return "", fmt.Errorf("unknown conversation status %q", s)
}

// Conversation mirrors a row of the `conversations` table.  MessageCount and
// LastMessageAt are maintained in the same transaction that appends a
// message.
type Conversation struct {
	ID            uint64
	UserID        uint64
	Status        ConversationStatus
	CreatedAt     time.Time
	MessageCount  int
	LastMessageAt *time.Time
}

// Active reports whether the conversation still accepts user messages.
func (c Conversation) Active() bool { return c.Status == StatusActive }

// ConversationSummary is the listing view of a conversation.
type ConversationSummary struct {
	Conversation
	Title string
}

// titleRunes is how much of the first user message is kept as a title.
const titleRunes = 50

// ConversationTitle derives a display title from the first user message.
func ConversationTitle(id uint64, firstUserMessage string) string {
	if firstUserMessage == "" {
		return fmt.Sprintf("Conversation %d", id)
	}
	r := []rune(firstUserMessage)
	if len(r) <= titleRunes {
		return firstUserMessage
	}
	return string(r[:titleRunes]) + "..."
}
