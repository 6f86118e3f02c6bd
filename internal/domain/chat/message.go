package chat

import (
	"context"
	"strings"
	"time"
)

// snippet length stored on the conversation summary cache.
const SummaryLimit = 500

// Message is an immutable entry in a conversation's append-only log.
// Creation order is strictly increasing within a conversation.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Text           string
	Seen           bool
	CreatedAt      time.Time
}

// NewMessage validates and builds a message ready for appending.
func NewMessage(conversationID, senderID, text string, now time.Time) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if now.IsZero() {
		now = time.Now()
	}
	return &Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           text,
		CreatedAt:      now.UTC(),
	}, nil
}

// Snippet trims the text down to the summary cache limit.
func (m *Message) Snippet() string {
	runes := []rune(m.Text)
	if len(runes) <= SummaryLimit {
		return m.Text
	}
	return string(runes[:SummaryLimit])
}

// MessageRepository is the durable, append-only Message Log contract.
type MessageRepository interface {
	// Append persists the message and assigns its id. This is the
	// durability point for a send.
	Append(ctx context.Context, msg *Message) error
	// List returns messages newest-first using offset/limit paging.
	List(ctx context.Context, conversationID string, offset, limit int) ([]*Message, error)
	Count(ctx context.Context, conversationID string) (int64, error)
	// DeleteForConversation removes the log when its conversation is swept.
	DeleteForConversation(ctx context.Context, conversationID string) error
}
