package dto

import "time"

// Conversation describes chat thread metadata for inbox and start responses.
type Conversation struct {
	ID              string    `json:"id"`
	ListingID       string    `json:"listing_id"`
	ListingTitle    string    `json:"listing_title,omitempty"`
	BuyerID         string    `json:"buyer_id"`
	SellerID        string    `json:"seller_id"`
	LastMessageText string    `json:"last_message_text,omitempty"`
	LastMessageAt   time.Time `json:"last_message_at,omitempty"`
	Unread          int       `json:"unread"`
	Closed          bool      `json:"closed,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ConversationList is the inbox collection, most recent activity first.
type ConversationList struct {
	Items []Conversation `json:"items"`
}

// ChatMessage contains a single message payload.
type ChatMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Text           string    `json:"text"`
	Seen           bool      `json:"seen,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ChatMessageList is one page of a conversation's log, oldest first.
type ChatMessageList struct {
	Items      []ChatMessage `json:"items"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	Total      int64         `json:"total"`
	TotalPages int           `json:"total_pages"`
}
