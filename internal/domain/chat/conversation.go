package chat

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrConversationNotFound = errors.New("chat: conversation not found")
	ErrConversationClosed   = errors.New("chat: conversation is closed")
	ErrNotParticipant       = errors.New("chat: user is not a conversation participant")
	ErrSelfConversation     = errors.New("chat: buyer and seller must be distinct users")
	ErrMissingIdentifiers   = errors.New("chat: buyer, seller and listing ids are required")
	ErrEmptyText            = errors.New("chat: message text is required")
)

// Role tags a participant inside a conversation.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// UnreadCounters tracks messages not yet read by each role.
type UnreadCounters struct {
	Buyer  int
	Seller int
}

// ForRole returns the counter belonging to the given role.
func (u UnreadCounters) ForRole(role Role) int {
	if role == RoleSeller {
		return u.Seller
	}
	return u.Buyer
}

// Conversation is a durable two-party chat thread anchored to a listing.
// Participants and their roles are immutable after creation; at most one
// open conversation exists per (buyer, seller, listing) triple.
type Conversation struct {
	ID              string
	ListingID       string
	BuyerID         string
	SellerID        string
	LastMessageText string
	LastMessageAt   time.Time
	Unread          UnreadCounters
	Closed          bool
	ExpiresAt       time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewConversationParams carries everything needed to open a thread.
type NewConversationParams struct {
	BuyerID   string
	SellerID  string
	ListingID string
	Retention time.Duration
	Now       time.Time
}

// NewConversation validates participants and builds an open thread with
// zero unread counters and an expiry set one retention window out.
func NewConversation(params NewConversationParams) (*Conversation, error) {
	buyer := strings.TrimSpace(params.BuyerID)
	seller := strings.TrimSpace(params.SellerID)
	listing := strings.TrimSpace(params.ListingID)
	if buyer == "" || seller == "" || listing == "" {
		return nil, ErrMissingIdentifiers
	}
	if buyer == seller {
		return nil, ErrSelfConversation
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	return &Conversation{
		BuyerID:   buyer,
		SellerID:  seller,
		ListingID: listing,
		ExpiresAt: now.Add(params.Retention),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (userID == c.BuyerID || userID == c.SellerID)
}

// RoleOf returns the role of userID, or an empty role for outsiders.
func (c *Conversation) RoleOf(userID string) (Role, bool) {
	switch userID {
	case c.BuyerID:
		return RoleBuyer, true
	case c.SellerID:
		return RoleSeller, true
	}
	return "", false
}

// PeerOf returns the other participant's user id.
func (c *Conversation) PeerOf(userID string) string {
	if userID == c.BuyerID {
		return c.SellerID
	}
	return c.BuyerID
}

// Expired reports whether the thread is past its retention window.
func (c *Conversation) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// ConversationKey identifies the open thread for a buyer/seller/listing triple.
type ConversationKey struct {
	BuyerID   string
	SellerID  string
	ListingID string
}

// MessageSummary is the denormalized last-message cache recorded against a
// conversation whenever a message is appended.
type MessageSummary struct {
	Text     string
	SenderID string
	At       time.Time
}

// ConversationRepository is the durable Conversation Store contract.
type ConversationRepository interface {
	// GetOrCreate returns the open conversation for the triple, creating it
	// atomically when absent. The boolean reports whether a new thread was
	// created.
	GetOrCreate(ctx context.Context, conv *Conversation) (*Conversation, bool, error)
	ByID(ctx context.Context, id string) (*Conversation, error)
	// ForParticipant lists the user's conversations ordered by most recent
	// activity first.
	ForParticipant(ctx context.Context, userID string) ([]*Conversation, error)
	// RecordMessage updates the summary cache and atomically increments the
	// unread counter of the role opposite to the sender.
	RecordMessage(ctx context.Context, id string, summary MessageSummary, unreadRole Role) error
	// ResetUnread zeroes the unread counter for the given role.
	ResetUnread(ctx context.Context, id string, role Role) error
	// CloseForListing marks every open conversation for the listing closed.
	CloseForListing(ctx context.Context, listingID string) (int, error)
	Delete(ctx context.Context, id string) error
	// ExpiredBefore returns ids of conversations whose expiry is before now.
	ExpiredBefore(ctx context.Context, now time.Time, limit int) ([]string, error)
	// All returns every stored conversation; used by the sweeper to verify
	// listing anchors.
	All(ctx context.Context) ([]*Conversation, error)
}
