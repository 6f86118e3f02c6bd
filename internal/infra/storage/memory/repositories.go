package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domainchat "campusxchange/internal/domain/chat"
)

// ConversationRepository is the in-memory Conversation Store used by unit
// tests and memory mode. All mutations happen under one mutex, which gives
// the same atomicity the mongo implementation gets from $inc and upserts.
type ConversationRepository struct {
	mu    sync.RWMutex
	items map[string]*domainchat.Conversation
}

func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{items: make(map[string]*domainchat.Conversation)}
}

func (r *ConversationRepository) GetOrCreate(ctx context.Context, conv *domainchat.Conversation) (*domainchat.Conversation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if existing.Closed {
			continue
		}
		if existing.BuyerID == conv.BuyerID && existing.SellerID == conv.SellerID && existing.ListingID == conv.ListingID {
			return cloneConversation(existing), false, nil
		}
	}
	stored := cloneConversation(conv)
	if stored.LastMessageAt.IsZero() {
		stored.LastMessageAt = stored.CreatedAt
	}
	r.items[stored.ID] = stored
	return cloneConversation(stored), true, nil
}

func (r *ConversationRepository) ByID(ctx context.Context, id string) (*domainchat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.items[id]
	if !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	return cloneConversation(conv), nil
}

func (r *ConversationRepository) ForParticipant(ctx context.Context, userID string) ([]*domainchat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domainchat.Conversation
	for _, conv := range r.items {
		if conv.HasParticipant(userID) {
			out = append(out, cloneConversation(conv))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out, nil
}

func (r *ConversationRepository) RecordMessage(ctx context.Context, id string, summary domainchat.MessageSummary, unreadRole domainchat.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.items[id]
	if !ok {
		return domainchat.ErrConversationNotFound
	}
	conv.LastMessageText = summary.Text
	conv.LastMessageAt = summary.At
	conv.UpdatedAt = time.Now().UTC()
	if unreadRole == domainchat.RoleSeller {
		conv.Unread.Seller++
	} else {
		conv.Unread.Buyer++
	}
	return nil
}

func (r *ConversationRepository) ResetUnread(ctx context.Context, id string, role domainchat.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.items[id]
	if !ok {
		return domainchat.ErrConversationNotFound
	}
	if role == domainchat.RoleSeller {
		conv.Unread.Seller = 0
	} else {
		conv.Unread.Buyer = 0
	}
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *ConversationRepository) CloseForListing(ctx context.Context, listingID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	closed := 0
	for _, conv := range r.items {
		if conv.ListingID == listingID && !conv.Closed {
			conv.Closed = true
			conv.UpdatedAt = time.Now().UTC()
			closed++
		}
	}
	return closed, nil
}

func (r *ConversationRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

func (r *ConversationRepository) ExpiredBefore(ctx context.Context, now time.Time, limit int) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, conv := range r.items {
		if conv.Expired(now) {
			ids = append(ids, id)
			if len(ids) == limit {
				break
			}
		}
	}
	return ids, nil
}

func (r *ConversationRepository) All(ctx context.Context) ([]*domainchat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domainchat.Conversation, 0, len(r.items))
	for _, conv := range r.items {
		out = append(out, cloneConversation(conv))
	}
	return out, nil
}

func cloneConversation(c *domainchat.Conversation) *domainchat.Conversation {
	copied := *c
	return &copied
}

var _ domainchat.ConversationRepository = (*ConversationRepository)(nil)
