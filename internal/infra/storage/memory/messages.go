package memory

import (
	"context"
	"sync"

	domainchat "campusxchange/internal/domain/chat"
)

// MessageRepository is the in-memory append-only message log.
type MessageRepository struct {
	mu   sync.RWMutex
	logs map[string][]*domainchat.Message
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{logs: make(map[string][]*domainchat.Message)}
}

func (r *MessageRepository) Append(ctx context.Context, msg *domainchat.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *msg
	r.logs[msg.ConversationID] = append(r.logs[msg.ConversationID], &copied)
	return nil
}

// List returns a newest-first page. The log slice is append-ordered, so
// newest-first is a walk from the tail.
func (r *MessageRepository) List(ctx context.Context, conversationID string, offset, limit int) ([]*domainchat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	log := r.logs[conversationID]
	var out []*domainchat.Message
	for i := len(log) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		copied := *log[i]
		out = append(out, &copied)
	}
	return out, nil
}

func (r *MessageRepository) Count(ctx context.Context, conversationID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.logs[conversationID])), nil
}

func (r *MessageRepository) DeleteForConversation(ctx context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.logs, conversationID)
	return nil
}

var _ domainchat.MessageRepository = (*MessageRepository)(nil)
