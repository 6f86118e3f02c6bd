package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"campusxchange/internal/infra/outbox"
)

// Outbox is the in-memory outbox store used by tests and memory mode.
type Outbox struct {
	mu    sync.Mutex
	items map[string]*outboxItem
}

type outboxItem struct {
	doc         outbox.EventDocument
	status      string
	availableAt time.Time
	lastError   string
}

func NewOutbox() *Outbox {
	return &Outbox{items: make(map[string]*outboxItem)}
}

func (o *Outbox) Enqueue(ctx context.Context, doc *outbox.EventDocument) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items[doc.ID] = &outboxItem{doc: *doc, status: "pending", availableAt: doc.OccurredAt}
	return nil
}

func (o *Outbox) Claim(ctx context.Context, workerID string) (*outbox.EventDocument, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	now := time.Now()

	var pending []*outboxItem
	for _, item := range o.items {
		if item.status == "pending" && !item.availableAt.After(now) {
			pending = append(pending, item)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].doc.OccurredAt.Before(pending[j].doc.OccurredAt)
	})
	item := pending[0]
	item.status = "claimed"
	item.doc.Attempts++
	doc := item.doc
	return &doc, nil
}

func (o *Outbox) MarkSent(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if item, ok := o.items[id]; ok {
		item.status = "sent"
	}
	return nil
}

func (o *Outbox) MarkFailed(ctx context.Context, id string, retryAt time.Time, reason string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if item, ok := o.items[id]; ok {
		item.status = "pending"
		item.availableAt = retryAt
		item.lastError = reason
	}
	return nil
}

// Pending reports how many events still await publication; used in tests.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, item := range o.items {
		if item.status == "pending" || item.status == "claimed" {
			n++
		}
	}
	return n
}

var _ outbox.Store = (*Outbox)(nil)
