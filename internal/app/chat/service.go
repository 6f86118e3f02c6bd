package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domainchat "campusxchange/internal/domain/chat"
	domainlistings "campusxchange/internal/domain/listings"
)

// EventSink receives domain events for asynchronous publication. Delivery
// is best effort from the session manager's point of view; the outbox
// worker owns retries.
type EventSink interface {
	Enqueue(ctx context.Context, name, aggregateID string, payload any) error
}

// ServiceConfig wires the session manager's collaborators.
type ServiceConfig struct {
	Conversations domainchat.ConversationRepository
	Messages      domainchat.MessageRepository
	Listings      domainlistings.Directory
	Presence      *Presence
	Rooms         *Rooms
	Events        EventSink
	Logger        *slog.Logger
	// Retention is how long an idle conversation lives before the sweeper
	// may collect it.
	Retention time.Duration
	// StoreTimeout bounds every storage call so one slow conversation never
	// stalls the rest.
	StoreTimeout time.Duration
}

// Service is the conversation session manager: the sole authority for
// turning an inbound event or request into a validated state transition
// against the conversation store and message log, followed by fan-out.
// Errors carry gRPC status codes; the gateways map them onto transport
// semantics.
type Service struct {
	conversations domainchat.ConversationRepository
	messages      domainchat.MessageRepository
	listings      domainlistings.Directory
	presence      *Presence
	rooms         *Rooms
	events        EventSink
	logger        *slog.Logger
	retention     time.Duration
	storeTimeout  time.Duration
	locks         *keyedMutex
	now           func() time.Time
}

const (
	defaultRetention    = 7 * 24 * time.Hour
	defaultStoreTimeout = 5 * time.Second
)

// NewService builds a session manager.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if cfg.Presence == nil {
		cfg.Presence = NewPresence()
	}
	if cfg.Rooms == nil {
		cfg.Rooms = NewRooms()
	}
	return &Service{
		conversations: cfg.Conversations,
		messages:      cfg.Messages,
		listings:      cfg.Listings,
		presence:      cfg.Presence,
		rooms:         cfg.Rooms,
		events:        cfg.Events,
		logger:        cfg.Logger,
		retention:     cfg.Retention,
		storeTimeout:  cfg.StoreTimeout,
		locks:         newKeyedMutex(),
		now:           time.Now,
	}
}

// Presence exposes the registry for the transport gateways.
func (s *Service) Presence() *Presence { return s.presence }

// Rooms exposes the fan-out table for the transport gateways.
func (s *Service) Rooms() *Rooms { return s.rooms }

// OpenOrCreateConversation returns the open thread for (caller as buyer,
// listing seller, listing), creating it when absent. Idempotent on that
// triple.
func (s *Service) OpenOrCreateConversation(ctx context.Context, callerID, listingID string) (*domainchat.Conversation, error) {
	callerID = strings.TrimSpace(callerID)
	listingID = strings.TrimSpace(listingID)
	if callerID == "" || listingID == "" {
		return nil, status.Error(codes.InvalidArgument, "caller_id and listing_id are required")
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	listing, err := s.listings.ByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, domainlistings.ErrListingNotFound) {
			return nil, status.Error(codes.NotFound, "listing not found")
		}
		return nil, s.storeError("lookup listing", err, "listing_id", listingID)
	}
	if listing.SellerID == callerID {
		return nil, status.Error(codes.InvalidArgument, "cannot start a conversation on your own listing")
	}

	conv, err := domainchat.NewConversation(domainchat.NewConversationParams{
		BuyerID:   callerID,
		SellerID:  listing.SellerID,
		ListingID: listingID,
		Retention: s.retention,
		Now:       s.now(),
	})
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	conv.ID = uuid.NewString()

	stored, created, err := s.conversations.GetOrCreate(ctx, conv)
	if err != nil {
		return nil, s.storeError("get or create conversation", err, "listing_id", listingID)
	}
	if created {
		s.log().Info("conversation created", "conversation_id", stored.ID, "listing_id", listingID, "buyer_id", stored.BuyerID, "seller_id", stored.SellerID)
		s.emit(ctx, "chat.conversation_created", stored.ID, map[string]any{
			"conversation_id": stored.ID,
			"listing_id":      stored.ListingID,
			"buyer_id":        stored.BuyerID,
			"seller_id":       stored.SellerID,
		})
	}
	return stored, nil
}

// JoinRoom registers the caller's connection in the conversation's room and
// resets the caller's unread counter: joining is treated as having read.
// Missing conversations and non-participants both come back as
// PermissionDenied so probing ids reveals nothing.
func (s *Service) JoinRoom(ctx context.Context, callerID, conversationID string, conn Conn) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	conv, role, err := s.authorize(ctx, callerID, conversationID)
	if err != nil {
		return err
	}
	s.rooms.Join(conv.ID, conn)
	if err := s.conversations.ResetUnread(ctx, conv.ID, role); err != nil {
		s.log().Error("unread reset failed", "conversation_id", conv.ID, "role", role, "error", err)
	}
	return nil
}

// LeaveRoom drops the connection from the conversation's room.
func (s *Service) LeaveRoom(conversationID string, conn Conn) {
	s.rooms.Leave(strings.TrimSpace(conversationID), conn)
}

// SendMessage validates, persists, records the summary, then fans out.
// The order is fixed: nothing is broadcast unless it is durable first, and
// room members observe messages in persistence order because sends to the
// same conversation are serialized by a per-conversation lock.
func (s *Service) SendMessage(ctx context.Context, callerID, conversationID, text string) (*domainchat.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, status.Error(codes.InvalidArgument, "text is required")
	}
	// The lock key must match the id authorize resolves, or two spellings
	// of the same thread would serialize on different locks.
	conversationID = strings.TrimSpace(conversationID)
	unlock := s.locks.lock(conversationID)
	defer unlock()

	ctx, cancel := s.bound(ctx)
	defer cancel()

	conv, role, err := s.authorize(ctx, callerID, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Closed {
		return nil, status.Error(codes.PermissionDenied, "conversation unavailable")
	}

	msg, err := domainchat.NewMessage(conv.ID, callerID, text, s.now())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	msg.ID = uuid.NewString()

	// Durability point: a failure here aborts the send before any fan-out.
	if err := s.messages.Append(ctx, msg); err != nil {
		return nil, s.storeError("append message", err, "conversation_id", conv.ID)
	}

	peerRole := domainchat.RoleSeller
	if role == domainchat.RoleSeller {
		peerRole = domainchat.RoleBuyer
	}
	summary := domainchat.MessageSummary{Text: msg.Snippet(), SenderID: msg.SenderID, At: msg.CreatedAt}
	if err := s.conversations.RecordMessage(ctx, conv.ID, summary, peerRole); err != nil {
		// The message is already durable; the summary cache catches up on
		// the next send. Never fail the call here.
		s.log().Error("summary update failed", "conversation_id", conv.ID, "message_id", msg.ID, "error", err)
	}

	s.broadcast(conv, msg, callerID)
	s.emit(ctx, "chat.message_sent", conv.ID, map[string]any{
		"conversation_id": conv.ID,
		"message_id":      msg.ID,
		"sender_id":       msg.SenderID,
	})
	return msg, nil
}

func (s *Service) broadcast(conv *domainchat.Conversation, msg *domainchat.Message, senderID string) {
	ev := Event{Name: EventReceiveMessage, Data: msg}
	for _, conn := range s.rooms.Broadcast(conv.ID, ev) {
		s.log().Warn("room delivery failed, evicting connection", "conversation_id", conv.ID, "conn_id", conn.ID(), "user_id", conn.UserID())
		s.rooms.Leave(conv.ID, conn)
	}

	// Off-room recipients that are online elsewhere get a lighter
	// notification so their client can surface an alert.
	peer := conv.PeerOf(senderID)
	if s.rooms.HasUser(conv.ID, peer) {
		return
	}
	note := Event{Name: EventNotification, Data: map[string]any{
		"conversation_id": conv.ID,
		"message":         msg,
	}}
	for _, conn := range s.presence.Lookup(peer) {
		if err := conn.Send(note); err != nil {
			s.log().Warn("notification delivery failed", "conversation_id", conv.ID, "user_id", peer, "error", err)
		}
	}
}

// MarkRead zeroes the caller's unread counter without joining the room.
func (s *Service) MarkRead(ctx context.Context, callerID, conversationID string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	conv, role, err := s.authorize(ctx, callerID, conversationID)
	if err != nil {
		return err
	}
	if err := s.conversations.ResetUnread(ctx, conv.ID, role); err != nil {
		return s.storeError("reset unread", err, "conversation_id", conv.ID)
	}
	return nil
}

// InboxEntry pairs a conversation with its resolved listing anchor.
type InboxEntry struct {
	Conversation *domainchat.Conversation
	Listing      *domainlistings.Listing
	Unread       int
}

// ListInbox returns the caller's conversations ordered most recent
// activity first. Threads whose listing is gone or sold are filtered out
// of the view; the sweeper, not this read path, deletes them.
func (s *Service) ListInbox(ctx context.Context, callerID string) ([]InboxEntry, error) {
	callerID = strings.TrimSpace(callerID)
	if callerID == "" {
		return nil, status.Error(codes.InvalidArgument, "caller_id is required")
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	convs, err := s.conversations.ForParticipant(ctx, callerID)
	if err != nil {
		return nil, s.storeError("list conversations", err, "user_id", callerID)
	}
	entries := make([]InboxEntry, 0, len(convs))
	for _, conv := range convs {
		listing, err := s.listings.ByID(ctx, conv.ListingID)
		if err != nil {
			if errors.Is(err, domainlistings.ErrListingNotFound) {
				continue
			}
			return nil, s.storeError("lookup listing", err, "listing_id", conv.ListingID)
		}
		if listing.Sold() {
			continue
		}
		role, _ := conv.RoleOf(callerID)
		entries = append(entries, InboxEntry{
			Conversation: conv,
			Listing:      listing,
			Unread:       conv.Unread.ForRole(role),
		})
	}
	return entries, nil
}

// MessagePage is one page of a conversation's log, oldest to newest.
type MessagePage struct {
	Messages   []*domainchat.Message
	Page       int
	Limit      int
	Total      int64
	TotalPages int
}

// ListMessages pages through the log. Storage is queried newest-first with
// offset/limit and the page is reversed so clients render chronologically.
func (s *Service) ListMessages(ctx context.Context, callerID, conversationID string, page, limit int) (*MessagePage, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	conv, _, err := s.authorize(ctx, callerID, conversationID)
	if err != nil {
		return nil, err
	}
	total, err := s.messages.Count(ctx, conv.ID)
	if err != nil {
		return nil, s.storeError("count messages", err, "conversation_id", conv.ID)
	}
	msgs, err := s.messages.List(ctx, conv.ID, (page-1)*limit, limit)
	if err != nil {
		return nil, s.storeError("list messages", err, "conversation_id", conv.ID)
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &MessagePage{
		Messages:   msgs,
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}, nil
}

// authorize loads the conversation and proves the caller is a participant.
// Absent threads and foreign threads are indistinguishable to the caller.
func (s *Service) authorize(ctx context.Context, callerID, conversationID string) (*domainchat.Conversation, domainchat.Role, error) {
	callerID = strings.TrimSpace(callerID)
	conversationID = strings.TrimSpace(conversationID)
	if callerID == "" || conversationID == "" {
		return nil, "", status.Error(codes.InvalidArgument, "caller_id and conversation_id are required")
	}
	conv, err := s.conversations.ByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, domainchat.ErrConversationNotFound) {
			return nil, "", status.Error(codes.PermissionDenied, "conversation unavailable")
		}
		return nil, "", s.storeError("load conversation", err, "conversation_id", conversationID)
	}
	role, ok := conv.RoleOf(callerID)
	if !ok {
		return nil, "", status.Error(codes.PermissionDenied, "conversation unavailable")
	}
	return conv, role, nil
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

// storeError classifies storage failures so clients can tell "retry later"
// from "not allowed".
func (s *Service) storeError(action string, err error, attrs ...any) error {
	s.log().Error("store call failed", append([]any{"action", action, "error", err}, attrs...)...)
	if errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, action+" timed out")
	}
	return status.Errorf(codes.Unavailable, "%s failed", action)
}

func (s *Service) emit(ctx context.Context, name, aggregateID string, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.Enqueue(ctx, name, aggregateID, payload); err != nil {
		s.log().Warn("event enqueue failed", "event", name, "aggregate_id", aggregateID, "error", err)
	}
}

func (s *Service) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
