package ginserver

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	gin "github.com/gin-gonic/gin"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	appchat "campusxchange/internal/app/chat"
	"campusxchange/internal/app/dto"
	domainchat "campusxchange/internal/domain/chat"
)

// ChatHTTP exposes chat endpoints.
type ChatHTTP interface {
	StartConversation(c *gin.Context)
	ListInbox(c *gin.Context)
	ListMessages(c *gin.Context)
	SendMessage(c *gin.Context)
	MarkRead(c *gin.Context)
}

// ChatHandler bridges HTTP with the conversation session manager.
type ChatHandler struct {
	Chat   *appchat.Service
	Logger *slog.Logger
}

// StartConversation gets or creates the caller's thread for a listing.
func (h ChatHandler) StartConversation(c *gin.Context) {
	caller, ok := requireAuth(c)
	if !ok {
		return
	}
	var req struct {
		ListingID string `json:"listing_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.ListingID = strings.TrimSpace(req.ListingID)
	if req.ListingID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "listing_id is required"})
		return
	}
	conv, err := h.Chat.OpenOrCreateConversation(c.Request.Context(), caller.ID, req.ListingID)
	if err != nil {
		h.respondChatError(c, err, "start conversation", "listing_id", req.ListingID, "user_id", caller.ID)
		return
	}
	role, _ := conv.RoleOf(caller.ID)
	c.JSON(http.StatusOK, toConversationDTO(conv, "", conv.Unread.ForRole(role)))
}

// ListInbox returns the caller's conversations, most recent activity first.
func (h ChatHandler) ListInbox(c *gin.Context) {
	caller, ok := requireAuth(c)
	if !ok {
		return
	}
	entries, err := h.Chat.ListInbox(c.Request.Context(), caller.ID)
	if err != nil {
		h.respondChatError(c, err, "list inbox", "user_id", caller.ID)
		return
	}
	collection := dto.ConversationList{Items: make([]dto.Conversation, 0, len(entries))}
	for _, entry := range entries {
		collection.Items = append(collection.Items, toConversationDTO(entry.Conversation, entry.Listing.Title, entry.Unread))
	}
	c.JSON(http.StatusOK, collection)
}

// ListMessages returns one page of the conversation log in chronological order.
func (h ChatHandler) ListMessages(c *gin.Context) {
	caller, ok := requireAuth(c)
	if !ok {
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return
	}
	page := parsePositiveIntStrict(c.Query("page"), 1)
	limit := parsePositiveIntStrict(c.Query("limit"), 20)

	result, err := h.Chat.ListMessages(c.Request.Context(), caller.ID, conversationID, page, limit)
	if err != nil {
		h.respondChatError(c, err, "list messages", "conversation_id", conversationID, "user_id", caller.ID)
		return
	}
	collection := dto.ChatMessageList{
		Items:      make([]dto.ChatMessage, 0, len(result.Messages)),
		Page:       result.Page,
		Limit:      result.Limit,
		Total:      result.Total,
		TotalPages: result.TotalPages,
	}
	for _, msg := range result.Messages {
		collection.Items = append(collection.Items, toMessageDTO(msg))
	}
	c.JSON(http.StatusOK, collection)
}

// SendMessage posts a message; delivery to the room rides the same
// broadcast path as the realtime event.
func (h ChatHandler) SendMessage(c *gin.Context) {
	caller, ok := requireAuth(c)
	if !ok {
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	msg, err := h.Chat.SendMessage(c.Request.Context(), caller.ID, conversationID, req.Text)
	if err != nil {
		h.respondChatError(c, err, "send message", "conversation_id", conversationID, "user_id", caller.ID)
		return
	}
	c.JSON(http.StatusCreated, toMessageDTO(msg))
}

// MarkRead resets the caller's unread counter on a conversation.
func (h ChatHandler) MarkRead(c *gin.Context) {
	caller, ok := requireAuth(c)
	if !ok {
		return
	}
	conversationID := strings.TrimSpace(c.Param("id"))
	if conversationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return
	}
	if err := h.Chat.MarkRead(c.Request.Context(), caller.ID, conversationID); err != nil {
		h.respondChatError(c, err, "mark read", "conversation_id", conversationID, "user_id", caller.ID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h ChatHandler) respondChatError(c *gin.Context, err error, action string, attrs ...any) {
	if h.Logger != nil {
		h.Logger.Error("chat call failed", append([]any{"action", action, "error", err}, attrs...)...)
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.NotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		case codes.InvalidArgument:
			c.JSON(http.StatusBadRequest, gin.H{"error": st.Message()})
			return
		case codes.Unauthenticated, codes.PermissionDenied:
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		case codes.Aborted:
			c.JSON(http.StatusConflict, gin.H{"error": "conflict"})
			return
		case codes.Unavailable, codes.DeadlineExceeded:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat unavailable"})
			return
		}
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "chat unavailable"})
}

func toConversationDTO(conv *domainchat.Conversation, listingTitle string, unread int) dto.Conversation {
	return dto.Conversation{
		ID:              conv.ID,
		ListingID:       conv.ListingID,
		ListingTitle:    listingTitle,
		BuyerID:         conv.BuyerID,
		SellerID:        conv.SellerID,
		LastMessageText: conv.LastMessageText,
		LastMessageAt:   conv.LastMessageAt,
		Unread:          unread,
		Closed:          conv.Closed,
		CreatedAt:       conv.CreatedAt,
	}
}

func toMessageDTO(msg *domainchat.Message) dto.ChatMessage {
	return dto.ChatMessage{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Text:           msg.Text,
		Seen:           msg.Seen,
		CreatedAt:      msg.CreatedAt,
	}
}

func parsePositiveIntStrict(raw string, def int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return def
	}
	return value
}

var _ ChatHTTP = (*ChatHandler)(nil)
