package ginserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appchat "campusxchange/internal/app/chat"
	"campusxchange/internal/app/dto"
	"campusxchange/internal/domain/identity"
	domainlistings "campusxchange/internal/domain/listings"
	"campusxchange/internal/infra/config"
	"campusxchange/internal/infra/obs"
	"campusxchange/internal/infra/storage/memory"
)

type chatFixture struct {
	handler  http.Handler
	chat     *appchat.Service
	listings *memory.ListingDirectory
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	ctx := context.Background()

	listings := memory.NewListingDirectory()
	sessions := memory.NewSessionStore()
	chat := appchat.NewService(appchat.ServiceConfig{
		Conversations: memory.NewConversationRepository(),
		Messages:      memory.NewMessageRepository(),
		Listings:      listings,
	})

	seedListings := []*domainlistings.Listing{
		{ID: "listing-1", SellerID: "seller", Title: "Bike", Status: domainlistings.ListingActive},
	}
	for _, l := range seedListings {
		if err := listings.Save(ctx, l); err != nil {
			t.Fatalf("seed listing: %v", err)
		}
	}
	for user, token := range map[string]string{"buyer": "buyer-token", "seller": "seller-token", "chen": "chen-token"} {
		err := sessions.Save(ctx, &identity.Session{
			Token:     token,
			UserID:    user,
			ExpiresAt: time.Now().Add(time.Hour),
		})
		if err != nil {
			t.Fatalf("seed session: %v", err)
		}
	}

	verifier := identity.StoreVerifier{Sessions: sessions}
	server := NewServer(config.Config{Env: "test", HTTPAddr: ":0"}, obs.Middleware{}, obs.HealthHandlers{}, Handlers{
		Chat:           &ChatHandler{Chat: chat},
		AuthMiddleware: AuthMiddleware{Verifier: verifier}.Handle,
	})
	return &chatFixture{handler: server.Handler, chat: chat, listings: listings}
}

func (f *chatFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		payload = bytes.NewBuffer(data)
	} else {
		payload = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *chatFixture) startConversation(t *testing.T, token, listingID string) dto.Conversation {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/conversations/start", token, map[string]string{"listing_id": listingID})
	if rec.Code != http.StatusOK {
		t.Fatalf("start conversation: got status %d body %s", rec.Code, rec.Body.String())
	}
	var conv dto.Conversation
	if err := json.Unmarshal(rec.Body.Bytes(), &conv); err != nil {
		t.Fatalf("decode conversation: %v", err)
	}
	return conv
}

func TestChatEndpointsRequireCredential(t *testing.T) {
	t.Parallel()
	f := newChatFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/conversations", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no credential: got %d, want 401", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/api/v1/conversations", "bogus-token", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("bad credential: got %d, want 403", rec.Code)
	}
}

func TestStartConversationEndpoint(t *testing.T) {
	t.Parallel()
	f := newChatFixture(t)

	conv := f.startConversation(t, "buyer-token", "listing-1")
	if conv.BuyerID != "buyer" || conv.SellerID != "seller" || conv.ListingID != "listing-1" {
		t.Errorf("conversation fields wrong: %+v", conv)
	}

	again := f.startConversation(t, "buyer-token", "listing-1")
	if again.ID != conv.ID {
		t.Errorf("repeat start: got id %q, want %q", again.ID, conv.ID)
	}

	rec := f.do(t, http.MethodPost, "/api/v1/conversations/start", "buyer-token", map[string]string{"listing_id": "missing"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown listing: got %d, want 404", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/api/v1/conversations/start", "seller-token", map[string]string{"listing_id": "listing-1"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("own listing: got %d, want 400", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/api/v1/conversations/start", "buyer-token", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing listing_id: got %d, want 400", rec.Code)
	}
}

func TestSendAndListMessagesEndpoints(t *testing.T) {
	t.Parallel()
	f := newChatFixture(t)
	conv := f.startConversation(t, "buyer-token", "listing-1")

	rec := f.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", "buyer-token", map[string]string{"text": "is it available?"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("send: got %d body %s", rec.Code, rec.Body.String())
	}
	var sent dto.ChatMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &sent); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if sent.SenderID != "buyer" || sent.Text != "is it available?" {
		t.Errorf("message fields wrong: %+v", sent)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", "buyer-token", map[string]string{"text": "   "})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank text: got %d, want 400", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/conversations/"+conv.ID+"/messages?page=1&limit=10", "seller-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: got %d body %s", rec.Code, rec.Body.String())
	}
	var page dto.ChatMessageList
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.Total != 1 || page.TotalPages != 1 || len(page.Items) != 1 {
		t.Errorf("page shape wrong: %+v", page)
	}
}

func TestForeignConversationLooksForbidden(t *testing.T) {
	t.Parallel()
	f := newChatFixture(t)
	conv := f.startConversation(t, "buyer-token", "listing-1")

	// An authenticated outsider gets the same answer for a thread they are
	// not part of and for a thread that does not exist.
	rec := f.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", "chen-token", map[string]string{"text": "hi"})
	if rec.Code != http.StatusForbidden {
		t.Errorf("foreign conversation: got %d, want 403", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/api/v1/conversations/no-such-id/messages", "chen-token", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("unknown conversation: got %d, want 403", rec.Code)
	}
}

func TestMarkReadEndpoint(t *testing.T) {
	t.Parallel()
	f := newChatFixture(t)
	conv := f.startConversation(t, "buyer-token", "listing-1")

	rec := f.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", "buyer-token", map[string]string{"text": "ping"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("send: %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/conversations", "seller-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("inbox: %d", rec.Code)
	}
	var inbox dto.ConversationList
	if err := json.Unmarshal(rec.Body.Bytes(), &inbox); err != nil {
		t.Fatalf("decode inbox: %v", err)
	}
	if len(inbox.Items) != 1 || inbox.Items[0].Unread != 1 {
		t.Fatalf("inbox before read: %+v", inbox.Items)
	}
	if inbox.Items[0].ListingTitle != "Bike" {
		t.Errorf("listing title: got %q, want Bike", inbox.Items[0].ListingTitle)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/read", "seller-token", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("mark read: %d", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/api/v1/conversations", "seller-token", nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &inbox); err != nil {
		t.Fatalf("decode inbox: %v", err)
	}
	if inbox.Items[0].Unread != 0 {
		t.Errorf("unread after mark read: got %d, want 0", inbox.Items[0].Unread)
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	f := newChatFixture(t)
	if rec := f.do(t, http.MethodGet, "/livez", "", nil); rec.Code != http.StatusOK {
		t.Errorf("livez: got %d, want 200", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/readyz", "", nil); rec.Code != http.StatusOK {
		t.Errorf("readyz: got %d, want 200", rec.Code)
	}
}
